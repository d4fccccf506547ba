package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/saber/internal/authz"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

const (
	adminKeyHeader = "X-Admin-Key"
	adminIDHeader  = "X-Admin-ID"
	defaultAdminID = "admin"
)

// requireAdmin checks the admin key against the configured bcrypt hash. With
// no hash configured the admin routes are closed.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AdminKeyHash == "" {
			writeError(w, http.StatusForbidden, "admin routes are disabled")
			return
		}
		key := r.Header.Get(adminKeyHeader)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "admin key required")
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(h.config.AdminKeyHash), []byte(key)); err != nil {
			slog.Warn("admin key rejected", "remote", r.RemoteAddr, "path", r.URL.Path)
			writeError(w, http.StatusUnauthorized, "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func adminID(r *http.Request) string {
	if id := r.Header.Get(adminIDHeader); id != "" {
		return id
	}
	return defaultAdminID
}

func (h *Handler) handleListAuthorizations(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.Authz().GetGradeAuthorizations(r.Context(), chi.URLParam(r, "gradeID"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type authorizeRequest struct {
	GradeName     string          `json:"gradeName"`
	Phase         string          `json:"phase"`
	Subject       subject.Subject `json:"subject,omitempty"`
	InstitutionID string          `json:"institutionId,omitempty"`
	CampusID      string          `json:"campusId,omitempty"`
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	p, err := model.ParsePhase(req.Phase)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	rec, err := h.engine.Authz().AuthorizePhase(r.Context(), authz.Request{
		GradeID:       chi.URLParam(r, "gradeID"),
		GradeName:     req.GradeName,
		Phase:         p,
		Subject:       req.Subject,
		AdminID:       adminID(r),
		InstitutionID: req.InstitutionID,
		CampusID:      req.CampusID,
	})
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRevoke revokes a phase, or one subject of it with ?subject=.
func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	p, err := phaseParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var subj subject.Subject
	if name := r.URL.Query().Get("subject"); name != "" {
		if subj, err = subject.Parse(name); err != nil {
			writeFailure(w, r, err)
			return
		}
	}
	rec, err := h.engine.Authz().RevokePhaseAuthorization(r.Context(), chi.URLParam(r, "gradeID"), p, subj)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	slog.Info("phase authorization revoked via API", "grade_id", chi.URLParam(r, "gradeID"),
		"phase", p, "subject", subj, "admin_id", adminID(r))
	writeJSON(w, http.StatusOK, rec)
}
