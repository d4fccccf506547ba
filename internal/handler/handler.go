package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	appI18n "github.com/pavelanni/saber/internal/i18n"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/phase"
	"github.com/pavelanni/saber/internal/ranking"
	"github.com/pavelanni/saber/internal/subject"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	engine *phase.Service
	config model.EngineConfig
}

// New creates a new Handler. Runtime settings come from the engine.
func New(engine *phase.Service) (*Handler, error) {
	if engine == nil {
		return nil, fmt.Errorf("handler: engine is required")
	}
	return &Handler{engine: engine, config: engine.Config()}, nil
}

// Router builds the chi router with the standard middleware stack.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if len(h.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: h.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", adminKeyHeader, adminIDHeader},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware(h.config.Lang))
	r.Route("/api", h.Routes)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// Routes registers all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/students/{studentID}", func(r chi.Router) {
		r.Get("/overview", h.handleOverview)
		r.Get("/phases/{phase}/access", h.handleAccess)
		r.Get("/phases/{phase}/progress", h.handleGetProgress)
		r.Post("/phases/{phase}/progress", h.handleUpdateProgress)
		r.Get("/phases/{phase}/subjects/{subject}", h.handleSubjectStatus)
		r.Post("/exams/start", h.handleStartExam)
		r.Post("/exams/complete", h.handleCompleteExam)
		r.Get("/subjects/{subject}/analysis", h.handleGetAnalysis)
		r.Post("/subjects/{subject}/analysis", h.handleAnalyze)
		r.Get("/subjects/{subject}/distribution", h.handleDistribution)
	})
	r.Get("/ranking", h.handleRanking)
	r.Route("/grades/{gradeID}/authorizations", func(r chi.Router) {
		r.Get("/", h.handleListAuthorizations)
		r.With(h.requireAdmin).Post("/", h.handleAuthorize)
		r.With(h.requireAdmin).Delete("/{phase}", h.handleRevoke)
	})
}

func phaseParam(r *http.Request) (model.Phase, error) {
	return model.ParsePhase(chi.URLParam(r, "phase"))
}

func subjectParam(r *http.Request) (subject.Subject, error) {
	return subject.Parse(chi.URLParam(r, "subject"))
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.engine.GetStudentPhaseOverview(r.Context(), chi.URLParam(r, "studentID"), r.URL.Query().Get("grade"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// handleAccess checks the phase, or a single subject when ?subject= is set.
func (h *Handler) handleAccess(w http.ResponseWriter, r *http.Request) {
	p, err := phaseParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	studentID, gradeID := chi.URLParam(r, "studentID"), r.URL.Query().Get("grade")

	var res model.AccessResult
	if name := r.URL.Query().Get("subject"); name != "" {
		subj, perr := subject.Parse(name)
		if perr != nil {
			writeFailure(w, r, perr)
			return
		}
		res, err = h.engine.Tracker().CanStudentAccessSubject(r.Context(), studentID, gradeID, p, subj)
	} else {
		res, err = h.engine.Tracker().CanStudentAccessPhase(r.Context(), studentID, gradeID, p)
	}
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	p, err := phaseParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	prog, err := h.engine.Tracker().GetStudentPhaseProgress(r.Context(), chi.URLParam(r, "studentID"), p)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

type progressRequest struct {
	GradeID   string          `json:"gradeId"`
	Subject   subject.Subject `json:"subject"`
	Completed bool            `json:"completed"`
}

func (h *Handler) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	p, err := phaseParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var req progressRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	prog, err := h.engine.Tracker().UpdateStudentPhaseProgress(r.Context(),
		chi.URLParam(r, "studentID"), req.GradeID, p, req.Subject, req.Completed)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (h *Handler) handleSubjectStatus(w http.ResponseWriter, r *http.Request) {
	p, err := phaseParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	subj, err := subjectParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	st, err := h.engine.GetSubjectPhaseStatus(r.Context(), chi.URLParam(r, "studentID"), r.URL.Query().Get("grade"), p, subj)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type startRequest struct {
	GradeID string          `json:"gradeId"`
	Phase   model.Phase     `json:"phase"`
	Subject subject.Subject `json:"subject"`
}

type startResponse struct {
	Access   model.AccessResult          `json:"access"`
	Progress *model.StudentPhaseProgress `json:"progress,omitempty"`
}

func (h *Handler) handleStartExam(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeFailure(w, r, err)
		return
	}
	prog, access, err := h.engine.StartExam(r.Context(), chi.URLParam(r, "studentID"), req.GradeID, req.Phase, req.Subject)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	status := http.StatusOK
	if !access.CanAccess {
		status = http.StatusForbidden
	}
	writeEnvelope(w, status, startResponse{Access: access, Progress: prog}, access.Reason)
}

func (h *Handler) handleCompleteExam(w http.ResponseWriter, r *http.Request) {
	var sub model.ExamSubmission
	if err := decodeBody(r, &sub); err != nil {
		writeFailure(w, r, err)
		return
	}
	sub.StudentID = chi.URLParam(r, "studentID")
	out, err := h.engine.CompleteExam(r.Context(), sub)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	subj, err := subjectParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	a, err := h.engine.Analysis().GetAnalysis(r.Context(), chi.URLParam(r, "studentID"), subj)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	subj, err := subjectParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	var result model.ExamResult
	if err := decodeBody(r, &result); err != nil {
		writeFailure(w, r, err)
		return
	}
	a, err := h.engine.Analysis().AnalyzePhase1Results(r.Context(), chi.URLParam(r, "studentID"), subj, result)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleDistribution(w http.ResponseWriter, r *http.Request) {
	subj, err := subjectParam(r)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	total := h.config.Phase2Questions
	if raw := r.URL.Query().Get("total"); raw != "" {
		total, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid total: "+raw)
			return
		}
	}
	d, err := h.engine.Distribution().GeneratePhase2Distribution(r.Context(), chi.URLParam(r, "studentID"), subj, total)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) handleRanking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := model.ParsePhase(q.Get("phase"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	req := ranking.Request{UserID: q.Get("user"), Phase: p}
	if raw := q.Get("score"); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid score: "+raw)
			return
		}
		req.CurrentStudentScore = &score
	}
	res, err := h.engine.Ranking().FetchStudentRanking(r.Context(), req)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
