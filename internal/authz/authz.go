// Package authz manages the administrator-controlled records that open a
// phase for a grade.
package authz

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// Store persists authorization records.
type Store interface {
	UpsertAuthorization(ctx context.Context, a model.PhaseAuthorization) error
	GetAuthorization(ctx context.Context, id string) (*model.PhaseAuthorization, error)
	ListAuthorizationsByGrade(ctx context.Context, gradeID string) ([]model.PhaseAuthorization, error)
}

// Request describes an authorization call. Subject is optional.
type Request struct {
	GradeID       string
	GradeName     string
	Phase         model.Phase
	Subject       subject.Subject
	AdminID       string
	InstitutionID string
	CampusID      string
}

// Service authorizes and revokes phases. It holds no state besides the store.
type Service struct {
	store Store
	now   func() time.Time
}

// New creates a Service.
func New(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// AuthorizePhase upserts the record for (grade, phase[, subject]) with
// authorized=true. Repeated calls update the same record.
func (s *Service) AuthorizePhase(ctx context.Context, req Request) (*model.PhaseAuthorization, error) {
	if err := validate(req.GradeID, req.Phase, req.Subject); err != nil {
		return nil, err
	}
	if req.AdminID == "" {
		return nil, fmt.Errorf("%w: admin id is required", model.ErrInvalidArgument)
	}

	id := model.AuthorizationID(req.GradeID, req.Phase, req.Subject)
	existing, err := s.store.GetAuthorization(ctx, id)
	if err != nil {
		slog.Error("failed to load authorization", "op", "authorizePhase", "id", id, "error", err)
		return nil, model.Wrap("authorizePhase", err)
	}

	now := s.now()
	rec := model.PhaseAuthorization{
		ID:            id,
		GradeID:       req.GradeID,
		GradeName:     req.GradeName,
		Phase:         req.Phase,
		Subject:       req.Subject,
		Authorized:    true,
		AuthorizedBy:  req.AdminID,
		AuthorizedAt:  now,
		InstitutionID: req.InstitutionID,
		CampusID:      req.CampusID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if existing != nil {
		rec.CreatedAt = existing.CreatedAt
		if rec.GradeName == "" {
			rec.GradeName = existing.GradeName
		}
		if rec.InstitutionID == "" {
			rec.InstitutionID = existing.InstitutionID
		}
		if rec.CampusID == "" {
			rec.CampusID = existing.CampusID
		}
	}

	if err := s.store.UpsertAuthorization(ctx, rec); err != nil {
		slog.Error("failed to authorize phase", "op", "authorizePhase", "id", id, "error", err)
		return nil, model.Wrap("authorizePhase", err)
	}
	slog.Info("phase authorized", "grade_id", req.GradeID, "phase", req.Phase, "subject", req.Subject, "by", req.AdminID)
	return &rec, nil
}

// RevokePhaseAuthorization flips authorized to false, keeping the record.
// Revoking a phase that was never authorized returns nil and no error.
func (s *Service) RevokePhaseAuthorization(ctx context.Context, gradeID string, phase model.Phase, subj subject.Subject) (*model.PhaseAuthorization, error) {
	if err := validate(gradeID, phase, subj); err != nil {
		return nil, err
	}
	id := model.AuthorizationID(gradeID, phase, subj)
	rec, err := s.store.GetAuthorization(ctx, id)
	if err != nil {
		slog.Error("failed to load authorization", "op", "revokePhaseAuthorization", "id", id, "error", err)
		return nil, model.Wrap("revokePhaseAuthorization", err)
	}
	if rec == nil {
		slog.Info("nothing to revoke", "grade_id", gradeID, "phase", phase, "subject", subj)
		return nil, nil
	}
	if !rec.Authorized {
		return rec, nil
	}

	now := s.now()
	rec.Authorized = false
	rec.RevokedAt = &now
	rec.UpdatedAt = now
	if err := s.store.UpsertAuthorization(ctx, *rec); err != nil {
		slog.Error("failed to revoke phase", "op", "revokePhaseAuthorization", "id", id, "error", err)
		return nil, model.Wrap("revokePhaseAuthorization", err)
	}
	slog.Info("phase authorization revoked", "grade_id", gradeID, "phase", phase, "subject", subj)
	return rec, nil
}

// GetGradeAuthorizations returns every record of a grade.
func (s *Service) GetGradeAuthorizations(ctx context.Context, gradeID string) ([]model.PhaseAuthorization, error) {
	if gradeID == "" {
		return nil, fmt.Errorf("%w: grade id is required", model.ErrInvalidArgument)
	}
	list, err := s.store.ListAuthorizationsByGrade(ctx, gradeID)
	if err != nil {
		slog.Error("failed to list authorizations", "op", "getGradeAuthorizations", "grade_id", gradeID, "error", err)
		return nil, model.Wrap("getGradeAuthorizations", err)
	}
	if list == nil {
		list = []model.PhaseAuthorization{}
	}
	return list, nil
}

// GetAuthorization returns the record for (grade, phase[, subject]), or nil.
func (s *Service) GetAuthorization(ctx context.Context, gradeID string, phase model.Phase, subj subject.Subject) (*model.PhaseAuthorization, error) {
	rec, err := s.store.GetAuthorization(ctx, model.AuthorizationID(gradeID, phase, subj))
	if err != nil {
		return nil, model.Wrap("getAuthorization", err)
	}
	return rec, nil
}

func validate(gradeID string, phase model.Phase, subj subject.Subject) error {
	if gradeID == "" {
		return fmt.Errorf("%w: grade id is required", model.ErrInvalidArgument)
	}
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidPhase, phase)
	}
	if subj != "" && !subj.Valid() {
		return fmt.Errorf("%w: %q", subject.ErrUnknownSubject, subj)
	}
	return nil
}
