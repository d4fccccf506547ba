package progress

import (
	"context"
	"log/slog"

	appI18n "github.com/pavelanni/saber/internal/i18n"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// CanStudentAccessPhase reports whether a student may work on a phase. Missing
// records deny access with a reason; the error is set only when the store
// could not be read, and the result then also denies access.
func (t *Tracker) CanStudentAccessPhase(ctx context.Context, studentID, gradeID string, phase model.Phase) (model.AccessResult, error) {
	if err := validate(studentID, phase); err != nil {
		return model.AccessResult{}, err
	}
	if gradeID == "" {
		return deny(ctx, ReasonMissingGrade, nil), nil
	}

	auth, err := t.auth.GetAuthorization(ctx, gradeID, phase, "")
	if err != nil {
		slog.Error("failed to read authorization", "op", "canStudentAccessPhase",
			"student_id", studentID, "grade_id", gradeID, "phase", phase, "error", err)
		return deny(ctx, ReasonCheckFailed, map[string]any{"Phase": phaseName(ctx, phase)}),
			model.Wrap("canStudentAccessPhase", err)
	}
	if auth == nil {
		return deny(ctx, ReasonNotAuthorized, map[string]any{"Phase": phaseName(ctx, phase)}), nil
	}
	if !auth.Authorized {
		return deny(ctx, ReasonRevoked, map[string]any{"Phase": phaseName(ctx, phase)}), nil
	}

	prev, ok := phase.Previous()
	if !ok {
		return model.AccessResult{CanAccess: true}, nil
	}
	prior, err := t.store.GetProgress(ctx, studentID, prev)
	if err != nil {
		slog.Error("failed to read prior progress", "op", "canStudentAccessPhase",
			"student_id", studentID, "phase", prev, "error", err)
		return deny(ctx, ReasonCheckFailed, map[string]any{"Phase": phaseName(ctx, phase)}),
			model.Wrap("canStudentAccessPhase", err)
	}
	if !prior.AllSubjectsCompleted() {
		done := 0
		if prior != nil {
			done = len(prior.SubjectsCompleted.Canonical())
		}
		res := deny(ctx, ReasonPreviousIncomplete, map[string]any{"Phase": phaseName(ctx, prev)})
		res.Reason += " " + appI18n.Tp(ctx, "SubjectsRemaining", subject.Count-done)
		return res, nil
	}
	return model.AccessResult{CanAccess: true}, nil
}

// CanStudentAccessSubject applies the phase rules and then any subject-level
// record: a revoked subject record denies access, a missing one does not.
func (t *Tracker) CanStudentAccessSubject(ctx context.Context, studentID, gradeID string, phase model.Phase, subj subject.Subject) (model.AccessResult, error) {
	res, err := t.CanStudentAccessPhase(ctx, studentID, gradeID, phase)
	if err != nil || !res.CanAccess {
		return res, err
	}
	auth, err := t.auth.GetAuthorization(ctx, gradeID, phase, subj)
	if err != nil {
		slog.Error("failed to read subject authorization", "op", "canStudentAccessSubject",
			"student_id", studentID, "grade_id", gradeID, "phase", phase, "subject", subj, "error", err)
		return deny(ctx, ReasonCheckFailed, map[string]any{"Phase": phaseName(ctx, phase)}),
			model.Wrap("canStudentAccessSubject", err)
	}
	if auth != nil && !auth.Authorized {
		return deny(ctx, ReasonSubjectRevoked, map[string]any{
			"Phase":   phaseName(ctx, phase),
			"Subject": subj.DisplayName(),
		}), nil
	}
	return res, nil
}

// PhaseState combines access and stored progress into the phase status.
type PhaseState struct {
	Status   model.PhaseStatus
	Access   model.AccessResult
	Progress *model.StudentPhaseProgress
}

// PhaseStatus resolves the state machine for one phase. A completed phase
// stays completed even if its authorization is later revoked.
func (t *Tracker) PhaseStatus(ctx context.Context, studentID, gradeID string, phase model.Phase) (PhaseState, error) {
	p, err := t.GetStudentPhaseProgress(ctx, studentID, phase)
	if err != nil {
		return PhaseState{Status: model.StatusLocked}, err
	}
	access, err := t.CanStudentAccessPhase(ctx, studentID, gradeID, phase)
	if err != nil {
		return PhaseState{Status: model.StatusLocked, Access: access, Progress: p}, err
	}

	st := PhaseState{Access: access, Progress: p}
	switch {
	case p.AllSubjectsCompleted():
		st.Status = model.StatusCompleted
	case !access.CanAccess:
		st.Status = model.StatusLocked
	case p != nil && (len(p.SubjectsCompleted) > 0 || len(p.SubjectsInProgress) > 0):
		st.Status = model.StatusInProgress
	default:
		st.Status = model.StatusAvailable
	}
	return st, nil
}

func deny(ctx context.Context, code string, data map[string]any) model.AccessResult {
	return model.AccessResult{
		CanAccess:  false,
		ReasonCode: code,
		Reason:     appI18n.Td(ctx, code, data),
	}
}
