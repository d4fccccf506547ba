// Package progress tracks each student's per-phase subject completion and
// decides whether a phase is reachable.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	appI18n "github.com/pavelanni/saber/internal/i18n"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// Reason codes double as i18n message ids.
const (
	ReasonNotAuthorized      = "PhaseNotAuthorized"
	ReasonRevoked            = "PhaseRevoked"
	ReasonSubjectRevoked     = "SubjectRevoked"
	ReasonPreviousIncomplete = "PreviousPhaseIncomplete"
	ReasonCheckFailed        = "AccessCheckFailed"
	ReasonMissingGrade       = "MissingGrade"
)

// Store persists progress records.
type Store interface {
	GetProgress(ctx context.Context, studentID string, phase model.Phase) (*model.StudentPhaseProgress, error)
	UpsertProgress(ctx context.Context, p model.StudentPhaseProgress) error
}

// Authorizations reads grade and subject authorization records.
type Authorizations interface {
	GetAuthorization(ctx context.Context, gradeID string, phase model.Phase, subj subject.Subject) (*model.PhaseAuthorization, error)
}

// FolderInitializer bootstraps the result folder of a phase.
type FolderInitializer interface {
	InitPhaseFolder(ctx context.Context, studentID string, phase model.Phase) error
}

// PhaseScorer computes a student's global score for a phase.
type PhaseScorer interface {
	StudentPhaseScore(ctx context.Context, studentID string, phase model.Phase) (float64, error)
}

// Tracker is the per-phase state machine. It keeps no state of its own.
type Tracker struct {
	store    Store
	auth     Authorizations
	folders  FolderInitializer
	notifier Notifier
	scorer   PhaseScorer
	now      func() time.Time
}

// New creates a Tracker. folders and scorer may be nil; a nil notifier logs.
func New(s Store, auth Authorizations, folders FolderInitializer, notifier Notifier, scorer PhaseScorer) *Tracker {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Tracker{
		store:    s,
		auth:     auth,
		folders:  folders,
		notifier: notifier,
		scorer:   scorer,
		now:      time.Now,
	}
}

// GetStudentPhaseProgress returns the canonical view of a student's progress,
// or nil when the student has no record for the phase.
func (t *Tracker) GetStudentPhaseProgress(ctx context.Context, studentID string, phase model.Phase) (*model.StudentPhaseProgress, error) {
	if err := validate(studentID, phase); err != nil {
		return nil, err
	}
	p, err := t.store.GetProgress(ctx, studentID, phase)
	if err != nil {
		slog.Error("failed to load progress", "op", "getStudentPhaseProgress",
			"student_id", studentID, "phase", phase, "error", err)
		return nil, model.Wrap("getStudentPhaseProgress", err)
	}
	if p == nil {
		return nil, nil
	}
	canonicalize(p)
	return p, nil
}

// UpdateStudentPhaseProgress marks subj as completed or in progress. Adding a
// subject twice is a no-op and completed subjects are never removed.
func (t *Tracker) UpdateStudentPhaseProgress(ctx context.Context, studentID, gradeID string, phase model.Phase, subj subject.Subject, completed bool) (*model.StudentPhaseProgress, error) {
	if err := validate(studentID, phase); err != nil {
		return nil, err
	}
	if !subj.Valid() {
		return nil, fmt.Errorf("%w: %q", subject.ErrUnknownSubject, subj)
	}

	p, err := t.store.GetProgress(ctx, studentID, phase)
	if err != nil {
		slog.Error("failed to load progress", "op", "updateStudentPhaseProgress",
			"student_id", studentID, "phase", phase, "error", err)
		return nil, model.Wrap("updateStudentPhaseProgress", err)
	}
	now := t.now()
	if p == nil {
		p = &model.StudentPhaseProgress{
			ID:        model.ProgressID(studentID, phase),
			StudentID: studentID,
			Phase:     phase,
			Status:    model.StatusAvailable,
			CreatedAt: now,
		}
	}
	if gradeID != "" {
		p.GradeID = gradeID
	}
	wasComplete := p.AllSubjectsCompleted()

	if completed {
		p.SubjectsCompleted = p.SubjectsCompleted.Add(subj)
	} else if !p.SubjectsCompleted.Contains(subj) {
		p.SubjectsInProgress = p.SubjectsInProgress.Add(subj)
	}
	canonicalize(p)
	p.UpdatedAt = now

	justCompleted := !wasComplete && p.AllSubjectsCompleted()
	if justCompleted && t.scorer != nil {
		score, err := t.scorer.StudentPhaseScore(ctx, studentID, phase)
		if err != nil {
			slog.Warn("could not compute overall score", "student_id", studentID, "phase", phase, "error", err)
		} else {
			p.OverallScore = &score
		}
	}

	if err := t.store.UpsertProgress(ctx, *p); err != nil {
		slog.Error("failed to save progress", "op", "updateStudentPhaseProgress",
			"student_id", studentID, "phase", phase, "subject", subj, "error", err)
		return nil, model.Wrap("updateStudentPhaseProgress", err)
	}
	slog.Info("updated phase progress",
		"student_id", studentID, "phase", phase, "subject", subj, "completed", completed,
		"subjects_completed", len(p.SubjectsCompleted), "status", p.Status)

	if justCompleted {
		t.onPhaseCompleted(ctx, *p)
	}
	return p, nil
}

// onPhaseCompleted runs the side effects of a finished phase. Failures are
// logged and never undo the progress write.
func (t *Tracker) onPhaseCompleted(ctx context.Context, p model.StudentPhaseProgress) {
	if err := t.notifier.PhaseCompleted(ctx, p); err != nil {
		slog.Warn("phase completion notification failed",
			"student_id", p.StudentID, "phase", p.Phase, "error", err)
	}
	next, ok := p.Phase.Next()
	if !ok || t.folders == nil {
		return
	}
	if err := t.folders.InitPhaseFolder(ctx, p.StudentID, next); err != nil {
		slog.Warn("could not initialize next phase folder",
			"student_id", p.StudentID, "phase", next, "error", err)
	}
}

// canonicalize enforces the read view: ordered sets, and a subject that is
// completed is never reported as in progress. Status is derived from the sets.
func canonicalize(p *model.StudentPhaseProgress) {
	p.SubjectsCompleted = p.SubjectsCompleted.Canonical()
	inProgress := subject.Set{}
	for _, s := range p.SubjectsInProgress.Canonical() {
		if !p.SubjectsCompleted.Contains(s) {
			inProgress = append(inProgress, s)
		}
	}
	p.SubjectsInProgress = inProgress

	switch {
	case p.AllSubjectsCompleted():
		p.Status = model.StatusCompleted
	case len(p.SubjectsCompleted) > 0 || len(p.SubjectsInProgress) > 0:
		p.Status = model.StatusInProgress
	case p.Status == "" || p.Status == model.StatusCompleted || p.Status == model.StatusInProgress:
		p.Status = model.StatusAvailable
	}
}

func validate(studentID string, phase model.Phase) error {
	if studentID == "" {
		return fmt.Errorf("%w: student id is required", model.ErrInvalidArgument)
	}
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidPhase, phase)
	}
	return nil
}

func phaseName(ctx context.Context, phase model.Phase) string {
	return appI18n.T(ctx, "Phase_"+string(phase))
}
