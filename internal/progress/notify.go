package progress

import (
	"context"
	"log/slog"

	"github.com/pavelanni/saber/internal/model"
)

// Notifier is told when a student finishes every subject of a phase.
type Notifier interface {
	PhaseCompleted(ctx context.Context, p model.StudentPhaseProgress) error
}

// LogNotifier records completions in the log.
type LogNotifier struct{}

func (LogNotifier) PhaseCompleted(_ context.Context, p model.StudentPhaseProgress) error {
	attrs := []any{"student_id", p.StudentID, "grade_id", p.GradeID, "phase", p.Phase}
	if p.OverallScore != nil {
		attrs = append(attrs, "overall_score", *p.OverallScore)
	}
	slog.Info("phase completed", attrs...)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, p model.StudentPhaseProgress) error

func (f NotifierFunc) PhaseCompleted(ctx context.Context, p model.StudentPhaseProgress) error {
	return f(ctx, p)
}
