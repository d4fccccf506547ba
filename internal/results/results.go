// Package results reads and writes raw exam attempts under per-student,
// per-phase folders and normalizes the historical document shapes.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/store"
)

// PlaceholderID is the document id of the marker written into a phase folder
// so that the folder is discoverable before any attempt exists.
const PlaceholderID = "_placeholder"

// DocumentStore is the raw document partition the adapter works on.
type DocumentStore interface {
	PutDocument(ctx context.Context, studentID, folder, examID string, data []byte) error
	PutDocumentIfAbsent(ctx context.Context, studentID, folder, examID string, data []byte) (bool, error)
	ListDocuments(ctx context.Context, studentID, folder string) ([]store.Document, error)
}

// Adapter resolves a student's attempts for a phase through an ordered list
// of lookup strategies.
type Adapter struct {
	docs       DocumentStore
	strategies []Strategy
}

// New creates an Adapter with the default strategies followed by extra ones.
func New(docs DocumentStore, extra ...Strategy) *Adapter {
	strategies := append(DefaultStrategies(docs), extra...)
	return &Adapter{docs: docs, strategies: strategies}
}

// CanonicalFolder returns the folder new attempts are written to.
func CanonicalFolder(phase model.Phase) string {
	return phaseFolders[phase][0]
}

// PhaseResults returns the completed attempts of a student in a phase.
func (a *Adapter) PhaseResults(ctx context.Context, studentID string, phase model.Phase) ([]model.ExamResult, error) {
	if !phase.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidPhase, phase)
	}
	strategies := make([]Strategy, len(a.strategies))
	for i, s := range a.strategies {
		strategies[i] = completedOnly(s)
	}
	completed, err := ResolvePhaseResults(ctx, studentID, phase, strategies)
	if err != nil {
		return nil, model.Wrap("resolvePhaseResults", err)
	}
	return completed, nil
}

// completedOnly drops unfinished attempts inside the strategy, so a folder
// holding only in-progress attempts does not stop the lookup.
func completedOnly(s Strategy) Strategy {
	return Strategy{
		Name: s.Name,
		Fetch: func(ctx context.Context, studentID string, phase model.Phase) ([]model.ExamResult, error) {
			res, err := s.Fetch(ctx, studentID, phase)
			if err != nil {
				return nil, err
			}
			var out []model.ExamResult
			for _, r := range res {
				if r.Completed {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}
}

// RecordResult writes an attempt into the canonical folder of its phase. An
// empty ExamID gets a fresh one.
func (a *Adapter) RecordResult(ctx context.Context, phase model.Phase, r model.ExamResult) (model.ExamResult, error) {
	if !phase.Valid() {
		return r, fmt.Errorf("%w: %q", model.ErrInvalidPhase, phase)
	}
	if r.StudentID == "" {
		return r, fmt.Errorf("%w: student id is required", model.ErrInvalidArgument)
	}
	if r.ExamID == "" {
		r.ExamID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	r.PhaseFolder = CanonicalFolder(phase)
	data, err := json.Marshal(r)
	if err != nil {
		return r, fmt.Errorf("encode result: %w", err)
	}
	if err := a.docs.PutDocument(ctx, r.StudentID, r.PhaseFolder, r.ExamID, data); err != nil {
		return r, model.Wrap("recordResult", err)
	}
	slog.Info("recorded exam result",
		"student_id", r.StudentID, "folder", r.PhaseFolder, "exam_id", r.ExamID, "subject", r.Subject)
	return r, nil
}

// InitPhaseFolder writes the placeholder marker for a phase folder. Existing
// folders are left untouched.
func (a *Adapter) InitPhaseFolder(ctx context.Context, studentID string, phase model.Phase) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidPhase, phase)
	}
	folder := CanonicalFolder(phase)
	data, err := json.Marshal(map[string]any{
		"placeholder": true,
		"phase":       phase,
		"createdAt":   time.Now(),
	})
	if err != nil {
		return err
	}
	wrote, err := a.docs.PutDocumentIfAbsent(ctx, studentID, folder, PlaceholderID, data)
	if err != nil {
		return model.Wrap("initPhaseFolder", err)
	}
	if wrote {
		slog.Info("initialized phase folder", "student_id", studentID, "folder", folder)
	}
	return nil
}
