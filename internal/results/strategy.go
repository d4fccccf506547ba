package results

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/saber/internal/model"
)

// phaseFolders lists folder names per phase in lookup priority. The first
// entry is canonical; the rest are names used by earlier releases.
var phaseFolders = map[model.Phase][]string{
	model.PhaseFirst:  {"fase I", "Fase I", "fase_1", "first"},
	model.PhaseSecond: {"fase II", "Fase II", "fase_2", "second"},
	model.PhaseThird:  {"fase III", "Fase III", "fase_3", "third"},
}

// RootFolder holds the oldest flat documents, which carry their phase inline.
const RootFolder = ""

// Strategy is one way of finding a student's attempts for a phase.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, studentID string, phase model.Phase) ([]model.ExamResult, error)
}

// ResolvePhaseResults tries each strategy in order and returns the first
// non-empty result set.
func ResolvePhaseResults(ctx context.Context, studentID string, phase model.Phase, strategies []Strategy) ([]model.ExamResult, error) {
	for _, s := range strategies {
		res, err := s.Fetch(ctx, studentID, phase)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", s.Name, err)
		}
		if len(res) > 0 {
			slog.Debug("resolved phase results",
				"student_id", studentID, "phase", phase, "strategy", s.Name, "count", len(res))
			return res, nil
		}
	}
	return nil, nil
}

// DefaultStrategies returns one folder strategy per known folder variant,
// canonical first, followed by the flat root-folder strategy.
func DefaultStrategies(docs DocumentStore) []Strategy {
	var out []Strategy
	maxVariants := 0
	for _, names := range phaseFolders {
		maxVariants = max(maxVariants, len(names))
	}
	for i := range maxVariants {
		out = append(out, FolderStrategy(docs, i))
	}
	return append(out, RootStrategy(docs))
}

// FolderStrategy reads the i-th folder variant of the phase.
func FolderStrategy(docs DocumentStore, variant int) Strategy {
	return Strategy{
		Name: fmt.Sprintf("folder[%d]", variant),
		Fetch: func(ctx context.Context, studentID string, phase model.Phase) ([]model.ExamResult, error) {
			names := phaseFolders[phase]
			if variant >= len(names) {
				return nil, nil
			}
			folder := names[variant]
			list, err := docs.ListDocuments(ctx, studentID, folder)
			if err != nil {
				return nil, err
			}
			var out []model.ExamResult
			for _, d := range list {
				r, _, ok := decode(d)
				if ok {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}
}

// RootStrategy reads flat documents that name their phase inline.
func RootStrategy(docs DocumentStore) Strategy {
	return Strategy{
		Name: "root",
		Fetch: func(ctx context.Context, studentID string, phase model.Phase) ([]model.ExamResult, error) {
			list, err := docs.ListDocuments(ctx, studentID, RootFolder)
			if err != nil {
				return nil, err
			}
			var out []model.ExamResult
			for _, d := range list {
				r, label, ok := decode(d)
				if !ok {
					continue
				}
				if p, known := PhaseFromLabel(label); known && p == phase {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}
}

// PhaseFromLabel maps a phase name or any known folder name to its phase.
func PhaseFromLabel(label string) (model.Phase, bool) {
	if p, err := model.ParsePhase(label); err == nil {
		return p, true
	}
	l := strings.ToLower(strings.TrimSpace(label))
	for phase, names := range phaseFolders {
		for _, n := range names {
			if strings.ToLower(n) == l {
				return phase, true
			}
		}
	}
	return "", false
}
