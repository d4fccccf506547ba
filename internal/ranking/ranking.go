// Package ranking computes comparable phase scores and ranks a grade cohort.
package ranking

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/saber/internal/model"
)

// DefaultConcurrency bounds per-student score lookups when none is configured.
const DefaultConcurrency = 32

// Results reads a student's completed results for a phase.
type Results interface {
	PhaseResults(ctx context.Context, studentID string, phase model.Phase) ([]model.ExamResult, error)
}

// Roster resolves users and grade cohorts.
type Roster interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListStudents(ctx context.Context, f model.StudentFilter) ([]model.User, error)
}

// Aggregator scores students and ranks cohorts.
type Aggregator struct {
	results Results
	roster  Roster
	limit   int
}

// New creates an Aggregator. limit caps concurrent score lookups.
func New(results Results, roster Roster, limit int) *Aggregator {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Aggregator{results: results, roster: roster, limit: limit}
}

// StudentPhaseScore is the global score of a student for a phase. A student
// without results scores 0.
func (a *Aggregator) StudentPhaseScore(ctx context.Context, studentID string, phase model.Phase) (float64, error) {
	if !phase.Valid() {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidPhase, phase)
	}
	results, err := a.results.PhaseResults(ctx, studentID, phase)
	if err != nil {
		return 0, model.Wrap("studentPhaseScore", err)
	}
	return GlobalScore(BestBySubject(results)), nil
}

// Request selects whose ranking to compute. CurrentStudentScore, when set,
// replaces the stored score of the requesting student.
type Request struct {
	UserID              string
	Phase               model.Phase
	CurrentStudentScore *float64
}

// FetchStudentRanking ranks the user within their grade. A user that cannot
// be resolved gets an empty ranking and no error.
func (a *Aggregator) FetchStudentRanking(ctx context.Context, req Request) (model.RankingResult, error) {
	empty := model.RankingResult{StudentID: req.UserID, Phase: req.Phase}
	if !req.Phase.Valid() {
		return empty, fmt.Errorf("%w: %q", model.ErrInvalidPhase, req.Phase)
	}
	if req.UserID == "" {
		return empty, nil
	}

	user, err := a.roster.GetUserByID(ctx, req.UserID)
	if err != nil {
		slog.Error("failed to resolve user", "op", "fetchStudentRanking", "user_id", req.UserID, "error", err)
		return empty, model.Wrap("fetchStudentRanking", err)
	}
	// Empty roster filters match everything, so a partial identity would rank
	// the student across institutions.
	if user == nil || user.GradeID == "" || user.InstitutionID == "" || user.CampusID == "" {
		slog.Warn("user cohort cannot be resolved, skipping ranking", "user_id", req.UserID)
		return empty, nil
	}

	active := true
	students, err := a.roster.ListStudents(ctx, model.StudentFilter{
		InstitutionID: user.InstitutionID,
		CampusID:      user.CampusID,
		GradeID:       user.GradeID,
		IsActive:      &active,
	})
	if err != nil {
		slog.Error("failed to list cohort", "op", "fetchStudentRanking", "grade_id", user.GradeID, "error", err)
		return empty, model.Wrap("fetchStudentRanking", err)
	}

	ids := make([]string, 0, len(students)+1)
	found := false
	for _, s := range students {
		ids = append(ids, s.ID)
		found = found || s.ID == req.UserID
	}
	if !found {
		ids = append(ids, req.UserID)
	}

	entries := a.scoreAll(ctx, ids, req.Phase)
	res := model.RankingResult{
		StudentID:    req.UserID,
		Phase:        req.Phase,
		TotalInGrade: len(entries),
	}
	for i := range entries {
		if entries[i].StudentID != req.UserID {
			continue
		}
		if req.CurrentStudentScore != nil {
			entries[i].Score = round2(*req.CurrentStudentScore)
		}
		res.Score = entries[i].Score
	}

	ranked := Rank(entries)
	res.TotalInPhase = len(ranked)
	for i, e := range ranked {
		if e.StudentID == req.UserID {
			rank := i + 1
			res.Rank = &rank
			break
		}
	}
	slog.Debug("computed ranking", "user_id", req.UserID, "phase", req.Phase,
		"rank", res.Rank, "total_in_phase", res.TotalInPhase, "total_in_grade", res.TotalInGrade)
	return res, nil
}

// scoreAll computes every score with at most a.limit lookups in flight. A
// failed lookup counts as 0 so one bad record cannot hide the cohort.
func (a *Aggregator) scoreAll(ctx context.Context, ids []string, phase model.Phase) []Entry {
	entries := make([]Entry, len(ids))
	var g errgroup.Group
	g.SetLimit(a.limit)
	for i, id := range ids {
		g.Go(func() error {
			score, err := a.StudentPhaseScore(ctx, id, phase)
			if err != nil {
				slog.Warn("could not score student", "student_id", id, "phase", phase, "error", err)
				score = 0
			}
			entries[i] = Entry{StudentID: id, Score: score}
			return nil
		})
	}
	// Workers never fail; Wait only joins them.
	g.Wait()
	return entries
}
