// Package phase wires the engine components together and exposes the
// combined views the UI needs: the per-phase overview and the exam pipeline.
package phase

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/saber/internal/analysis"
	"github.com/pavelanni/saber/internal/authz"
	"github.com/pavelanni/saber/internal/distribution"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/progress"
	"github.com/pavelanni/saber/internal/ranking"
	"github.com/pavelanni/saber/internal/results"
	"github.com/pavelanni/saber/internal/store"
	"github.com/pavelanni/saber/internal/subject"
)

// Service is the phase status façade. It holds no state beyond its
// components, which share one store handle.
type Service struct {
	tracker  *progress.Tracker
	auth     *authz.Service
	results  *results.Adapter
	analysis *analysis.Service
	dist     *distribution.Generator
	ranking  *ranking.Aggregator
	cfg      model.EngineConfig
}

// New builds every component on top of st. advisor and notifier may be nil.
func New(st *store.Store, advisor analysis.Recommender, notifier progress.Notifier, cfg model.EngineConfig) *Service {
	res := results.New(st)
	auth := authz.New(st)
	agg := ranking.New(res, st, cfg.RankingConcurrency)
	an := analysis.New(st, advisor)
	return &Service{
		tracker:  progress.New(st, auth, res, notifier, agg),
		auth:     auth,
		results:  res,
		analysis: an,
		dist:     distribution.NewGenerator(an),
		ranking:  agg,
		cfg:      cfg,
	}
}

// Tracker returns the progress tracker.
func (s *Service) Tracker() *progress.Tracker {
	return s.tracker
}

// Authz returns the phase authorization service.
func (s *Service) Authz() *authz.Service {
	return s.auth
}

// Analysis returns the weakness analyzer.
func (s *Service) Analysis() *analysis.Service {
	return s.analysis
}

// Distribution returns the Phase 2 question distributor.
func (s *Service) Distribution() *distribution.Generator {
	return s.dist
}

// Ranking returns the cohort ranking aggregator.
func (s *Service) Ranking() *ranking.Aggregator {
	return s.ranking
}

// Config returns the runtime settings the engine was built with.
func (s *Service) Config() model.EngineConfig {
	return s.cfg
}

// GetStudentPhaseOverview fetches every phase in parallel and merges the
// results in phase and subject order. Result lookups are advisory: a failure
// only leaves bestPercentage unset.
func (s *Service) GetStudentPhaseOverview(ctx context.Context, studentID, gradeID string) (*model.PhaseOverview, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", model.ErrInvalidArgument)
	}

	states := make([]progress.PhaseState, len(model.Phases))
	best := make([]map[subject.Subject]float64, len(model.Phases))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range model.Phases {
		g.Go(func() error {
			st, err := s.tracker.PhaseStatus(gctx, studentID, gradeID, p)
			if err != nil {
				return fmt.Errorf("phase %s: %w", p, err)
			}
			states[i] = st
			return nil
		})
		g.Go(func() error {
			best[i] = s.bestScores(gctx, studentID, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Error("failed to build overview", "op", "getStudentPhaseOverview",
			"student_id", studentID, "grade_id", gradeID, "error", err)
		return nil, model.Wrap("getStudentPhaseOverview", err)
	}

	ov := &model.PhaseOverview{
		StudentID: studentID,
		GradeID:   gradeID,
		Phases:    make([]model.PhaseView, 0, len(model.Phases)),
	}
	for i, p := range model.Phases {
		ov.Phases = append(ov.Phases, phaseView(p, states[i], best[i]))
	}
	return ov, nil
}

// SubjectPhaseStatus is one subject of one phase together with its access
// decision.
type SubjectPhaseStatus struct {
	Phase  model.Phase        `json:"phase"`
	Access model.AccessResult `json:"access"`
	model.SubjectStatus
}

// GetSubjectPhaseStatus narrows the overview to a single subject.
func (s *Service) GetSubjectPhaseStatus(ctx context.Context, studentID, gradeID string, phase model.Phase, subj subject.Subject) (*SubjectPhaseStatus, error) {
	if !subj.Valid() {
		return nil, fmt.Errorf("%w: %q", subject.ErrUnknownSubject, subj)
	}

	var (
		access model.AccessResult
		prog   *model.StudentPhaseProgress
		best   map[subject.Subject]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		access, err = s.tracker.CanStudentAccessSubject(gctx, studentID, gradeID, phase, subj)
		return err
	})
	g.Go(func() error {
		var err error
		prog, err = s.tracker.GetStudentPhaseProgress(gctx, studentID, phase)
		return err
	})
	g.Go(func() error {
		best = s.bestScores(gctx, studentID, phase)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, model.Wrap("getSubjectPhaseStatus", err)
	}
	return &SubjectPhaseStatus{
		Phase:         phase,
		Access:        access,
		SubjectStatus: subjectStatus(subj, prog, best),
	}, nil
}

// StartExam marks subj as in progress when the student may take it. A denied
// start returns the access decision and no progress.
func (s *Service) StartExam(ctx context.Context, studentID, gradeID string, phase model.Phase, subj subject.Subject) (*model.StudentPhaseProgress, model.AccessResult, error) {
	if !subj.Valid() {
		return nil, model.AccessResult{}, fmt.Errorf("%w: %q", subject.ErrUnknownSubject, subj)
	}
	access, err := s.tracker.CanStudentAccessSubject(ctx, studentID, gradeID, phase, subj)
	if err != nil || !access.CanAccess {
		return nil, access, err
	}
	p, err := s.tracker.UpdateStudentPhaseProgress(ctx, studentID, gradeID, phase, subj, false)
	if err != nil {
		return nil, access, err
	}
	return p, access, nil
}

// CompleteExam records a finished attempt, analyzes Phase-1 attempts and
// marks the subject completed. Analysis failures do not stop the progress
// update.
func (s *Service) CompleteExam(ctx context.Context, sub model.ExamSubmission) (*model.CompletionOutcome, error) {
	if sub.StudentID == "" {
		return nil, fmt.Errorf("%w: student id is required", model.ErrInvalidArgument)
	}
	if sub.GradeID == "" {
		return nil, fmt.Errorf("%w: grade id is required", model.ErrInvalidArgument)
	}
	if !sub.Phase.Valid() {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidPhase, sub.Phase)
	}
	subj, err := subject.Parse(sub.Subject)
	if err != nil {
		return nil, err
	}

	rec, err := s.results.RecordResult(ctx, sub.Phase, model.ExamResult{
		StudentID:       sub.StudentID,
		ExamID:          sub.ExamID,
		Subject:         string(subj),
		Score:           sub.Score,
		QuestionDetails: sub.QuestionDetails,
		Completed:       true,
		Timestamp:       sub.Timestamp,
	})
	if err != nil {
		slog.Error("failed to record result", "op", "completeExam",
			"student_id", sub.StudentID, "phase", sub.Phase, "subject", subj, "error", err)
		return nil, err
	}
	out := &model.CompletionOutcome{Result: rec}

	if sub.Phase == model.PhaseFirst {
		a, err := s.analysis.AnalyzePhase1Results(ctx, sub.StudentID, subj, rec)
		if err != nil {
			slog.Warn("phase 1 analysis failed", "student_id", sub.StudentID, "subject", subj, "error", err)
		} else {
			out.Analysis = a
		}
	}

	p, err := s.tracker.UpdateStudentPhaseProgress(ctx, sub.StudentID, sub.GradeID, sub.Phase, subj, true)
	if err != nil {
		return nil, err
	}
	out.Progress = p
	return out, nil
}

func (s *Service) bestScores(ctx context.Context, studentID string, phase model.Phase) map[subject.Subject]float64 {
	rs, err := s.results.PhaseResults(ctx, studentID, phase)
	if err != nil {
		slog.Warn("could not load results", "student_id", studentID, "phase", phase, "error", err)
		return nil
	}
	return ranking.BestBySubject(rs)
}

func phaseView(p model.Phase, st progress.PhaseState, best map[subject.Subject]float64) model.PhaseView {
	v := model.PhaseView{
		Phase:                p,
		Status:               st.Status,
		Access:               st.Access,
		AllSubjectsCompleted: st.Progress.AllSubjectsCompleted(),
		Subjects:             make([]model.SubjectStatus, 0, subject.Count),
	}
	if st.Progress != nil {
		v.OverallScore = st.Progress.OverallScore
	}
	for _, subj := range subject.All {
		v.Subjects = append(v.Subjects, subjectStatus(subj, st.Progress, best))
	}
	return v
}

func subjectStatus(subj subject.Subject, p *model.StudentPhaseProgress, best map[subject.Subject]float64) model.SubjectStatus {
	ss := model.SubjectStatus{Subject: subj, DisplayName: subj.DisplayName()}
	if p != nil {
		ss.Completed = p.SubjectsCompleted.Contains(subj)
		ss.InProgress = !ss.Completed && p.SubjectsInProgress.Contains(subj)
	}
	if pct, ok := best[subj]; ok {
		ss.BestPercentage = &pct
	}
	return ss
}
