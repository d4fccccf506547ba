// Package analysis turns a Phase-1 exam attempt into a per-topic weakness
// profile.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// GeneralTopic collects questions that carry no topic.
const GeneralTopic = "general"

// Store persists analyses, one per student and subject.
type Store interface {
	PutAnalysis(ctx context.Context, a model.Phase1Analysis) error
	GetAnalysis(ctx context.Context, studentID string, subj subject.Subject) (*model.Phase1Analysis, error)
}

// Recommender writes a short study plan for an analysis.
type Recommender interface {
	Recommend(ctx context.Context, a model.Phase1Analysis) (string, error)
}

// Service analyzes and stores weakness profiles.
type Service struct {
	store   Store
	advisor Recommender
	now     func() time.Time
}

// New creates a Service. advisor may be nil.
func New(s Store, advisor Recommender) *Service {
	return &Service{store: s, advisor: advisor, now: time.Now}
}

// Analyze groups the question details of r by topic. A topic is a weakness
// when its percentage is below the mean of all topic percentages.
func Analyze(studentID string, subj subject.Subject, r model.ExamResult) model.Phase1Analysis {
	a := model.Phase1Analysis{
		StudentID:  studentID,
		Subject:    subj,
		ExamID:     r.ExamID,
		Topics:     []model.TopicPerformance{},
		Weaknesses: []string{},
		Strengths:  []string{},
	}

	byTopic := map[string]*model.TopicPerformance{}
	for _, q := range r.QuestionDetails {
		name := strings.TrimSpace(q.Topic)
		if name == "" {
			name = GeneralTopic
		}
		tp, ok := byTopic[name]
		if !ok {
			tp = &model.TopicPerformance{Topic: name}
			byTopic[name] = tp
		}
		tp.Total++
		if q.IsCorrect {
			tp.Correct++
		} else {
			tp.Incorrect++
		}
	}

	sum := 0.0
	for _, tp := range byTopic {
		tp.Percentage = float64(tp.Correct) / float64(tp.Total) * 100
		sum += tp.Percentage
		a.Topics = append(a.Topics, *tp)
	}
	if len(a.Topics) == 0 {
		return a
	}
	sort.Slice(a.Topics, func(i, j int) bool { return a.Topics[i].Topic < a.Topics[j].Topic })
	a.MeanPercentage = sum / float64(len(a.Topics))

	lowest := -1
	for i := range a.Topics {
		tp := &a.Topics[i]
		tp.IsWeakness = tp.Percentage < a.MeanPercentage
		if !tp.IsWeakness {
			a.Strengths = append(a.Strengths, tp.Topic)
			continue
		}
		a.Weaknesses = append(a.Weaknesses, tp.Topic)
		// Topics are sorted by name, so strict less keeps the first name on ties.
		if lowest < 0 || tp.Percentage < a.Topics[lowest].Percentage {
			lowest = i
		}
	}
	if lowest >= 0 {
		a.PrimaryWeakness = a.Topics[lowest].Topic
	}
	return a
}

// AnalyzePhase1Results analyzes a completed attempt and stores the result,
// replacing any earlier analysis of the same subject.
func (s *Service) AnalyzePhase1Results(ctx context.Context, studentID string, subj subject.Subject, r model.ExamResult) (*model.Phase1Analysis, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id is required", model.ErrInvalidArgument)
	}
	if !subj.Valid() {
		return nil, fmt.Errorf("%w: %q", subject.ErrUnknownSubject, subj)
	}

	a := Analyze(studentID, subj, r)
	a.AnalyzedAt = s.now()

	if s.advisor != nil && len(a.Topics) > 0 {
		rec, err := s.advisor.Recommend(ctx, a)
		if err != nil {
			slog.Warn("recommendation failed", "student_id", studentID, "subject", subj, "error", err)
		} else {
			a.Recommendation = rec
		}
	}

	if err := s.store.PutAnalysis(ctx, a); err != nil {
		slog.Error("failed to save analysis", "op", "analyzePhase1Results",
			"student_id", studentID, "subject", subj, "error", err)
		return nil, model.Wrap("analyzePhase1Results", err)
	}
	slog.Info("analyzed phase 1 results", "student_id", studentID, "subject", subj,
		"topics", len(a.Topics), "weaknesses", len(a.Weaknesses), "primary_weakness", a.PrimaryWeakness)
	return &a, nil
}

// GetAnalysis returns the stored analysis, or nil when there is none.
func (s *Service) GetAnalysis(ctx context.Context, studentID string, subj subject.Subject) (*model.Phase1Analysis, error) {
	a, err := s.store.GetAnalysis(ctx, studentID, subj)
	if err != nil {
		slog.Error("failed to load analysis", "op", "getAnalysis",
			"student_id", studentID, "subject", subj, "error", err)
		return nil, model.Wrap("getAnalysis", err)
	}
	return a, nil
}
