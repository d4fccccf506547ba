// Package distribution allocates a Phase-2 question budget across the topics
// of a weakness profile.
package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/pavelanni/saber/internal/analysis"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// WeaknessShare is the fraction of the budget aimed at weak topics.
const WeaknessShare = 0.5

// Distribute splits total across the topics of a. Half of the budget (rounded
// down) goes to weak topics in proportion to 100 minus their percentage; the
// rest is spread evenly over strengths. When one side is empty the other takes
// the whole budget. Counts always sum to total.
func Distribute(subj subject.Subject, a *model.Phase1Analysis, total int) (model.QuestionDistribution, error) {
	if total < 0 {
		return model.QuestionDistribution{}, fmt.Errorf("%w: total questions %d", model.ErrInvalidArgument, total)
	}
	d := model.QuestionDistribution{
		Subject:              subj,
		TotalQuestions:       total,
		WeaknessDistribution: []model.TopicCount{},
		StrengthDistribution: []model.TopicCount{},
	}

	var weak []model.TopicPerformance
	var strong []string
	if a != nil {
		for _, tp := range a.Topics {
			if tp.IsWeakness {
				weak = append(weak, tp)
			} else {
				strong = append(strong, tp.Topic)
			}
		}
	}
	if len(weak) == 0 && len(strong) == 0 {
		strong = []string{analysis.GeneralTopic}
	}

	weakBudget := int(math.Floor(float64(total) * WeaknessShare))
	switch {
	case len(weak) == 0:
		weakBudget = 0
	case len(strong) == 0:
		weakBudget = total
	}

	d.WeaknessDistribution = proportional(weak, weakBudget)
	d.StrengthDistribution = even(strong, total-weakBudget)
	return d, nil
}

// proportional uses largest-remainder rounding, weakest topic first.
func proportional(topics []model.TopicPerformance, budget int) []model.TopicCount {
	out := []model.TopicCount{}
	if budget == 0 || len(topics) == 0 {
		return out
	}
	sorted := append([]model.TopicPerformance(nil), topics...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Percentage != sorted[j].Percentage {
			return sorted[i].Percentage < sorted[j].Percentage
		}
		return sorted[i].Topic < sorted[j].Topic
	})

	weights := make([]float64, len(sorted))
	sum := 0.0
	for i, tp := range sorted {
		weights[i] = math.Max(0, 100-tp.Percentage)
		sum += weights[i]
	}
	if sum == 0 {
		for i := range weights {
			weights[i] = 1
		}
		sum = float64(len(weights))
	}

	counts := make([]int, len(sorted))
	rems := make([]float64, len(sorted))
	assigned := 0
	for i, w := range weights {
		quota := float64(budget) * w / sum
		counts[i] = int(math.Floor(quota))
		rems[i] = quota - float64(counts[i])
		assigned += counts[i]
	}

	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return rems[order[x]] > rems[order[y]] })
	for k := 0; assigned < budget; k++ {
		counts[order[k%len(order)]]++
		assigned++
	}

	for i, tp := range sorted {
		if counts[i] > 0 {
			out = append(out, model.TopicCount{Topic: tp.Topic, Count: counts[i]})
		}
	}
	return out
}

// even gives every topic the floor share and the remainder to the first
// topics by name.
func even(topics []string, budget int) []model.TopicCount {
	out := []model.TopicCount{}
	if budget == 0 || len(topics) == 0 {
		return out
	}
	sorted := append([]string(nil), topics...)
	sort.Strings(sorted)

	base, extra := budget/len(sorted), budget%len(sorted)
	for i, name := range sorted {
		n := base
		if i < extra {
			n++
		}
		if n > 0 {
			out = append(out, model.TopicCount{Topic: name, Count: n})
		}
	}
	return out
}

// AnalysisSource reads stored weakness profiles.
type AnalysisSource interface {
	GetAnalysis(ctx context.Context, studentID string, subj subject.Subject) (*model.Phase1Analysis, error)
}

// Generator builds distributions from stored analyses.
type Generator struct {
	source AnalysisSource
}

// NewGenerator creates a Generator.
func NewGenerator(src AnalysisSource) *Generator {
	return &Generator{source: src}
}

// GeneratePhase2Distribution recomputes the distribution from the student's
// current analysis. A student without one gets an even split.
func (g *Generator) GeneratePhase2Distribution(ctx context.Context, studentID string, subj subject.Subject, total int) (model.QuestionDistribution, error) {
	if studentID == "" {
		return model.QuestionDistribution{}, fmt.Errorf("%w: student id is required", model.ErrInvalidArgument)
	}
	if !subj.Valid() {
		return model.QuestionDistribution{}, fmt.Errorf("%w: %q", subject.ErrUnknownSubject, subj)
	}
	a, err := g.source.GetAnalysis(ctx, studentID, subj)
	if err != nil {
		slog.Error("failed to load analysis", "op", "generatePhase2Distribution",
			"student_id", studentID, "subject", subj, "error", err)
		return model.QuestionDistribution{}, model.Wrap("generatePhase2Distribution", err)
	}
	if a == nil {
		slog.Debug("no phase 1 analysis, using even split", "student_id", studentID, "subject", subj)
	}
	return Distribute(subj, a, total)
}
