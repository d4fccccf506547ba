package ranking

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

// naturalesWeight is the share of 100 points each science subject can earn.
const naturalesWeight = 100.0 / 3

// BestBySubject keeps the highest completed percentage per canonical subject.
// Results whose subject cannot be resolved are skipped.
func BestBySubject(results []model.ExamResult) map[subject.Subject]float64 {
	best := make(map[subject.Subject]float64, subject.Count)
	for _, r := range results {
		if !r.Completed {
			continue
		}
		s, err := subject.Parse(r.Subject)
		if err != nil {
			slog.Warn("skipping result with unknown subject",
				"student_id", r.StudentID, "exam_id", r.ExamID, "subject", r.Subject)
			continue
		}
		pct := r.Percentage()
		if cur, ok := best[s]; !ok || pct > cur {
			best[s] = pct
		}
	}
	return best
}

// GlobalScore sums subject contributions. Each science subject contributes a
// third of its percentage so the three together cap at 100 points.
func GlobalScore(best map[subject.Subject]float64) float64 {
	total := 0.0
	for _, s := range subject.All {
		pct, ok := best[s]
		if !ok {
			continue
		}
		if s.IsNaturales() {
			total += pct / 100 * naturalesWeight
		} else {
			total += pct
		}
	}
	return round2(total)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Entry is one student's score in a cohort.
type Entry struct {
	StudentID string
	Score     float64
}

// Rank drops zero scores and orders the rest by score descending, then by
// student id.
func Rank(entries []Entry) []Entry {
	ranked := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Score > 0 {
			ranked = append(ranked, e)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].StudentID < ranked[j].StudentID
	})
	return ranked
}
