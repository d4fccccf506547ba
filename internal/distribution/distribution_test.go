package distribution

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/pavelanni/saber/internal/analysis"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/store"
	"github.com/pavelanni/saber/internal/subject"
)

func profile(pcts map[string]float64) *model.Phase1Analysis {
	a := &model.Phase1Analysis{Subject: subject.Matematicas}
	sum := 0.0
	for _, p := range pcts {
		sum += p
	}
	mean := sum / float64(len(pcts))
	for name, p := range pcts {
		a.Topics = append(a.Topics, model.TopicPerformance{Topic: name, Percentage: p, IsWeakness: p < mean})
	}
	return a
}

func allWeak(names ...string) *model.Phase1Analysis {
	a := &model.Phase1Analysis{}
	for i, n := range names {
		a.Topics = append(a.Topics, model.TopicPerformance{Topic: n, Percentage: float64(10 * i), IsWeakness: true})
	}
	return a
}

func TestDistributeExactness(t *testing.T) {
	profiles := map[string]*model.Phase1Analysis{
		"nil":      nil,
		"no weak":  profile(map[string]float64{"a": 50, "b": 50, "c": 50}),
		"one weak": profile(map[string]float64{"algebra": 20, "geometria": 80, "estadistica": 90}),
		"all weak": allWeak("x", "y", "z"),
		"mixed":    profile(map[string]float64{"t1": 10, "t2": 35, "t3": 60, "t4": 95, "t5": 100}),
	}
	for name, a := range profiles {
		for _, total := range []int{0, 1, 7, 25, 50} {
			t.Run(fmt.Sprintf("%s/%d", name, total), func(t *testing.T) {
				d, err := Distribute(subject.Matematicas, a, total)
				if err != nil {
					t.Fatalf("Distribute: %v", err)
				}
				if d.Sum() != total {
					t.Errorf("sum = %d, want %d (%+v)", d.Sum(), total, d)
				}
				for _, tc := range append(d.WeaknessDistribution, d.StrengthDistribution...) {
					if tc.Count <= 0 {
						t.Errorf("non-positive count %+v", tc)
					}
				}
			})
		}
	}
}

func TestDistributeSplit(t *testing.T) {
	a := profile(map[string]float64{"algebra": 20, "geometria": 40, "estadistica": 90, "conteo": 100})
	d, err := Distribute(subject.Matematicas, a, 25)
	if err != nil {
		t.Fatalf("Distribute: %v", err)
	}

	// 12 for weaknesses weighted 80:60, 13 evenly over two strengths.
	wantWeak := []model.TopicCount{{Topic: "algebra", Count: 7}, {Topic: "geometria", Count: 5}}
	wantStrong := []model.TopicCount{{Topic: "conteo", Count: 7}, {Topic: "estadistica", Count: 6}}
	if !reflect.DeepEqual(d.WeaknessDistribution, wantWeak) {
		t.Errorf("weakness = %+v, want %+v", d.WeaknessDistribution, wantWeak)
	}
	if !reflect.DeepEqual(d.StrengthDistribution, wantStrong) {
		t.Errorf("strength = %+v, want %+v", d.StrengthDistribution, wantStrong)
	}
}

func TestDistributeFallbacks(t *testing.T) {
	d, _ := Distribute(subject.Fisica, allWeak("ondas", "optica"), 10)
	if len(d.StrengthDistribution) != 0 || d.Sum() != 10 {
		t.Errorf("all weak: %+v", d)
	}

	d, _ = Distribute(subject.Fisica, nil, 10)
	want := []model.TopicCount{{Topic: analysis.GeneralTopic, Count: 10}}
	if !reflect.DeepEqual(d.StrengthDistribution, want) || len(d.WeaknessDistribution) != 0 {
		t.Errorf("empty profile: %+v", d)
	}
}

func TestDistributeDeterministic(t *testing.T) {
	a := profile(map[string]float64{"t1": 10, "t2": 10, "t3": 10, "t4": 90})
	first, _ := Distribute(subject.Quimica, a, 7)
	for range 20 {
		again, _ := Distribute(subject.Quimica, a, 7)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("distribution changed: %+v vs %+v", first, again)
		}
	}
}

func TestDistributeNegativeTotal(t *testing.T) {
	_, err := Distribute(subject.Quimica, nil, -1)
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v", err)
	}
}

func TestGeneratePhase2Distribution(t *testing.T) {
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()

	svc := analysis.New(st, nil)
	r := model.ExamResult{QuestionDetails: []model.QuestionDetail{
		{Topic: "lectura", IsCorrect: true}, {Topic: "lectura", IsCorrect: true},
		{Topic: "gramatica", IsCorrect: false}, {Topic: "gramatica", IsCorrect: true},
	}}
	if _, err := svc.AnalyzePhase1Results(ctx, "s1", subject.Lenguaje, r); err != nil {
		t.Fatalf("AnalyzePhase1Results: %v", err)
	}

	g := NewGenerator(st)
	d, err := g.GeneratePhase2Distribution(ctx, "s1", subject.Lenguaje, 25)
	if err != nil {
		t.Fatalf("GeneratePhase2Distribution: %v", err)
	}
	if d.Sum() != 25 {
		t.Errorf("sum = %d", d.Sum())
	}
	if len(d.WeaknessDistribution) != 1 || d.WeaknessDistribution[0].Topic != "gramatica" || d.WeaknessDistribution[0].Count != 12 {
		t.Errorf("weakness = %+v", d.WeaknessDistribution)
	}

	d, err = g.GeneratePhase2Distribution(ctx, "s2", subject.Lenguaje, 7)
	if err != nil || d.Sum() != 7 {
		t.Errorf("no analysis: %+v, %v", d, err)
	}
}
