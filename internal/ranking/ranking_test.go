package ranking

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/store"
	"github.com/pavelanni/saber/internal/subject"
)

func res(subj string, pct float64) model.ExamResult {
	return model.ExamResult{Subject: subj, Score: model.Score{Percentage: pct}, Completed: true}
}

func TestGlobalScoreScienceCap(t *testing.T) {
	results := []model.ExamResult{
		res("Biologia", 100), res("Química", 100), res("Física", 100),
		res("Matemáticas", 0), res("lenguaje", 0), res("Sociales", 0), res("English", 0),
	}
	if got := GlobalScore(BestBySubject(results)); got != 100.00 {
		t.Errorf("GlobalScore = %v, want 100.00", got)
	}
}

func TestGlobalScore(t *testing.T) {
	tests := []struct {
		name    string
		results []model.ExamResult
		want    float64
	}{
		{"no results", nil, 0},
		{"single subject", []model.ExamResult{res("matematicas", 80)}, 80},
		{"one science", []model.ExamResult{res("physics", 50)}, 16.67},
		{"max of duplicates", []model.ExamResult{res("Inglés", 40), res("ingles", 70), res("English", 55)}, 70},
		{"incomplete ignored", []model.ExamResult{{Subject: "lenguaje", Score: model.Score{Percentage: 90}}}, 0},
		{"unknown subject skipped", []model.ExamResult{res("arte", 90), res("lenguaje", 10)}, 10},
		{
			name: "end to end percentages",
			results: []model.ExamResult{
				res("Matemáticas", 90), res("Lenguaje", 80), res("Ciencias Sociales", 70),
				res("Biologia", 60), res("Quimica", 50), res("Física", 40), res("Inglés", 30),
			},
			// 90+80+70+30 + (60+50+40)/3
			want: 320,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GlobalScore(BestBySubject(tt.results)); got != tt.want {
				t.Errorf("GlobalScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankTieBreak(t *testing.T) {
	got := Rank([]Entry{{"c", 60}, {"b", 80}, {"z", 0}, {"a", 80}})
	want := []Entry{{"a", 80}, {"b", 80}, {"c", 60}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %v, want %v", i, got[i], want[i])
		}
	}
}

type fakeResults struct {
	byStudent map[string][]model.ExamResult
	fail      map[string]bool
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	mu        sync.Mutex
}

func (f *fakeResults) PhaseResults(_ context.Context, studentID string, _ model.Phase) ([]model.ExamResult, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	f.mu.Lock()
	if n > f.maxSeen.Load() {
		f.maxSeen.Store(n)
	}
	f.mu.Unlock()
	if f.fail[studentID] {
		return nil, errors.New("store unavailable")
	}
	return f.byStudent[studentID], nil
}

func newRoster(t *testing.T, users ...model.User) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	for _, u := range users {
		if err := s.UpsertUser(context.Background(), u); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	return s
}

func student(id, grade string) model.User {
	return model.User{ID: id, GradeID: grade, InstitutionID: "inst", CampusID: "main", Active: true}
}

func TestFetchStudentRankingDeterministic(t *testing.T) {
	roster := newRoster(t, student("s1", "g1"), student("s2", "g1"), student("s3", "g1"), student("s4", "g1"), student("other", "g2"))
	results := &fakeResults{byStudent: map[string][]model.ExamResult{
		"s1":    {res("matematicas", 60)},
		"s2":    {res("matematicas", 80)},
		"s3":    {res("matematicas", 80)},
		"other": {res("matematicas", 99)},
	}}
	agg := New(results, roster, 2)
	ctx := context.Background()

	ranks := map[string]int{}
	for _, id := range []string{"s1", "s2", "s3"} {
		r, err := agg.FetchStudentRanking(ctx, Request{UserID: id, Phase: model.PhaseFirst})
		if err != nil {
			t.Fatalf("FetchStudentRanking(%s): %v", id, err)
		}
		if r.Rank == nil {
			t.Fatalf("%s has no rank", id)
		}
		if r.TotalInPhase != 3 || r.TotalInGrade != 4 {
			t.Errorf("%s: totals = %d/%d, want 3/4", id, r.TotalInPhase, r.TotalInGrade)
		}
		ranks[id] = *r.Rank
	}
	if ranks["s2"] != 1 || ranks["s3"] != 2 || ranks["s1"] != 3 {
		t.Errorf("ranks = %v", ranks)
	}

	r, err := agg.FetchStudentRanking(ctx, Request{UserID: "s4", Phase: model.PhaseFirst})
	if err != nil {
		t.Fatalf("FetchStudentRanking(s4): %v", err)
	}
	if r.Rank != nil || r.Score != 0 {
		t.Errorf("student without results should be unranked: %+v", r)
	}
	if results.maxSeen.Load() > 2 {
		t.Errorf("concurrency limit exceeded: %d", results.maxSeen.Load())
	}
}

func TestFetchStudentRankingCurrentScoreOverride(t *testing.T) {
	roster := newRoster(t, student("s1", "g1"), student("s2", "g1"))
	results := &fakeResults{byStudent: map[string][]model.ExamResult{
		"s1": {res("lenguaje", 10)},
		"s2": {res("lenguaje", 50)},
	}}
	score := 75.0
	r, err := New(results, roster, 0).FetchStudentRanking(context.Background(),
		Request{UserID: "s1", Phase: model.PhaseSecond, CurrentStudentScore: &score})
	if err != nil {
		t.Fatalf("FetchStudentRanking: %v", err)
	}
	if r.Rank == nil || *r.Rank != 1 || r.Score != 75 {
		t.Errorf("override ignored: %+v", r)
	}
}

func TestFetchStudentRankingUnresolvedUser(t *testing.T) {
	roster := newRoster(t,
		model.User{ID: "nograde", Active: true},
		model.User{ID: "nocampus", GradeID: "11A", InstitutionID: "instA", Active: true},
		model.User{ID: "noinst", GradeID: "11A", CampusID: "main", Active: true},
		model.User{ID: "a1", GradeID: "11A", InstitutionID: "instA", CampusID: "main", Active: true},
		model.User{ID: "b1", GradeID: "11A", InstitutionID: "instB", CampusID: "main", Active: true},
	)
	results := &fakeResults{byStudent: map[string][]model.ExamResult{
		"nocampus": {res("fisica", 50)},
		"noinst":   {res("fisica", 50)},
		"a1":       {res("fisica", 70)},
		"b1":       {res("fisica", 90)},
	}}
	agg := New(results, roster, 4)

	for _, id := range []string{"", "missing", "nograde", "nocampus", "noinst"} {
		r, err := agg.FetchStudentRanking(context.Background(), Request{UserID: id, Phase: model.PhaseFirst})
		if err != nil {
			t.Errorf("%q: unexpected error %v", id, err)
		}
		if r.Rank != nil || r.TotalInPhase != 0 || r.TotalInGrade != 0 {
			t.Errorf("%q: want empty ranking, got %+v", id, r)
		}
	}
}

func TestFetchStudentRankingScoreFailureCountsAsZero(t *testing.T) {
	roster := newRoster(t, student("s1", "g1"), student("s2", "g1"))
	results := &fakeResults{
		byStudent: map[string][]model.ExamResult{"s1": {res("fisica", 90)}, "s2": {res("fisica", 90)}},
		fail:      map[string]bool{"s2": true},
	}
	r, err := New(results, roster, 4).FetchStudentRanking(context.Background(), Request{UserID: "s1", Phase: model.PhaseFirst})
	if err != nil {
		t.Fatalf("FetchStudentRanking: %v", err)
	}
	if r.TotalInPhase != 1 || r.TotalInGrade != 2 || r.Rank == nil || *r.Rank != 1 {
		t.Errorf("unexpected ranking %+v", r)
	}
}

func TestFetchStudentRankingInvalidPhase(t *testing.T) {
	agg := New(&fakeResults{}, newRoster(t), 1)
	_, err := agg.FetchStudentRanking(context.Background(), Request{UserID: "s1", Phase: "fourth"})
	if !errors.Is(err, model.ErrInvalidPhase) {
		t.Errorf("err = %v", err)
	}
}

func TestStudentPhaseScoreUsesCanonicalSubjects(t *testing.T) {
	results := &fakeResults{byStudent: map[string][]model.ExamResult{
		"s1": {res("Biología", 30), res("biologia", 90), res(string(subject.Quimica), 60)},
	}}
	got, err := New(results, newRoster(t), 1).StudentPhaseScore(context.Background(), "s1", model.PhaseFirst)
	if err != nil {
		t.Fatalf("StudentPhaseScore: %v", err)
	}
	if got != 50 {
		t.Errorf("score = %v, want 50", got)
	}
}
