package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/saber/internal/subject"
)

// Phase is one of the three sequential assessment stages.
type Phase string

const (
	PhaseFirst  Phase = "first"
	PhaseSecond Phase = "second"
	PhaseThird  Phase = "third"
)

// Phases lists every phase in order.
var Phases = []Phase{PhaseFirst, PhaseSecond, PhaseThird}

// ParsePhase accepts the canonical names as well as 1, 2 and 3.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "first", "1":
		return PhaseFirst, nil
	case "second", "2":
		return PhaseSecond, nil
	case "third", "3":
		return PhaseThird, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// Index returns the zero-based position of p, or -1.
func (p Phase) Index() int {
	for i, v := range Phases {
		if v == p {
			return i
		}
	}
	return -1
}

// Previous returns the phase before p.
func (p Phase) Previous() (Phase, bool) {
	i := p.Index()
	if i <= 0 {
		return "", false
	}
	return Phases[i-1], true
}

// Next returns the phase after p.
func (p Phase) Next() (Phase, bool) {
	i := p.Index()
	if i < 0 || i+1 >= len(Phases) {
		return "", false
	}
	return Phases[i+1], true
}

// PhaseStatus is the state of one student's phase.
type PhaseStatus string

const (
	StatusLocked     PhaseStatus = "locked"
	StatusAvailable  PhaseStatus = "available"
	StatusInProgress PhaseStatus = "in_progress"
	StatusCompleted  PhaseStatus = "completed"
)

// PhaseAuthorization gates a grade (optionally a single subject) into a phase.
type PhaseAuthorization struct {
	ID            string          `json:"id"`
	GradeID       string          `json:"gradeId"`
	GradeName     string          `json:"gradeName,omitempty"`
	Phase         Phase           `json:"phase"`
	Subject       subject.Subject `json:"subject,omitempty"`
	Authorized    bool            `json:"authorized"`
	AuthorizedBy  string          `json:"authorizedBy"`
	AuthorizedAt  time.Time       `json:"authorizedAt"`
	RevokedAt     *time.Time      `json:"revokedAt,omitempty"`
	InstitutionID string          `json:"institutionId,omitempty"`
	CampusID      string          `json:"campusId,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AuthorizationID builds the deterministic record id gradeId_phase[_subject].
func AuthorizationID(gradeID string, phase Phase, subj subject.Subject) string {
	id := gradeID + "_" + string(phase)
	if subj != "" {
		id += "_" + string(subj)
	}
	return id
}

// StudentPhaseProgress tracks which subjects a student finished in a phase.
type StudentPhaseProgress struct {
	ID                 string      `json:"id"`
	StudentID          string      `json:"studentId"`
	GradeID            string      `json:"gradeId"`
	Phase              Phase       `json:"phase"`
	Status             PhaseStatus `json:"status"`
	SubjectsCompleted  subject.Set `json:"subjectsCompleted"`
	SubjectsInProgress subject.Set `json:"subjectsInProgress"`
	OverallScore       *float64    `json:"overallScore,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// ProgressID is the record id of a student's progress in a phase.
func ProgressID(studentID string, phase Phase) string {
	return studentID + "_" + string(phase)
}

// AllSubjectsCompleted is derived from SubjectsCompleted on every call.
func (p *StudentPhaseProgress) AllSubjectsCompleted() bool {
	if p == nil {
		return false
	}
	return len(p.SubjectsCompleted.Canonical()) >= subject.Count
}

// MarshalJSON adds the derived allSubjectsCompleted flag.
func (p StudentPhaseProgress) MarshalJSON() ([]byte, error) {
	type plain StudentPhaseProgress
	return json.Marshal(struct {
		plain
		AllSubjectsCompleted bool `json:"allSubjectsCompleted"`
	}{plain(p), p.AllSubjectsCompleted()})
}

// Score is the scoring block of an exam attempt.
type Score struct {
	CorrectAnswers    int     `json:"correctAnswers"`
	TotalAnswered     int     `json:"totalAnswered"`
	TotalQuestions    int     `json:"totalQuestions"`
	Percentage        float64 `json:"percentage"`
	OverallPercentage float64 `json:"overallPercentage"`
}

// QuestionDetail is the per-question outcome of an attempt.
type QuestionDetail struct {
	QuestionID string `json:"questionId,omitempty"`
	Topic      string `json:"topic"`
	IsCorrect  bool   `json:"isCorrect"`
	Answered   bool   `json:"answered"`
}

// ExamResult is a normalized exam attempt. Subject keeps the stored spelling;
// consumers resolve it with subject.Parse.
type ExamResult struct {
	StudentID       string           `json:"studentId"`
	PhaseFolder     string           `json:"phaseFolder"`
	ExamID          string           `json:"examId"`
	Subject         string           `json:"subject"`
	Score           Score            `json:"score"`
	QuestionDetails []QuestionDetail `json:"questionDetails"`
	Completed       bool             `json:"completed"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Percentage returns the best available percentage of the attempt.
func (r ExamResult) Percentage() float64 {
	switch {
	case r.Score.Percentage > 0:
		return r.Score.Percentage
	case r.Score.OverallPercentage > 0:
		return r.Score.OverallPercentage
	case r.Score.TotalQuestions > 0:
		return float64(r.Score.CorrectAnswers) / float64(r.Score.TotalQuestions) * 100
	}
	return 0
}

// TopicPerformance is a student's correctness on one topic.
type TopicPerformance struct {
	Topic      string  `json:"topic"`
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	IsWeakness bool    `json:"isWeakness"`
}

// Phase1Analysis is the weakness profile derived from a Phase-1 attempt.
type Phase1Analysis struct {
	StudentID       string             `json:"studentId"`
	Subject         subject.Subject    `json:"subject"`
	ExamID          string             `json:"examId,omitempty"`
	Topics          []TopicPerformance `json:"topics"`
	MeanPercentage  float64            `json:"meanPercentage"`
	PrimaryWeakness string             `json:"primaryWeakness,omitempty"`
	Weaknesses      []string           `json:"weaknesses"`
	Strengths       []string           `json:"strengths"`
	Recommendation  string             `json:"recommendation,omitempty"`
	AnalyzedAt      time.Time          `json:"analyzedAt"`
}

// TopicCount is the number of questions allocated to a topic.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// QuestionDistribution allocates a Phase-2 question budget across topics.
type QuestionDistribution struct {
	Subject              subject.Subject `json:"subject"`
	TotalQuestions       int             `json:"totalQuestions"`
	WeaknessDistribution []TopicCount    `json:"weaknessDistribution"`
	StrengthDistribution []TopicCount    `json:"strengthDistribution"`
}

// Sum returns the total allocated questions.
func (d QuestionDistribution) Sum() int {
	n := 0
	for _, tc := range d.WeaknessDistribution {
		n += tc.Count
	}
	for _, tc := range d.StrengthDistribution {
		n += tc.Count
	}
	return n
}

// RankingResult is a student's position in the grade cohort. Rank is nil
// when the student could not be ranked.
type RankingResult struct {
	StudentID    string  `json:"studentId"`
	Phase        Phase   `json:"phase"`
	Score        float64 `json:"score"`
	Rank         *int    `json:"rank"`
	TotalInPhase int     `json:"totalInPhase"`
	TotalInGrade int     `json:"totalInGrade"`
}

// AccessResult answers whether a student may enter a phase.
type AccessResult struct {
	CanAccess  bool   `json:"canAccess"`
	Reason     string `json:"reason,omitempty"`
	ReasonCode string `json:"reasonCode,omitempty"`
}

// UserRole is a user's role in the institution.
type UserRole string

const (
	UserRoleStudent UserRole = "student"
	UserRoleTeacher UserRole = "teacher"
	UserRoleAdmin   UserRole = "admin"
)

// User is the identity record provided by the roster collaborator.
type User struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"displayName"`
	Role          UserRole  `json:"role"`
	GradeID       string    `json:"gradeId"`
	InstitutionID string    `json:"institutionId"`
	CampusID      string    `json:"campusId"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"createdAt"`
}

// StudentFilter restricts a roster lookup. Empty strings do not filter.
type StudentFilter struct {
	InstitutionID string
	CampusID      string
	GradeID       string
	IsActive      *bool
}

// ExamSubmission is what the exam-taking flow hands over when an attempt ends.
type ExamSubmission struct {
	StudentID       string           `json:"studentId"`
	GradeID         string           `json:"gradeId"`
	Phase           Phase            `json:"phase"`
	Subject         string           `json:"subject"`
	ExamID          string           `json:"examId,omitempty"`
	Score           Score            `json:"score"`
	QuestionDetails []QuestionDetail `json:"questionDetails"`
	Timestamp       time.Time        `json:"timestamp"`
}

// CompletionOutcome reports what the completion pipeline did.
type CompletionOutcome struct {
	Result   ExamResult            `json:"result"`
	Progress *StudentPhaseProgress `json:"progress"`
	Analysis *Phase1Analysis       `json:"analysis,omitempty"`
}

// SubjectStatus is one subject's state inside a phase overview.
type SubjectStatus struct {
	Subject        subject.Subject `json:"subject"`
	DisplayName    string          `json:"displayName"`
	Completed      bool            `json:"completed"`
	InProgress     bool            `json:"inProgress"`
	BestPercentage *float64        `json:"bestPercentage,omitempty"`
}

// PhaseView is one phase of a student's overview.
type PhaseView struct {
	Phase                Phase           `json:"phase"`
	Status               PhaseStatus     `json:"status"`
	Access               AccessResult    `json:"access"`
	AllSubjectsCompleted bool            `json:"allSubjectsCompleted"`
	OverallScore         *float64        `json:"overallScore,omitempty"`
	Subjects             []SubjectStatus `json:"subjects"`
}

// PhaseOverview is the merged per-phase, per-subject state of a student.
type PhaseOverview struct {
	StudentID string      `json:"studentId"`
	GradeID   string      `json:"gradeId"`
	Phases    []PhaseView `json:"phases"`
}

// EngineConfig holds runtime parameters set via CLI flags.
type EngineConfig struct {
	RankingConcurrency int    // max concurrent per-student score lookups
	Phase2Questions    int    // default Phase-2 budget when the caller gives none
	AdminKeyHash       string // bcrypt hash of the admin key; empty disables admin routes
	CORSOrigins        []string
	Lang               string
}
