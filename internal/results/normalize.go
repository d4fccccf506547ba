package results

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/store"
)

// rawDoc accepts both the nested layout ({"score": {...}}) and the legacy flat
// layout where score fields sit at the top level.
type rawDoc struct {
	Placeholder bool   `json:"placeholder"`
	Phase       string `json:"phase"`
	Subject     string `json:"subject"`
	Materia     string `json:"materia"`
	ExamID      string `json:"examId"`

	Score json.RawMessage `json:"score"`

	CorrectAnswers    *int     `json:"correctAnswers"`
	TotalAnswered     *int     `json:"totalAnswered"`
	TotalQuestions    *int     `json:"totalQuestions"`
	Percentage        *float64 `json:"percentage"`
	OverallPercentage *float64 `json:"overallPercentage"`

	QuestionDetails []model.QuestionDetail `json:"questionDetails"`
	Completed       *bool                  `json:"completed"`
	Timestamp       json.RawMessage        `json:"timestamp"`
}

// decode normalizes a stored document. It returns the inline phase label for
// flat documents and false for placeholders and unreadable documents.
func decode(d store.Document) (model.ExamResult, string, bool) {
	var raw rawDoc
	if err := json.Unmarshal(d.Data, &raw); err != nil {
		slog.Warn("skipping unreadable exam document",
			"student_id", d.StudentID, "folder", d.Folder, "exam_id", d.ExamID, "error", err)
		return model.ExamResult{}, "", false
	}
	if raw.Placeholder || d.ExamID == PlaceholderID {
		return model.ExamResult{}, "", false
	}

	r := model.ExamResult{
		StudentID:       d.StudentID,
		PhaseFolder:     d.Folder,
		ExamID:          d.ExamID,
		Subject:         raw.Subject,
		QuestionDetails: raw.QuestionDetails,
		Completed:       true,
		Timestamp:       parseTimestamp(raw.Timestamp, d.UpdatedAt),
	}
	if r.Subject == "" {
		r.Subject = raw.Materia
	}
	if raw.Completed != nil {
		r.Completed = *raw.Completed
	}
	r.Score = normalizeScore(raw)
	return r, raw.Phase, true
}

func normalizeScore(raw rawDoc) model.Score {
	var sc model.Score
	trimmed := bytes.TrimSpace(raw.Score)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		if err := json.Unmarshal(trimmed, &sc); err != nil {
			slog.Warn("malformed score block", "error", err)
		}
	case len(trimmed) > 0 && string(trimmed) != "null":
		// some releases stored the percentage as a bare number
		if v, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
			sc.Percentage = v
		}
	}

	if raw.CorrectAnswers != nil && sc.CorrectAnswers == 0 {
		sc.CorrectAnswers = *raw.CorrectAnswers
	}
	if raw.TotalAnswered != nil && sc.TotalAnswered == 0 {
		sc.TotalAnswered = *raw.TotalAnswered
	}
	if raw.TotalQuestions != nil && sc.TotalQuestions == 0 {
		sc.TotalQuestions = *raw.TotalQuestions
	}
	if raw.Percentage != nil && sc.Percentage == 0 {
		sc.Percentage = *raw.Percentage
	}
	if raw.OverallPercentage != nil && sc.OverallPercentage == 0 {
		sc.OverallPercentage = *raw.OverallPercentage
	}

	if sc.TotalQuestions == 0 && len(raw.QuestionDetails) > 0 {
		sc.TotalQuestions = len(raw.QuestionDetails)
		for _, q := range raw.QuestionDetails {
			if q.IsCorrect {
				sc.CorrectAnswers++
			}
			if q.Answered {
				sc.TotalAnswered++
			}
		}
	}
	if sc.Percentage == 0 {
		if sc.OverallPercentage > 0 {
			sc.Percentage = sc.OverallPercentage
		} else if sc.TotalQuestions > 0 {
			sc.Percentage = float64(sc.CorrectAnswers) / float64(sc.TotalQuestions) * 100
		}
	}
	return sc
}

// parseTimestamp understands RFC 3339 strings, epoch numbers (seconds or
// milliseconds) and exported {"seconds", "nanoseconds"} objects.
func parseTimestamp(raw json.RawMessage, fallback time.Time) time.Time {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return fallback
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
	case '{':
		var ts struct {
			Seconds     int64 `json:"seconds"`
			Nanoseconds int64 `json:"nanoseconds"`
		}
		if err := json.Unmarshal(trimmed, &ts); err == nil && ts.Seconds > 0 {
			return time.Unix(ts.Seconds, ts.Nanoseconds)
		}
	default:
		if v, err := strconv.ParseFloat(string(trimmed), 64); err == nil && v > 0 {
			if v < 1e11 {
				return time.Unix(int64(v), 0)
			}
			return time.UnixMilli(int64(v))
		}
	}
	return fallback
}
