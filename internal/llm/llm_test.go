package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/saber/internal/llm/prompts"
	"github.com/pavelanni/saber/internal/model"
	"github.com/pavelanni/saber/internal/subject"
)

func TestParseRecommendation(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"valid", `{"recommendation": " Practica geometria. "}`, "Practica geometria.", false},
		{"empty text", `{"recommendation": ""}`, "", true},
		{"not json", `study more`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecommendation(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLanguageName(t *testing.T) {
	tests := map[string]string{"en": "English", "EN": "English", "es": "Spanish", "": "Spanish", "fr": "Spanish"}
	for in, want := range tests {
		if got := languageName(in); got != want {
			t.Errorf("languageName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewFallsBackToStandardTone(t *testing.T) {
	c := New("", "key", "m", prompts.Tone("shouty"), "es")
	if c.tone != prompts.ToneStandard {
		t.Errorf("tone = %q", c.tone)
	}
}

func TestRecommendAgainstFakeServer(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Messages) > 0 {
			gotPrompt = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		content, _ := json.Marshal(map[string]string{"recommendation": "Repasa estadistica."})
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "x",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": string(content)}}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "test-model", prompts.ToneConcise, "es")
	a := model.Phase1Analysis{
		Subject:         subject.Matematicas,
		MeanPercentage:  55,
		PrimaryWeakness: "estadistica",
		Topics: []model.TopicPerformance{
			{Topic: "estadistica", Correct: 1, Total: 5, Percentage: 20, IsWeakness: true},
			{Topic: "algebra", Correct: 9, Total: 10, Percentage: 90},
		},
	}
	got, err := c.Recommend(context.Background(), a)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if got != "Repasa estadistica." {
		t.Errorf("got %q", got)
	}
	if !strings.Contains(gotPrompt, "Matemáticas") || !strings.Contains(gotPrompt, "Spanish") {
		t.Errorf("prompt missing subject or language:\n%s", gotPrompt)
	}
}
