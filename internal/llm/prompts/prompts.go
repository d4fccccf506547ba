package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/saber/internal/model"
)

//go:embed templates/*.txt
var embedded embed.FS

var tagRegex = regexp.MustCompile(`(?i)</?\s*(topic-results|system-instructions)\b[^>]*>`)

// Tone selects how long and detailed a recommendation is.
type Tone string

const (
	ToneConcise  Tone = "concise"
	ToneStandard Tone = "standard"
	ToneDetailed Tone = "detailed"
)

var validTones = map[Tone]bool{
	ToneConcise:  true,
	ToneStandard: true,
	ToneDetailed: true,
}

// maxTopicRunes bounds a topic name taken from exam data.
const maxTopicRunes = 80

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Tone]*template.Template
)

// IsValidTone checks if a tone name is valid.
func IsValidTone(v string) bool {
	return validTones[Tone(v)]
}

// TopicLine is one topic row of the prompt.
type TopicLine struct {
	Topic      string
	Correct    int
	Total      int
	Percentage float64
	IsWeakness bool
}

// RecommendData holds template data for recommendation prompts.
type RecommendData struct {
	Language        string
	Subject         string
	MeanPercentage  float64
	PrimaryWeakness string
	Topics          []TopicLine
}

// Load parses the recommendation templates from fsys. A nil fsys uses the
// templates built into the binary. Only the first call has an effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		if fsys == nil {
			fsys = embedded
		}
		templates = make(map[Tone]*template.Template)
		for _, tone := range []Tone{ToneConcise, ToneStandard, ToneDetailed} {
			file := "templates/recommend_" + string(tone) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}
			tmpl, err := template.New(string(tone)).Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			templates[tone] = tmpl
		}
	})
	return loadErr
}

// BuildRecommendPrompt renders the prompt for an analysis. Weak topics come
// first, weakest first.
func BuildRecommendPrompt(tone Tone, a model.Phase1Analysis, language string) (string, error) {
	if err := Load(nil); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := templates[tone]
	if !ok {
		return "", errors.New("invalid prompt tone: " + string(tone))
	}
	if language == "" {
		language = "Spanish"
	}

	data := RecommendData{
		Language:        language,
		Subject:         a.Subject.DisplayName(),
		MeanPercentage:  a.MeanPercentage,
		PrimaryWeakness: sanitizeTopic(a.PrimaryWeakness),
		Topics:          topicLines(a.Topics),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func topicLines(topics []model.TopicPerformance) []TopicLine {
	lines := make([]TopicLine, 0, len(topics))
	for _, tp := range topics {
		lines = append(lines, TopicLine{
			Topic:      sanitizeTopic(tp.Topic),
			Correct:    tp.Correct,
			Total:      tp.Total,
			Percentage: tp.Percentage,
			IsWeakness: tp.IsWeakness,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].IsWeakness != lines[j].IsWeakness {
			return lines[i].IsWeakness
		}
		return lines[i].Percentage < lines[j].Percentage
	})
	return lines
}

// sanitizeTopic strips prompt delimiters and newlines from exam-supplied
// topic names.
func sanitizeTopic(topic string) string {
	topic = tagRegex.ReplaceAllString(topic, "")
	topic = strings.Join(strings.Fields(topic), " ")
	if utf8.RuneCountInString(topic) > maxTopicRunes {
		topic = string([]rune(topic)[:maxTopicRunes]) + "..."
	}
	return topic
}
