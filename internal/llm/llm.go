package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/saber/internal/llm/prompts"
	"github.com/pavelanni/saber/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// recommendation is the JSON object the model is asked to return.
type recommendation struct {
	Recommendation string `json:"recommendation"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	tone     prompts.Tone
	language string
}

// New creates a new LLM client. An unknown tone falls back to standard.
func New(baseURL, apiKey, modelName string, tone prompts.Tone, language string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if !prompts.IsValidTone(string(tone)) {
		tone = prompts.ToneStandard
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		tone:     tone,
		language: languageName(language),
	}
}

// Ping checks that the endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// Recommend asks the model for a study recommendation based on a Phase-1
// weakness profile.
func (c *Client) Recommend(ctx context.Context, a model.Phase1Analysis) (string, error) {
	systemPrompt, err := prompts.BuildRecommendPrompt(c.tone, a, c.language)
	if err != nil {
		return "", fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return parseRecommendation(raw)
}

func parseRecommendation(raw string) (string, error) {
	var rec recommendation
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return "", fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	text := strings.TrimSpace(rec.Recommendation)
	if text == "" {
		return "", fmt.Errorf("LLM returned an empty recommendation")
	}
	return text, nil
}

func languageName(lang string) string {
	switch strings.ToLower(lang) {
	case "en":
		return "English"
	default:
		return "Spanish"
	}
}
