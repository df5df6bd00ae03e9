package llm

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIConfig for the chat-completions analyzer
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	JSONMode    bool
	Timeout     time.Duration
}

// OpenAIAnalyzer asks an OpenAI-compatible chat-completions endpoint for the
// transcript analysis.
type OpenAIAnalyzer struct {
	client      *resty.Client
	model       string
	temperature float64
	jsonMode    bool
}

// Message represents a conversation message
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIAnalyzer creates an analyzer. Temperature 0 uses 0.3.
func NewOpenAIAnalyzer(cfg OpenAIConfig) *OpenAIAnalyzer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	return &OpenAIAnalyzer{
		client:      newRestClient(cfg.BaseURL, cfg.Timeout).SetAuthToken(cfg.APIKey),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		jsonMode:    cfg.JSONMode,
	}
}

// Analyze returns the model's reply for transcript.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, transcript string) (string, error) {
	req := chatRequest{
		Model: a.model,
		Messages: []Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: AnalysisPrompt(transcript)},
		},
		Temperature: a.temperature,
	}
	if a.jsonMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out chatResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err := checkResponse("analysis", resp, err); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("analysis returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}
