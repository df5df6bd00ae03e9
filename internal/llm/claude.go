package llm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ClaudeConfig for the Anthropic messages analyzer
type ClaudeConfig struct {
	APIKey    string
	BaseURL   string // e.g. https://api.anthropic.com/v1
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// ClaudeAnalyzer asks the Anthropic messages API for the transcript analysis.
type ClaudeAnalyzer struct {
	client    *resty.Client
	model     string
	maxTokens int
}

// Request is the messages API request structure
type Request struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Response is the messages API response structure
type Response struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Text joins the text blocks of the reply.
func (r *Response) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" || c.Type == "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "")
}

// NewClaudeAnalyzer creates an analyzer.
func NewClaudeAnalyzer(cfg ClaudeConfig) *ClaudeAnalyzer {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-opus-20240229"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}
	client := newRestClient(cfg.BaseURL, cfg.Timeout).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("anthropic-version", "2023-06-01")
	return &ClaudeAnalyzer{client: client, model: cfg.Model, maxTokens: cfg.MaxTokens}
}

// Analyze returns the model's reply for transcript.
func (c *ClaudeAnalyzer) Analyze(ctx context.Context, transcript string) (string, error) {
	req := Request{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    SystemPrompt,
		Messages:  []Message{{Role: "user", Content: AnalysisPrompt(transcript)}},
	}

	var out Response
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/messages")
	if err := checkResponse("analysis", resp, err); err != nil {
		return "", err
	}
	if len(out.Content) == 0 {
		return "", errors.New("analysis returned empty content")
	}
	return out.Text(), nil
}
