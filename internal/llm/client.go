// Package llm provides the upstream speech-to-text and analysis clients.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

const defaultTimeout = 60 * time.Second

// APIError is a non-2xx reply from an upstream service.
type APIError struct {
	Service string
	Status  int
	Body    string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s API error %d: %s", e.Service, e.Status, body)
}

// Retryable reports whether the status suggests a transient failure.
func (e *APIError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

func newRestClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetLogger(logging.Zap().Sugar().Named("llm")).
		SetHeader("Accept", "application/json")
}

func checkResponse(service string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	if resp.IsError() {
		return &APIError{Service: service, Status: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// SystemPrompt frames the analysis request.
const SystemPrompt = "You are an AI assistant that analyzes voice transcripts to extract action items and summaries. Always respond with valid JSON."

// AnalysisPrompt builds the user message for transcript.
func AnalysisPrompt(transcript string) string {
	return `Analyze the following transcript and extract:
1. Action items with specific details (who, what, when, where if mentioned)
2. A concise summary
3. The main topics discussed
4. The language (Arabic, English, or French)

Write the summary and tasks in the language of the transcript. Copy deadline
phrases exactly as spoken ("tomorrow at 3pm", "vendredi", "بعد غد").

Format your response as JSON:
{
    "language": "detected language",
    "summary": "concise summary",
    "action_items": [
        {
            "task": "specific task description",
            "deadline": "deadline phrase if mentioned",
            "priority": "high/medium/low",
            "assignee": "person assigned if mentioned"
        }
    ],
    "topics": ["topic"]
}

Transcript: ` + transcript
}

// Analyzer produces the free-form analysis reply for a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (string, error)
}

// NewAnalyzer returns the analyzer for provider, "openai" or "claude".
func NewAnalyzer(provider string, openai OpenAIConfig, claude ClaudeConfig) (Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewOpenAIAnalyzer(openai), nil
	case "claude", "anthropic":
		return NewClaudeAnalyzer(claude), nil
	}
	return nil, fmt.Errorf("unknown analyzer provider %q", provider)
}
