package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/testutil"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// =============================================================================
// Whisper
// =============================================================================

func TestWhisperClient_Transcribe(t *testing.T) {
	tests := []struct {
		name         string
		hint         core.Language
		detected     string
		wantLanguage core.Language
		wantFormLang string
	}{
		{"auto detects english", core.LangAuto, "english", core.LangEnglish, ""},
		{"auto detects arabic", core.LangAuto, "arabic", core.LangArabic, ""},
		{"hint is passed through", core.LangFrench, "french", core.LangFrench, "fr"},
		{"unsupported detection keeps hint", core.LangFrench, "german", core.LangFrench, "fr"},
		{"unsupported detection without hint", core.LangAuto, "german", core.LangAuto, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/audio/transcriptions", r.URL.Path)
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
				require.NoError(t, r.ParseMultipartForm(1<<20))
				assert.Equal(t, "whisper-1", r.FormValue("model"))
				assert.Equal(t, "verbose_json", r.FormValue("response_format"))
				assert.Equal(t, tt.wantFormLang, r.FormValue("language"))

				f, header, err := r.FormFile("file")
				require.NoError(t, err)
				defer f.Close()
				data, _ := io.ReadAll(f)
				assert.Equal(t, "voice.ogg", header.Filename)
				assert.Equal(t, []byte("OggS-audio"), data)

				writeJSON(w, http.StatusOK, map[string]interface{}{
					"text":     "  Call John tomorrow at 3pm.  ",
					"language": tt.detected,
					"duration": 2.5,
				})
			}))
			defer srv.Close()

			c := NewWhisperClient(WhisperConfig{APIKey: "sk-test", BaseURL: srv.URL})
			text, lang, err := c.Transcribe(context.Background(), []byte("OggS-audio"), tt.hint)
			require.NoError(t, err)
			assert.Equal(t, "Call John tomorrow at 3pm.", text)
			assert.Equal(t, tt.wantLanguage, lang)
		})
	}
}

func TestWhisperClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "overloaded"})
	}))
	defer srv.Close()

	c := NewWhisperClient(WhisperConfig{BaseURL: srv.URL})
	_, _, err := c.Transcribe(context.Background(), []byte("x"), core.LangAuto)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	assert.True(t, apiErr.Retryable())
	assert.Contains(t, apiErr.Error(), "overloaded")

	_, _, err = c.Transcribe(context.Background(), nil, core.LangAuto)
	assert.Error(t, err)
}

func TestWhisperClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewWhisperClient(WhisperConfig{BaseURL: srv.URL, Timeout: 20 * time.Millisecond})
	_, _, err := c.Transcribe(context.Background(), []byte("x"), core.LangAuto)
	assert.Error(t, err)
}

// =============================================================================
// OpenAI analyzer
// =============================================================================

func TestOpenAIAnalyzer_Analyze(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": "chatcmpl-1",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": `{"summary":"ok","action_items":[]}`}},
			},
		})
	}))
	defer srv.Close()

	a := NewOpenAIAnalyzer(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", JSONMode: true})
	reply, err := a.Analyze(context.Background(), "Call John tomorrow")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok","action_items":[]}`, reply)

	assert.Equal(t, "gpt-4o", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, SystemPrompt, got.Messages[0].Content)
	assert.True(t, strings.HasSuffix(got.Messages[1].Content, "Transcript: Call John tomorrow"))
}

func TestOpenAIAnalyzer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   interface{}
	}{
		{"rate limited", http.StatusTooManyRequests, map[string]string{"error": "slow down"}},
		{"unauthorized", http.StatusUnauthorized, map[string]string{"error": "bad key"}},
		{"no choices", http.StatusOK, map[string]interface{}{"choices": []interface{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			_, err := NewOpenAIAnalyzer(OpenAIConfig{BaseURL: srv.URL}).Analyze(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// Claude analyzer
// =============================================================================

func TestClaudeAnalyzer_Analyze(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":   "msg_123",
			"type": "message",
			"role": "assistant",
			"content": []map[string]string{
				{"type": "text", "text": `{"summary":`},
				{"type": "text", "text": `"ok"}`},
			},
			"stop_reason": "end_turn",
		})
	}))
	defer srv.Close()

	a := NewClaudeAnalyzer(ClaudeConfig{APIKey: "test-key", BaseURL: srv.URL, Model: "claude-test"})
	reply, err := a.Analyze(context.Background(), "Appeler Marie demain")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, reply)
	assert.Equal(t, "claude-test", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	assert.Equal(t, SystemPrompt, got.System)
}

func TestClaudeAnalyzer_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"content": []interface{}{}})
	}))
	defer srv.Close()

	_, err := NewClaudeAnalyzer(ClaudeConfig{BaseURL: srv.URL}).Analyze(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewAnalyzer(t *testing.T) {
	a, err := NewAnalyzer("", OpenAIConfig{}, ClaudeConfig{})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIAnalyzer{}, a)

	a, err = NewAnalyzer("Claude", OpenAIConfig{}, ClaudeConfig{})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeAnalyzer{}, a)

	_, err = NewAnalyzer("ollama", OpenAIConfig{}, ClaudeConfig{})
	assert.Error(t, err)
}

func TestOpenAIAnalyzer_Live(t *testing.T) {
	key := testutil.RequireEnv(t, "OPENAI_API_KEY")
	ctx := testutil.TestContextWithTimeout(t, 90*time.Second)

	reply, err := NewOpenAIAnalyzer(OpenAIConfig{APIKey: key, Model: "gpt-4o-mini", JSONMode: true}).
		Analyze(ctx, "Remind me to send the quarterly report to Sara by Friday, it's urgent.")
	require.NoError(t, err)
	assert.Contains(t, reply, "action_items")
}
