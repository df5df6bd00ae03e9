package llm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
)

// WhisperConfig for the transcription client
type WhisperConfig struct {
	APIKey   string
	BaseURL  string // e.g. https://api.openai.com/v1
	Model    string
	Filename string // name sent with the audio upload; the extension selects the decoder
	Timeout  time.Duration
}

// WhisperClient transcribes audio with an OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperClient struct {
	client   *resty.Client
	model    string
	filename string
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// NewWhisperClient creates a transcription client.
func NewWhisperClient(cfg WhisperConfig) *WhisperClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Filename == "" {
		cfg.Filename = "voice.ogg"
	}
	return &WhisperClient{
		client:   newRestClient(cfg.BaseURL, cfg.Timeout).SetAuthToken(cfg.APIKey),
		model:    cfg.Model,
		filename: cfg.Filename,
	}
}

// Transcribe uploads audio and returns the transcript with the language the
// service detected. A concrete hint is passed through; LangAuto lets the
// service detect. Unsupported detected languages come back as LangAuto.
func (w *WhisperClient) Transcribe(ctx context.Context, audio []byte, hint core.Language) (string, core.Language, error) {
	if len(audio) == 0 {
		return "", "", errors.New("no audio")
	}

	form := map[string]string{
		"model":           w.model,
		"response_format": "verbose_json",
	}
	if hint != "" && hint != core.LangAuto {
		form["language"] = string(hint)
	}

	var out whisperResponse
	resp, err := w.client.R().
		SetContext(ctx).
		SetFileReader("file", w.filename, bytes.NewReader(audio)).
		SetFormData(form).
		SetResult(&out).
		Post("/audio/transcriptions")
	if err := checkResponse("transcription", resp, err); err != nil {
		return "", "", err
	}

	detected, ok := core.ParseLanguage(out.Language)
	if !ok {
		logging.WithField("language", out.Language).Debug("transcription language not supported")
	}
	if detected == core.LangAuto && hint != "" {
		detected = hint
	}

	logging.WithFields(map[string]interface{}{
		"bytes":    len(audio),
		"language": detected,
		"duration": out.Duration,
	}).Debug("audio transcribed")
	return strings.TrimSpace(out.Text), detected, nil
}
