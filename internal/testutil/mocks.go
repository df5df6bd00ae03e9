package testutil

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/egcoder/telegram-ai-bot/internal/calendar"
	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// MockTranscriber implements a mock transcription client for testing.
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audio []byte, hint core.Language) (string, core.Language, error)
	calls          atomic.Int32
}

// Transcribe calls the mock function if set.
func (m *MockTranscriber) Transcribe(ctx context.Context, audio []byte, hint core.Language) (string, core.Language, error) {
	m.calls.Add(1)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, hint)
	}
	return "", core.LangAuto, nil
}

// Calls returns the number of Transcribe calls.
func (m *MockTranscriber) Calls() int {
	return int(m.calls.Load())
}

// StaticTranscriber returns a mock that always yields text in lang.
func StaticTranscriber(text string, lang core.Language) *MockTranscriber {
	return &MockTranscriber{
		TranscribeFunc: func(context.Context, []byte, core.Language) (string, core.Language, error) {
			return text, lang, nil
		},
	}
}

// MockAnalyzer implements a mock analysis client for testing.
type MockAnalyzer struct {
	AnalyzeFunc func(ctx context.Context, transcript string) (string, error)
	calls       atomic.Int32
}

// Analyze calls the mock function if set.
func (m *MockAnalyzer) Analyze(ctx context.Context, transcript string) (string, error) {
	m.calls.Add(1)
	if m.AnalyzeFunc != nil {
		return m.AnalyzeFunc(ctx, transcript)
	}
	return "", nil
}

// Calls returns the number of Analyze calls.
func (m *MockAnalyzer) Calls() int {
	return int(m.calls.Load())
}

// StaticAnalyzer returns a mock that always replies with reply.
func StaticAnalyzer(reply string) *MockAnalyzer {
	return &MockAnalyzer{
		AnalyzeFunc: func(context.Context, string) (string, error) {
			return reply, nil
		},
	}
}

// MockSink implements a mock calendar event sink for testing.
type MockSink struct {
	SinkName string
	PushFunc func(ctx context.Context, ev calendar.Event) (string, error)

	mu     sync.Mutex
	events []calendar.Event
}

// Name returns the sink name, "mock" by default.
func (m *MockSink) Name() string {
	if m.SinkName == "" {
		return "mock"
	}
	return m.SinkName
}

// Push records ev and calls the mock function if set.
func (m *MockSink) Push(ctx context.Context, ev calendar.Event) (string, error) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	if m.PushFunc != nil {
		return m.PushFunc(ctx, ev)
	}
	return "https://calendar.example.com/" + ev.Title, nil
}

// Events returns the pushed events.
func (m *MockSink) Events() []calendar.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]calendar.Event(nil), m.events...)
}

// MockBody is a request body that counts Read calls.
type MockBody struct {
	r     io.Reader
	reads atomic.Int32
}

// NewMockBody returns a body serving data.
func NewMockBody(data string) *MockBody {
	return &MockBody{r: strings.NewReader(data)}
}

func (m *MockBody) Read(p []byte) (int, error) {
	m.reads.Add(1)
	return m.r.Read(p)
}

// Reads returns the number of Read calls.
func (m *MockBody) Reads() int {
	return int(m.reads.Load())
}
