package pipeline

import (
	"time"

	"github.com/egcoder/telegram-ai-bot/internal/core"
)

// Stage of a voice request.
type Stage string

const (
	StageAuthorizing  Stage = "authorizing"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StageScheduling   Stage = "scheduling"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// ProgressEvent reports that a request entered a stage.
type ProgressEvent struct {
	RequestID string        `json:"request_id"`
	Identity  core.Identity `json:"identity"`
	Stage     Stage         `json:"stage"`
	Detail    string        `json:"detail,omitempty"`
	Code      core.Code     `json:"code,omitempty"` // set on StageFailed
	Time      time.Time     `json:"time"`
}

// ProgressReporter receives stage events. Report must not block.
type ProgressReporter interface {
	Report(ev ProgressEvent)
}

// ProgressFunc adapts a function to ProgressReporter.
type ProgressFunc func(ev ProgressEvent)

// Report calls f(ev).
func (f ProgressFunc) Report(ev ProgressEvent) { f(ev) }
