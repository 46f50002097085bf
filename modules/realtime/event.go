package realtime

import (
	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/model"
)

// Progress event types
const (
	EventConnected     = "connected"
	EventPreprocessing = "preprocessing"
	EventAnalyzing     = "analyzing"
	EventRetrying      = "retrying"
	EventTranslating   = "translating"
	EventOptimizing    = "optimizing"
	EventDone          = "done"
	EventFailed        = "failed"
	EventCancelled     = "cancelled"
)

// Event - progress message pushed to the clients of a session
type Event struct {
	Type      string                 `json:"type"`
	SessionID string                 `json:"sessionId"`
	JobID     string                 `json:"jobId,omitempty"`
	Attempt   int                    `json:"attempt,omitempty"`
	DelayMs   int64                  `json:"delayMs,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Result    *model.AnalysisResult  `json:"result,omitempty"`
	Error     *apperror.ErrorDetails `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Publisher - anything that can deliver progress events
type Publisher interface {
	Publish(event Event)
}

// Discard - publisher that drops every event
type Discard struct{}

func (Discard) Publish(Event) {}
