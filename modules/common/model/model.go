package model

import (
	"time"

	"prompt-decoder-server/modules/common/fallback"
	"prompt-decoder-server/modules/common/imageproc"
)

// Job status values
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// Prompt count bounds for one decode
const (
	DefaultPromptCount = 10
	MinPromptCount     = 1
	MaxPromptCount     = 20
)

// PromptItem - one reconstructed prompt and its 0-10 score
type PromptItem struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// AnalysisResult - normalised output of one decode
type AnalysisResult struct {
	Prompts       []PromptItem `json:"prompts"`
	Suggestions   []string     `json:"suggestions"`
	DetectedTexts []string     `json:"detectedTexts,omitempty"`
}

// HistoryEntry - one past decode kept per session
type HistoryEntry struct {
	ID        string                 `json:"id"`
	Timestamp int64                  `json:"timestamp"` // unix millis
	Image     imageproc.ImagePayload `json:"image"`
	Result    AnalysisResult         `json:"result"`
}

// DecodeJob - asynchronous decode request stored in redis (decode:job:<id>)
type DecodeJob struct {
	JobID        string                 `json:"jobId"`
	SessionID    string                 `json:"sessionId"`
	Count        int                    `json:"count"`
	Image        imageproc.ImagePayload `json:"image"`
	Status       string                 `json:"status"`
	Result       *AnalysisResult        `json:"result,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	ErrorCode    string                 `json:"errorCode,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	CompletedAt  *time.Time             `json:"completedAt,omitempty"`
}

// ClampCount - default 10, bounded to [1, 20]
func ClampCount(count int) int {
	if count <= 0 {
		return DefaultPromptCount
	}
	return fallback.Clamp(count, 1, MaxPromptCount)
}
