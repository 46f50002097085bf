package decode

import (
	"prompt-decoder-server/modules/common/apperror"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/model"
	"prompt-decoder-server/modules/share"
)

// DecodeRequest - one decode of an already preprocessed image
type DecodeRequest struct {
	SessionID string
	JobID     string
	Count     int
	Image     imageproc.ImagePayload
}

// DecodeResult - normalised result plus the history entry it was stored under
type DecodeResult struct {
	EntryID string                 `json:"entryId"`
	Count   int                    `json:"count"`
	Image   imageproc.ImagePayload `json:"image"`
	Result  model.AnalysisResult   `json:"result"`
}

// ErrorResponse - failure envelope shared by every endpoint
type ErrorResponse struct {
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"errorMessage"`
	ErrorCode    string                 `json:"errorCode"`
	Error        *apperror.ErrorDetails `json:"error,omitempty"`
}

// DecodeResponse - POST /api/decode
type DecodeResponse struct {
	Success bool `json:"success"`
	*DecodeResult
}

// EnqueueResponse - POST /api/decode/enqueue
type EnqueueResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	JobID         string `json:"jobId"`
	Queue         string `json:"queue"`
	QueuePosition int64  `json:"queuePosition"`
}

// JobResponse - GET /api/decode/jobs/{jobId}
type JobResponse struct {
	Success bool             `json:"success"`
	Job     *model.DecodeJob `json:"job"`
}

// CancelRequest - POST /api/decode/cancel
type CancelRequest struct {
	SessionID string `json:"sessionId"`
}

// OptimizeRequest - POST /api/prompts/optimize.
// With Result set, the prompt at Index is optimised in place; otherwise Text is optimised alone.
type OptimizeRequest struct {
	SessionID string                `json:"sessionId"`
	Text      string                `json:"text"`
	Result    *model.AnalysisResult `json:"result,omitempty"`
	Index     int                   `json:"index"`
}

// OptimizeAllRequest - POST /api/prompts/optimize-all
type OptimizeAllRequest struct {
	SessionID string               `json:"sessionId"`
	Result    model.AnalysisResult `json:"result"`
}

// OptimizeResponse - both optimise endpoints
type OptimizeResponse struct {
	Success         bool                  `json:"success"`
	Prompt          *model.PromptItem     `json:"prompt,omitempty"`
	Result          *model.AnalysisResult `json:"result,omitempty"`
	Optimized       int                   `json:"optimized"`
	HistoryReplaced bool                  `json:"historyReplaced"`
}

// TranslateRequest - POST /api/translate
type TranslateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"targetLang"`
}

// TranslateResponse - POST /api/translate
type TranslateResponse struct {
	Success    bool   `json:"success"`
	Text       string `json:"text"`
	TargetLang string `json:"targetLang"`
}

// HistoryResponse - GET /api/history
type HistoryResponse struct {
	Success bool                 `json:"success"`
	Entries []model.HistoryEntry `json:"entries"`
	Offset  int                  `json:"offset"`
	Limit   int                  `json:"limit"`
}

// ShareRequest - POST /api/share
type ShareRequest struct {
	Result model.AnalysisResult `json:"result"`
}

// ShareResponse - POST /api/share and GET /api/share/{token}
type ShareResponse struct {
	Success bool                  `json:"success"`
	Token   string                `json:"token,omitempty"`
	Link    string                `json:"link,omitempty"`
	Result  *model.AnalysisResult `json:"result,omitempty"`
}

// ExportRequest - POST /api/export/txt and /api/export/json
type ExportRequest struct {
	Result  model.AnalysisResult `json:"result"`
	Options share.DisplayOptions `json:"options"`
}
