package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/model"
)

// DefaultLimit - entries kept per session
const DefaultLimit = 24

// Store - bounded, newest-first history per session.
// Implementations serialise read-modify-write per session.
type Store interface {
	// Add puts entry at index 0 and evicts the oldest entries beyond the limit
	Add(ctx context.Context, session string, entry model.HistoryEntry) error
	// List returns up to limit entries starting at offset, newest first
	List(ctx context.Context, session string, offset, limit int) ([]model.HistoryEntry, error)
	// ReplaceLatest swaps the result of the newest entry when it has the same
	// number of prompts. False when there is no entry or the counts differ.
	ReplaceLatest(ctx context.Context, session string, result model.AnalysisResult) (bool, error)
	// Clear removes the whole history of session
	Clear(ctx context.Context, session string) error
}

// NewEntry - entry with a fresh id and the current timestamp
func NewEntry(image imageproc.ImagePayload, result model.AnalysisResult) model.HistoryEntry {
	return model.HistoryEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Image:     image,
		Result:    result,
	}
}

func canReplace(latest model.HistoryEntry, result model.AnalysisResult) bool {
	return len(latest.Result.Prompts) == len(result.Prompts)
}

// window - bounds of [offset, offset+limit) clipped to n; limit <= 0 means everything
func window(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

func normalizeEntry(entry model.HistoryEntry) model.HistoryEntry {
	entry.Result = entry.Result.Normalized()
	return entry
}
