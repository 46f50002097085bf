package history

import (
	"context"
	"sync"

	"prompt-decoder-server/modules/common/model"
)

// MemoryStore - process-local history, lost on restart
type MemoryStore struct {
	mu       sync.Mutex
	limit    int
	sessions map[string][]model.HistoryEntry
}

// NewMemoryStore - limit <= 0 uses DefaultLimit
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &MemoryStore{limit: limit, sessions: make(map[string][]model.HistoryEntry)}
}

func (s *MemoryStore) Add(ctx context.Context, session string, entry model.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.sessions[session]
	next := make([]model.HistoryEntry, 0, min(len(prev)+1, s.limit))
	next = append(next, normalizeEntry(entry))
	for _, e := range prev {
		if len(next) >= s.limit {
			break
		}
		next = append(next, e)
	}
	s.sessions[session] = next
	return nil
}

func (s *MemoryStore) List(ctx context.Context, session string, offset, limit int) ([]model.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[session]
	start, end := window(len(entries), offset, limit)
	out := make([]model.HistoryEntry, end-start)
	copy(out, entries[start:end])
	return out, nil
}

func (s *MemoryStore) ReplaceLatest(ctx context.Context, session string, result model.AnalysisResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.sessions[session]
	if len(entries) == 0 || !canReplace(entries[0], result) {
		return false, nil
	}
	entries[0].Result = result.Normalized()
	return true, nil
}

func (s *MemoryStore) Clear(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, session)
	return nil
}
