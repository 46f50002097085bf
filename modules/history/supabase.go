package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"prompt-decoder-server/modules/common/database"
	"prompt-decoder-server/modules/common/logger"
	"prompt-decoder-server/modules/common/model"
)

// HistoryDB - the database.Client calls the supabase backend needs
type HistoryDB interface {
	InsertHistory(row database.HistoryRow) error
	FetchHistory(sessionID string, offset, limit int) ([]database.HistoryRow, error)
	FetchHistoryIDs(sessionID string, offset int) ([]string, error)
	UpdateHistoryResult(id string, result json.RawMessage) error
	DeleteHistoryRows(ids []string) error
	DeleteSessionHistory(sessionID string) error
}

// SupabaseStore - history persisted in the prompt_decoder_history table
type SupabaseStore struct {
	db    HistoryDB
	limit int
	mu    sync.Mutex // serialises read-modify-write from this process
}

// NewSupabaseStore - limit <= 0 uses DefaultLimit
func NewSupabaseStore(db HistoryDB, limit int) *SupabaseStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &SupabaseStore{db: db, limit: limit}
}

func (s *SupabaseStore) Add(ctx context.Context, session string, entry model.HistoryEntry) error {
	entry = normalizeEntry(entry)
	image, err := json.Marshal(entry.Image)
	if err != nil {
		return fmt.Errorf("failed to marshal history image: %w", err)
	}
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal history result: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.InsertHistory(database.HistoryRow{
		ID:        entry.ID,
		SessionID: session,
		CreatedAt: entry.Timestamp,
		Image:     image,
		Result:    result,
	}); err != nil {
		return err
	}

	// evict everything past the limit
	stale, err := s.db.FetchHistoryIDs(session, s.limit)
	if err != nil {
		logger.WithField("session", session).Warnf("⚠️  [History] Failed to list stale rows: %v", err)
		return nil
	}
	if err := s.db.DeleteHistoryRows(stale); err != nil {
		logger.WithField("session", session).Warnf("⚠️  [History] Failed to evict %d rows: %v", len(stale), err)
	}
	return nil
}

func (s *SupabaseStore) List(ctx context.Context, session string, offset, limit int) ([]model.HistoryEntry, error) {
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.FetchHistory(session, offset, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]model.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := rowToEntry(row)
		if err != nil {
			logger.WithField("id", row.ID).Warnf("⚠️  [History] Skipping unreadable row: %v", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *SupabaseStore) ReplaceLatest(ctx context.Context, session string, result model.AnalysisResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.FetchHistory(session, 0, 1)
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}

	latest, err := rowToEntry(rows[0])
	if err != nil {
		return false, err
	}
	if !canReplace(latest, result) {
		return false, nil
	}

	data, err := json.Marshal(result.Normalized())
	if err != nil {
		return false, fmt.Errorf("failed to marshal history result: %w", err)
	}
	if err := s.db.UpdateHistoryResult(latest.ID, data); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SupabaseStore) Clear(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.DeleteSessionHistory(session)
}

func rowToEntry(row database.HistoryRow) (model.HistoryEntry, error) {
	entry := model.HistoryEntry{ID: row.ID, Timestamp: row.CreatedAt}
	if len(row.Image) > 0 {
		if err := json.Unmarshal(row.Image, &entry.Image); err != nil {
			return entry, fmt.Errorf("invalid image column: %w", err)
		}
	}
	if err := json.Unmarshal(row.Result, &entry.Result); err != nil {
		return entry, fmt.Errorf("invalid result column: %w", err)
	}
	return normalizeEntry(entry), nil
}
