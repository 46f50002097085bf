package database

import (
	"encoding/json"
	"fmt"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"prompt-decoder-server/modules/common/config"
	"prompt-decoder-server/modules/common/logger"
)

// HistoryTable - supabase table holding history rows
const HistoryTable = "prompt_decoder_history"

// HistoryRow - prompt_decoder_history table structure
type HistoryRow struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	CreatedAt int64           `json:"created_at"` // unix millis
	Image     json.RawMessage `json:"image"`
	Result    json.RawMessage `json:"result"`
}

type Client struct {
	supabase *supabase.Client
}

// NewClient - Database client from the loaded configuration
func NewClient(cfg *config.Config) (*Client, error) {
	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	logger.Info("✅ [Database] Supabase client initialized")
	return &Client{supabase: supabaseClient}, nil
}

// InsertHistory - insert one row
func (c *Client) InsertHistory(row HistoryRow) error {
	_, _, err := c.supabase.From(HistoryTable).
		Insert(row, false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to insert history row: %w", err)
	}
	return nil
}

// FetchHistory - rows of a session, newest first, [offset, offset+limit)
func (c *Client) FetchHistory(sessionID string, offset, limit int) ([]HistoryRow, error) {
	query := c.supabase.From(HistoryTable).
		Select("*", "", false).
		Eq("session_id", sessionID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false})
	if limit > 0 {
		query = query.Range(offset, offset+limit-1, "")
	}

	data, _, err := query.Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}

	var rows []HistoryRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse history response: %w", err)
	}
	return rows, nil
}

// FetchHistoryIDs - ids of a session starting at offset, newest first
func (c *Client) FetchHistoryIDs(sessionID string, offset int) ([]string, error) {
	data, _, err := c.supabase.From(HistoryTable).
		Select("id", "", false).
		Eq("session_id", sessionID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Range(offset, offset+999, "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to query history ids: %w", err)
	}

	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse history ids: %w", err)
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// UpdateHistoryResult - overwrite the result column of one row
func (c *Client) UpdateHistoryResult(id string, result json.RawMessage) error {
	_, _, err := c.supabase.From(HistoryTable).
		Update(map[string]interface{}{"result": result}, "minimal", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update history row %s: %w", id, err)
	}
	return nil
}

// DeleteHistoryRows - delete rows by id
func (c *Client) DeleteHistoryRows(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, _, err := c.supabase.From(HistoryTable).
		Delete("minimal", "").
		In("id", ids).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete history rows: %w", err)
	}
	return nil
}

// DeleteSessionHistory - delete every row of a session
func (c *Client) DeleteSessionHistory(sessionID string) error {
	_, _, err := c.supabase.From(HistoryTable).
		Delete("minimal", "").
		Eq("session_id", sessionID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete session history: %w", err)
	}
	return nil
}
