package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt-decoder-server/modules/common/database"
	"prompt-decoder-server/modules/common/imageproc"
	"prompt-decoder-server/modules/common/model"
)

// fakeDB - in-memory stand-in for the supabase table
type fakeDB struct {
	mu   sync.Mutex
	rows []database.HistoryRow
}

func (f *fakeDB) sorted(session string) []database.HistoryRow {
	var out []database.HistoryRow
	for _, r := range f.rows {
		if r.SessionID == session {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

func (f *fakeDB) InsertHistory(row database.HistoryRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeDB) FetchHistory(sessionID string, offset, limit int) ([]database.HistoryRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.sorted(sessionID)
	start, end := window(len(rows), offset, limit)
	return rows[start:end], nil
}

func (f *fakeDB) FetchHistoryIDs(sessionID string, offset int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.sorted(sessionID)
	var ids []string
	for i := offset; i < len(rows); i++ {
		ids = append(ids, rows[i].ID)
	}
	return ids, nil
}

func (f *fakeDB) UpdateHistoryResult(id string, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].Result = result
		}
	}
	return nil
}

func (f *fakeDB) DeleteHistoryRows(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.rows[:0]
	for _, r := range f.rows {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeDB) DeleteSessionHistory(sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.SessionID != sessionID {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]Store{
		"memory":   NewMemoryStore(DefaultLimit),
		"redis":    NewRedisStore(rdb, DefaultLimit),
		"supabase": NewSupabaseStore(&fakeDB{}, DefaultLimit),
	}
}

func entry(i int, prompts ...string) model.HistoryEntry {
	result := model.AnalysisResult{Suggestions: []string{"tip"}}
	for _, p := range prompts {
		result.Prompts = append(result.Prompts, model.PromptItem{Text: p, Score: 5})
	}
	return model.HistoryEntry{
		ID:        fmt.Sprintf("entry-%02d", i),
		Timestamp: int64(1000 + i),
		Image:     imageproc.ImagePayload{Base64: "AAAA", MimeType: "image/jpeg"},
		Result:    result,
	}
}

func TestStoreBoundedNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 30; i++ {
				require.NoError(t, store.Add(ctx, "s", entry(i, "p")))

				all, err := store.List(ctx, "s", 0, 0)
				require.NoError(t, err)
				assert.LessOrEqual(t, len(all), DefaultLimit)
				assert.Equal(t, fmt.Sprintf("entry-%02d", i), all[0].ID)
			}

			all, err := store.List(ctx, "s", 0, 0)
			require.NoError(t, err)
			require.Len(t, all, DefaultLimit)
			assert.Equal(t, "entry-29", all[0].ID)
			assert.Equal(t, "entry-06", all[DefaultLimit-1].ID)
		})
	}
}

func TestStorePaging(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 10; i++ {
				require.NoError(t, store.Add(ctx, "s", entry(i, "p")))
			}

			page, err := store.List(ctx, "s", 2, 3)
			require.NoError(t, err)
			require.Len(t, page, 3)
			assert.Equal(t, "entry-07", page[0].ID)
			assert.Equal(t, "entry-05", page[2].ID)

			empty, err := store.List(ctx, "s", 50, 3)
			require.NoError(t, err)
			assert.Empty(t, empty)

			other, err := store.List(ctx, "other", 0, 10)
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestStoreReplaceLatest(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := store.ReplaceLatest(ctx, "s", model.AnalysisResult{})
			require.NoError(t, err)
			assert.False(t, ok, "empty history")

			require.NoError(t, store.Add(ctx, "s", entry(1, "a", "b")))

			ok, err = store.ReplaceLatest(ctx, "s", model.AnalysisResult{Prompts: []model.PromptItem{{Text: "only one"}}})
			require.NoError(t, err)
			assert.False(t, ok, "prompt count differs")

			optimized := model.AnalysisResult{
				Prompts:     []model.PromptItem{{Text: "a+", Score: 10}, {Text: "b+", Score: 10}},
				Suggestions: []string{"tip"},
			}
			ok, err = store.ReplaceLatest(ctx, "s", optimized)
			require.NoError(t, err)
			assert.True(t, ok)

			all, err := store.List(ctx, "s", 0, 0)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "entry-01", all[0].ID)
			assert.Equal(t, optimized.Prompts, all[0].Result.Prompts)
		})
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Add(ctx, "s", entry(1, "a")))
			require.NoError(t, store.Add(ctx, "keep", entry(2, "b")))
			require.NoError(t, store.Clear(ctx, "s"))

			all, err := store.List(ctx, "s", 0, 0)
			require.NoError(t, err)
			assert.Empty(t, all)

			kept, err := store.List(ctx, "keep", 0, 0)
			require.NoError(t, err)
			assert.Len(t, kept, 1)
		})
	}
}

func TestRedisStoreNormalizesLegacyEntries(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	legacy := `{"id":"old","timestamp":1,"image":{"base64":"AA","mimeType":"image/jpeg","previewUrl":""},"result":{"prompts":["legacy prompt"]}}`
	_, err := mr.Lpush(redisKey("s"), legacy)
	require.NoError(t, err)
	_, err = mr.Lpush(redisKey("s"), "not json")
	require.NoError(t, err)

	entries, err := NewRedisStore(rdb, DefaultLimit).List(ctx, "s", 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.PromptItem{Text: "legacy prompt", Score: 0}, entries[0].Result.Prompts[0])
	assert.NotNil(t, entries[0].Result.Suggestions)
}

func TestMemoryStoreConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(DefaultLimit)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Add(ctx, "s", entry(i, "p"))
		}(i)
	}
	wg.Wait()

	all, err := store.List(ctx, "s", 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, DefaultLimit)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore("memory", 0, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore("redis", 0, nil, nil)
	assert.Error(t, err)

	_, err = NewStore("supabase", 0, nil, nil)
	assert.Error(t, err)

	_, err = NewStore("cassandra", 0, nil, nil)
	assert.Error(t, err)

	s, err = NewStore("supabase", 0, nil, &fakeDB{})
	require.NoError(t, err)
	assert.IsType(t, &SupabaseStore{}, s)
}
