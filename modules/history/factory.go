package history

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by HISTORY_BACKEND
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSupabase = "supabase"
)

// NewStore - pick the backend; the redis client or db is required for its backend
func NewStore(backend string, limit int, rdb redis.UniversalClient, db HistoryDB) (Store, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemoryStore(limit), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis history backend needs a redis client")
		}
		return NewRedisStore(rdb, limit), nil
	case BackendSupabase:
		if db == nil {
			return nil, fmt.Errorf("supabase history backend needs a database client")
		}
		return NewSupabaseStore(db, limit), nil
	default:
		return nil, fmt.Errorf("unknown history backend: %s", backend)
	}
}
