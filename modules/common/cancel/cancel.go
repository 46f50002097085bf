package cancel

import (
	"context"
	"sync"

	"prompt-decoder-server/modules/common/logger"
)

// Registry - one in-flight operation per session. Starting a new one cancels the previous.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	seq     uint64
}

type entry struct {
	id     uint64
	cancel context.CancelFunc
}

// NewRegistry - empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Begin - derive a cancellable context for session, superseding any running operation.
// The returned release must be called when the operation ends.
func (r *Registry) Begin(ctx context.Context, session string) (context.Context, func()) {
	opCtx, cancelFn := context.WithCancel(ctx)
	if session == "" {
		return opCtx, cancelFn
	}

	r.mu.Lock()
	r.seq++
	id := r.seq
	if prev, ok := r.entries[session]; ok {
		logger.WithField("session", session).Info("🛑 [Cancel] Superseding in-flight operation")
		prev.cancel()
	}
	r.entries[session] = &entry{id: id, cancel: cancelFn}
	r.mu.Unlock()

	release := func() {
		cancelFn()
		r.mu.Lock()
		if cur, ok := r.entries[session]; ok && cur.id == id {
			delete(r.entries, session)
		}
		r.mu.Unlock()
	}
	return opCtx, release
}

// Cancel - cancel the running operation of session. False when nothing was running.
func (r *Registry) Cancel(session string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.entries[session]
	if !ok {
		return false
	}
	cur.cancel()
	delete(r.entries, session)
	logger.WithField("session", session).Info("🛑 [Cancel] Operation cancelled by user")
	return true
}

// Active - number of sessions with an operation in flight
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
