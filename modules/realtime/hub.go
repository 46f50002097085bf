package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"prompt-decoder-server/modules/common/logger"
)

const (
	sendBuffer        = 64
	expiredThreshold  = 24 * time.Hour
	inactiveThreshold = 2 * time.Hour
)

// Client - one websocket connection subscribed to a session
type Client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Session - clients following one decode session
type Session struct {
	id           string
	clients      map[string]*Client
	mutex        sync.RWMutex
	createdAt    time.Time
	lastActivity time.Time
}

// Counters - values exposed on /metrics
type Counters struct {
	TotalSessions    int       `json:"totalSessions"`
	ActiveSessions   int       `json:"activeSessions"`
	TotalConnections int       `json:"totalConnections"`
	EventsPublished  int       `json:"eventsPublished"`
	DecodesSucceeded int       `json:"decodesSucceeded"`
	DecodesFailed    int       `json:"decodesFailed"`
	Retries          int       `json:"retries"`
	StartTime        time.Time `json:"startTime"`
}

// ServerMetrics - counters guarded by a mutex
type ServerMetrics struct {
	Counters
	mutex sync.RWMutex
}

// Hub - session manager fanning progress events out to websocket clients
type Hub struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	metrics  *ServerMetrics
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub - empty hub
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		metrics:  &ServerMetrics{Counters: Counters{StartTime: time.Now()}},
		stop:     make(chan struct{}),
	}
}

// getOrCreateSession - session by id, created on first use
func (h *Hub) getOrCreateSession(sessionID string) *Session {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	session, exists := h.sessions[sessionID]
	if !exists {
		now := time.Now()
		session = &Session{
			id:           sessionID,
			clients:      make(map[string]*Client),
			createdAt:    now,
			lastActivity: now,
		}
		h.sessions[sessionID] = session

		h.metrics.mutex.Lock()
		h.metrics.TotalSessions++
		h.metrics.ActiveSessions++
		total, active := h.metrics.TotalSessions, h.metrics.ActiveSessions
		h.metrics.mutex.Unlock()

		logger.WithFields(logrus.Fields{
			"session": sessionID,
			"total":   total,
			"active":  active,
		}).Info("✅ [Realtime] Created new session")
	}

	session.mutex.Lock()
	session.lastActivity = time.Now()
	session.mutex.Unlock()
	return session
}

// register - attach a client to its session
func (h *Hub) register(client *Client) *Session {
	session := h.getOrCreateSession(client.sessionID)

	session.mutex.Lock()
	if prev, ok := session.clients[client.id]; ok {
		prev.close()
	}
	session.clients[client.id] = client
	session.lastActivity = time.Now()
	count := len(session.clients)
	session.mutex.Unlock()

	h.metrics.mutex.Lock()
	h.metrics.TotalConnections++
	h.metrics.mutex.Unlock()

	logger.WithFields(logrus.Fields{
		"session": client.sessionID,
		"client":  client.id,
		"clients": count,
	}).Info("👤 [Realtime] Client joined session")
	return session
}

// unregister - detach a client; no-op when it was already replaced
func (h *Hub) unregister(session *Session, client *Client) {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if cur, ok := session.clients[client.id]; ok && cur == client {
		delete(session.clients, client.id)
		session.lastActivity = time.Now()
		logger.WithFields(logrus.Fields{
			"session":   session.id,
			"client":    client.id,
			"remaining": len(session.clients),
		}).Info("👋 [Realtime] Client left session")
	}
	client.close()
}

// Publish - send an event to every client of its session. Slow clients are dropped.
func (h *Hub) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	h.record(event)

	h.mutex.RLock()
	session, exists := h.sessions[event.SessionID]
	h.mutex.RUnlock()
	if !exists {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.WithError(err).Error("❌ [Realtime] Failed to marshal event")
		return
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()
	session.lastActivity = time.Now()
	for id, client := range session.clients {
		select {
		case client.send <- data:
		default:
			logger.WithField("client", id).Warn("⚠️  [Realtime] Send buffer full, dropping client")
			client.close()
			delete(session.clients, id)
		}
	}
}

func (h *Hub) record(event Event) {
	h.metrics.mutex.Lock()
	defer h.metrics.mutex.Unlock()

	h.metrics.EventsPublished++
	switch event.Type {
	case EventDone:
		h.metrics.DecodesSucceeded++
	case EventFailed:
		h.metrics.DecodesFailed++
	case EventRetrying:
		h.metrics.Retries++
	}
}

// cleanupEmptySessions - drop sessions without clients
func (h *Hub) cleanupEmptySessions() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	cleaned := 0
	for id, session := range h.sessions {
		session.mutex.RLock()
		isEmpty := len(session.clients) == 0
		session.mutex.RUnlock()

		if isEmpty {
			delete(h.sessions, id)
			cleaned++
		}
	}

	if cleaned > 0 {
		h.metrics.mutex.Lock()
		h.metrics.ActiveSessions -= cleaned
		h.metrics.mutex.Unlock()
		logger.Infof("🧹 [Realtime] Cleaned up %d empty sessions", cleaned)
	}
	return cleaned
}

// cleanupExpiredSessions - disconnect sessions older than 24h or idle for 2h
func (h *Hub) cleanupExpiredSessions() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	now := time.Now()
	cleaned := 0
	for id, session := range h.sessions {
		session.mutex.Lock()
		isExpired := now.Sub(session.createdAt) > expiredThreshold
		isInactive := now.Sub(session.lastActivity) > inactiveThreshold && len(session.clients) == 0
		if isExpired || isInactive {
			for clientID, client := range session.clients {
				client.close()
				delete(session.clients, clientID)
			}
		}
		session.mutex.Unlock()

		if isExpired || isInactive {
			delete(h.sessions, id)
			cleaned++
		}
	}

	if cleaned > 0 {
		h.metrics.mutex.Lock()
		h.metrics.ActiveSessions -= cleaned
		h.metrics.mutex.Unlock()
		logger.Infof("⏰ [Realtime] Cleaned up %d expired/inactive sessions", cleaned)
	}
	return cleaned
}

// StartCleanupRoutine - periodic cleanup until Stop
func (h *Hub) StartCleanupRoutine() {
	go func() {
		emptyTicker := time.NewTicker(5 * time.Minute)
		expiredTicker := time.NewTicker(30 * time.Minute)
		defer emptyTicker.Stop()
		defer expiredTicker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-emptyTicker.C:
				h.cleanupEmptySessions()
			case <-expiredTicker.C:
				h.cleanupExpiredSessions()
			}
		}
	}()
	logger.Info("🔄 [Realtime] Started session cleanup routines (Empty: 5min, Expired: 30min)")
}

// Stop - end the cleanup routine
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// MetricsSnapshot - copy of the counters plus live client count
func (h *Hub) MetricsSnapshot() (Counters, int) {
	h.metrics.mutex.RLock()
	snapshot := h.metrics.Counters
	h.metrics.mutex.RUnlock()

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	clients := 0
	for _, session := range h.sessions {
		session.mutex.RLock()
		clients += len(session.clients)
		session.mutex.RUnlock()
	}
	return snapshot, clients
}
