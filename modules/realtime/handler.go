package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"prompt-decoder-server/modules/common/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket - GET /ws?session=<id>[&client=<id>]
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "missing session parameter", http.StatusBadRequest)
		return
	}
	clientID := r.URL.Query().Get("client")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithError(err).Warn("⚠️  [Realtime] WebSocket upgrade failed")
		return
	}

	client := &Client{
		id:        clientID,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}

	logger.WithFields(logrus.Fields{
		"session": sessionID,
		"client":  clientID,
	}).Info("🔍 [Realtime] New WebSocket connection")

	hello, _ := json.Marshal(Event{Type: EventConnected, SessionID: sessionID, Timestamp: time.Now().UnixMilli()})
	client.send <- hello

	session := h.register(client)

	go client.writePump()
	go client.readPump(h, session)
}

// readPump - clients only listen; reads keep the connection alive and detect close
func (c *Client) readPump(h *Hub, session *Session) {
	defer func() {
		h.unregister(session, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithError(err).Warn("⚠️  [Realtime] WebSocket error")
			}
			return
		}
	}
}

// writePump - forward queued events and keep the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.WithError(err).Warn("⚠️  [Realtime] WebSocket write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleSessionInfo - GET /session/{sessionId}
func (h *Hub) HandleSessionInfo(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	h.mutex.RLock()
	session, exists := h.sessions[sessionID]
	h.mutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "Session not found"})
		return
	}

	session.mutex.RLock()
	clientIDs := make([]string, 0, len(session.clients))
	for id := range session.clients {
		clientIDs = append(clientIDs, id)
	}
	createdAt, lastActivity := session.createdAt, session.lastActivity
	session.mutex.RUnlock()

	json.NewEncoder(w).Encode(map[string]interface{}{
		"sessionId":    sessionID,
		"clientCount":  len(clientIDs),
		"clients":      clientIDs,
		"createdAt":    createdAt,
		"lastActivity": lastActivity,
		"age":          time.Since(createdAt).String(),
		"inactive":     time.Since(lastActivity).String(),
	})
}

// HandleMetrics - GET /metrics
func (h *Hub) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	counters, clients := h.MetricsSnapshot()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"server": map[string]interface{}{
			"uptime":           time.Since(counters.StartTime).String(),
			"startTime":        counters.StartTime,
			"totalSessions":    counters.TotalSessions,
			"activeSessions":   counters.ActiveSessions,
			"totalConnections": counters.TotalConnections,
			"currentClients":   clients,
		},
		"decode": map[string]interface{}{
			"eventsPublished": counters.EventsPublished,
			"succeeded":       counters.DecodesSucceeded,
			"failed":          counters.DecodesFailed,
			"retries":         counters.Retries,
		},
	})
}

// HandleCleanup - POST /admin/cleanup
func (h *Hub) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	empty := h.cleanupEmptySessions()
	expired := h.cleanupExpiredSessions()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "Cleanup completed",
		"empty":   empty,
		"expired": expired,
	})
}
