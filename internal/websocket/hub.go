package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now (should be restricted in production)
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Message types pushed to overlay clients.
const (
	MessageConnected       = "connected"
	MessageMoveRecorded    = "move_recorded"
	MessageAnalysisUpdated = "analysis_update"
	MessageSessionReset    = "session_reset"
	MessageSessionClosed   = "session_closed"
	MessagePong            = "pong"
)

// Client represents a WebSocket client watching one or more sessions
type Client struct {
	SessionIDs []uuid.UUID // Sessions this client is watching
	Conn       *websocket.Conn
	Send       chan []byte
	Hub        *OverlayHub
	LastSeen   time.Time
}

// OverlayHub maintains active WebSocket connections for live pattern overlays
type OverlayHub struct {
	clients        map[*Client]bool
	sessionClients map[uuid.UUID][]*Client
	broadcast      chan *OverlayMessage
	register       chan *Client
	unregister     chan *Client
	logger         *logrus.Logger
	mutex          sync.RWMutex
}

// OverlayMessage is the envelope sent to overlay clients
type OverlayMessage struct {
	Type      string      `json:"type"` // "move_recorded", "analysis_update", "session_reset", "session_closed"
	SessionID uuid.UUID   `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewOverlayHub creates a new pattern overlay WebSocket hub
func NewOverlayHub(logger *logrus.Logger) *OverlayHub {
	return &OverlayHub{
		clients:        make(map[*Client]bool),
		sessionClients: make(map[uuid.UUID][]*Client),
		broadcast:      make(chan *OverlayMessage, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		logger:         logger,
	}
}

// Run starts the hub and handles client registration/unregistration
func (h *OverlayHub) Run() {
	ticker := time.NewTicker(30 * time.Second) // Ping clients every 30 seconds
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-ticker.C:
			h.pingClients()
		}
	}
}

// registerClient adds a new client to the hub
func (h *OverlayHub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	for _, sessionID := range client.SessionIDs {
		h.sessionClients[sessionID] = append(h.sessionClients[sessionID], client)
	}

	h.logger.WithFields(logrus.Fields{
		"session_ids":   client.SessionIDs,
		"total_clients": len(h.clients),
	}).Info("Pattern overlay WebSocket client connected")

	welcomeMsg := &OverlayMessage{
		Type:      MessageConnected,
		Data:      map[string]interface{}{"message": "Connected to pattern overlay feed"},
		Timestamp: time.Now(),
	}
	if len(client.SessionIDs) > 0 {
		welcomeMsg.SessionID = client.SessionIDs[0]
	}
	h.sendToClient(client, welcomeMsg)
}

// unregisterClient removes a client from the hub
func (h *OverlayHub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)

		for _, sessionID := range client.SessionIDs {
			sessionClients := h.sessionClients[sessionID]
			for i, c := range sessionClients {
				if c == client {
					h.sessionClients[sessionID] = append(sessionClients[:i], sessionClients[i+1:]...)
					break
				}
			}

			// Clean up empty session client slice
			if len(h.sessionClients[sessionID]) == 0 {
				delete(h.sessionClients, sessionID)
			}
		}

		h.logger.WithFields(logrus.Fields{
			"total_clients": len(h.clients),
		}).Info("Pattern overlay WebSocket client disconnected")
	}
}

// broadcastMessage routes a message to the clients watching its session
func (h *OverlayHub) broadcastMessage(message *OverlayMessage) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	// Route to session watchers if a session is set
	if message.SessionID != uuid.Nil {
		for _, client := range h.sessionClients[message.SessionID] {
			h.sendToClient(client, message)
		}
		return
	}

	// Send to all clients (service-wide announcements)
	for client := range h.clients {
		h.sendToClient(client, message)
	}
}

// sendToClient sends a message to a specific client
func (h *OverlayHub) sendToClient(client *Client, message *OverlayMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal WebSocket message")
		return
	}

	select {
	case client.Send <- data:
		client.LastSeen = time.Now()
	default:
		// Client's send channel is full, close the connection. Queued
		// off-loop: Run may be mid-broadcast on this same goroutine.
		go func() { h.unregister <- client }()
	}
}

// pingClients sends ping messages to check client health
func (h *OverlayHub) pingClients() {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	now := time.Now()
	staleClients := []*Client{}

	for client := range h.clients {
		// Check if client is stale (no activity for 2 minutes)
		if now.Sub(client.LastSeen) > 2*time.Minute {
			staleClients = append(staleClients, client)
		}
	}

	for _, client := range staleClients {
		client := client
		go func() { h.unregister <- client }()
	}

	if len(staleClients) > 0 {
		h.logger.WithField("stale_clients", len(staleClients)).Debug("Removed stale WebSocket clients")
	}
}

// HandleWebSocket upgrades an overlay connection for a session
func (h *OverlayHub) HandleWebSocket(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade pattern overlay WebSocket connection")
		return
	}

	client := &Client{
		SessionIDs: []uuid.UUID{sessionID},
		Conn:       conn,
		Send:       make(chan []byte, 256),
		Hub:        h,
		LastSeen:   time.Now(),
	}

	client.Hub.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

// BroadcastToSession queues a message for every watcher of a session
func (h *OverlayHub) BroadcastToSession(sessionID uuid.UUID, msgType string, data interface{}) {
	h.broadcast <- &OverlayMessage{
		Type:      msgType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// BroadcastMove pushes a freshly recorded move to a session's watchers
func (h *OverlayHub) BroadcastMove(sessionID uuid.UUID, move interface{}) {
	h.BroadcastToSession(sessionID, MessageMoveRecorded, move)
}

// BroadcastAnalysis pushes refreshed patterns and metrics after an analysis pass
func (h *OverlayHub) BroadcastAnalysis(sessionID uuid.UUID, analysis interface{}) {
	h.BroadcastToSession(sessionID, MessageAnalysisUpdated, analysis)
}

// BroadcastSessionClosed tells watchers the session has been persisted and dropped
func (h *OverlayHub) BroadcastSessionClosed(sessionID uuid.UUID) {
	h.BroadcastToSession(sessionID, MessageSessionClosed, map[string]interface{}{
		"message": "Session closed",
	})
}

// GetConnectionCount returns the total number of active connections
func (h *OverlayHub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GetSessionWatchers returns the number of clients watching a session
func (h *OverlayHub) GetSessionWatchers(sessionID uuid.UUID) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.sessionClients[sessionID])
}

// GetHubStats returns statistics about the hub
func (h *OverlayHub) GetHubStats() map[string]interface{} {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	stats := map[string]interface{}{
		"total_clients":    len(h.clients),
		"sessions_watched": len(h.sessionClients),
	}

	sessionStats := make(map[string]int)
	for sessionID, clients := range h.sessionClients {
		sessionStats[sessionID.String()] = len(clients)
	}
	stats["session_watchers"] = sessionStats

	return stats
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	// Set read deadline and pong handler for keep-alive
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.LastSeen = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("Pattern overlay WebSocket error")
			}
			break
		}

		c.handleIncomingMessage(message)
		c.LastSeen = time.Now()
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Send ping every 54 seconds
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Hub.logger.WithError(err).Error("Failed to write pattern overlay WebSocket message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleIncomingMessage processes messages sent by the client
func (c *Client) handleIncomingMessage(message []byte) {
	var clientMsg map[string]interface{}
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		c.Hub.logger.WithError(err).Warn("Failed to parse client message")
		return
	}

	msgType, ok := clientMsg["type"].(string)
	if !ok {
		return
	}

	switch msgType {
	case "watch_session":
		// Client wants to watch an additional session
		if idStr, ok := clientMsg["session_id"].(string); ok {
			sessionID, err := uuid.Parse(idStr)
			if err != nil {
				return
			}
			c.Hub.mutex.Lock()
			found := false
			for _, id := range c.SessionIDs {
				if id == sessionID {
					found = true
					break
				}
			}
			if !found {
				c.SessionIDs = append(c.SessionIDs, sessionID)
				c.Hub.sessionClients[sessionID] = append(c.Hub.sessionClients[sessionID], c)
			}
			c.Hub.mutex.Unlock()

			c.Hub.logger.WithField("session_id", sessionID).Debug("Client watching session")
		}

	case "unwatch_session":
		// Client no longer wants updates for a session
		if idStr, ok := clientMsg["session_id"].(string); ok {
			sessionID, err := uuid.Parse(idStr)
			if err != nil {
				return
			}
			c.Hub.mutex.Lock()

			for i, id := range c.SessionIDs {
				if id == sessionID {
					c.SessionIDs = append(c.SessionIDs[:i], c.SessionIDs[i+1:]...)
					break
				}
			}

			sessionClients := c.Hub.sessionClients[sessionID]
			for i, client := range sessionClients {
				if client == c {
					c.Hub.sessionClients[sessionID] = append(sessionClients[:i], sessionClients[i+1:]...)
					break
				}
			}

			c.Hub.mutex.Unlock()

			c.Hub.logger.WithField("session_id", sessionID).Debug("Client stopped watching session")
		}

	case "ping":
		// Respond to client ping
		response := &OverlayMessage{
			Type:      MessagePong,
			Data:      map[string]interface{}{"timestamp": time.Now().Unix()},
			Timestamp: time.Now(),
		}
		c.Hub.sendToClient(c, response)
	}
}
