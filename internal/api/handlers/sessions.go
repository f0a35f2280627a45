package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cellclash/insight/internal/models"
	"github.com/cellclash/insight/internal/session"
	"github.com/cellclash/insight/internal/storage"
	"github.com/cellclash/insight/internal/websocket"
	"github.com/cellclash/insight/pkg/config"
)

const summaryPatternLimit = 5

// SessionHandler handles analysis session endpoints
type SessionHandler struct {
	manager   *session.Manager
	wsHub     *websocket.OverlayHub
	snapshots *storage.SnapshotStore
	archive   *storage.Archive
	config    *config.Config
	logger    *logrus.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	manager *session.Manager,
	wsHub *websocket.OverlayHub,
	snapshots *storage.SnapshotStore,
	archive *storage.Archive,
	config *config.Config,
	logger *logrus.Logger,
) *SessionHandler {
	return &SessionHandler{
		manager:   manager,
		wsHub:     wsHub,
		snapshots: snapshots,
		archive:   archive,
		config:    config,
		logger:    logger,
	}
}

// CreateSessionRequest opens a new analysis session
type CreateSessionRequest struct {
	PlayerID  string `json:"player_id" binding:"required"`
	BoardRows int    `json:"board_rows"`
	BoardCols int    `json:"board_cols"`
}

// MoveRequest is the wire form of a recorded move
type MoveRequest struct {
	Position   models.Position    `json:"position"`
	Timestamp  *time.Time         `json:"timestamp,omitempty"`
	ReactionMs float64            `json:"reaction_ms"`
	Context    models.GameContext `json:"context"`
	Outcome    models.Outcome     `json:"outcome" binding:"required"`
}

func (r *MoveRequest) toMove() models.Move {
	m := models.Move{
		Position: r.Position,
		Reaction: time.Duration(r.ReactionMs * float64(time.Millisecond)),
		Context:  r.Context,
		Outcome:  r.Outcome,
	}
	if r.Timestamp != nil {
		m.Timestamp = *r.Timestamp
	}
	return m
}

// PredictRequest asks for likely next moves given a game context
type PredictRequest struct {
	Context models.GameContext `json:"context"`
	Count   int                `json:"count"`
}

// CreateSession opens a session for a player
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var request CreateSessionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	var board *models.Board
	if request.BoardRows != 0 || request.BoardCols != 0 {
		board = &models.Board{Rows: request.BoardRows, Cols: request.BoardCols}
	}

	sess, err := h.manager.Create(request.PlayerID, board)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid board geometry", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"data":   sess.Summarize(summaryPatternLimit),
	})
}

// GetSessionSummary returns the compact session overview
func (h *SessionHandler) GetSessionSummary(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   sess.Summarize(summaryPatternLimit),
	})
}

// CloseSession persists the session state and drops it from memory
func (h *SessionHandler) CloseSession(c *gin.Context) {
	sessionID, ok := h.parseSessionID(c)
	if !ok {
		return
	}

	if err := h.manager.Close(c.Request.Context(), sessionID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		h.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to close session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close session"})
		return
	}

	if h.wsHub != nil {
		h.wsHub.BroadcastSessionClosed(sessionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"session_id": sessionID, "closed": true},
	})
}

// RecordMove feeds one move into the session's pattern engine
func (h *SessionHandler) RecordMove(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var request MoveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	move := request.toMove()
	reanalyzed, err := sess.Record(move)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid move", "details": err.Error()})
		return
	}

	// Push the move to overlay watchers; refreshed analysis follows when
	// this move completed a pass.
	if h.wsHub != nil {
		h.wsHub.BroadcastMove(sess.ID, gin.H{
			"position":    move.Position,
			"outcome":     move.Outcome,
			"move_number": move.Context.MoveNumber,
			"reaction_ms": move.ReactionMs(),
			"cell":        sess.Heatmap()[move.Position],
		})
		if reanalyzed {
			h.wsHub.BroadcastAnalysis(sess.ID, gin.H{
				"patterns": sess.Patterns(),
				"metrics":  sess.Metrics(),
			})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"recorded":   true,
			"reanalyzed": reanalyzed,
		},
		"meta": gin.H{
			"moves_held":     sess.MoveCount(),
			"total_recorded": sess.TotalRecorded(),
		},
	})
}

// GetHeatmap returns per-cell frequency, reaction and success aggregates
func (h *SessionHandler) GetHeatmap(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"board":    sess.Board(),
			"cells":    sess.Heatmap(),
			"hotspots": sess.Hotspots(),
			"avoided":  sess.AvoidedCells(),
		},
		"meta": gin.H{
			"moves_held": sess.MoveCount(),
		},
	})
}

// GetPatterns returns detected patterns, optionally filtered by kind
// and minimum confidence
func (h *SessionHandler) GetPatterns(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	patterns := sess.Patterns()

	if kind := c.Query("kind"); kind != "" {
		filtered := patterns[:0]
		for _, p := range patterns {
			if string(p.Kind) == kind {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}

	if minStr := c.Query("min_confidence"); minStr != "" {
		minConfidence, err := strconv.ParseFloat(minStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid min_confidence", "details": err.Error()})
			return
		}
		filtered := patterns[:0]
		for _, p := range patterns {
			if p.Confidence >= minConfidence {
				filtered = append(filtered, p)
			}
		}
		patterns = filtered
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   patterns,
		"meta": gin.H{
			"count": len(patterns),
		},
	})
}

// GetMetrics returns the session's behavioral profile
func (h *SessionHandler) GetMetrics(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   sess.Metrics(),
		"meta": gin.H{
			"moves_held":     sess.MoveCount(),
			"total_recorded": sess.TotalRecorded(),
			"analysis_runs":  sess.AnalysisRuns(),
		},
	})
}

// PredictMoves returns ranked next-move candidates for a game context
func (h *SessionHandler) PredictMoves(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	var request PredictRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}
	if err := request.Context.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game context", "details": err.Error()})
		return
	}

	count := request.Count
	if count <= 0 {
		count = 3
	}

	candidates := sess.Predict(request.Context, count)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   candidates,
		"meta": gin.H{
			"requested": count,
			"returned":  len(candidates),
		},
	})
}

// ResetSession clears the session's engine back to a fresh state
func (h *SessionHandler) ResetSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	sess.Reset()
	if h.wsHub != nil {
		h.wsHub.BroadcastToSession(sess.ID, websocket.MessageSessionReset, gin.H{
			"message": "Session reset",
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   gin.H{"session_id": sess.ID, "reset": true},
	})
}

// ExportSession streams the serialized engine state
func (h *SessionHandler) ExportSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	blob, err := sess.Export()
	if err != nil {
		h.logger.WithError(err).WithField("session_id", sess.ID).Error("Failed to export session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to export session"})
		return
	}

	c.Data(http.StatusOK, "application/json", blob)
}

// ImportSession replaces the session state with an exported snapshot
func (h *SessionHandler) ImportSession(c *gin.Context) {
	sess, ok := h.lookupSession(c)
	if !ok {
		return
	}

	blob, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body", "details": err.Error()})
		return
	}

	if err := sess.Import(blob); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid snapshot", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   sess.Summarize(summaryPatternLimit),
	})
}

func (h *SessionHandler) parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID"})
		return uuid.Nil, false
	}
	return sessionID, true
}

// lookupSession resolves the path session, restoring it from the
// snapshot store if it was reaped.
func (h *SessionHandler) lookupSession(c *gin.Context) (*session.Session, bool) {
	sessionID, ok := h.parseSessionID(c)
	if !ok {
		return nil, false
	}

	sess, err := h.manager.GetOrRestore(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return nil, false
		}
		h.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to load session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return nil, false
	}
	return sess, true
}
