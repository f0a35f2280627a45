package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const serviceName = "insight-service"

func (h *SessionHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   serviceName,
	})
}

// ReadinessCheck verifies the configured persistence backends are
// reachable. Unconfigured backends do not block readiness.
func (h *SessionHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.snapshots != nil {
		if err := h.snapshots.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "redis connection failed",
			})
			return
		}
	}

	if h.archive != nil {
		if err := h.archive.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": "database connection failed",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

func (h *SessionHandler) GetServiceStatus(c *gin.Context) {
	status := gin.H{
		"service":   serviceName,
		"status":    "running",
		"timestamp": time.Now().UTC(),
		"sessions": gin.H{
			"live": h.manager.Count(),
		},
	}
	if h.wsHub != nil {
		status["websocket"] = h.wsHub.GetHubStats()
	}
	c.JSON(http.StatusOK, status)
}

// ListArchivedSessions returns recently archived sessions, optionally
// filtered by player
func (h *SessionHandler) ListArchivedSessions(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Session archive is not configured"})
		return
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit", "details": err.Error()})
			return
		}
		limit = parsed
	}

	archives, err := h.archive.RecentSessions(c.Request.Context(), c.Query("player_id"), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list archived sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list archived sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data":   archives,
		"meta": gin.H{
			"count": len(archives),
		},
	})
}
