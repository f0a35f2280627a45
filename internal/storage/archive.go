package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"

	"github.com/cellclash/insight/internal/models"
)

// Archive persists closed sessions to Postgres. Writes go through a
// circuit breaker so a struggling database cannot stall session
// teardown.
type Archive struct {
	db      *gorm.DB
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Entry
}

// NewArchive wraps the database handle with the archive breaker.
func NewArchive(db *gorm.DB, logger *logrus.Logger) *Archive {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "session-archive",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Session archive circuit breaker state changed")
		},
	})

	return &Archive{
		db:      db,
		breaker: breaker,
		logger:  logger.WithField("component", "session_archive"),
	}
}

// AutoMigrate creates or updates the archive schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.SessionArchive{})
}

// SaveSession writes one archive row.
func (a *Archive) SaveSession(ctx context.Context, record *models.SessionArchive) error {
	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, a.db.WithContext(ctx).Create(record).Error
	})
	if err != nil {
		a.logger.WithError(err).WithField("session_id", record.SessionID).Error("Failed to archive session")
		return err
	}
	a.logger.WithFields(logrus.Fields{
		"session_id": record.SessionID,
		"player_id":  record.PlayerID,
		"moves":      record.MovesRecorded,
	}).Info("Session archived")
	return nil
}

// RecentSessions lists archive rows newest first, optionally filtered
// by player.
func (a *Archive) RecentSessions(ctx context.Context, playerID string, limit int) ([]models.SessionArchive, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var archives []models.SessionArchive
	_, err := a.breaker.Execute(func() (interface{}, error) {
		query := a.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
		if playerID != "" {
			query = query.Where("player_id = ?", playerID)
		}
		return nil, query.Find(&archives).Error
	})
	if err != nil {
		a.logger.WithError(err).Error("Failed to list archived sessions")
		return nil, err
	}
	return archives, nil
}

// LatestForSession returns the most recent archive row for a session,
// or nil when the session was never archived.
func (a *Archive) LatestForSession(ctx context.Context, sessionID uuid.UUID) (*models.SessionArchive, error) {
	var record models.SessionArchive
	_, err := a.breaker.Execute(func() (interface{}, error) {
		result := a.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("created_at DESC").
			First(&record)
		return nil, result.Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		a.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to load archived session")
		return nil, err
	}
	return &record, nil
}

// Ping verifies the database connection, for readiness checks.
func (a *Archive) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
