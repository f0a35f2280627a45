package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SnapshotStore keeps exported engine snapshots in Redis so a session
// can be rehydrated after its in-memory copy is reaped. Blobs are the
// engine's own export format and are stored opaque.
type SnapshotStore struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
	logger    *logrus.Entry
}

// NewSnapshotStore connects to Redis and verifies the connection.
func NewSnapshotStore(redisURL string, ttl time.Duration, logger *logrus.Logger) (*SnapshotStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := &SnapshotStore{
		client:    client,
		ttl:       ttl,
		keyPrefix: "insight:snapshot:",
		logger:    logger.WithField("component", "snapshot_store"),
	}

	store.logger.WithFields(logrus.Fields{
		"ttl": ttl,
	}).Info("Snapshot store initialized")

	return store, nil
}

// Save writes a snapshot blob under the session's key with the store
// TTL.
func (s *SnapshotStore) Save(ctx context.Context, sessionID uuid.UUID, blob []byte) error {
	key := s.key(sessionID)
	if err := s.client.Set(ctx, key, blob, s.ttl).Err(); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("Failed to save snapshot")
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(blob),
	}).Debug("Snapshot saved")
	return nil
}

// Load returns the stored blob for the session, or nil without error
// when no snapshot exists.
func (s *SnapshotStore) Load(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	key := s.key(sessionID)
	result, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			s.logger.WithField("key", key).Debug("Snapshot miss")
			return nil, nil
		}
		s.logger.WithError(err).WithField("key", key).Error("Failed to load snapshot")
		return nil, err
	}
	return []byte(result), nil
}

// Delete removes the session's snapshot.
func (s *SnapshotStore) Delete(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to delete snapshot")
		return err
	}
	return nil
}

// Ping verifies the Redis connection, for readiness checks.
func (s *SnapshotStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis client.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

func (s *SnapshotStore) key(sessionID uuid.UUID) string {
	return s.keyPrefix + sessionID.String()
}
