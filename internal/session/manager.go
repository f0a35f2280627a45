package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/cellclash/insight/internal/engine"
	"github.com/cellclash/insight/internal/models"
	"github.com/cellclash/insight/internal/storage"
	"github.com/cellclash/insight/pkg/config"
)

// ErrSessionNotFound is returned when a session is neither live nor
// restorable from the snapshot store.
var ErrSessionNotFound = errors.New("session not found")

const archivedPatternLimit = 5

// snapshotEnvelope wraps an engine snapshot with the session metadata
// the engine itself does not carry.
type snapshotEnvelope struct {
	PlayerID  string          `json:"player_id"`
	CreatedAt time.Time       `json:"created_at"`
	Engine    json.RawMessage `json:"engine"`
}

// Manager owns the live sessions. Closed or idle sessions are written
// to the snapshot store for later restore and archived to the database
// when one is configured; both stores are optional.
type Manager struct {
	cfg       *config.Config
	logger    *logrus.Logger
	log       *logrus.Entry
	snapshots *storage.SnapshotStore
	archive   *storage.Archive

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager builds a session manager. Pass nil for snapshots or
// archive to disable that persistence path.
func NewManager(cfg *config.Config, snapshots *storage.SnapshotStore, archive *storage.Archive, logger *logrus.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		logger:    logger,
		log:       logger.WithField("component", "session_manager"),
		snapshots: snapshots,
		archive:   archive,
		sessions:  make(map[uuid.UUID]*Session),
	}
}

func (m *Manager) engineConfig() engine.Config {
	return engine.Config{
		Board:            models.Board{Rows: m.cfg.BoardRows, Cols: m.cfg.BoardCols},
		MaxHistory:       m.cfg.MaxHistory,
		AnalysisInterval: m.cfg.AnalysisInterval,
		MetricsWindow:    m.cfg.MetricsWindow,
		Seed:             m.cfg.PredictionSeed,
	}
}

// Create opens a session for the player. A non-nil board overrides the
// configured default geometry.
func (m *Manager) Create(playerID string, board *models.Board) (*Session, error) {
	cfg := m.engineConfig()
	if board != nil {
		if err := board.Validate(); err != nil {
			return nil, err
		}
		cfg.Board = *board
	}

	sess := newSession(uuid.New(), playerID, engine.New(cfg, nil, m.logger))

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"player_id":  playerID,
		"board":      fmt.Sprintf("%dx%d", cfg.Board.Rows, cfg.Board.Cols),
	}).Info("Session created")
	return sess, nil
}

// Get returns the live session, if any.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// GetOrRestore returns the live session or rehydrates it from the
// snapshot store.
func (m *Manager) GetOrRestore(ctx context.Context, id uuid.UUID) (*Session, error) {
	if sess, ok := m.Get(id); ok {
		return sess, nil
	}
	if m.snapshots == nil {
		return nil, ErrSessionNotFound
	}

	blob, err := m.snapshots.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if blob == nil {
		return nil, ErrSessionNotFound
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot envelope: %w", err)
	}

	sess := newSession(id, envelope.PlayerID, engine.New(m.engineConfig(), nil, m.logger))
	if !envelope.CreatedAt.IsZero() {
		sess.CreatedAt = envelope.CreatedAt
	}
	if err := sess.Import(envelope.Engine); err != nil {
		return nil, fmt.Errorf("failed to restore session state: %w", err)
	}

	m.mu.Lock()
	// A concurrent request may have restored the same session; keep the
	// first one in.
	if existing, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": id,
		"moves":      sess.MoveCount(),
	}).Info("Session restored from snapshot")
	return sess, nil
}

// Close persists the session and drops it from memory. Persistence
// failures are logged, not returned: the session is gone either way.
func (m *Manager) Close(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	m.persist(ctx, sess, "closed")
	return nil
}

// CloseAll persists every live session, used during shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		all = append(all, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range all {
		m.persist(ctx, sess, "shutdown")
	}
	if len(all) > 0 {
		m.log.WithField("count", len(all)).Info("All sessions closed")
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start runs the idle-session reaper until the context is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.SessionReapInterval)
	defer ticker.Stop()

	m.log.WithFields(logrus.Fields{
		"idle_timeout":  m.cfg.SessionIdleTimeout,
		"reap_interval": m.cfg.SessionReapInterval,
	}).Info("Session reaper started")

	for {
		select {
		case <-ctx.Done():
			m.log.Info("Session reaper stopped")
			return ctx.Err()
		case <-ticker.C:
			m.reapIdle(ctx)
		}
	}
}

func (m *Manager) reapIdle(ctx context.Context) {
	now := time.Now()

	m.mu.Lock()
	var idle []*Session
	for id, sess := range m.sessions {
		if sess.IdleFor(now) > m.cfg.SessionIdleTimeout {
			idle = append(idle, sess)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, sess := range idle {
		m.persist(ctx, sess, "idle")
	}
	if len(idle) > 0 {
		m.log.WithField("count", len(idle)).Info("Idle sessions reaped")
	}
}

// persist writes the session snapshot and archive record. Best effort:
// each sink failure is logged and the rest still run.
func (m *Manager) persist(ctx context.Context, sess *Session, reason string) {
	blob, err := sess.Export()
	if err != nil {
		m.log.WithError(err).WithField("session_id", sess.ID).Error("Failed to export session state")
		return
	}

	if m.snapshots != nil {
		envelope, err := json.Marshal(snapshotEnvelope{
			PlayerID:  sess.PlayerID,
			CreatedAt: sess.CreatedAt,
			Engine:    blob,
		})
		if err != nil {
			m.log.WithError(err).WithField("session_id", sess.ID).Error("Failed to encode snapshot envelope")
		} else if err := m.snapshots.Save(ctx, sess.ID, envelope); err != nil {
			m.log.WithError(err).WithField("session_id", sess.ID).Error("Failed to save session snapshot")
		}
	}

	if m.archive != nil {
		record, err := m.buildArchive(sess, blob)
		if err != nil {
			m.log.WithError(err).WithField("session_id", sess.ID).Error("Failed to build archive record")
		} else if err := m.archive.SaveSession(ctx, record); err != nil {
			m.log.WithError(err).WithField("session_id", sess.ID).Error("Failed to archive session")
		}
	}

	m.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"reason":     reason,
	}).Info("Session persisted")
}

func (m *Manager) buildArchive(sess *Session, blob []byte) (*models.SessionArchive, error) {
	summary := sess.Summarize(archivedPatternLimit)

	record := &models.SessionArchive{
		SessionID:     sess.ID,
		PlayerID:      sess.PlayerID,
		BoardRows:     summary.Board.Rows,
		BoardCols:     summary.Board.Cols,
		MovesRecorded: summary.TotalRecorded,
		ContextTags:   contextTags(summary.TopPatterns),
		Snapshot:      datatypes.JSON(blob),
		StartedAt:     sess.CreatedAt,
		EndedAt:       time.Now(),
	}
	if err := record.SetMetrics(summary.Metrics); err != nil {
		return nil, err
	}
	if err := record.SetTopPatterns(summary.TopPatterns); err != nil {
		return nil, err
	}
	record.PatternCount = summary.PatternCount
	return record, nil
}

func contextTags(patterns []models.MovementPattern) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, p := range patterns {
		for _, tag := range p.Contexts {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags
}
