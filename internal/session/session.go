package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cellclash/insight/internal/engine"
	"github.com/cellclash/insight/internal/models"
)

// Session binds one player's pattern engine to a lifecycle. All engine
// access funnels through the session lock, which gives the engine the
// single-caller discipline it expects while keeping sessions
// independent of each other.
type Session struct {
	ID        uuid.UUID
	PlayerID  string
	CreatedAt time.Time

	mu         sync.Mutex
	engine     *engine.Engine
	lastActive time.Time
}

func newSession(id uuid.UUID, playerID string, eng *engine.Engine) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		PlayerID:   playerID,
		CreatedAt:  now,
		engine:     eng,
		lastActive: now,
	}
}

// Record feeds one move to the engine. The flag reports whether this
// move completed a full analysis pass.
func (s *Session) Record(m models.Move) (reanalyzed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.Record(m)
}

// Heatmap returns the current per-cell aggregates.
func (s *Session) Heatmap() map[models.Position]models.HeatmapCell {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.Heatmap()
}

// Patterns returns the detected patterns ranked by confidence.
func (s *Session) Patterns() []models.MovementPattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.Patterns()
}

// Metrics returns the current behavioral profile.
func (s *Session) Metrics() models.BehavioralMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.Metrics()
}

// Predict returns up to count ranked next-move candidates.
func (s *Session) Predict(ctx models.GameContext, count int) []models.PredictionCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.Predict(ctx, count)
}

// Reset clears the engine back to a fresh state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	s.engine.Reset()
}

// Export serializes the engine state.
func (s *Session) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Export()
}

// Import replaces the engine state with an exported snapshot.
func (s *Session) Import(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return s.engine.Import(blob)
}

// Board returns the session's board geometry.
func (s *Session) Board() models.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Board()
}

// MoveCount returns how many moves the ledger currently holds.
func (s *Session) MoveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.MoveCount()
}

// TotalRecorded returns how many moves the session has ever accepted.
func (s *Session) TotalRecorded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.TotalRecorded()
}

// AnalysisRuns returns how many full analysis passes have completed.
func (s *Session) AnalysisRuns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AnalysisRuns()
}

// Hotspots returns the player's most visited cells, hottest first.
func (s *Session) Hotspots() []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Hotspots()
}

// AvoidedCells returns board cells the player rarely or never visits.
func (s *Session) AvoidedCells() []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.AvoidedCells()
}

// IdleFor reports how long the session has gone without traffic.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Summary is the compact session overview served by the API.
type Summary struct {
	SessionID     uuid.UUID                `json:"session_id"`
	PlayerID      string                   `json:"player_id,omitempty"`
	Board         models.Board             `json:"board"`
	CreatedAt     time.Time                `json:"created_at"`
	LastActive    time.Time                `json:"last_active"`
	MovesHeld     int                      `json:"moves_held"`
	TotalRecorded int                      `json:"total_recorded"`
	AnalysisRuns  int                      `json:"analysis_runs"`
	PatternCount  int                      `json:"pattern_count"`
	TopPatterns   []models.MovementPattern `json:"top_patterns,omitempty"`
	Metrics       models.BehavioralMetrics `json:"metrics"`
	Hotspots      []models.Position        `json:"hotspots,omitempty"`
	AvoidedCells  []models.Position        `json:"avoided_cells,omitempty"`
}

// Summarize builds the overview, trimming patterns to the topN
// strongest.
func (s *Session) Summarize(topN int) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()

	patterns := s.engine.Patterns()
	top := patterns
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	return Summary{
		SessionID:     s.ID,
		PlayerID:      s.PlayerID,
		Board:         s.engine.Board(),
		CreatedAt:     s.CreatedAt,
		LastActive:    s.lastActive,
		MovesHeld:     s.engine.MoveCount(),
		TotalRecorded: s.engine.TotalRecorded(),
		AnalysisRuns:  s.engine.AnalysisRuns(),
		PatternCount:  len(patterns),
		TopPatterns:   top,
		Metrics:       s.engine.Metrics(),
		Hotspots:      s.engine.Hotspots(),
		AvoidedCells:  s.engine.AvoidedCells(),
	}
}
