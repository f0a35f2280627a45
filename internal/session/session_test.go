package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellclash/insight/internal/engine"
	"github.com/cellclash/insight/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	eng := engine.New(engine.Config{
		Board:            models.DefaultBoard(),
		MaxHistory:       50,
		AnalysisInterval: 10,
		MetricsWindow:    50,
		Seed:             1,
	}, nil, testLogger())
	return newSession(uuid.New(), "player-1", eng)
}

func testMove(i int) models.Move {
	return models.Move{
		Position:  models.Position{Row: i % 4, Col: (i / 4) % 4},
		Timestamp: time.Unix(1700000000+int64(i), 0).UTC(),
		Reaction:  time.Second,
		Context: models.GameContext{
			PlayerScore:   10,
			OpponentScore: 8,
			MoveNumber:    i + 1,
			TimeRemaining: 60,
			Difficulty:    "medium",
		},
		Outcome: models.OutcomeSuccess,
	}
}

func TestSessionRecordReportsAnalysis(t *testing.T) {
	sess := newTestSession(t)

	for i := 0; i < 9; i++ {
		reanalyzed, err := sess.Record(testMove(i))
		require.NoError(t, err)
		assert.False(t, reanalyzed, "move %d should not trigger analysis", i)
	}

	reanalyzed, err := sess.Record(testMove(9))
	require.NoError(t, err)
	assert.True(t, reanalyzed, "10th move should trigger analysis")
}

func TestSessionRecordRejectsInvalidMove(t *testing.T) {
	sess := newTestSession(t)

	bad := testMove(0)
	bad.Position = models.Position{Row: 9, Col: 0}
	_, err := sess.Record(bad)
	assert.ErrorIs(t, err, models.ErrOutOfBounds)
	assert.Equal(t, 0, sess.MoveCount())
}

func TestSessionSummarize(t *testing.T) {
	sess := newTestSession(t)
	for i := 0; i < 12; i++ {
		_, err := sess.Record(testMove(i))
		require.NoError(t, err)
	}

	summary := sess.Summarize(3)
	assert.Equal(t, sess.ID, summary.SessionID)
	assert.Equal(t, "player-1", summary.PlayerID)
	assert.Equal(t, models.DefaultBoard(), summary.Board)
	assert.Equal(t, 12, summary.MovesHeld)
	assert.Equal(t, 12, summary.TotalRecorded)
	assert.Equal(t, 1, summary.AnalysisRuns)
	assert.LessOrEqual(t, len(summary.TopPatterns), 3)
	assert.GreaterOrEqual(t, summary.PatternCount, len(summary.TopPatterns))
}

func TestSessionResetClearsState(t *testing.T) {
	sess := newTestSession(t)
	for i := 0; i < 12; i++ {
		_, err := sess.Record(testMove(i))
		require.NoError(t, err)
	}

	sess.Reset()

	assert.Equal(t, 0, sess.MoveCount())
	assert.Empty(t, sess.Patterns())
	assert.Equal(t, models.DefaultBehavioralMetrics(), sess.Metrics())
}

func TestSessionExportImportRoundTrip(t *testing.T) {
	sess := newTestSession(t)
	for i := 0; i < 12; i++ {
		_, err := sess.Record(testMove(i))
		require.NoError(t, err)
	}

	blob, err := sess.Export()
	require.NoError(t, err)

	restored := newTestSession(t)
	require.NoError(t, restored.Import(blob))

	assert.Equal(t, sess.MoveCount(), restored.MoveCount())
	assert.Equal(t, sess.Heatmap(), restored.Heatmap())
	assert.Equal(t, sess.Metrics(), restored.Metrics())
}

func TestSessionPredictHonorsCount(t *testing.T) {
	sess := newTestSession(t)
	for i := 0; i < 6; i++ {
		_, err := sess.Record(testMove(i))
		require.NoError(t, err)
	}

	candidates := sess.Predict(testMove(6).Context, 3)
	assert.Len(t, candidates, 3)
}

func TestSessionIdleForTracksActivity(t *testing.T) {
	sess := newTestSession(t)

	sess.mu.Lock()
	sess.lastActive = time.Now().Add(-time.Hour)
	sess.mu.Unlock()

	assert.Greater(t, sess.IdleFor(time.Now()), 30*time.Minute)

	_, err := sess.Record(testMove(0))
	require.NoError(t, err)
	assert.Less(t, sess.IdleFor(time.Now()), time.Minute)
}
