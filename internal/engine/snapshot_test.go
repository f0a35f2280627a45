package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellclash/insight/internal/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	source := testEngine(100)
	for i := 0; i < 23; i++ {
		_, err := source.Record(cycleMove(i))
		require.NoError(t, err)
	}

	blob, err := source.Export()
	require.NoError(t, err)

	restored := testEngine(100)
	require.NoError(t, restored.Import(blob))

	assert.Equal(t, source.MoveCount(), restored.MoveCount())
	assert.Equal(t, source.TotalRecorded(), restored.TotalRecorded())
	assert.Equal(t, source.AnalysisRuns(), restored.AnalysisRuns())
	assert.Equal(t, source.Metrics(), restored.Metrics())
	assert.Equal(t, source.Patterns(), restored.Patterns())
	// No eviction happened, so the replayed heatmap is bit-identical.
	assert.Equal(t, source.Heatmap(), restored.Heatmap())
}

func TestSnapshotRoundTripAfterEviction(t *testing.T) {
	source := testEngine(20)
	for i := 0; i < 47; i++ {
		_, err := source.Record(cycleMove(i))
		require.NoError(t, err)
	}

	blob, err := source.Export()
	require.NoError(t, err)

	restored := testEngine(20)
	require.NoError(t, restored.Import(blob))

	assert.Equal(t, source.MoveCount(), restored.MoveCount())
	assert.Equal(t, 47, restored.TotalRecorded())

	want := source.Heatmap()
	got := restored.Heatmap()
	require.Len(t, got, len(want))
	for pos, cell := range want {
		other, ok := got[pos]
		require.True(t, ok, "missing cell %s", pos)
		assert.Equal(t, cell.Frequency, other.Frequency)
		assert.InDelta(t, cell.AvgReactionMs, other.AvgReactionMs, 1e-6)
		assert.InDelta(t, cell.SuccessRate, other.SuccessRate, 1e-6)
	}
}

func TestSnapshotImportContinuesSchedule(t *testing.T) {
	source := testEngine(100)
	for i := 0; i < 15; i++ {
		_, err := source.Record(cycleMove(i))
		require.NoError(t, err)
	}
	blob, err := source.Export()
	require.NoError(t, err)

	restored := testEngine(100)
	require.NoError(t, restored.Import(blob))
	require.Equal(t, 1, restored.AnalysisRuns())

	// Five more accepted moves reach the next interval boundary.
	for i := 15; i < 20; i++ {
		_, err := restored.Record(cycleMove(i))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, restored.AnalysisRuns())
}

func TestSnapshotImportRejectsGarbage(t *testing.T) {
	e := testEngine(100)
	for i := 0; i < 7; i++ {
		_, err := e.Record(cycleMove(i))
		require.NoError(t, err)
	}

	err := e.Import([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)
	// A failed import leaves the engine untouched.
	assert.Equal(t, 7, e.MoveCount())
}

func TestSnapshotImportRejectsWrongVersion(t *testing.T) {
	e := testEngine(100)
	blob, err := e.Export()
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(blob, &snap))
	snap.SchemaVersion = 99
	bad, err := json.Marshal(snap)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Import(bad), ErrSnapshotVersion)
}

func TestSnapshotImportRejectsBoardMismatch(t *testing.T) {
	small := New(Config{
		Board: models.Board{Rows: 3, Cols: 3},
		Seed:  1,
	}, nil, testLogger())
	blob, err := small.Export()
	require.NoError(t, err)

	e := testEngine(100)
	assert.ErrorIs(t, e.Import(blob), ErrSnapshotBoard)
}

func TestSnapshotImportRejectsInvalidMoves(t *testing.T) {
	e := testEngine(100)
	blob, err := e.Export()
	require.NoError(t, err)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(blob, &snap))
	snap.Moves = append(snap.Moves, models.Move{
		Position: models.Position{Row: 77, Col: 0},
		Outcome:  models.OutcomeSuccess,
	})
	bad, err := json.Marshal(snap)
	require.NoError(t, err)

	assert.ErrorIs(t, e.Import(bad), ErrSnapshotCorrupt)
	assert.Equal(t, 0, e.MoveCount())
}
