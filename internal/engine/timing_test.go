package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellclash/insight/internal/models"
)

func timedMove(reactionMs float64, ctx models.GameContext, outcome models.Outcome) models.Move {
	return models.Move{
		Position:  models.Position{Row: 1, Col: 1},
		Timestamp: time.Now(),
		Reaction:  time.Duration(reactionMs * float64(time.Millisecond)),
		Context:   ctx,
		Outcome:   outcome,
	}
}

func TestAnalyzeTimingBands(t *testing.T) {
	calm := models.GameContext{TimeRemaining: 60}
	// Mean is 1000ms: 500 is fast (<700), 1600 is slow (>1500), the
	// rest are normal.
	moves := []models.Move{
		timedMove(500, calm, models.OutcomeSuccess),
		timedMove(900, calm, models.OutcomeSuccess),
		timedMove(1000, calm, models.OutcomeBlocked),
		timedMove(1000, calm, models.OutcomeSuccess),
		timedMove(1600, calm, models.OutcomeSuccess),
	}

	report := analyzeTiming(moves)
	assert.Equal(t, 5, report.sampleCount)
	assert.InDelta(t, 1000.0, report.meanMs, 1e-9)
	assert.InDelta(t, 0.2, report.fastShare, 1e-9)
	assert.InDelta(t, 0.2, report.slowShare, 1e-9)
	assert.InDelta(t, 0.8, report.successRate, 1e-9)
	assert.Equal(t, 0, report.pressureMoves)
}

func TestAnalyzeTimingPressureSplit(t *testing.T) {
	calm := models.GameContext{PlayerScore: 2, OpponentScore: 1, TimeRemaining: 60}
	squeezed := models.GameContext{PlayerScore: 1, OpponentScore: 2, TimeRemaining: 5}

	moves := []models.Move{
		timedMove(1200, calm, models.OutcomeSuccess),
		timedMove(1000, calm, models.OutcomeSuccess),
		timedMove(400, squeezed, models.OutcomeBlocked),
		timedMove(600, squeezed, models.OutcomeSuccess),
	}

	report := analyzeTiming(moves)
	assert.Equal(t, 2, report.pressureMoves)
	assert.InDelta(t, 500.0, report.pressureReactionMs, 1e-9)
	assert.InDelta(t, 1100.0, report.normalReactionMs, 1e-9)
	assert.InDelta(t, 0.5, report.pressureSuccessRate, 1e-9)
	assert.InDelta(t, 1.0, report.normalSuccessRate, 1e-9)
}

func TestAnalyzeTimingEmpty(t *testing.T) {
	report := analyzeTiming(nil)
	assert.Equal(t, 0, report.sampleCount)
	assert.Zero(t, report.meanMs)
}

func TestMineTimingPatternsNeedsFiveMoves(t *testing.T) {
	calm := models.GameContext{TimeRemaining: 60}
	moves := []models.Move{
		timedMove(500, calm, models.OutcomeSuccess),
		timedMove(600, calm, models.OutcomeSuccess),
	}
	assert.Nil(t, mineTimingPatterns(moves))
}

func TestMineTimingPatternsPressureThreshold(t *testing.T) {
	calm := models.GameContext{TimeRemaining: 60}
	squeezed := models.GameContext{TimeRemaining: 5}

	// 4 pressure moves: below the floor of 5, so only tempo appears.
	moves := make([]models.Move, 0, 10)
	for i := 0; i < 6; i++ {
		moves = append(moves, timedMove(1000, calm, models.OutcomeSuccess))
	}
	for i := 0; i < 4; i++ {
		moves = append(moves, timedMove(500, squeezed, models.OutcomeSuccess))
	}

	patterns := mineTimingPatterns(moves)
	require.Len(t, patterns, 1)
	assert.Equal(t, "timing:tempo", patterns[0].ID)

	// One more squeezed move crosses the floor.
	moves = append(moves, timedMove(500, squeezed, models.OutcomeBlocked))
	patterns = mineTimingPatterns(moves)
	require.Len(t, patterns, 2)

	var pressure *models.MovementPattern
	for i := range patterns {
		if patterns[i].ID == "timing:pressure" {
			pressure = &patterns[i]
		}
	}
	require.NotNil(t, pressure)
	assert.Equal(t, 5, pressure.Frequency)
	assert.InDelta(t, 0.5, pressure.Confidence, 1e-9)
	require.NotNil(t, pressure.Timing)
	assert.True(t, pressure.Timing.RushesUnderPressure())
	assert.InDelta(t, 500.0, pressure.Timing.PressureReactionMs, 1e-9)
	assert.InDelta(t, 1000.0, pressure.Timing.NormalReactionMs, 1e-9)
	assert.Equal(t, []string{models.ContextPressure}, pressure.Contexts)
}
