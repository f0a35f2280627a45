package engine

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellclash/insight/internal/models"
)

func seededPredictor(seed int64) *predictor {
	return newPredictor(models.DefaultBoard(), rand.New(rand.NewSource(seed)))
}

func recentAt(positions ...models.Position) []models.Move {
	moves := make([]models.Move, len(positions))
	for i, p := range positions {
		moves[i] = models.Move{
			Position:  p,
			Timestamp: time.Unix(int64(1700000000+i), 0),
			Reaction:  500 * time.Millisecond,
			Context:   models.GameContext{TimeRemaining: 60},
			Outcome:   models.OutcomeSuccess,
		}
	}
	return moves
}

func TestPredictColdStartFallsBackToRandom(t *testing.T) {
	p := seededPredictor(42)
	ctx := models.GameContext{TimeRemaining: 60}

	candidates := p.predict(ctx, 3, nil, nil, nil)
	require.Len(t, candidates, 3)

	seen := make(map[models.Position]bool)
	for _, c := range candidates {
		assert.Equal(t, models.ReasonRandom, c.Reasoning)
		assert.Equal(t, fallbackProbability, c.Probability)
		assert.True(t, p.board.Contains(c.Position))
		assert.False(t, seen[c.Position])
		seen[c.Position] = true
	}
}

func TestPredictSeededReproducibility(t *testing.T) {
	ctx := models.GameContext{TimeRemaining: 60}

	first := seededPredictor(7).predict(ctx, 5, nil, nil, nil)
	second := seededPredictor(7).predict(ctx, 5, nil, nil, nil)
	assert.Equal(t, first, second)
}

func TestPredictSequenceContinuationWins(t *testing.T) {
	a := models.Position{Row: 0, Col: 0}
	b := models.Position{Row: 1, Col: 1}
	c := models.Position{Row: 2, Col: 2}

	patterns := []models.MovementPattern{{
		ID:         sequenceKey([]models.Position{a, b, c}),
		Kind:       models.PatternSequence,
		Sequence:   []models.Position{a, b, c},
		Frequency:  12,
		Confidence: 1.0,
	}}
	heat := map[models.Position]models.HeatmapCell{
		{Row: 3, Col: 3}: {Frequency: 2, SuccessRate: 0.5},
	}

	candidates := seededPredictor(1).predict(
		models.GameContext{TimeRemaining: 60}, 3, recentAt(a, b), patterns, heat)
	require.NotEmpty(t, candidates)

	assert.Equal(t, c, candidates[0].Position)
	assert.Contains(t, candidates[0].Reasoning, models.ReasonSequence)
	assert.InDelta(t, sequenceWeight, candidates[0].Probability, 1e-9)
}

func TestPredictLowSimilarityIgnoresSequence(t *testing.T) {
	a := models.Position{Row: 0, Col: 0}
	b := models.Position{Row: 1, Col: 1}
	c := models.Position{Row: 2, Col: 2}
	x := models.Position{Row: 3, Col: 0}

	patterns := []models.MovementPattern{{
		ID:         sequenceKey([]models.Position{a, b, c}),
		Kind:       models.PatternSequence,
		Sequence:   []models.Position{a, b, c},
		Confidence: 1.0,
	}}

	// Tail x,x shares nothing with the a,b prefix.
	candidates := seededPredictor(1).predict(
		models.GameContext{TimeRemaining: 60}, 2, recentAt(x, x), patterns, nil)
	for _, cand := range candidates {
		assert.NotContains(t, cand.Reasoning, models.ReasonSequence)
	}
}

func TestPredictPositionPreference(t *testing.T) {
	hot := models.Position{Row: 2, Col: 1}
	heat := map[models.Position]models.HeatmapCell{
		hot:              {Frequency: 9, SuccessRate: 1.0},
		{Row: 0, Col: 0}: {Frequency: 1, SuccessRate: 0.0},
	}

	candidates := seededPredictor(3).predict(
		models.GameContext{TimeRemaining: 60}, 2, nil, nil, heat)
	require.NotEmpty(t, candidates)
	assert.Equal(t, hot, candidates[0].Position)
	assert.Contains(t, candidates[0].Reasoning, models.ReasonPosition)
}

func TestPredictContextHeuristicWhenTrailing(t *testing.T) {
	board := models.DefaultBoard()
	ctx := models.GameContext{PlayerScore: 0, OpponentScore: 3, TimeRemaining: 60}

	candidates := seededPredictor(5).predict(ctx, 4, nil, nil, nil)
	require.Len(t, candidates, 4)

	// With no history the trailing heuristic pushes the central band.
	central := 0
	for _, c := range candidates {
		if strings.Contains(c.Reasoning, models.ReasonContext) {
			assert.True(t, board.Central(c.Position))
			central++
		}
	}
	assert.Equal(t, 4, central)
}

func TestPredictUsesPreferredContextCells(t *testing.T) {
	favored := models.Position{Row: 0, Col: 2}
	heat := map[models.Position]models.HeatmapCell{
		favored: {
			Frequency:         6,
			SuccessRate:       0.8,
			PreferredContexts: []string{models.ContextPressure},
		},
		{Row: 3, Col: 3}: {Frequency: 6, SuccessRate: 0.8},
	}
	ctx := models.GameContext{PlayerScore: 2, OpponentScore: 2, TimeRemaining: 4}

	candidates := seededPredictor(9).predict(ctx, 1, nil, nil, heat)
	require.Len(t, candidates, 1)
	assert.Equal(t, favored, candidates[0].Position)
	assert.Contains(t, candidates[0].Reasoning, models.ReasonContext)
}

func TestPredictCountCappedAtBoardSize(t *testing.T) {
	p := seededPredictor(11)
	candidates := p.predict(models.GameContext{TimeRemaining: 60}, 100, nil, nil, nil)
	assert.Len(t, candidates, p.board.Cells())

	seen := make(map[models.Position]bool)
	for _, c := range candidates {
		assert.False(t, seen[c.Position], "duplicate candidate %s", c.Position)
		seen[c.Position] = true
		assert.Greater(t, c.Probability, 0.0)
		assert.LessOrEqual(t, c.Probability, 1.0)
	}
}

func TestPredictZeroCount(t *testing.T) {
	assert.Nil(t, seededPredictor(13).predict(models.GameContext{TimeRemaining: 60}, 0, nil, nil, nil))
}

func TestPredictFusionJoinsReasons(t *testing.T) {
	a := models.Position{Row: 1, Col: 0}
	b := models.Position{Row: 1, Col: 1}
	target := models.Position{Row: 1, Col: 2}

	patterns := []models.MovementPattern{{
		ID:         sequenceKey([]models.Position{a, b, target}),
		Kind:       models.PatternSequence,
		Sequence:   []models.Position{a, b, target},
		Confidence: 0.9,
	}}
	heat := map[models.Position]models.HeatmapCell{
		target: {Frequency: 8, SuccessRate: 0.75},
	}

	candidates := seededPredictor(17).predict(
		models.GameContext{TimeRemaining: 60}, 1, recentAt(a, b), patterns, heat)
	require.Len(t, candidates, 1)
	assert.Equal(t, target, candidates[0].Position)
	assert.Contains(t, candidates[0].Reasoning, models.ReasonSequence)
	assert.Contains(t, candidates[0].Reasoning, models.ReasonPosition)
	assert.Contains(t, candidates[0].Reasoning, "+")
}
