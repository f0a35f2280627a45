package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellclash/insight/internal/models"
)

func defaultDetector() *strategyDetector {
	return newStrategyDetector(centerPressClassifier{board: models.DefaultBoard()})
}

func metricMove(p models.Position, reactionMs float64, ctx models.GameContext, outcome models.Outcome) models.Move {
	return models.Move{
		Position:  p,
		Timestamp: time.Now(),
		Reaction:  time.Duration(reactionMs * float64(time.Millisecond)),
		Context:   ctx,
		Outcome:   outcome,
	}
}

func TestComputeMetricsDefaultsUnderFiveMoves(t *testing.T) {
	board := models.DefaultBoard()
	calm := models.GameContext{TimeRemaining: 60}

	moves := []models.Move{
		metricMove(models.Position{Row: 0, Col: 0}, 500, calm, models.OutcomeSuccess),
		metricMove(models.Position{Row: 1, Col: 1}, 500, calm, models.OutcomeBlocked),
	}

	metrics := computeMetrics(moves, board, defaultDetector())
	assert.Equal(t, models.DefaultBehavioralMetrics(), metrics)
}

func TestComputeMetricsAllValuesInRange(t *testing.T) {
	board := models.DefaultBoard()
	cells := board.AllPositions()
	moves := make([]models.Move, 0, 50)
	for i := 0; i < 50; i++ {
		ctx := models.GameContext{
			PlayerScore:   i % 5,
			OpponentScore: (i + 2) % 5,
			MoveNumber:    i,
			TimeRemaining: float64(5 + i%30),
		}
		outcome := models.OutcomeSuccess
		if i%3 == 0 {
			outcome = models.OutcomeBlocked
		}
		moves = append(moves, metricMove(cells[(i*7)%len(cells)], float64(300+i*25), ctx, outcome))
	}

	metrics := computeMetrics(moves, board, defaultDetector())
	for name, v := range map[string]float64{
		"aggressiveness":    metrics.Aggressiveness,
		"defensiveness":     metrics.Defensiveness,
		"creativity":        metrics.Creativity,
		"predictability":    metrics.Predictability,
		"adaptability":      metrics.Adaptability,
		"patience":          metrics.Patience,
		"pressure_response": metrics.PressureResponse,
		"learning_rate":     metrics.LearningRate,
	} {
		assert.GreaterOrEqual(t, v, 0.0, name)
		assert.LessOrEqual(t, v, 1.0, name)
	}

	// Offensive and defensive shares partition the window.
	assert.InDelta(t, 1.0, metrics.Aggressiveness+metrics.Defensiveness, 1e-9)
}

func TestCreativityRewardsRoaming(t *testing.T) {
	board := models.DefaultBoard()
	calm := models.GameContext{TimeRemaining: 60}

	camper := make([]models.Move, 12)
	for i := range camper {
		camper[i] = metricMove(models.Position{Row: 0, Col: 0}, 500, calm, models.OutcomeSuccess)
	}

	roamer := make([]models.Move, 12)
	cells := board.AllPositions()
	for i := range roamer {
		roamer[i] = metricMove(cells[(i*5)%len(cells)], 500, calm, models.OutcomeSuccess)
	}

	low := creativityScore(camper, board)
	high := creativityScore(roamer, board)
	assert.Less(t, low, 0.2)
	assert.Greater(t, high, low)
}

func TestPredictabilityExtremes(t *testing.T) {
	calm := models.GameContext{TimeRemaining: 60}

	// Marching along a row repeats the same direction every step.
	march := make([]models.Move, 8)
	for i := range march {
		march[i] = metricMove(models.Position{Row: 1, Col: i % 4}, 500, calm, models.OutcomeSuccess)
	}
	// Direction flips at the wrap make it imperfect but still high.
	assert.Greater(t, predictabilityScore(march), 0.5)

	// Alternating between two diagonal hops flips direction each step.
	zigzag := make([]models.Move, 8)
	for i := range zigzag {
		if i%2 == 0 {
			zigzag[i] = metricMove(models.Position{Row: 0, Col: 0}, 500, calm, models.OutcomeSuccess)
		} else {
			zigzag[i] = metricMove(models.Position{Row: 3, Col: 3}, 500, calm, models.OutcomeSuccess)
		}
	}
	assert.Equal(t, 0.0, predictabilityScore(zigzag))

	assert.Equal(t, 0.5, predictabilityScore(zigzag[:2]))
}

func TestPatienceScalesWithReaction(t *testing.T) {
	board := models.DefaultBoard()
	calm := models.GameContext{TimeRemaining: 60}

	quick := make([]models.Move, 6)
	slow := make([]models.Move, 6)
	for i := range quick {
		quick[i] = metricMove(models.Position{Row: i % 4, Col: 1}, 300, calm, models.OutcomeSuccess)
		slow[i] = metricMove(models.Position{Row: i % 4, Col: 1}, 2700, calm, models.OutcomeSuccess)
	}

	quickMetrics := computeMetrics(quick, board, defaultDetector())
	slowMetrics := computeMetrics(slow, board, defaultDetector())
	assert.InDelta(t, 0.1, quickMetrics.Patience, 1e-9)
	assert.InDelta(t, 0.9, slowMetrics.Patience, 1e-9)
}

func TestPressureResponseScore(t *testing.T) {
	clutch := timingReport{
		sampleCount:         20,
		pressureMoves:       8,
		pressureSuccessRate: 0.9,
		normalSuccessRate:   0.5,
	}
	assert.InDelta(t, 0.7, pressureResponseScore(clutch), 1e-9)

	choker := clutch
	choker.pressureSuccessRate = 0.1
	assert.InDelta(t, 0.3, pressureResponseScore(choker), 1e-9)

	sparse := clutch
	sparse.pressureMoves = 3
	assert.Equal(t, 0.5, pressureResponseScore(sparse))

	allPressure := clutch
	allPressure.pressureMoves = allPressure.sampleCount
	assert.Equal(t, 0.5, pressureResponseScore(allPressure))
}

func TestLearningRateDirection(t *testing.T) {
	calm := models.GameContext{TimeRemaining: 60}

	improving := make([]models.Move, 10)
	declining := make([]models.Move, 10)
	for i := range improving {
		p := models.Position{Row: i % 4, Col: 2}
		early, late := models.OutcomeBlocked, models.OutcomeSuccess
		if i >= 5 {
			improving[i] = metricMove(p, 500, calm, late)
			declining[i] = metricMove(p, 500, calm, early)
		} else {
			improving[i] = metricMove(p, 500, calm, early)
			declining[i] = metricMove(p, 500, calm, late)
		}
	}

	up := learningRateScore(improving)
	down := learningRateScore(declining)
	assert.Greater(t, up, 0.5)
	assert.Less(t, down, 0.5)
	require.GreaterOrEqual(t, up, 0.0)
	require.LessOrEqual(t, up, 1.0)
}

func TestAdaptabilityCountsShifts(t *testing.T) {
	board := models.DefaultBoard()
	// 10 edge camps then 10 center grabs: one hard posture shift.
	moves := make([]models.Move, 20)
	calm := models.GameContext{TimeRemaining: 60}
	for i := range moves {
		p := models.Position{Row: 0, Col: 0}
		if i >= 10 {
			p = models.Position{Row: 1, Col: 1}
		}
		moves[i] = metricMove(p, 500, calm, models.OutcomeSuccess)
	}

	metrics := computeMetrics(moves, board, defaultDetector())
	assert.InDelta(t, 1.0/3.0, metrics.Adaptability, 1e-9)
}
