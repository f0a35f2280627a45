package engine

import (
	"gonum.org/v1/gonum/stat"

	"github.com/cellclash/insight/internal/models"
)

// computeMetrics derives the eight-dimension behavioral profile from
// the most recent analysis window. Under five moves everything stays at
// the neutral 0.5.
func computeMetrics(moves []models.Move, board models.Board, detector *strategyDetector) models.BehavioralMetrics {
	metrics := models.DefaultBehavioralMetrics()
	if len(moves) < minMetricsMoves {
		return metrics
	}

	strategy := detector.analyze(moves)
	timing := analyzeTiming(moves)

	metrics.Aggressiveness = clamp01(strategy.offensiveRatio)
	metrics.Defensiveness = clamp01(strategy.defensiveRatio)
	metrics.Creativity = creativityScore(moves, board)
	metrics.Predictability = predictabilityScore(moves)
	if len(strategy.windowRatios) >= 2 {
		metrics.Adaptability = clamp01(float64(len(strategy.adaptations)) / adaptationSaturation)
	}
	metrics.Patience = clamp01(timing.meanMs / patienceScaleMs)
	metrics.PressureResponse = pressureResponseScore(timing)
	metrics.LearningRate = learningRateScore(moves)
	return metrics
}

// creativityScore blends board coverage with positional spread: players
// who roam wide and scatter their moves score high, players camping a
// corner score low.
func creativityScore(moves []models.Move, board models.Board) float64 {
	seen := make(map[models.Position]bool, len(moves))
	rows := make([]float64, len(moves))
	cols := make([]float64, len(moves))
	for i, m := range moves {
		seen[m.Position] = true
		rows[i] = float64(m.Position.Row)
		cols[i] = float64(m.Position.Col)
	}

	reachable := board.Cells()
	if len(moves) < reachable {
		reachable = len(moves)
	}
	coverage := float64(len(seen)) / float64(reachable)

	spread := (axisSpread(rows, board.Rows) + axisSpread(cols, board.Cols)) / 2
	return clamp01(0.5*coverage + 0.5*spread)
}

// axisSpread normalizes the standard deviation along one axis by half
// the axis span. A degenerate one-cell axis contributes nothing.
func axisSpread(values []float64, dim int) float64 {
	halfSpan := float64(dim-1) / 2
	if halfSpan <= 0 {
		return 0
	}
	return clamp01(stat.StdDev(values, nil) / halfSpan)
}

// predictabilityScore measures how often the player repeats the same
// travel direction on consecutive moves.
func predictabilityScore(moves []models.Move) float64 {
	if len(moves) < 3 {
		return 0.5
	}
	type direction struct{ dr, dc int }
	sign := func(v int) int {
		switch {
		case v > 0:
			return 1
		case v < 0:
			return -1
		}
		return 0
	}

	dirs := make([]direction, 0, len(moves)-1)
	for i := 1; i < len(moves); i++ {
		dirs = append(dirs, direction{
			dr: sign(moves[i].Position.Row - moves[i-1].Position.Row),
			dc: sign(moves[i].Position.Col - moves[i-1].Position.Col),
		})
	}

	repeats := 0
	for i := 1; i < len(dirs); i++ {
		if dirs[i] == dirs[i-1] {
			repeats++
		}
	}
	return clamp01(float64(repeats) / float64(len(dirs)-1))
}

// pressureResponseScore centers at 0.5 and moves up when the player
// converts better under pressure than at baseline, down when they
// crumble. Too few squeezed moves keeps it neutral.
func pressureResponseScore(timing timingReport) float64 {
	if timing.pressureMoves < minPressureMoves {
		return 0.5
	}
	if timing.pressureMoves == timing.sampleCount {
		// No calm baseline to compare against.
		return 0.5
	}
	return clamp01(0.5 + (timing.pressureSuccessRate-timing.normalSuccessRate)/2)
}

// learningRateScore regresses the success indicator over move order.
// A rising line means the player is improving within the window.
func learningRateScore(moves []models.Move) float64 {
	xs := make([]float64, len(moves))
	ys := make([]float64, len(moves))
	for i, m := range moves {
		xs[i] = float64(i)
		ys[i] = m.Outcome.SuccessIndicator()
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return clamp01(0.5 + slope*float64(len(moves))*learningSlopeScale)
}
