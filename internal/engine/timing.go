package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/cellclash/insight/internal/models"
)

// timingReport aggregates reaction-time statistics over a stretch of
// moves, with the pressure subset broken out against the calm baseline.
type timingReport struct {
	sampleCount int
	meanMs      float64
	stdDevMs    float64
	fastShare   float64
	slowShare   float64
	successRate float64

	pressureMoves       int
	pressureReactionMs  float64
	normalReactionMs    float64
	pressureSuccessRate float64
	normalSuccessRate   float64
}

// analyzeTiming computes the report over moves. A move is fast when it
// lands under 0.7x the stretch mean and slow above 1.5x; the rest sit
// in the normal band.
func analyzeTiming(moves []models.Move) timingReport {
	var report timingReport
	report.sampleCount = len(moves)
	if len(moves) == 0 {
		return report
	}

	reactions := make([]float64, len(moves))
	for i, m := range moves {
		reactions[i] = m.ReactionMs()
	}
	mean, variance := stat.MeanVariance(reactions, nil)
	report.meanMs = mean
	if !math.IsNaN(variance) {
		report.stdDevMs = math.Sqrt(variance)
	}

	var fast, slow, successes int
	var pressureSum, normalSum float64
	var pressureSuccesses, normalCount, normalSuccesses int
	for i, m := range moves {
		if reactions[i] < fastFactor*mean {
			fast++
		} else if reactions[i] > slowFactor*mean {
			slow++
		}
		if m.Outcome.Succeeded() {
			successes++
		}
		if m.Context.UnderPressure() {
			report.pressureMoves++
			pressureSum += reactions[i]
			if m.Outcome.Succeeded() {
				pressureSuccesses++
			}
		} else {
			normalCount++
			normalSum += reactions[i]
			if m.Outcome.Succeeded() {
				normalSuccesses++
			}
		}
	}

	n := float64(len(moves))
	report.fastShare = float64(fast) / n
	report.slowShare = float64(slow) / n
	report.successRate = float64(successes) / n
	if report.pressureMoves > 0 {
		report.pressureReactionMs = pressureSum / float64(report.pressureMoves)
		report.pressureSuccessRate = float64(pressureSuccesses) / float64(report.pressureMoves)
	}
	if normalCount > 0 {
		report.normalReactionMs = normalSum / float64(normalCount)
		report.normalSuccessRate = float64(normalSuccesses) / float64(normalCount)
	}
	return report
}

// mineTimingPatterns derives the overall tempo pattern and, once enough
// squeezed moves exist, the pressure-tempo pattern comparing reaction
// speed and accuracy against the calm baseline.
func mineTimingPatterns(moves []models.Move) []models.MovementPattern {
	report := analyzeTiming(moves)
	if report.sampleCount < minMetricsMoves {
		return nil
	}
	lastSeen := moves[len(moves)-1].Timestamp

	patterns := []models.MovementPattern{{
		ID:   "timing:tempo",
		Kind: models.PatternTiming,
		Timing: &models.TimingProfile{
			SampleCount:    report.sampleCount,
			MeanReactionMs: report.meanMs,
			StdDevMs:       report.stdDevMs,
			FastShare:      report.fastShare,
			SlowShare:      report.slowShare,
		},
		Frequency:     report.sampleCount,
		Effectiveness: report.successRate,
		Confidence:    saturatingConfidence(report.sampleCount),
		LastSeen:      lastSeen,
	}}

	if report.pressureMoves >= minPressureMoves {
		pressure := models.MovementPattern{
			ID:   "timing:pressure",
			Kind: models.PatternTiming,
			Timing: &models.TimingProfile{
				SampleCount:         report.sampleCount,
				MeanReactionMs:      report.meanMs,
				StdDevMs:            report.stdDevMs,
				FastShare:           report.fastShare,
				SlowShare:           report.slowShare,
				PressureMoves:       report.pressureMoves,
				PressureReactionMs:  report.pressureReactionMs,
				NormalReactionMs:    report.normalReactionMs,
				PressureSuccessRate: report.pressureSuccessRate,
				NormalSuccessRate:   report.normalSuccessRate,
			},
			Frequency:     report.pressureMoves,
			Effectiveness: report.pressureSuccessRate,
			Confidence:    saturatingConfidence(report.pressureMoves),
			LastSeen:      lastSeen,
		}
		pressure.AddContext(models.ContextPressure)
		patterns = append(patterns, pressure)
	}

	return patterns
}
