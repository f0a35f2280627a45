package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/cellclash/insight/internal/models"
)

// Stance labels a move's posture.
type Stance string

const (
	StanceOffensive Stance = "offensive"
	StanceDefensive Stance = "defensive"
)

// MoveClassifier labels each move offensive or defensive. Games with
// richer semantics can plug their own; the engine only needs the
// binary verdict.
type MoveClassifier interface {
	Classify(m models.Move, baselineReactionMs float64) Stance
}

// centerPressClassifier is the default classifier. Claiming central
// territory reads as offensive, as does striking clearly faster than
// baseline while behind on score. Everything else counts as defensive
// consolidation.
type centerPressClassifier struct {
	board models.Board
}

func (c centerPressClassifier) Classify(m models.Move, baselineReactionMs float64) Stance {
	if c.board.Central(m.Position) {
		return StanceOffensive
	}
	if m.Context.Trailing() && baselineReactionMs > 0 && m.ReactionMs() < rushFactor*baselineReactionMs {
		return StanceOffensive
	}
	return StanceDefensive
}

// strategyReport carries the posture aggregates for a stretch of moves.
type strategyReport struct {
	moveCount      int
	offensiveRatio float64
	defensiveRatio float64
	windowRatios   []float64
	trendSlope     float64
	trendDirection string
	adaptations    []models.AdaptationEvent
	stances        []Stance
}

// strategyDetector classifies each move and watches the offensive ratio
// across consecutive windows for trend and abrupt shifts.
type strategyDetector struct {
	classifier MoveClassifier
	window     int
	delta      float64
}

func newStrategyDetector(classifier MoveClassifier) *strategyDetector {
	return &strategyDetector{
		classifier: classifier,
		window:     strategyWindow,
		delta:      adaptationDelta,
	}
}

// analyze computes window ratios over full windows anchored at the
// start of moves; a trailing partial window is ignored. An adaptation
// fires when the ratio jumps by more than delta between neighbors.
func (d *strategyDetector) analyze(moves []models.Move) strategyReport {
	report := strategyReport{moveCount: len(moves), trendDirection: models.TrendStable}
	if len(moves) == 0 {
		return report
	}

	reactions := make([]float64, len(moves))
	for i, m := range moves {
		reactions[i] = m.ReactionMs()
	}
	baseline := stat.Mean(reactions, nil)

	report.stances = make([]Stance, len(moves))
	offensive := 0
	for i, m := range moves {
		report.stances[i] = d.classifier.Classify(m, baseline)
		if report.stances[i] == StanceOffensive {
			offensive++
		}
	}
	report.offensiveRatio = float64(offensive) / float64(len(moves))
	report.defensiveRatio = 1 - report.offensiveRatio

	full := len(moves) / d.window
	if full < 1 {
		return report
	}

	ratios := make([]float64, full)
	xs := make([]float64, full)
	for w := 0; w < full; w++ {
		count := 0
		for i := w * d.window; i < (w+1)*d.window; i++ {
			if report.stances[i] == StanceOffensive {
				count++
			}
		}
		ratios[w] = float64(count) / float64(d.window)
		xs[w] = float64(w)
	}
	report.windowRatios = ratios

	if full < 2 {
		return report
	}

	_, slope := stat.LinearRegression(xs, ratios, nil, false)
	report.trendSlope = slope
	switch {
	case slope > trendSlopeEpsilon:
		report.trendDirection = models.TrendRising
	case slope < -trendSlopeEpsilon:
		report.trendDirection = models.TrendFalling
	}

	for w := 1; w < full; w++ {
		shift := ratios[w] - ratios[w-1]
		if math.Abs(shift) <= d.delta {
			continue
		}
		start := w * d.window
		end := (w+1)*d.window - 1
		report.adaptations = append(report.adaptations, models.AdaptationEvent{
			MoveNumber: end,
			Shift:      shift,
			SpeedMoves: d.window,
			Trigger:    moves[start].Context.Tag(),
			Timestamp:  moves[end].Timestamp,
		})
	}
	return report
}

// patterns renders the report as movement patterns: the overall posture
// pattern plus, when shifts were seen, the adaptation pattern.
func (d *strategyDetector) patterns(moves []models.Move) []models.MovementPattern {
	if len(moves) < d.window {
		return nil
	}
	report := d.analyze(moves)
	lastSeen := moves[len(moves)-1].Timestamp

	posture := models.MovementPattern{
		ID:   "strategic:posture",
		Kind: models.PatternStrategic,
		Strategy: &models.StrategyProfile{
			OffensiveRatio: report.offensiveRatio,
			DefensiveRatio: report.defensiveRatio,
			TrendSlope:     report.trendSlope,
			TrendDirection: report.trendDirection,
		},
		Frequency:     report.moveCount,
		Effectiveness: successRate(moves),
		Confidence:    saturatingConfidence(report.moveCount),
		LastSeen:      lastSeen,
	}
	patterns := []models.MovementPattern{posture}

	if len(report.adaptations) > 0 {
		adaptation := models.MovementPattern{
			ID:   "strategic:adaptation",
			Kind: models.PatternStrategic,
			Strategy: &models.StrategyProfile{
				OffensiveRatio: report.offensiveRatio,
				DefensiveRatio: report.defensiveRatio,
				TrendSlope:     report.trendSlope,
				TrendDirection: report.trendDirection,
				Adaptations:    report.adaptations,
			},
			Frequency:     len(report.adaptations),
			Effectiveness: successRate(moves),
			Confidence:    saturatingConfidence(len(report.adaptations)),
			LastSeen:      report.adaptations[len(report.adaptations)-1].Timestamp,
		}
		for _, event := range report.adaptations {
			adaptation.AddContext(event.Trigger)
		}
		patterns = append(patterns, adaptation)
	}
	return patterns
}

func successRate(moves []models.Move) float64 {
	if len(moves) == 0 {
		return 0
	}
	successes := 0
	for _, m := range moves {
		if m.Outcome.Succeeded() {
			successes++
		}
	}
	return float64(successes) / float64(len(moves))
}
