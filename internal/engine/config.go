package engine

import (
	"sort"

	"github.com/cellclash/insight/internal/models"
)

// Tuning defaults. Frequency floors and the confidence scale are shared
// across pattern kinds so confidence values compare across the board.
const (
	DefaultMaxHistory       = 1000
	DefaultAnalysisInterval = 10
	DefaultMetricsWindow    = 50

	sequenceWindow       = 3
	minPatternFrequency  = 3
	confidenceScale      = 10.0
	minMetricsMoves      = 5
	minPressureMoves     = 5
	fastFactor           = 0.7
	slowFactor           = 1.5
	rushFactor           = 0.8
	strategyWindow       = 10
	adaptationDelta      = 0.3
	trendSlopeEpsilon    = 0.05
	similarityThreshold  = 0.7
	sequenceWeight       = 0.4
	positionWeight       = 0.3
	contextWeight        = 0.3
	fallbackProbability  = 0.1
	patienceScaleMs      = 3000.0
	learningSlopeScale   = 0.5
	adaptationSaturation = 3.0
)

// Config carries the per-session knobs of the pattern engine.
type Config struct {
	Board            models.Board
	MaxHistory       int
	AnalysisInterval int
	MetricsWindow    int
	// Seed fixes the fallback randomness for reproducible predictions.
	// Zero seeds from the clock.
	Seed int64
}

// withDefaults fills unset fields with the standard values.
func (c Config) withDefaults() Config {
	if c.Board.Rows <= 0 || c.Board.Cols <= 0 {
		c.Board = models.DefaultBoard()
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = DefaultAnalysisInterval
	}
	if c.MetricsWindow <= 0 {
		c.MetricsWindow = DefaultMetricsWindow
	}
	return c
}

// saturatingConfidence maps an observation count to [0,1], saturating
// at the shared confidence scale.
func saturatingConfidence(frequency int) float64 {
	conf := float64(frequency) / confidenceScale
	if conf > 1 {
		return 1
	}
	return conf
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// sortPatterns orders patterns by confidence, then frequency, then ID,
// so repeated analysis passes over unchanged history produce identical
// output.
func sortPatterns(patterns []models.MovementPattern) {
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		if patterns[i].Frequency != patterns[j].Frequency {
			return patterns[i].Frequency > patterns[j].Frequency
		}
		return patterns[i].ID < patterns[j].ID
	})
}
