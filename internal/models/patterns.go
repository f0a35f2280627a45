package models

import (
	"sort"
	"time"
)

// PatternKind classifies a detected movement pattern.
type PatternKind string

const (
	PatternSequence           PatternKind = "sequence"
	PatternPositionPreference PatternKind = "position_preference"
	PatternTiming             PatternKind = "timing"
	PatternStrategic          PatternKind = "strategic"
)

// MovementPattern is one detected behavioral pattern. Exactly one of the
// kind-specific payload fields is populated, matching Kind.
type MovementPattern struct {
	ID            string           `json:"id"`
	Kind          PatternKind      `json:"kind"`
	Sequence      []Position       `json:"sequence,omitempty"`
	Cell          *Position        `json:"cell,omitempty"`
	Timing        *TimingProfile   `json:"timing,omitempty"`
	Strategy      *StrategyProfile `json:"strategy,omitempty"`
	Frequency     int              `json:"frequency"`
	Effectiveness float64          `json:"effectiveness"`
	Confidence    float64          `json:"confidence"`
	LastSeen      time.Time        `json:"last_seen"`
	Contexts      []string         `json:"contexts,omitempty"`
}

// HasContext reports whether the pattern already carries the given tag.
func (p *MovementPattern) HasContext(tag string) bool {
	for _, c := range p.Contexts {
		if c == tag {
			return true
		}
	}
	return false
}

// AddContext records a context tag, keeping the list unique and sorted.
func (p *MovementPattern) AddContext(tag string) {
	if tag == "" || p.HasContext(tag) {
		return
	}
	p.Contexts = append(p.Contexts, tag)
	sort.Strings(p.Contexts)
}

// TimingProfile is the payload of a timing pattern. The pressure fields
// are only populated on the pressure-tempo pattern.
type TimingProfile struct {
	SampleCount         int     `json:"sample_count"`
	MeanReactionMs      float64 `json:"mean_reaction_ms"`
	StdDevMs            float64 `json:"std_dev_ms"`
	FastShare           float64 `json:"fast_share"`
	SlowShare           float64 `json:"slow_share"`
	PressureMoves       int     `json:"pressure_moves,omitempty"`
	PressureReactionMs  float64 `json:"pressure_reaction_ms,omitempty"`
	NormalReactionMs    float64 `json:"normal_reaction_ms,omitempty"`
	PressureSuccessRate float64 `json:"pressure_success_rate,omitempty"`
	NormalSuccessRate   float64 `json:"normal_success_rate,omitempty"`
}

// RushesUnderPressure reports whether the player speeds up when squeezed.
func (t *TimingProfile) RushesUnderPressure() bool {
	return t.PressureMoves > 0 && t.PressureReactionMs < t.NormalReactionMs
}

// StrategyProfile is the payload of a strategic pattern.
type StrategyProfile struct {
	OffensiveRatio float64           `json:"offensive_ratio"`
	DefensiveRatio float64           `json:"defensive_ratio"`
	TrendSlope     float64           `json:"trend_slope"`
	TrendDirection string            `json:"trend_direction"`
	Adaptations    []AdaptationEvent `json:"adaptations,omitempty"`
}

// Trend direction labels used by StrategyProfile.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// AdaptationEvent marks a detected shift in playstyle between two
// adjacent analysis windows.
type AdaptationEvent struct {
	MoveNumber int       `json:"move_number"`
	Shift      float64   `json:"shift"`
	SpeedMoves int       `json:"speed_moves"`
	Trigger    string    `json:"trigger"`
	Timestamp  time.Time `json:"timestamp"`
}

// HeatmapCell is the exported per-cell aggregate of the position heatmap.
type HeatmapCell struct {
	Frequency         int       `json:"frequency"`
	AvgReactionMs     float64   `json:"avg_reaction_ms"`
	SuccessRate       float64   `json:"success_rate"`
	PreferredContexts []string  `json:"preferred_contexts,omitempty"`
	LastSeen          time.Time `json:"last_seen"`
}

// BehavioralMetrics is the scalar profile of a player. Every field is
// normalized to [0,1] with 0.5 meaning neutral or not-yet-known.
type BehavioralMetrics struct {
	Aggressiveness   float64 `json:"aggressiveness"`
	Defensiveness    float64 `json:"defensiveness"`
	Creativity       float64 `json:"creativity"`
	Predictability   float64 `json:"predictability"`
	Adaptability     float64 `json:"adaptability"`
	Patience         float64 `json:"patience"`
	PressureResponse float64 `json:"pressure_response"`
	LearningRate     float64 `json:"learning_rate"`
}

// DefaultBehavioralMetrics returns the neutral profile used before
// enough moves have been observed.
func DefaultBehavioralMetrics() BehavioralMetrics {
	return BehavioralMetrics{
		Aggressiveness:   0.5,
		Defensiveness:    0.5,
		Creativity:       0.5,
		Predictability:   0.5,
		Adaptability:     0.5,
		Patience:         0.5,
		PressureResponse: 0.5,
		LearningRate:     0.5,
	}
}

// PredictionCandidate is one predicted next move.
type PredictionCandidate struct {
	Position    Position `json:"position"`
	Probability float64  `json:"probability"`
	Reasoning   string   `json:"reasoning"`
}

// Prediction reasoning labels. Fused candidates join theirs with "+".
const (
	ReasonSequence = "sequence_continuation"
	ReasonPosition = "position_preference"
	ReasonContext  = "context_heuristic"
	ReasonRandom   = "random_fallback"
)
