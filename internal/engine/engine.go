package engine

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellclash/insight/internal/models"
)

// Engine is the per-player pattern engine: it owns the move ledger, the
// position heatmap, the pattern miners and the behavioral profile, and
// amortizes the expensive passes across an analysis interval.
//
// An Engine is not safe for concurrent use. Callers own serialization;
// the session layer wraps each engine in its own lock.
type Engine struct {
	cfg       Config
	log       *logrus.Entry
	ledger    *moveLedger
	heatmap   *positionHeatmap
	miner     *sequenceMiner
	detector  *strategyDetector
	predictor *predictor

	patterns     []models.MovementPattern
	patternIndex map[string]int
	metrics      models.BehavioralMetrics

	recorded     int
	analysisRuns int
	lastAnalysis time.Time
	startedAt    time.Time
}

// New builds an engine from cfg, falling back to defaults for unset
// fields. A nil classifier selects the positional default.
func New(cfg Config, classifier MoveClassifier, logger *logrus.Logger) *Engine {
	cfg = cfg.withDefaults()
	if classifier == nil {
		classifier = centerPressClassifier{board: cfg.Board}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		cfg:       cfg,
		log:       logger.WithField("component", "pattern_engine"),
		ledger:    newMoveLedger(cfg.MaxHistory),
		heatmap:   newPositionHeatmap(cfg.Board),
		miner:     newSequenceMiner(sequenceWindow, minPatternFrequency),
		detector:  newStrategyDetector(classifier),
		predictor: newPredictor(cfg.Board, rand.New(rand.NewSource(seed))),
		metrics:   models.DefaultBehavioralMetrics(),
		startedAt: time.Now(),
	}
}

// Record validates and folds one move into the engine. Cheap aggregates
// update on every call; every AnalysisInterval-th accepted move also
// runs the full analysis pass, reported through the returned flag.
// Rejected moves change nothing.
func (e *Engine) Record(m models.Move) (reanalyzed bool, err error) {
	if err := m.Validate(e.cfg.Board); err != nil {
		e.log.WithError(err).WithField("position", m.Position.String()).Warn("Rejected move")
		return false, err
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	if evicted, wasEvicted := e.ledger.record(m); wasEvicted {
		e.heatmap.remove(evicted)
	}
	e.heatmap.add(m)
	e.recorded++
	e.touchSequence(m)

	if e.recorded%e.cfg.AnalysisInterval == 0 {
		e.runAnalysis()
		return true, nil
	}
	return false, nil
}

// touchSequence refreshes the live sequence pattern matching the newest
// window so its frequency stays warm between full passes. Unknown
// windows wait for the next pass to be counted.
func (e *Engine) touchSequence(m models.Move) {
	if e.ledger.count() < e.miner.window {
		return
	}
	tail := e.ledger.recent(e.miner.window)
	positions := make([]models.Position, len(tail))
	for i, mv := range tail {
		positions[i] = mv.Position
	}
	idx, ok := e.patternIndex[sequenceKey(positions)]
	if !ok {
		return
	}
	p := &e.patterns[idx]
	p.Frequency++
	p.Confidence = saturatingConfidence(p.Frequency)
	if m.Timestamp.After(p.LastSeen) {
		p.LastSeen = m.Timestamp
	}
	p.AddContext(m.Context.Tag())
}

// runAnalysis re-mines every pattern family from the current ledger and
// recomputes the behavioral profile over the metrics window.
func (e *Engine) runAnalysis() {
	start := time.Now()
	moves := e.ledger.recent(0)

	patterns := e.miner.mine(moves)
	patterns = append(patterns, e.positionPatterns()...)
	patterns = append(patterns, mineTimingPatterns(moves)...)
	patterns = append(patterns, e.detector.patterns(moves)...)
	sortPatterns(patterns)

	e.patterns = patterns
	e.reindexPatterns()
	e.metrics = computeMetrics(e.ledger.recent(e.cfg.MetricsWindow), e.cfg.Board, e.detector)
	e.analysisRuns++
	e.lastAnalysis = time.Now()

	e.log.WithFields(logrus.Fields{
		"moves":      len(moves),
		"patterns":   len(patterns),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("Analysis pass completed")
}

func (e *Engine) reindexPatterns() {
	e.patternIndex = make(map[string]int, len(e.patterns))
	for i, p := range e.patterns {
		e.patternIndex[p.ID] = i
	}
}

// positionPatterns renders hot cells as position-preference patterns.
func (e *Engine) positionPatterns() []models.MovementPattern {
	var patterns []models.MovementPattern
	for _, pos := range e.heatmap.hotspots(minPatternFrequency) {
		cell, ok := e.heatmap.cell(pos)
		if !ok {
			continue
		}
		p := pos
		patterns = append(patterns, models.MovementPattern{
			ID:            "pos:" + pos.String(),
			Kind:          models.PatternPositionPreference,
			Cell:          &p,
			Frequency:     cell.Frequency,
			Effectiveness: cell.SuccessRate,
			Confidence:    saturatingConfidence(cell.Frequency),
			LastSeen:      cell.LastSeen,
			Contexts:      cell.PreferredContexts,
		})
	}
	return patterns
}

// Heatmap exports the current per-cell aggregates.
func (e *Engine) Heatmap() map[models.Position]models.HeatmapCell {
	return e.heatmap.snapshot()
}

// Patterns returns the detected patterns ranked by confidence. The
// slice is a copy; callers may keep it.
func (e *Engine) Patterns() []models.MovementPattern {
	out := make([]models.MovementPattern, len(e.patterns))
	copy(out, e.patterns)
	sortPatterns(out)
	return out
}

// Metrics returns the behavioral profile from the latest analysis pass,
// or the neutral profile before the first one.
func (e *Engine) Metrics() models.BehavioralMetrics {
	return e.metrics
}

// Predict fuses the predictors into up to count ranked candidates for
// the next move under the given context.
func (e *Engine) Predict(ctx models.GameContext, count int) []models.PredictionCandidate {
	recent := e.ledger.recent(e.miner.window - 1)
	return e.predictor.predict(ctx, count, recent, e.patterns, e.heatmap.snapshot())
}

// Hotspots lists the cells visited often enough to count as favored,
// hottest first.
func (e *Engine) Hotspots() []models.Position {
	return e.heatmap.hotspots(minPatternFrequency)
}

// AvoidedCells lists the cells the player rarely or never touches.
func (e *Engine) AvoidedCells() []models.Position {
	return e.heatmap.avoided(minPatternFrequency)
}

// MoveCount returns the number of moves currently held in the ledger.
func (e *Engine) MoveCount() int {
	return e.ledger.count()
}

// TotalRecorded returns the number of accepted moves over the session,
// including ones the ledger has since evicted.
func (e *Engine) TotalRecorded() int {
	return e.recorded
}

// RecentMoves returns the most recent limit moves, oldest first.
func (e *Engine) RecentMoves(limit int) []models.Move {
	return e.ledger.recent(limit)
}

// AnalysisRuns returns how many full analysis passes have completed.
func (e *Engine) AnalysisRuns() int {
	return e.analysisRuns
}

// LastAnalysis returns when the latest full pass finished, zero before
// the first one.
func (e *Engine) LastAnalysis() time.Time {
	return e.lastAnalysis
}

// Board returns the engine's board geometry.
func (e *Engine) Board() models.Board {
	return e.cfg.Board
}

// Reset drops all state back to a fresh engine, keeping configuration.
func (e *Engine) Reset() {
	e.resetState()
	e.log.Info("Engine state reset")
}

func (e *Engine) resetState() {
	e.ledger.reset()
	e.heatmap.reset()
	e.patterns = nil
	e.patternIndex = nil
	e.metrics = models.DefaultBehavioralMetrics()
	e.recorded = 0
	e.analysisRuns = 0
	e.lastAnalysis = time.Time{}
}
