package engine

import (
	"strings"
	"time"

	"github.com/cellclash/insight/internal/models"
)

// sequenceKey builds the canonical pattern ID for a positional n-gram,
// e.g. "seq:1,1>2,2>1,1".
func sequenceKey(positions []models.Position) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = p.String()
	}
	return "seq:" + strings.Join(parts, ">")
}

// sequenceMiner extracts recurring fixed-length position n-grams from
// the move history.
type sequenceMiner struct {
	window       int
	minFrequency int
}

func newSequenceMiner(window, minFrequency int) *sequenceMiner {
	if window < 2 {
		window = sequenceWindow
	}
	if minFrequency < 1 {
		minFrequency = minPatternFrequency
	}
	return &sequenceMiner{window: window, minFrequency: minFrequency}
}

type sequenceStat struct {
	positions []models.Position
	count     int
	successes int
	lastSeen  time.Time
	contexts  map[string]bool
}

// mine slides the window over moves and returns one pattern per n-gram
// that meets the frequency floor. Effectiveness is the success rate of
// the window's final move, the move the sequence leads into.
func (sm *sequenceMiner) mine(moves []models.Move) []models.MovementPattern {
	if len(moves) < sm.window {
		return nil
	}

	stats := make(map[string]*sequenceStat)
	for i := 0; i+sm.window <= len(moves); i++ {
		win := moves[i : i+sm.window]
		positions := make([]models.Position, sm.window)
		for j, m := range win {
			positions[j] = m.Position
		}
		key := sequenceKey(positions)

		st := stats[key]
		if st == nil {
			st = &sequenceStat{positions: positions, contexts: make(map[string]bool)}
			stats[key] = st
		}
		st.count++

		final := win[sm.window-1]
		if final.Outcome.Succeeded() {
			st.successes++
		}
		if final.Timestamp.After(st.lastSeen) {
			st.lastSeen = final.Timestamp
		}
		st.contexts[final.Context.Tag()] = true
	}

	var patterns []models.MovementPattern
	for key, st := range stats {
		if st.count < sm.minFrequency {
			continue
		}
		p := models.MovementPattern{
			ID:            key,
			Kind:          models.PatternSequence,
			Sequence:      st.positions,
			Frequency:     st.count,
			Effectiveness: float64(st.successes) / float64(st.count),
			Confidence:    saturatingConfidence(st.count),
			LastSeen:      st.lastSeen,
		}
		for tag := range st.contexts {
			p.AddContext(tag)
		}
		patterns = append(patterns, p)
	}

	sortPatterns(patterns)
	return patterns
}

// prefixSimilarity scores how well recent positions line up with a
// sequence pattern's prefix, as the matched fraction of the prefix.
func prefixSimilarity(recent []models.Position, pattern []models.Position) float64 {
	prefix := pattern[:len(pattern)-1]
	if len(prefix) == 0 || len(recent) < len(prefix) {
		return 0
	}
	tail := recent[len(recent)-len(prefix):]
	matched := 0
	for i := range prefix {
		if tail[i] == prefix[i] {
			matched++
		}
	}
	return float64(matched) / float64(len(prefix))
}
