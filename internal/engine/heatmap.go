package engine

import (
	"sort"
	"time"

	"github.com/cellclash/insight/internal/models"
)

// heatCell accumulates per-cell aggregates with running-mean updates so
// a visit never triggers a rescan of history.
type heatCell struct {
	frequency     int
	avgReactionMs float64
	successRate   float64
	contexts      map[string]int
	lastSeen      time.Time
}

// positionHeatmap tracks visit aggregates for every cell a player has
// touched. It is maintained purely by add/remove deltas: adds come from
// new moves, removes from ledger evictions, so its totals always match
// the moves the ledger currently holds.
type positionHeatmap struct {
	board models.Board
	cells map[models.Position]*heatCell
	total int
}

func newPositionHeatmap(board models.Board) *positionHeatmap {
	return &positionHeatmap{
		board: board,
		cells: make(map[models.Position]*heatCell),
	}
}

// add folds one move into its cell in O(1).
func (h *positionHeatmap) add(m models.Move) {
	cell := h.cells[m.Position]
	if cell == nil {
		cell = &heatCell{contexts: make(map[string]int)}
		h.cells[m.Position] = cell
	}
	cell.frequency++
	n := float64(cell.frequency)
	cell.avgReactionMs += (m.ReactionMs() - cell.avgReactionMs) / n
	cell.successRate += (m.Outcome.SuccessIndicator() - cell.successRate) / n
	cell.contexts[m.Context.Tag()]++
	if m.Timestamp.After(cell.lastSeen) {
		cell.lastSeen = m.Timestamp
	}
	h.total++
}

// remove subtracts an evicted move from its cell, reversing the
// running-mean updates. The last visit to a cell deletes its entry.
func (h *positionHeatmap) remove(m models.Move) {
	cell := h.cells[m.Position]
	if cell == nil {
		return
	}
	if cell.frequency <= 1 {
		delete(h.cells, m.Position)
		h.total--
		return
	}
	n := float64(cell.frequency)
	cell.frequency--
	cell.avgReactionMs = (cell.avgReactionMs*n - m.ReactionMs()) / (n - 1)
	cell.successRate = (cell.successRate*n - m.Outcome.SuccessIndicator()) / (n - 1)
	tag := m.Context.Tag()
	if cell.contexts[tag] > 1 {
		cell.contexts[tag]--
	} else {
		delete(cell.contexts, tag)
	}
	h.total--
}

// totalMoves returns the sum of all cell frequencies.
func (h *positionHeatmap) totalMoves() int {
	return h.total
}

// cell returns the exported aggregate for one position.
func (h *positionHeatmap) cell(p models.Position) (models.HeatmapCell, bool) {
	c := h.cells[p]
	if c == nil {
		return models.HeatmapCell{}, false
	}
	return c.export(), true
}

// snapshot exports the full table keyed by position.
func (h *positionHeatmap) snapshot() map[models.Position]models.HeatmapCell {
	out := make(map[models.Position]models.HeatmapCell, len(h.cells))
	for p, c := range h.cells {
		out[p] = c.export()
	}
	return out
}

// hotspots returns positions visited at least minFrequency times,
// hottest first. Ties break in row-major order for stable output.
func (h *positionHeatmap) hotspots(minFrequency int) []models.Position {
	var spots []models.Position
	for p, c := range h.cells {
		if c.frequency >= minFrequency {
			spots = append(spots, p)
		}
	}
	sort.Slice(spots, func(i, j int) bool {
		fi, fj := h.cells[spots[i]].frequency, h.cells[spots[j]].frequency
		if fi != fj {
			return fi > fj
		}
		if spots[i].Row != spots[j].Row {
			return spots[i].Row < spots[j].Row
		}
		return spots[i].Col < spots[j].Col
	})
	return spots
}

// avoided returns board cells visited fewer than maxFrequency times,
// least visited first.
func (h *positionHeatmap) avoided(maxFrequency int) []models.Position {
	var spots []models.Position
	for _, p := range h.board.AllPositions() {
		freq := 0
		if c := h.cells[p]; c != nil {
			freq = c.frequency
		}
		if freq < maxFrequency {
			spots = append(spots, p)
		}
	}
	sort.Slice(spots, func(i, j int) bool {
		fi, fj := 0, 0
		if c := h.cells[spots[i]]; c != nil {
			fi = c.frequency
		}
		if c := h.cells[spots[j]]; c != nil {
			fj = c.frequency
		}
		if fi != fj {
			return fi < fj
		}
		if spots[i].Row != spots[j].Row {
			return spots[i].Row < spots[j].Row
		}
		return spots[i].Col < spots[j].Col
	})
	return spots
}

// reset drops every cell.
func (h *positionHeatmap) reset() {
	h.cells = make(map[models.Position]*heatCell)
	h.total = 0
}

// export builds the public view of a cell. Preferred contexts are the
// tags covering at least a quarter of the cell's visits, most common
// first.
func (c *heatCell) export() models.HeatmapCell {
	return models.HeatmapCell{
		Frequency:         c.frequency,
		AvgReactionMs:     c.avgReactionMs,
		SuccessRate:       c.successRate,
		PreferredContexts: c.preferredContexts(),
		LastSeen:          c.lastSeen,
	}
}

func (c *heatCell) preferredContexts() []string {
	if len(c.contexts) == 0 {
		return nil
	}
	threshold := c.frequency / 4
	if threshold < 1 {
		threshold = 1
	}
	var tags []string
	for tag, count := range c.contexts {
		if count >= threshold {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool {
		if c.contexts[tags[i]] != c.contexts[tags[j]] {
			return c.contexts[tags[i]] > c.contexts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	return tags
}
