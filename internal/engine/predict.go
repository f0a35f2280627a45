package engine

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/cellclash/insight/internal/models"
)

// fusedCandidate accumulates weighted scores from the three predictors.
type fusedCandidate struct {
	position models.Position
	score    float64
	reasons  []string
}

// predictor fuses sequence continuations, positional preference and
// context heuristics into a ranked list of likely next moves.
type predictor struct {
	board models.Board
	rng   *rand.Rand
}

func newPredictor(board models.Board, rng *rand.Rand) *predictor {
	return &predictor{board: board, rng: rng}
}

// predict returns up to count candidates, padding the tail with random
// untouched cells when the evidence runs short. The result is exactly
// count long whenever the board has that many cells.
func (p *predictor) predict(
	ctx models.GameContext,
	count int,
	recent []models.Move,
	patterns []models.MovementPattern,
	heat map[models.Position]models.HeatmapCell,
) []models.PredictionCandidate {
	if count <= 0 {
		return nil
	}
	if cells := p.board.Cells(); count > cells {
		count = cells
	}

	fused := make(map[models.Position]*fusedCandidate)
	merge := func(pos models.Position, score float64, reason string) {
		if score <= 0 {
			return
		}
		f := fused[pos]
		if f == nil {
			f = &fusedCandidate{position: pos}
			fused[pos] = f
		}
		f.score += score
		for _, r := range f.reasons {
			if r == reason {
				return
			}
		}
		f.reasons = append(f.reasons, reason)
	}

	for pos, score := range p.sequenceScores(recent, patterns) {
		merge(pos, sequenceWeight*score, models.ReasonSequence)
	}
	for pos, score := range p.positionScores(heat) {
		merge(pos, positionWeight*score, models.ReasonPosition)
	}
	for pos, score := range p.contextScores(ctx, recent, heat) {
		merge(pos, contextWeight*score, models.ReasonContext)
	}

	ranked := make([]*fusedCandidate, 0, len(fused))
	for _, f := range fused {
		ranked = append(ranked, f)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].position.Row != ranked[j].position.Row {
			return ranked[i].position.Row < ranked[j].position.Row
		}
		return ranked[i].position.Col < ranked[j].position.Col
	})

	out := make([]models.PredictionCandidate, 0, count)
	taken := make(map[models.Position]bool, count)
	for _, f := range ranked {
		if len(out) == count {
			break
		}
		out = append(out, models.PredictionCandidate{
			Position:    f.position,
			Probability: clamp01(f.score),
			Reasoning:   strings.Join(f.reasons, "+"),
		})
		taken[f.position] = true
	}

	if len(out) < count {
		out = append(out, p.randomFill(count-len(out), taken)...)
	}
	return out
}

// sequenceScores projects the recent tail through mined sequences. A
// pattern contributes its continuation cell scored by confidence scaled
// by how exactly the prefix lines up; only alignments at or above the
// similarity threshold count.
func (p *predictor) sequenceScores(recent []models.Move, patterns []models.MovementPattern) map[models.Position]float64 {
	if len(recent) == 0 {
		return nil
	}
	positions := make([]models.Position, len(recent))
	for i, m := range recent {
		positions[i] = m.Position
	}

	scores := make(map[models.Position]float64)
	for _, pattern := range patterns {
		if pattern.Kind != models.PatternSequence || len(pattern.Sequence) < 2 {
			continue
		}
		similarity := prefixSimilarity(positions, pattern.Sequence)
		if similarity < similarityThreshold {
			continue
		}
		next := pattern.Sequence[len(pattern.Sequence)-1]
		if score := pattern.Confidence * similarity; score > scores[next] {
			scores[next] = score
		}
	}
	return scores
}

// positionScores weights hot cells by their share of recorded moves,
// shaded by how well the cell has worked out for the player.
func (p *predictor) positionScores(heat map[models.Position]models.HeatmapCell) map[models.Position]float64 {
	total := 0
	for _, cell := range heat {
		total += cell.Frequency
	}
	if total == 0 {
		return nil
	}
	scores := make(map[models.Position]float64, len(heat))
	for pos, cell := range heat {
		share := float64(cell.Frequency) / float64(total)
		scores[pos] = share * (0.4 + 0.6*cell.SuccessRate)
	}
	return scores
}

// contextScores prefers cells the player has favored in situations
// tagged like the current one. With no tagged history it falls back to
// plain heuristics: squeezed players stay within reach of their last
// move, trailing ones contest the center, leading ones hold the edges.
func (p *predictor) contextScores(ctx models.GameContext, recent []models.Move, heat map[models.Position]models.HeatmapCell) map[models.Position]float64 {
	tag := ctx.Tag()

	tagged := make(map[models.Position]int)
	total := 0
	for pos, cell := range heat {
		for _, preferred := range cell.PreferredContexts {
			if preferred == tag {
				tagged[pos] = cell.Frequency
				total += cell.Frequency
				break
			}
		}
	}
	if total > 0 {
		scores := make(map[models.Position]float64, len(tagged))
		for pos, freq := range tagged {
			scores[pos] = float64(freq) / float64(total)
		}
		return scores
	}

	scores := make(map[models.Position]float64)
	switch tag {
	case models.ContextPressure:
		if len(recent) > 0 {
			for _, n := range p.board.Neighbors(recent[len(recent)-1].Position) {
				scores[n] = 0.5
			}
		}
	case models.ContextTrailing:
		for _, pos := range p.board.AllPositions() {
			if p.board.Central(pos) {
				scores[pos] = 0.5
			}
		}
	case models.ContextLeading:
		for _, pos := range p.board.AllPositions() {
			if !p.board.Central(pos) {
				scores[pos] = 0.4
			}
		}
	}
	return scores
}

// randomFill pads the candidate list with untaken cells at the floor
// probability.
func (p *predictor) randomFill(need int, taken map[models.Position]bool) []models.PredictionCandidate {
	free := make([]models.Position, 0, p.board.Cells())
	for _, pos := range p.board.AllPositions() {
		if !taken[pos] {
			free = append(free, pos)
		}
	}
	p.rng.Shuffle(len(free), func(i, j int) {
		free[i], free[j] = free[j], free[i]
	})
	if need > len(free) {
		need = len(free)
	}

	out := make([]models.PredictionCandidate, 0, need)
	for _, pos := range free[:need] {
		out = append(out, models.PredictionCandidate{
			Position:    pos,
			Probability: fallbackProbability,
			Reasoning:   models.ReasonRandom,
		})
	}
	return out
}
