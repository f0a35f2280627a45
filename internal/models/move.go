package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Validation errors returned by Move.Validate. All of them wrap
// ErrInvalidMove so callers can match the whole family with errors.Is.
var (
	ErrInvalidMove      = errors.New("invalid move")
	ErrOutOfBounds      = fmt.Errorf("%w: position outside board bounds", ErrInvalidMove)
	ErrNegativeReaction = fmt.Errorf("%w: negative reaction time", ErrInvalidMove)
	ErrUnknownOutcome   = fmt.Errorf("%w: unknown outcome", ErrInvalidMove)
	ErrInvalidContext   = fmt.Errorf("%w: malformed game context", ErrInvalidMove)
)

// PressureClockSec is the clock threshold below which a move counts as
// made under time pressure.
const PressureClockSec = 10.0

// Context tags attached to moves and heatmap cells.
const (
	ContextPressure = "pressure"
	ContextTrailing = "trailing"
	ContextLeading  = "leading"
	ContextBalanced = "balanced"
)

// Position identifies a single board cell by zero-based row and column.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// String renders the position as "row,col".
func (p Position) String() string {
	return strconv.Itoa(p.Row) + "," + strconv.Itoa(p.Col)
}

// MarshalText encodes the position as "row,col" so it can serve as a JSON
// object key in heatmap payloads.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses the "row,col" form produced by MarshalText.
func (p *Position) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ",")
	if len(parts) != 2 {
		return fmt.Errorf("parse position %q: want \"row,col\"", text)
	}
	row, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return fmt.Errorf("parse position row %q: %w", parts[0], err)
	}
	col, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("parse position col %q: %w", parts[1], err)
	}
	p.Row, p.Col = row, col
	return nil
}

// Board describes the playable grid.
type Board struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// DefaultBoard is the standard 4x4 CellClash grid.
func DefaultBoard() Board {
	return Board{Rows: 4, Cols: 4}
}

// Cells returns the total number of cells on the board.
func (b Board) Cells() int {
	return b.Rows * b.Cols
}

// Contains reports whether p lies on the board.
func (b Board) Contains(p Position) bool {
	return p.Row >= 0 && p.Row < b.Rows && p.Col >= 0 && p.Col < b.Cols
}

// Central reports whether p sits in the centered band spanning the middle
// half of each axis. On a 4x4 board that is rows 1-2 by cols 1-2.
func (b Board) Central(p Position) bool {
	cr := float64(b.Rows-1) / 2
	cc := float64(b.Cols-1) / 2
	return math.Abs(float64(p.Row)-cr) <= float64(b.Rows)/4 &&
		math.Abs(float64(p.Col)-cc) <= float64(b.Cols)/4
}

// Neighbors returns the in-bounds cells adjacent to p, including
// diagonals, in row-major order.
func (b Board) Neighbors(p Position) []Position {
	neighbors := make([]Position, 0, 8)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			n := Position{Row: p.Row + dr, Col: p.Col + dc}
			if b.Contains(n) {
				neighbors = append(neighbors, n)
			}
		}
	}
	return neighbors
}

// AllPositions returns every cell on the board in row-major order.
func (b Board) AllPositions() []Position {
	cells := make([]Position, 0, b.Cells())
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			cells = append(cells, Position{Row: r, Col: c})
		}
	}
	return cells
}

// Validate checks the board has positive dimensions.
func (b Board) Validate() error {
	if b.Rows <= 0 || b.Cols <= 0 {
		return fmt.Errorf("board dimensions must be positive, got %dx%d", b.Rows, b.Cols)
	}
	return nil
}

// Outcome records how a move worked out for the player.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeBlocked    Outcome = "blocked"
	OutcomeSuboptimal Outcome = "suboptimal"
	OutcomeBrilliant  Outcome = "brilliant"
)

// Valid reports whether o is one of the known outcome values.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeBlocked, OutcomeSuboptimal, OutcomeBrilliant:
		return true
	}
	return false
}

// Succeeded reports whether the outcome counts toward success rates.
// Brilliant moves are successes; suboptimal ones are not.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeBrilliant
}

// SuccessIndicator returns 1 for successful outcomes and 0 otherwise,
// for use in running averages.
func (o Outcome) SuccessIndicator() float64 {
	if o.Succeeded() {
		return 1
	}
	return 0
}

// GameContext captures the game situation at the instant a move was made.
type GameContext struct {
	PlayerScore   int     `json:"player_score"`
	OpponentScore int     `json:"opponent_score"`
	MoveNumber    int     `json:"move_number"`
	TimeRemaining float64 `json:"time_remaining_sec"`
	Difficulty    string  `json:"difficulty,omitempty"`
}

// Trailing reports whether the player is behind on score.
func (gc GameContext) Trailing() bool {
	return gc.PlayerScore < gc.OpponentScore
}

// Leading reports whether the player is ahead on score.
func (gc GameContext) Leading() bool {
	return gc.PlayerScore > gc.OpponentScore
}

// UnderPressure reports whether the move was made with a low clock or
// while trailing.
func (gc GameContext) UnderPressure() bool {
	return gc.TimeRemaining < PressureClockSec || gc.Trailing()
}

// Tag buckets the context into a single label. A low clock wins over the
// score-based tags so a trailing low-clock move tags as pressure.
func (gc GameContext) Tag() string {
	switch {
	case gc.TimeRemaining < PressureClockSec:
		return ContextPressure
	case gc.Trailing():
		return ContextTrailing
	case gc.Leading():
		return ContextLeading
	default:
		return ContextBalanced
	}
}

// Validate rejects contexts with negative scores, move numbers or clocks.
func (gc GameContext) Validate() error {
	if gc.PlayerScore < 0 || gc.OpponentScore < 0 {
		return fmt.Errorf("%w: negative score", ErrInvalidContext)
	}
	if gc.MoveNumber < 0 {
		return fmt.Errorf("%w: negative move number", ErrInvalidContext)
	}
	if gc.TimeRemaining < 0 {
		return fmt.Errorf("%w: negative time remaining", ErrInvalidContext)
	}
	return nil
}

// Move is one recorded player action.
type Move struct {
	Position  Position      `json:"position"`
	Timestamp time.Time     `json:"timestamp"`
	Reaction  time.Duration `json:"reaction_ns"`
	Context   GameContext   `json:"context"`
	Outcome   Outcome       `json:"outcome"`
}

// ReactionMs returns the reaction time in milliseconds.
func (m Move) ReactionMs() float64 {
	return float64(m.Reaction) / float64(time.Millisecond)
}

// Validate checks the move against the board geometry and field ranges.
func (m Move) Validate(board Board) error {
	if !board.Contains(m.Position) {
		return fmt.Errorf("%w: %s on %dx%d board", ErrOutOfBounds, m.Position, board.Rows, board.Cols)
	}
	if m.Reaction < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeReaction, m.Reaction)
	}
	if !m.Outcome.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, m.Outcome)
	}
	return m.Context.Validate()
}
