package engine

import "github.com/cellclash/insight/internal/models"

// moveLedger is a fixed-capacity ring buffer over recorded moves. Once
// full, each new move evicts the oldest one; the eviction is reported to
// the caller so downstream aggregates can subtract the departed move.
type moveLedger struct {
	buf  []models.Move
	head int
	size int
}

func newMoveLedger(capacity int) *moveLedger {
	if capacity <= 0 {
		capacity = 1
	}
	return &moveLedger{buf: make([]models.Move, capacity)}
}

// record appends m, evicting the oldest move when the buffer is full.
func (l *moveLedger) record(m models.Move) (evicted models.Move, wasEvicted bool) {
	if l.size < len(l.buf) {
		l.buf[(l.head+l.size)%len(l.buf)] = m
		l.size++
		return models.Move{}, false
	}
	evicted = l.buf[l.head]
	l.buf[l.head] = m
	l.head = (l.head + 1) % len(l.buf)
	return evicted, true
}

// count returns the number of moves currently held.
func (l *moveLedger) count() int {
	return l.size
}

// capacity returns the maximum number of moves the ledger can hold.
func (l *moveLedger) capacity() int {
	return len(l.buf)
}

// at returns the i-th move in record order, 0 being the oldest held.
func (l *moveLedger) at(i int) models.Move {
	return l.buf[(l.head+i)%len(l.buf)]
}

// recent returns the most recent limit moves in record order. A limit
// of zero or less returns everything held.
func (l *moveLedger) recent(limit int) []models.Move {
	if limit <= 0 || limit > l.size {
		limit = l.size
	}
	out := make([]models.Move, limit)
	start := l.size - limit
	for i := 0; i < limit; i++ {
		out[i] = l.at(start + i)
	}
	return out
}

// last returns the newest move and whether one exists.
func (l *moveLedger) last() (models.Move, bool) {
	if l.size == 0 {
		return models.Move{}, false
	}
	return l.at(l.size - 1), true
}

// reset drops all held moves, keeping the capacity.
func (l *moveLedger) reset() {
	l.head = 0
	l.size = 0
}
