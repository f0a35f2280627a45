package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellclash/insight/internal/models"
)

const snapshotSchemaVersion = 1

// Snapshot import errors.
var (
	ErrSnapshotCorrupt = errors.New("corrupt snapshot")
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
	ErrSnapshotBoard   = errors.New("snapshot board does not match engine")
)

// Snapshot is the portable export of an engine's state. Moves carry
// everything needed to rebuild the heatmap, so only the analysis
// results ride alongside them.
type Snapshot struct {
	SchemaVersion int                      `json:"schema_version"`
	ExportedAt    time.Time                `json:"exported_at"`
	Board         models.Board             `json:"board"`
	TotalRecorded int                      `json:"total_recorded"`
	AnalysisRuns  int                      `json:"analysis_runs"`
	Moves         []models.Move            `json:"moves"`
	Patterns      []models.MovementPattern `json:"patterns"`
	Metrics       models.BehavioralMetrics `json:"metrics"`
}

// Export serializes the full engine state as JSON.
func (e *Engine) Export() ([]byte, error) {
	snap := Snapshot{
		SchemaVersion: snapshotSchemaVersion,
		ExportedAt:    time.Now().UTC(),
		Board:         e.cfg.Board,
		TotalRecorded: e.recorded,
		AnalysisRuns:  e.analysisRuns,
		Moves:         e.ledger.recent(0),
		Patterns:      e.Patterns(),
		Metrics:       e.metrics,
	}
	return json.Marshal(snap)
}

// Import replaces the engine state with a previously exported snapshot.
// The blob must parse, carry a supported schema version, match the
// engine's board and contain only valid moves; otherwise the engine is
// left untouched.
func (e *Engine) Import(blob []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if snap.SchemaVersion != snapshotSchemaVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrSnapshotVersion, snap.SchemaVersion, snapshotSchemaVersion)
	}
	if snap.Board != e.cfg.Board {
		return fmt.Errorf("%w: snapshot %dx%d, engine %dx%d",
			ErrSnapshotBoard, snap.Board.Rows, snap.Board.Cols, e.cfg.Board.Rows, e.cfg.Board.Cols)
	}
	for i, m := range snap.Moves {
		if err := m.Validate(e.cfg.Board); err != nil {
			return fmt.Errorf("%w: move %d: %v", ErrSnapshotCorrupt, i, err)
		}
	}

	e.resetState()
	for _, m := range snap.Moves {
		if evicted, wasEvicted := e.ledger.record(m); wasEvicted {
			e.heatmap.remove(evicted)
		}
		e.heatmap.add(m)
	}
	e.recorded = snap.TotalRecorded
	if e.recorded < len(snap.Moves) {
		e.recorded = len(snap.Moves)
	}
	e.analysisRuns = snap.AnalysisRuns
	e.patterns = snap.Patterns
	e.reindexPatterns()
	e.metrics = snap.Metrics

	e.log.WithFields(logrus.Fields{
		"moves":    len(snap.Moves),
		"patterns": len(snap.Patterns),
	}).Info("Snapshot imported")
	return nil
}
