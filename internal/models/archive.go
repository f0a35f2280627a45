package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// SessionArchive is the durable record written when an analysis session
// closes. The full engine snapshot rides along so a session can be
// re-imported later.
type SessionArchive struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	SessionID     uuid.UUID      `json:"session_id" gorm:"type:uuid;not null;index:idx_archive_session"`
	PlayerID      string         `json:"player_id" gorm:"size:100;index:idx_archive_player"`
	BoardRows     int            `json:"board_rows" gorm:"not null"`
	BoardCols     int            `json:"board_cols" gorm:"not null"`
	MovesRecorded int            `json:"moves_recorded" gorm:"not null;default:0"`
	PatternCount  int            `json:"pattern_count" gorm:"not null;default:0"`
	Metrics       datatypes.JSON `json:"metrics" gorm:"type:jsonb"`
	TopPatterns   datatypes.JSON `json:"top_patterns" gorm:"type:jsonb"`
	Snapshot      datatypes.JSON `json:"snapshot,omitempty" gorm:"type:jsonb"`
	ContextTags   pq.StringArray `json:"context_tags" gorm:"type:text[]"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       time.Time      `json:"ended_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// TableName returns the table name for session archives.
func (SessionArchive) TableName() string {
	return "session_archives"
}

// SetMetrics stores the behavioral profile as JSON.
func (a *SessionArchive) SetMetrics(metrics BehavioralMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	a.Metrics = datatypes.JSON(data)
	return nil
}

// GetMetrics decodes the stored behavioral profile.
func (a *SessionArchive) GetMetrics() (BehavioralMetrics, error) {
	var metrics BehavioralMetrics
	if len(a.Metrics) == 0 {
		return DefaultBehavioralMetrics(), nil
	}
	err := json.Unmarshal(a.Metrics, &metrics)
	return metrics, err
}

// SetTopPatterns stores the highest-confidence patterns as JSON.
func (a *SessionArchive) SetTopPatterns(patterns []MovementPattern) error {
	data, err := json.Marshal(patterns)
	if err != nil {
		return err
	}
	a.TopPatterns = datatypes.JSON(data)
	a.PatternCount = len(patterns)
	return nil
}

// GetTopPatterns decodes the stored pattern list.
func (a *SessionArchive) GetTopPatterns() ([]MovementPattern, error) {
	if len(a.TopPatterns) == 0 {
		return nil, nil
	}
	var patterns []MovementPattern
	err := json.Unmarshal(a.TopPatterns, &patterns)
	return patterns, err
}

// Duration returns how long the archived session ran.
func (a *SessionArchive) Duration() time.Duration {
	return a.EndedAt.Sub(a.StartedAt)
}
