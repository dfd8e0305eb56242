package models

import (
	"time"

	"gorm.io/datatypes"
)

type Report struct {
	ID         string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID     string `gorm:"column:user_id;type:uuid;index" json:"user_id"`
	LocationID string `gorm:"column:location_id;type:uuid;index" json:"location_id"`

	PhotoURL string `gorm:"column:photo_url;type:text" json:"photo_url"`

	// grading pipeline: pending|processing|done|failed
	Status     string  `gorm:"column:status;type:text" json:"status"`
	Grade      string  `gorm:"column:grade;type:text" json:"grade,omitempty"`
	Confidence float64 `gorm:"column:confidence;type:double precision" json:"confidence,omitempty"`
	Summary    string  `gorm:"column:summary;type:text" json:"summary,omitempty"`

	ProcessingTimeMS int64          `gorm:"column:processing_time_ms;type:bigint" json:"processing_time_ms,omitempty"`
	Metadata         datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	SubmittedAt time.Time  `gorm:"column:submitted_at;type:timestamptz;index" json:"submitted_at"`
	GradedAt    *time.Time `gorm:"column:graded_at;type:timestamptz" json:"graded_at,omitempty"`
}

func (Report) TableName() string { return "reports" }
