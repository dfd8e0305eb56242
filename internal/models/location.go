package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type Location struct {
	ID      string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name    string `gorm:"column:name;type:text" json:"name"`
	Address string `gorm:"column:address;type:text" json:"address"`

	// e.g. park, market, riverbank, residential
	Category string `gorm:"column:category;type:text;index" json:"category,omitempty"`

	Latitude  float64 `gorm:"column:latitude;type:double precision;index:idx_locations_lat" json:"latitude"`
	Longitude float64 `gorm:"column:longitude;type:double precision;index:idx_locations_lng" json:"longitude"`

	// A (very clean) .. E (heavily littered); empty until first graded report
	Grade        string     `gorm:"column:grade;type:text" json:"grade,omitempty"`
	Summary      string     `gorm:"column:summary;type:text" json:"summary,omitempty"`
	PhotoURL     string     `gorm:"column:photo_url;type:text" json:"photo_url,omitempty"`
	LastGradedAt *time.Time `gorm:"column:last_graded_at;type:timestamptz" json:"last_graded_at,omitempty"`

	Tags pq.StringArray `gorm:"column:tags;type:text[]" json:"tags,omitempty"`

	// embedding of name+address+summary for semantic search
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)" json:"-"`

	ReportCount int            `gorm:"column:report_count;type:integer" json:"report_count"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamptz" json:"updated_at"`
}

func (Location) TableName() string { return "locations" }
