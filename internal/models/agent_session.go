package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AgentSessionLog records one agent turn for later inspection. Documents
// expire via a TTL index on expires_at.
type AgentSessionLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID string             `bson:"session_id" json:"session_id"`
	UserID    string             `bson:"user_id" json:"user_id"`

	Query    string `bson:"query" json:"query"`
	HadImage bool   `bson:"had_image" json:"had_image"`

	Status string `bson:"status" json:"status"` // running|completed|failed
	Error  string `bson:"error,omitempty" json:"error,omitempty"`

	StartedAt  time.Time  `bson:"started_at" json:"started_at"`
	FinishedAt *time.Time `bson:"finished_at,omitempty" json:"finished_at,omitempty"`
	DurationMS int64      `bson:"duration_ms,omitempty" json:"duration_ms,omitempty"`

	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}
