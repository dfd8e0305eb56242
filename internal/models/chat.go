package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LocationID string             `bson:"location_id" json:"location_id"`
	UserID     string             `bson:"user_id" json:"user_id"`

	DisplayName string `bson:"display_name,omitempty" json:"display_name,omitempty"`
	Text        string `bson:"text" json:"text"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
