package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petabersih/petabersih/internal/models"
)

type SessionLogRepository interface {
	Insert(ctx context.Context, log *models.AgentSessionLog) error
	Finish(ctx context.Context, sessionID, status, errMsg string, finishedAt time.Time, durationMS int64) error
}

type sessionLogRepo struct {
	col *mongo.Collection
}

func NewSessionLogRepo(db *mongo.Database) SessionLogRepository {
	return &sessionLogRepo{col: db.Collection("agent_sessions")}
}

func (r *sessionLogRepo) Insert(ctx context.Context, log *models.AgentSessionLog) error {
	if log.StartedAt.IsZero() {
		log.StartedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, log)
	return err
}

func (r *sessionLogRepo) Finish(ctx context.Context, sessionID, status, errMsg string, finishedAt time.Time, durationMS int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{
			"status":      status,
			"error":       errMsg,
			"finished_at": finishedAt,
			"duration_ms": durationMS,
		}},
	)
	return err
}
