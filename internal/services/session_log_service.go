package services

import (
	"context"
	"time"

	mongorepo "github.com/petabersih/petabersih/internal/repositories/mongo"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/utils"
)

type SessionLogService interface {
	Start(ctx context.Context, sessionID, userID, query string, hadImage bool) error
	Finish(ctx context.Context, sessionID, status, errMsg string, startedAt time.Time) error
}

type sessionLogService struct {
	logs mongorepo.SessionLogRepository
	ttl  time.Duration
}

func NewSessionLogService(logs mongorepo.SessionLogRepository, ttl time.Duration) SessionLogService {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &sessionLogService{logs: logs, ttl: ttl}
}

func (s *sessionLogService) Start(ctx context.Context, sessionID, userID, query string, hadImage bool) error {
	const op = "SessionLogService.Start"

	if sessionID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}

	now := time.Now().UTC()
	doc := &models.AgentSessionLog{
		SessionID: sessionID,
		UserID:    userID,
		Query:     query,
		HadImage:  hadImage,
		Status:    "running",
		StartedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.logs.Insert(ctx, doc); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to insert session log", err)
	}
	return nil
}

func (s *sessionLogService) Finish(ctx context.Context, sessionID, status, errMsg string, startedAt time.Time) error {
	const op = "SessionLogService.Finish"

	if sessionID == "" || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "session_id and status are required", nil)
	}

	now := time.Now().UTC()
	dur := now.Sub(startedAt).Milliseconds()
	if dur < 0 {
		dur = 0
	}
	if err := s.logs.Finish(ctx, sessionID, status, errMsg, now, dur); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to finish session log", err)
	}
	return nil
}
