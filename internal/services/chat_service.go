package services

import (
	"context"
	"strings"

	mongorepo "github.com/petabersih/petabersih/internal/repositories/mongo"

	"github.com/petabersih/petabersih/internal/models"
	"github.com/petabersih/petabersih/internal/utils"
)

const maxChatMessageLen = 1000

type ChatService interface {
	Post(ctx context.Context, userID, locationID, displayName, text string) (*models.ChatMessage, error)
	ListByLocation(ctx context.Context, locationID string, limit int64) ([]models.ChatMessage, error)
	// Delete removes one message; used by moderation.
	Delete(ctx context.Context, messageID string) error
}

type chatService struct {
	messages mongorepo.ChatRepository
}

func NewChatService(messages mongorepo.ChatRepository) ChatService {
	return &chatService{messages: messages}
}

func (s *chatService) Post(ctx context.Context, userID, locationID, displayName, text string) (*models.ChatMessage, error) {
	const op = "ChatService.Post"

	text = strings.TrimSpace(text)
	if userID == "" || locationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and location_id are required", nil)
	}
	if text == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message text is required", nil)
	}
	if len(text) > maxChatMessageLen {
		return nil, utils.E(utils.CodeInvalidArgument, op, "message is too long", nil)
	}

	msg := &models.ChatMessage{
		LocationID:  locationID,
		UserID:      userID,
		DisplayName: displayName,
		Text:        text,
	}
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to post message", err)
	}
	return msg, nil
}

func (s *chatService) ListByLocation(ctx context.Context, locationID string, limit int64) ([]models.ChatMessage, error) {
	const op = "ChatService.ListByLocation"

	if locationID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "location_id is required", nil)
	}
	rows, err := s.messages.ListByLocation(ctx, locationID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list messages", err)
	}
	return rows, nil
}

func (s *chatService) Delete(ctx context.Context, messageID string) error {
	const op = "ChatService.Delete"

	if messageID == "" {
		return utils.E(utils.CodeInvalidArgument, op, "message id is required", nil)
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		if err == utils.ErrNotFound {
			return utils.E(utils.CodeNotFound, op, "message not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete message", err)
	}
	return nil
}
