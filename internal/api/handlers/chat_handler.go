package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/petabersih/petabersih/internal/services"
	"github.com/petabersih/petabersih/internal/utils"
)

type ChatHandler struct {
	chats services.ChatService
}

func NewChatHandler(chats services.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type postChatRequest struct {
	DisplayName string `json:"display_name"`
	Text        string `json:"text" binding:"required"`
}

func (h *ChatHandler) Post(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	var req postChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "ChatHandler.Post", "invalid request body", err))
		return
	}
	msg, err := h.chats.Post(c.Request.Context(), userID, c.Param("id"), req.DisplayName, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}

func (h *ChatHandler) ListByLocation(c *gin.Context) {
	messages, err := h.chats.ListByLocation(c.Request.Context(), c.Param("id"), int64(parseLimit(c, 50)))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

// Delete removes a message. Admin only, wired behind RequireAdmin.
func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.chats.Delete(c.Request.Context(), c.Param("messageId")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
