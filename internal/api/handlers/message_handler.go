package handlers

import (
	"errors"
	"strconv"
	"time"

	"log/slog"

	"geofeed/internal/api/middleware"
	"geofeed/internal/realtime"
	"geofeed/internal/repository"
	"geofeed/pkg/response"

	"github.com/gin-gonic/gin"
)

const defaultFeedLimit = 100

// MessageHandler serves the pull side of the push-to-invalidate,
// pull-to-reconcile loop, plus the state-changing writes (like toggle,
// delete) that emit the change signal.
type MessageHandler struct {
	messages repository.MessageRepository
	hub      *realtime.Hub
}

func NewMessageHandler(messages repository.MessageRepository, hub *realtime.Hub) *MessageHandler {
	return &MessageHandler{messages: messages, hub: hub}
}

func (h *MessageHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/messages", h.ListMessages)
	r.POST("/messages/:id/like", h.ToggleLike)
	r.DELETE("/messages/:id", h.DeleteMessage)
}

// ListMessages returns the canonical feed. Clients call it after every
// refreshMessages signal; ?since= narrows the pull to what they miss.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	limit := defaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			response.BadRequest(c, "limit must be between 1 and 500")
			return
		}
		limit = parsed
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "since must be RFC3339")
			return
		}
		messages, err := h.messages.ListSince(c.Request.Context(), since, limit)
		if err != nil {
			slog.Error("Failed to list messages since", "since", since, "error", err)
			response.InternalError(c, "failed to load messages")
			return
		}
		response.OK(c, messages)
		return
	}

	messages, err := h.messages.ListRecent(c.Request.Context(), limit)
	if err != nil {
		slog.Error("Failed to list messages", "error", err)
		response.InternalError(c, "failed to load messages")
		return
	}
	response.OK(c, messages)
}

func (h *MessageHandler) ToggleLike(c *gin.Context) {
	messageID := c.Param("id")
	userID := middleware.UserID(c)

	liked, err := h.messages.ToggleLike(c.Request.Context(), messageID, userID)
	if err != nil {
		slog.Error("Failed to toggle like", "messageID", messageID, "userID", userID, "error", err)
		response.InternalError(c, "failed to toggle like")
		return
	}

	// The write is committed; tell every client its cached feed is stale.
	h.hub.ChangeCommitted("")

	response.OK(c, gin.H{"messageId": messageID, "liked": liked})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID := c.Param("id")
	userID := middleware.UserID(c)

	err := h.messages.Delete(c.Request.Context(), messageID, userID)
	if errors.Is(err, repository.ErrMessageNotFound) {
		response.NotFound(c, "message not found")
		return
	}
	if err != nil {
		slog.Error("Failed to delete message", "messageID", messageID, "userID", userID, "error", err)
		response.InternalError(c, "failed to delete message")
		return
	}

	h.hub.ChangeCommitted("")

	response.OK(c, gin.H{"messageId": messageID, "deleted": true})
}
