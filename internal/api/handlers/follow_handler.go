package handlers

import (
	"log/slog"

	"geofeed/internal/api/middleware"
	"geofeed/internal/repository"
	"geofeed/pkg/response"

	"github.com/gin-gonic/gin"
)

type FollowHandler struct {
	follows repository.FollowRepository
}

func NewFollowHandler(follows repository.FollowRepository) *FollowHandler {
	return &FollowHandler{follows: follows}
}

func (h *FollowHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/users/:id/follow", h.Follow)
	r.DELETE("/users/:id/follow", h.Unfollow)
}

func (h *FollowHandler) Follow(c *gin.Context) {
	followeeID := c.Param("id")
	followerID := middleware.UserID(c)

	if err := h.follows.Follow(c.Request.Context(), followerID, followeeID); err != nil {
		slog.Error("Failed to follow", "followerID", followerID, "followeeID", followeeID, "error", err)
		response.BadRequest(c, err.Error())
		return
	}
	response.OK(c, gin.H{"following": followeeID})
}

func (h *FollowHandler) Unfollow(c *gin.Context) {
	followeeID := c.Param("id")
	followerID := middleware.UserID(c)

	if err := h.follows.Unfollow(c.Request.Context(), followerID, followeeID); err != nil {
		slog.Error("Failed to unfollow", "followerID", followerID, "followeeID", followeeID, "error", err)
		response.InternalError(c, "failed to unfollow")
		return
	}
	response.OK(c, gin.H{"unfollowed": followeeID})
}
