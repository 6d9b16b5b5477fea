package handlers

import (
	"geofeed/internal/realtime"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *realtime.Hub
}

func NewWSHandler(hub *realtime.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

func (h *WSHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request; identity arrives later over the
// socket via the authenticate event.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	realtime.ServeWS(h.hub, c.Writer, c.Request)
}
