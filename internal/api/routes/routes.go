package routes

import (
	"net/http"

	"geofeed/internal/api/handlers"
	"geofeed/internal/api/middleware"
	"geofeed/internal/realtime"
	"geofeed/internal/repository"
	"geofeed/internal/services"

	"github.com/gin-gonic/gin"
)

type Router struct {
	engine *gin.Engine
	hub    *realtime.Hub
	auth   *services.AuthService

	messages repository.MessageRepository
	follows  repository.FollowRepository
}

func NewRouter(
	hub *realtime.Hub,
	auth *services.AuthService,
	messages repository.MessageRepository,
	follows repository.FollowRepository,
) *Router {
	return &Router{
		engine:   gin.New(),
		hub:      hub,
		auth:     auth,
		messages: messages,
		follows:  follows,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())

	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"onlineUsers": r.hub.OnlineUserCount(),
		})
	})

	api := r.engine.Group("/api/v1")

	// The socket authenticates itself over the wire, so no middleware here.
	handlers.NewWSHandler(r.hub).RegisterRoutes(api)

	authed := api.Group("")
	authed.Use(middleware.Auth(r.auth))
	handlers.NewMessageHandler(r.messages, r.hub).RegisterRoutes(authed)
	handlers.NewFollowHandler(r.follows).RegisterRoutes(authed)
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
