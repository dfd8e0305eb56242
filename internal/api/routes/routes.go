package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/petabersih/petabersih/internal/api/handlers"
	"github.com/petabersih/petabersih/internal/api/middleware"
)

type Deps struct {
	Agent    *handlers.AgentHandler
	Report   *handlers.ReportHandler
	Location *handlers.LocationHandler
	Chat     *handlers.ChatHandler
	WS       *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/agent/session", d.Agent.Submit)
	auth.GET("/agent/session", d.Agent.Stream)

	auth.POST("/reports", d.Report.Submit)
	auth.GET("/reports/mine", d.Report.ListMine)
	auth.GET("/reports/:id", d.Report.Get)

	auth.GET("/locations", d.Location.Search)
	auth.GET("/locations/search", d.Location.Search)
	auth.GET("/locations/nearby", d.Location.Nearby)
	auth.GET("/locations/facilities", d.Location.NearbyFacilities)
	auth.GET("/locations/:id", d.Location.Get)
	auth.GET("/locations/:id/reports", d.Report.ListByLocation)
	auth.GET("/locations/:id/chat", d.Chat.ListByLocation)
	auth.POST("/locations/:id/chat", d.Chat.Post)
	auth.POST("/locations", middleware.RequireAdmin(), d.Location.Create)

	auth.DELETE("/chat/:messageId", middleware.RequireAdmin(), d.Chat.Delete)

	// WebSocket
	auth.GET("/ws/reports/:report_id", d.WS.ReportStatusWS)
}
