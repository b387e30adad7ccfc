package admin

import (
	"github.com/ubuygold/gotarot/internal/auth"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(group *gin.RouterGroup, handler *Handler, adminSecret string) {
	adminGroup := group.Group("/admin")
	adminGroup.Use(auth.AdminAuthMiddleware(adminSecret))
	{
		adminGroup.POST("/dispatch", handler.DispatchHandler)
		adminGroup.GET("/stats", handler.StatsHandler)
		adminGroup.GET("/users/search", handler.SearchHandler)
	}
}
