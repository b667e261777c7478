package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/loopback-ai/helpdesk-service/api"
	"github.com/loopback-ai/helpdesk-service/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathSwagger = "/swagger"
)

// New собирает маршруты сервиса. Пути корневые (без /api/v1): этого контракта
// ждут дашборд админа, портал пользователя и бот-релей.
func New(ticketHandler *handler.TicketHandler, kbHandler *handler.KnowledgeHandler) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	// Дашборд и портал — браузерные SPA с других origin.
	r.Use(cors.Default())

	r.GET(PathHealth, gin.WrapF(handler.Health))
	r.GET(PathReady, gin.WrapF(handler.Ready))
	r.GET(PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, PathSwagger+"/") })
	r.GET(PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = PathSwagger + "/index.html"
			c.Request.RequestURI = PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/openapi.json"))(c)
	})

	r.GET("/tickets", ticketHandler.List)
	r.POST("/tickets", ticketHandler.Create)
	r.DELETE("/tickets/:id", ticketHandler.Delete)
	r.POST("/tickets/:id/ask", ticketHandler.Ask)
	r.POST("/tickets/:id/resolve", ticketHandler.SelfResolve)
	r.POST("/tickets/:id/ack_notification", ticketHandler.AckNotification)

	r.POST("/broadcast", ticketHandler.Broadcast)
	r.POST("/broadcast_all", ticketHandler.BroadcastAll)

	r.POST("/chat/analyze", ticketHandler.AnalyzeChat)

	r.GET("/knowledge-base", kbHandler.List)
	r.POST("/knowledge-base", kbHandler.Create)
	r.PUT("/knowledge-base/:id", kbHandler.Update)
	r.DELETE("/knowledge-base/:id", kbHandler.Delete)

	return r
}
