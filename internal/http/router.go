package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/vokivo/backend/internal/config"
	"github.com/vokivo/backend/internal/http/handlers"
	"github.com/vokivo/backend/internal/http/middleware"

	_ "github.com/vokivo/backend/docs"
)

func Router(cfg config.Config, h *handlers.Handler, resolver middleware.SessionResolver, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api/v1")
	api.Use(middleware.Auth(resolver))
	{
		api.GET("/conversations", h.ContactsList)
		api.GET("/conversations/:phoneNumber", h.ConversationDetails)
		api.GET("/conversations/:phoneNumber/history", h.ConversationHistory)
		api.GET("/conversations/:phoneNumber/updates", h.ConversationUpdates)
		api.DELETE("/conversations/:phoneNumber/watch", h.ConversationUnwatch)
		api.GET("/calls/:callSid/recordings", h.CallRecordings)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
