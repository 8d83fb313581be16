package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/presence-gateway/internal/auth"
	"github.com/vovakirdan/presence-gateway/internal/config"
	"github.com/vovakirdan/presence-gateway/internal/core"
	"github.com/vovakirdan/presence-gateway/internal/metrics"
	"github.com/vovakirdan/presence-gateway/internal/service/conversations"
	"github.com/vovakirdan/presence-gateway/internal/service/messages"
	"github.com/vovakirdan/presence-gateway/internal/service/users"
)

// Deps are the collaborators served over HTTP.
type Deps struct {
	Gateway  *core.Gateway
	Messages *messages.Service
	Users    *users.Service
	Convs    *conversations.Service
	Metrics  *metrics.Metrics
	JWT      *auth.JWTConfig
}

// NewServer builds an HTTP server with the REST API and the WebSocket gateway.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	handlers := NewAPIHandlers(deps, logger)

	router.GET("/health", handlers.Health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api")
	api.POST("/users/login", handlers.Login)
	api.GET("/username/:username/taken", handlers.UsernameTaken)

	protected := api.Group("")
	if deps.JWT.Enabled() {
		protected.Use(AuthMiddleware(deps.JWT, logger))
	}
	protected.GET("/users", handlers.ListUsers)
	protected.GET("/users/:id", handlers.GetUser)
	protected.POST("/conversations", handlers.CreateConversation)
	protected.POST("/conversations/find-or-create", handlers.FindOrCreateConversation)
	protected.GET("/conversations/user/:userId", handlers.UserConversations)
	protected.GET("/conversations/:id/messages", handlers.ListMessages)
	protected.POST("/messages", handlers.CreateMessage)
	protected.GET("/presence", handlers.OnlineUsers)
	protected.GET("/presence/:userId", handlers.UserPresence)
	protected.GET("/rooms/:id", handlers.RoomInfo)

	// The websocket route stays outside gin so the connection can be hijacked
	// before gin writes a response.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Gateway, deps.JWT, WSOptions{
		OriginPatterns:     cfg.AllowedOrigins,
		ReadLimit:          cfg.MaxMessageBytes,
		EventBuffer:        cfg.EventBuffer,
		MaxEventsPerMinute: cfg.MaxEventsPerMinute,
	}, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
