package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/coursechat/coursechat-server/internal/auth"
	"github.com/coursechat/coursechat-server/internal/chat"
	"github.com/coursechat/coursechat-server/internal/config"
	"github.com/coursechat/coursechat-server/internal/hub"
)

// NewServer builds the HTTP server: REST API under /api, the socket
// endpoint at /ws and a health probe.
func NewServer(h *hub.Hub, chats *chat.Service, authenticator *auth.Authenticator, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	wsHandler := NewWSHandler(h, chats, authenticator, logger)
	router.GET("/ws", gin.WrapH(wsHandler))

	chatHandlers := NewChatHandlers(h, chats, logger)
	api := router.Group("/api")
	api.Use(AuthMiddleware(authenticator, logger))
	{
		api.GET("/chats", chatHandlers.ListChats)
		api.POST("/chats", chatHandlers.CreateChat)
		api.GET("/chats/:chatId", chatHandlers.GetMessages)
		api.POST("/chats/:chatId/messages", chatHandlers.SendMessage)
		api.PUT("/chats/:chatId/read", chatHandlers.MarkRead)
		api.GET("/chats/:chatId/search", chatHandlers.SearchMessages)
		api.DELETE("/chats/:chatId", chatHandlers.DeleteChat)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
