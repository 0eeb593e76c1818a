package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/identity"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
	"github.com/PaulBabatuyi/support-chat/internal/middleware"
	"github.com/PaulBabatuyi/support-chat/internal/realtime"
	"github.com/PaulBabatuyi/support-chat/internal/response"
)

// Server holds the REST handlers and the websocket endpoint.
type Server struct {
	chats   *chat.Service
	gateway *realtime.Gateway
	ws      *realtime.Handler
	limiter middleware.Limiter
	metrics *metrics.Metrics
	ping    func(context.Context) error
	origins []string
	log     *zap.Logger
}

type serverDeps struct {
	backend *backend
	tokens  *auth.JWTManager
	limiter middleware.Limiter
	events  events.Publisher
	metrics *metrics.Metrics
	origins []string
	log     *zap.Logger
}

// newServer wires the chat service to the realtime engine.
func newServer(d serverDeps) *Server {
	hub := realtime.NewHub(d.metrics, d.log.Named("hub"))
	svc := chat.NewService(chat.Deps{
		Chats:    d.backend.chats,
		Messages: d.backend.messages,
		Users:    d.backend.users,
		Names:    identity.NewResolver(d.backend.users, d.backend.profiles),
		Notifier: realtime.NewEngine(hub, d.log.Named("engine")),
		Events:   d.events,
		Metrics:  d.metrics,
		Logger:   d.log.Named("chat"),
	})
	gw := realtime.NewGateway(d.tokens, d.backend.users, d.metrics)

	return &Server{
		chats:   svc,
		gateway: gw,
		ws:      realtime.NewHandler(gw, hub, svc, d.limiter, d.metrics, d.log.Named("ws"), d.origins),
		limiter: d.limiter,
		metrics: d.metrics,
		ping:    d.backend.ping,
		origins: d.origins,
		log:     d.log,
	}
}

type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i any) error {
	return r.v.Struct(i)
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = response.ErrorHandler(s.log)
	e.Validator = &requestValidator{v: validator.New()}

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(requestLogger(s.log.Named("http")))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     s.origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	e.GET("/ws", echo.WrapHandler(s.ws))

	limited := middleware.RateLimit(s.limiter, actorKeyFunc, s.log)

	chats := e.Group("/chats", s.authenticate)
	chats.POST("/initiate", s.handleInitiate, limited)
	chats.GET("", s.handleListChats)
	chats.GET("/unclaimed", s.handleListUnclaimed)
	chats.GET("/:chatId/messages", s.handleMessages)
	chats.PUT("/:chatId/read", s.handleMarkRead)
	chats.POST("/:chatId/claim", s.handleClaim, limited)

	return e
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
