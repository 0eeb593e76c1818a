package main

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/realtime"
)

// context key for the authenticated actor
const actorContextKey = "actor"

// authenticate resolves the bearer token to an actor and rejects the request
// with 401 when it cannot.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := s.gateway.Authenticate(c.Request().Context(), realtime.TokenFromRequest(c.Request()))
		if err != nil {
			return err
		}
		c.Set(actorContextKey, actor)
		return next(c)
	}
}

// actorFrom returns the actor set by authenticate.
func actorFrom(c echo.Context) chat.Actor {
	a, _ := c.Get(actorContextKey).(chat.Actor)
	return a
}

func actorKeyFunc(c echo.Context) string {
	a, ok := c.Get(actorContextKey).(chat.Actor)
	if !ok {
		return ""
	}
	return a.ID.Hex()
}

// requestLogger logs every request with the caller's identity when known.
func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID),
			}
			if a, ok := c.Get(actorContextKey).(chat.Actor); ok {
				fields = append(fields, zap.String("user_id", a.ID.Hex()), zap.String("role", a.Role))
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			log.Info("request", fields...)
			return nil
		},
	})
}
