package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
	"github.com/PaulBabatuyi/support-chat/internal/middleware"
)

// eventTimeout bounds the store work of a single inbound event.
const eventTimeout = 10 * time.Second

// unknownEvent labels every event name clients are not expected to send.
const unknownEvent = "unknown"

// Coordinator is the part of the chat service the socket events call.
type Coordinator interface {
	Send(ctx context.Context, actor chat.Actor, chatID, content, tempID string) (*chat.MessageView, error)
	CanJoin(ctx context.Context, actor chat.Actor, chatID string) (bson.ObjectID, error)
	MarkRead(ctx context.Context, actor chat.Actor, chatID string) error
}

// Handler serves the websocket endpoint.
type Handler struct {
	gateway  *Gateway
	hub      *Hub
	chats    Coordinator
	limiter  middleware.Limiter
	validate *validator.Validate
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// NewHandler returns the websocket handler. allowedOrigins lists the browser
// origins allowed to connect; "*" allows any. Requests without an Origin
// header (non-browser clients) are always accepted.
func NewHandler(gw *Gateway, hub *Hub, chats Coordinator, limiter middleware.Limiter, m *metrics.Metrics, log *zap.Logger, allowedOrigins []string) *Handler {
	h := &Handler{
		gateway:  gw,
		hub:      hub,
		chats:    chats,
		limiter:  limiter,
		validate: validator.New(),
		metrics:  m,
		log:      log,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), origin) {
				return true
			}
		}
		return false
	}
}

// ServeHTTP upgrades the connection, authenticates it and runs its event
// loop. A connection that fails authentication gets one error frame and a
// policy-violation close; no event handler ever runs for it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	actor, err := h.gateway.Authenticate(ctx, TokenFromRequest(r))
	cancel()
	if err != nil {
		h.reject(conn, err)
		return
	}

	s := newSession(conn, actor)
	h.hub.JoinPersonal(actor.ID.Hex(), s)
	h.metrics.ConnOpened()
	log := h.log.With(zap.String("user_id", actor.ID.Hex()), zap.String("session_id", s.id))
	log.Info("socket connected", zap.String("role", actor.Role))

	go s.writePump(log)
	h.readLoop(s, log)

	h.hub.Remove(s)
	s.Close()
	h.metrics.ConnClosed()
	log.Info("socket disconnected")
}

func (h *Handler) reject(conn *websocket.Conn, err error) {
	appErr := apperr.As(err)
	if appErr.Code == apperr.CodeInternal {
		h.log.Error("socket authentication failed", zap.Error(err))
	} else {
		h.log.Info("socket authentication rejected", zap.String("code", appErr.Code))
	}

	deadline := time.Now().Add(writeWait)
	_ = conn.SetWriteDeadline(deadline)
	if frame, err := Encode(EventError, ErrorPayload{Message: appErr.Message, Code: appErr.Code}); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, appErr.Code), deadline)
	conn.Close()
}

// readLoop handles the events of one connection strictly in order.
func (h *Handler) readLoop(s *Session, log *zap.Logger) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Debug("socket read failed", zap.Error(err))
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			h.sendError(s, apperr.Validation("malformed frame"))
			continue
		}
		if inbound(f.Event) {
			h.metrics.Event(f.Event)
		} else {
			h.metrics.Event(unknownEvent)
		}
		h.dispatch(s, f, log)
	}
}

func (h *Handler) dispatch(s *Session, f Frame, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	var err error
	switch f.Event {
	case EventJoinChat:
		err = h.joinChat(ctx, s, f.Data)
	case EventLeaveChat:
		err = h.leaveChat(s, f.Data)
	case EventSendMessage:
		err = h.sendMessage(ctx, s, f.Data)
	case EventMarkMessagesRead:
		var p ChatRef
		if err = h.decode(f.Data, &p); err == nil {
			err = h.chats.MarkRead(ctx, s.actor, p.ChatID)
		}
	default:
		err = apperr.Validation("unknown event: " + f.Event)
	}

	if err != nil {
		if appErr := apperr.As(err); appErr.Code == apperr.CodeInternal {
			log.Error("socket event failed", zap.String("event", f.Event), zap.Error(err))
		}
		h.sendError(s, err)
	}
}

func (h *Handler) joinChat(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p ChatRef
	if err := h.decode(raw, &p); err != nil {
		return err
	}
	id, err := h.chats.CanJoin(ctx, s.actor, p.ChatID)
	if err != nil {
		return err
	}
	h.hub.JoinChat(id.Hex(), s)

	frame, err := Encode(EventJoinedChat, ChatRef{ChatID: id.Hex()})
	if err != nil {
		return err
	}
	s.Send(frame)
	return nil
}

func (h *Handler) leaveChat(s *Session, raw json.RawMessage) error {
	var p ChatRef
	if err := h.decode(raw, &p); err != nil {
		return err
	}
	id, err := bson.ObjectIDFromHex(p.ChatID)
	if err != nil {
		return apperr.Validation("invalid chat id")
	}
	h.hub.LeaveChat(id.Hex(), s)
	return nil
}

func (h *Handler) sendMessage(ctx context.Context, s *Session, raw json.RawMessage) error {
	var p SendMessage
	if err := h.decode(raw, &p); err != nil {
		return err
	}
	ok, err := h.limiter.Allow(ctx, EventSendMessage+"|"+s.actor.ID.Hex())
	if err != nil {
		h.log.Warn("rate limiter unavailable", zap.Error(err))
	} else if !ok {
		return apperr.RateLimited()
	}
	_, err = h.chats.Send(ctx, s.actor, p.ChatID, p.Content, p.TempID)
	return err
}

func (h *Handler) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return apperr.Validation("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("malformed payload")
	}
	if err := h.validate.Struct(v); err != nil {
		return apperr.Validation("invalid payload: " + err.Error())
	}
	return nil
}

func (h *Handler) sendError(s *Session, err error) {
	appErr := apperr.As(err)
	msg := appErr.Message
	if appErr.Code == apperr.CodeInternal {
		msg = "Failed to process request."
	}
	frame, ferr := Encode(EventError, ErrorPayload{Message: msg, Code: appErr.Code})
	if ferr != nil {
		return
	}
	s.Send(frame)
}
