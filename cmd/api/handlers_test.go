package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/data/memory"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/identity"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
	"github.com/PaulBabatuyi/support-chat/internal/middleware"
	"github.com/PaulBabatuyi/support-chat/internal/realtime"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testApp struct {
	t      *testing.T
	srv    *httptest.Server
	mem    *memory.Backend
	tokens *auth.JWTManager
}

func newTestApp(t *testing.T, limiter middleware.Limiter) *testApp {
	t.Helper()
	if limiter == nil {
		store := middleware.NewLimiterStore(6000, 100, time.Minute)
		t.Cleanup(store.Stop)
		limiter = store
	}
	mem := memory.New()
	tokens := auth.NewJWTManager("test-secret", time.Hour)

	s := newServer(serverDeps{
		backend: memoryBackend(mem),
		tokens:  tokens,
		limiter: limiter,
		events:  events.Nop{},
		metrics: metrics.New(),
		origins: []string{"http://localhost:3000"},
		log:     zap.NewNop(),
	})
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return &testApp{t: t, srv: srv, mem: mem, tokens: tokens}
}

type account struct {
	id    string
	token string
	user  *data.User
}

func (a *testApp) account(email, role string) account {
	a.t.Helper()
	u, err := a.mem.Users.CreateUser(context.Background(), &data.User{Email: email, Role: role, AccountType: role})
	require.NoError(a.t, err)
	tok, _, err := a.tokens.GenerateToken(u.ID, u.Email, u.Role)
	require.NoError(a.t, err)
	return account{id: u.ID.Hex(), token: tok, user: u}
}

func (a *testApp) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, r)
	require.NoError(a.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// dial opens an authenticated socket and waits until it is registered.
func (a *testApp) dial(token string) *websocket.Conn {
	a.t.Helper()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(a.t, err)
	a.t.Cleanup(func() { conn.Close() })

	frame, err := realtime.Encode("ping", struct{}{})
	require.NoError(a.t, err)
	require.NoError(a.t, conn.WriteMessage(websocket.TextMessage, frame))
	a.expect(conn, realtime.EventError, nil)
	return conn
}

func (a *testApp) expect(conn *websocket.Conn, event string, into any) {
	a.t.Helper()
	for {
		require.NoError(a.t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(a.t, err)
		var f realtime.Frame
		require.NoError(a.t, json.Unmarshal(raw, &f))
		if f.Event != event {
			continue
		}
		if into != nil {
			require.NoError(a.t, json.Unmarshal(f.Data, into))
		}
		return
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)

	resp, err := http.Get(app.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, nil)
	app.do(http.MethodGet, "/chats", "", nil)

	resp, err := http.Get(app.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chat_auth_failures_total{code="AUTH_NO_TOKEN"} 1`)
}

func TestChatsRequireAuthentication(t *testing.T) {
	app := newTestApp(t, nil)

	status, env := app.do(http.MethodGet, "/chats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeNoToken, env.Error.Code)

	status, env = app.do(http.MethodPost, "/chats/initiate", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeInvalidToken, env.Error.Code)
}

func TestSupportRequestIsClaimedOnce(t *testing.T) {
	app := newTestApp(t, nil)
	adminA := app.account("a@support.io", data.RoleAdmin)
	adminB := app.account("b@support.io", data.RoleAdmin)
	client := app.account("client@example.com", data.RoleCorporate)
	app.mem.Profiles.PutCorporate(data.Corporate{
		User:           client.user.ID,
		CompanyName:    "Acme",
		PrimaryContact: data.Contact{Name: "Jane Doe"},
	})

	connA := app.dial(adminA.token)
	connB := app.dial(adminB.token)

	status, env := app.do(http.MethodPost, "/chats/initiate", client.token, nil)
	require.Equal(t, http.StatusCreated, status)
	created := decodeData[chat.ChatView](t, env)
	assert.Equal(t, data.StatusUnclaimed, created.Status)
	assert.Equal(t, "Support Request from Jane Doe", created.Title)
	require.Len(t, created.Participants, 1)
	assert.Equal(t, client.id, created.Participants[0].User.ID.Hex())

	for _, conn := range []*websocket.Conn{connA, connB} {
		var summary chat.Summary
		app.expect(conn, realtime.EventNewUnclaimedChat, &summary)
		assert.Equal(t, created.ID, summary.ID)
	}

	path := "/chats/" + created.ID.Hex() + "/claim"
	status, env = app.do(http.MethodPost, path, adminA.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Chat claimed successfully", env.Message)
	claimed := decodeData[chat.ChatView](t, env)
	assert.Equal(t, data.StatusActive, claimed.Status)
	require.NotNil(t, claimed.AssignedAdmin)
	assert.Equal(t, adminA.id, claimed.AssignedAdmin.ID.Hex())
	assert.Len(t, claimed.Participants, 2)

	status, env = app.do(http.MethodPost, path, adminB.token, nil)
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeChatNotClaimable, env.Error.Code)
	assert.Equal(t, "active", env.Error.Details["status"])

	// the queue is empty again
	status, env = app.do(http.MethodGet, "/chats/unclaimed", adminB.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decodeData[[]chat.ChatView](t, env))
}

func TestAdminInitiate(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.account("a@support.io", data.RoleAdmin)
	client := app.account("c@example.com", data.RoleIndividual)

	status, env := app.do(http.MethodPost, "/chats/initiate", admin.token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeValidation, env.Error.Code)

	status, env = app.do(http.MethodPost, "/chats/initiate", admin.token, map[string]string{"clientId": "nope"})
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeClientNotFound, env.Error.Code)

	body := map[string]string{"clientId": client.id}
	status, env = app.do(http.MethodPost, "/chats/initiate", admin.token, body)
	require.Equal(t, http.StatusCreated, status)
	first := decodeData[chat.ChatView](t, env)
	assert.Equal(t, data.StatusActive, first.Status)

	status, env = app.do(http.MethodPost, "/chats/initiate", admin.token, body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, first.ID, decodeData[chat.ChatView](t, env).ID)
}

func TestUnreadAndHistoryOverREST(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.account("a@support.io", data.RoleAdmin)
	client := app.account("c@example.com", data.RoleIndividual)
	stranger := app.account("s@example.com", data.RoleIndividual)

	_, env := app.do(http.MethodPost, "/chats/initiate", admin.token, map[string]string{"clientId": client.id})
	chatID := decodeData[chat.ChatView](t, env).ID.Hex()

	conn := app.dial(admin.token)
	for _, content := range []string{"first", "second"} {
		frame, err := realtime.Encode(realtime.EventSendMessage, realtime.SendMessage{ChatID: chatID, Content: content})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
		app.expect(conn, realtime.EventChatUpdated, nil)
	}

	status, env := app.do(http.MethodGet, "/chats", client.token, nil)
	require.Equal(t, http.StatusOK, status)
	list := decodeData[[]chat.ChatView](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, identity.AdminLabel, list[0].Title)
	require.NotNil(t, list[0].UnreadCount)
	assert.Equal(t, 2, *list[0].UnreadCount)

	status, env = app.do(http.MethodPut, "/chats/"+chatID+"/read", client.token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	_, env = app.do(http.MethodGet, "/chats", client.token, nil)
	list = decodeData[[]chat.ChatView](t, env)
	assert.Equal(t, 0, *list[0].UnreadCount)

	status, env = app.do(http.MethodGet, "/chats/"+chatID+"/messages", client.token, nil)
	require.Equal(t, http.StatusOK, status)
	msgs := decodeData[[]chat.MessageView](t, env)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, identity.AdminLabel, msgs[0].Sender.Name)

	status, env = app.do(http.MethodGet, "/chats/"+chatID+"/messages", stranger.token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, apperr.CodeForbidden, env.Error.Code)

	status, _ = app.do(http.MethodPut, "/chats/"+chatID+"/read", stranger.token, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestUnclaimedQueueIsAdminOnly(t *testing.T) {
	app := newTestApp(t, nil)
	client := app.account("c@example.com", data.RoleIndividual)

	status, env := app.do(http.MethodGet, "/chats/unclaimed", client.token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeForbidden, env.Error.Code)

	status, _ = app.do(http.MethodPost, "/chats/"+client.id+"/claim", client.token, nil)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestInitiateIsRateLimited(t *testing.T) {
	store := middleware.NewLimiterStore(1, 1, time.Minute)
	t.Cleanup(store.Stop)
	app := newTestApp(t, store)
	client := app.account("c@example.com", data.RoleIndividual)

	status, _ := app.do(http.MethodPost, "/chats/initiate", client.token, nil)
	require.Equal(t, http.StatusCreated, status)

	status, env := app.do(http.MethodPost, "/chats/initiate", client.token, nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, apperr.CodeRateLimited, env.Error.Code)

	chats, err := app.mem.Chats.ListUnclaimed(context.Background())
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	app := newTestApp(t, nil)
	status, env := app.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
