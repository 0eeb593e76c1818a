package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/db"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
	"github.com/PaulBabatuyi/support-chat/internal/middleware"
)

func TestConcurrentClaimsAgainstMongo(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	client, err := db.New(ctx, uri, "support_chat_it_"+bson.NewObjectID().Hex())
	require.NoError(t, err)
	require.NoError(t, client.CreateIndexes(ctx))
	defer func() {
		_ = client.UsersCollection().Database().Drop(context.Background())
		_ = client.Close(context.Background())
	}()

	users := data.NewUsersStore(client.UsersCollection())
	b := &backend{
		users:    users,
		profiles: data.NewProfilesStore(client.IndividualsCollection(), client.CorporatesCollection()),
		chats:    data.NewChatsStore(client.ChatsCollection()),
		messages: data.NewMessagesStore(client.MessagesCollection()),
		ping:     client.Ping,
		close:    client.Close,
	}
	tokens := auth.NewJWTManager("test-secret", time.Hour)
	limiter := middleware.NewLimiterStore(6000, 100, time.Minute)
	defer limiter.Stop()

	s := newServer(serverDeps{
		backend: b,
		tokens:  tokens,
		limiter: limiter,
		events:  events.Nop{},
		metrics: metrics.New(),
		origins: []string{"*"},
		log:     zap.NewNop(),
	})
	srv := httptest.NewServer(s.routes())
	defer srv.Close()
	app := &testApp{t: t, srv: srv, tokens: tokens}

	mint := func(email, role string) string {
		u, err := users.CreateUser(ctx, &data.User{Email: email, Role: role, AccountType: role})
		require.NoError(t, err)
		tok, _, err := tokens.GenerateToken(u.ID, u.Email, u.Role)
		require.NoError(t, err)
		return tok
	}

	clientToken := mint("client@example.com", data.RoleIndividual)
	status, env := app.do(http.MethodPost, "/chats/initiate", clientToken, nil)
	require.Equal(t, http.StatusCreated, status)
	chatID := decodeData[chat.ChatView](t, env).ID.Hex()

	const admins = 8
	adminTokens := make([]string, admins)
	for i := range adminTokens {
		adminTokens[i] = mint(fmt.Sprintf("admin%d@support.io", i), data.RoleAdmin)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = map[int]int{}
	)
	for _, tok := range adminTokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/chats/"+chatID+"/claim", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			mu.Lock()
			codes[resp.StatusCode]++
			mu.Unlock()
		}(tok)
	}
	wg.Wait()

	assert.Equal(t, 1, codes[http.StatusOK])
	assert.Equal(t, admins-1, codes[http.StatusConflict])

	id, err := bson.ObjectIDFromHex(chatID)
	require.NoError(t, err)
	stored, err := b.chats.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data.StatusActive, stored.Status)
	assert.Len(t, stored.Participants, 2)
}
