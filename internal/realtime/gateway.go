package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
)

// UserLookup resolves token subjects against the user directory.
type UserLookup interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
}

// Gateway turns a bearer token into a verified Actor. It backs both the
// websocket handshake and the REST auth middleware.
type Gateway struct {
	tokens  *auth.JWTManager
	users   UserLookup
	metrics *metrics.Metrics
}

// NewGateway returns a Gateway.
func NewGateway(tokens *auth.JWTManager, users UserLookup, m *metrics.Metrics) *Gateway {
	return &Gateway{tokens: tokens, users: users, metrics: m}
}

// Authenticate verifies token and loads the account it names. The role comes
// from the directory, not from the token, so a demoted admin loses access as
// soon as the account changes.
func (g *Gateway) Authenticate(ctx context.Context, token string) (chat.Actor, error) {
	actor, err := g.authenticate(ctx, token)
	if err != nil {
		g.metrics.AuthFailure(apperr.As(err).Code)
	}
	return actor, err
}

func (g *Gateway) authenticate(ctx context.Context, token string) (chat.Actor, error) {
	if token == "" {
		return chat.Actor{}, apperr.NoToken()
	}
	claims, err := g.tokens.VerifyToken(token)
	if err != nil {
		return chat.Actor{}, apperr.InvalidToken(err)
	}
	id, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return chat.Actor{}, apperr.InvalidToken(err)
	}

	user, err := g.users.GetUserByID(ctx, id)
	if errors.Is(err, data.ErrNotFound) {
		return chat.Actor{}, apperr.UserNotFound()
	}
	if err != nil {
		return chat.Actor{}, apperr.Internal("failed to load user", fmt.Errorf("load user %s: %w", id.Hex(), err))
	}
	return chat.Actor{ID: user.ID, Role: user.Role, Email: user.Email}, nil
}

// TokenFromRequest reads "Authorization: Bearer <token>" and falls back to the
// token query parameter, which is the only option for browser websockets.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
