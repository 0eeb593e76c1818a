// Package identity resolves the display names used for chat titles and
// message attribution.
package identity

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/PaulBabatuyi/support-chat/internal/data"
)

// AdminLabel is the name every admin is shown under.
const AdminLabel = "Admin Support"

// Users is the subset of the user directory the resolver reads.
type Users interface {
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
}

// Profiles looks up client profiles by owning user.
type Profiles interface {
	GetIndividualByUser(ctx context.Context, userID bson.ObjectID) (*data.Individual, error)
	GetCorporateByUser(ctx context.Context, userID bson.ObjectID) (*data.Corporate, error)
}

// Resolver turns user ids into display names. Every call reads the
// directory; nothing is cached.
type Resolver struct {
	users    Users
	profiles Profiles
}

// NewResolver returns a Resolver over the given directory and profile stores.
func NewResolver(users Users, profiles Profiles) *Resolver {
	return &Resolver{users: users, profiles: profiles}
}

// DisplayName resolves the name of userID. It returns data.ErrNotFound when
// the account does not exist.
func (r *Resolver) DisplayName(ctx context.Context, userID bson.ObjectID) (string, error) {
	user, err := r.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return r.NameOf(ctx, user)
}

// NameOf resolves the name of an already loaded user. Admins are always
// AdminLabel, individuals use their full name and corporates the name of
// their primary contact. The email is the fallback when no profile (or no
// name on it) exists.
func (r *Resolver) NameOf(ctx context.Context, user *data.User) (string, error) {
	if user.IsAdmin() {
		return AdminLabel, nil
	}

	kind := user.AccountType
	if kind == "" {
		kind = user.Role
	}

	switch kind {
	case data.RoleIndividual:
		p, err := r.profiles.GetIndividualByUser(ctx, user.ID)
		if err != nil {
			return fallback(user, err)
		}
		if p.FullName != "" {
			return p.FullName, nil
		}
	case data.RoleCorporate:
		p, err := r.profiles.GetCorporateByUser(ctx, user.ID)
		if err != nil {
			return fallback(user, err)
		}
		if p.PrimaryContact.Name != "" {
			return p.PrimaryContact.Name, nil
		}
	}
	return user.Email, nil
}

func fallback(user *data.User, err error) (string, error) {
	if errors.Is(err, data.ErrNotFound) {
		return user.Email, nil
	}
	return "", fmt.Errorf("load profile of %s: %w", user.ID.Hex(), err)
}

// SupportTitle is the title of a chat a client opened.
func SupportTitle(clientName string) string {
	return "Support Request from " + clientName
}

// DirectTitle is the title of a chat an admin opened with a client.
func DirectTitle(clientName string) string {
	return "Chat with " + clientName
}
