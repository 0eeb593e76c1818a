// Command create-admin seeds an admin account and prints a signed token for
// it. Running it again for the same email leaves the account untouched.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/config"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/db"
	"github.com/PaulBabatuyi/support-chat/internal/logger"
	"github.com/PaulBabatuyi/support-chat/internal/normalize"
)

type userStore interface {
	CreateUser(ctx context.Context, user *data.User) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
}

var errNotAdmin = errors.New("account exists without the admin role")

func main() {
	email := flag.String("email", "admin@test.com", "admin email")
	password := flag.String("password", "", "admin password (required for a new account)")
	verify := flag.Bool("verify", false, "check -password against an existing account")
	flag.Parse()

	if err := run(*email, *password, *verify, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "create-admin: %v\n", err)
		os.Exit(1)
	}
}

func run(email, password string, verify bool, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.StoreBackend != config.BackendMongo {
		return fmt.Errorf("STORE_BACKEND=%s keeps no data; create-admin needs mongo", cfg.StoreBackend)
	}
	log, err := logger.New(cfg.Development())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := db.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() { _ = client.Close(context.Background()) }()
	if err := client.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	user, created, err := ensureAdmin(ctx, data.NewUsersStore(client.UsersCollection()), email, password, verify)
	if err != nil {
		return err
	}
	if created {
		log.Info("admin created", zap.String("user_id", user.ID.Hex()), zap.String("email", user.Email))
	} else {
		log.Info("admin already exists", zap.String("user_id", user.ID.Hex()), zap.String("email", user.Email))
	}

	var tokens *auth.JWTManager
	if len(cfg.JWTKeys) > 0 {
		tokens = auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.JWTTTL)
	} else {
		tokens = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	}
	token, expiresAt, err := tokens.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}

	fmt.Fprintf(out, "id:      %s\nemail:   %s\nrole:    %s\ntoken:   %s\nexpires: %s\n",
		user.ID.Hex(), user.Email, user.Role, token, expiresAt.UTC().Format(time.RFC3339))
	return nil
}

// ensureAdmin returns the admin account for email, creating it when missing.
// An existing account is never modified; with verify set, password must match
// its stored hash.
func ensureAdmin(ctx context.Context, users userStore, email, password string, verify bool) (*data.User, bool, error) {
	email = normalize.Email(email)
	if email == "" {
		return nil, false, errors.New("email is required")
	}

	existing, err := users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !existing.IsAdmin() {
			return nil, false, fmt.Errorf("%s: %w (role %q)", email, errNotAdmin, existing.Role)
		}
		if verify {
			if err := auth.CheckPassword(existing.Password, password); err != nil {
				return nil, false, fmt.Errorf("password does not match %s: %w", email, err)
			}
		}
		return existing, false, nil
	case !errors.Is(err, data.ErrNotFound):
		return nil, false, fmt.Errorf("look up %s: %w", email, err)
	}

	if password == "" {
		return nil, false, errors.New("password is required to create an admin")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, fmt.Errorf("hash password: %w", err)
	}
	user, err := users.CreateUser(ctx, &data.User{
		Email:       email,
		Password:    hash,
		Role:        data.RoleAdmin,
		AccountType: data.RoleAdmin,
		IsVerified:  true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	return user, true, nil
}
