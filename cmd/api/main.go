package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/PaulBabatuyi/support-chat/internal/auth"
	"github.com/PaulBabatuyi/support-chat/internal/chat"
	"github.com/PaulBabatuyi/support-chat/internal/config"
	"github.com/PaulBabatuyi/support-chat/internal/data"
	"github.com/PaulBabatuyi/support-chat/internal/data/memory"
	"github.com/PaulBabatuyi/support-chat/internal/db"
	"github.com/PaulBabatuyi/support-chat/internal/events"
	"github.com/PaulBabatuyi/support-chat/internal/identity"
	"github.com/PaulBabatuyi/support-chat/internal/logger"
	"github.com/PaulBabatuyi/support-chat/internal/metrics"
	"github.com/PaulBabatuyi/support-chat/internal/middleware"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthCheckInterval = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Development())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = b.close(closeCtx)
	}()

	// JWT_KEYS enables kid-based rotation; JWT_SECRET is the single-key fallback.
	var tokens *auth.JWTManager
	if len(cfg.JWTKeys) > 0 {
		tokens = auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, cfg.JWTTTL)
	} else {
		tokens = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	}

	limiter, stopLimiter := newLimiter(cfg, log)
	defer stopLimiter()

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log.Named("events"))
		log.Info("publishing lifecycle events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	defer func() { _ = publisher.Close() }()

	srv := newServer(serverDeps{
		backend: b,
		tokens:  tokens,
		limiter: limiter,
		events:  publisher,
		metrics: metrics.New(),
		origins: []string{cfg.FrontendURL},
		log:     log,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcOpts []grpc.ServerOption
	if cfg.TLSEnabled() {
		creds, err := credentials.NewServerTLSFromFile(cfg.TLSCert, cfg.TLSKey)
		if err != nil {
			return fmt.Errorf("load TLS certs: %w", err)
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	}
	grpcServer := grpc.NewServer(grpcOpts...)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	var lis net.Listener
	if cfg.GRPCHealthPort != "" {
		if lis, err = net.Listen("tcp", ":"+cfg.GRPCHealthPort); err != nil {
			return fmt.Errorf("listen grpc health: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", httpServer.Addr), zap.Bool("tls", cfg.TLSEnabled()))
		var err error
		if cfg.TLSEnabled() {
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if lis != nil {
		g.Go(func() error {
			log.Info("grpc health server listening", zap.String("addr", lis.Addr().String()))
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			watchHealth(gctx, healthServer, b.ping, log)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

// backend is the set of stores the service runs on.
type backend struct {
	users    chat.Directory
	profiles identity.Profiles
	chats    chat.ChatStore
	messages chat.MessageStore
	ping     func(context.Context) error
	close    func(context.Context) error
}

func openBackend(ctx context.Context, cfg *config.Config, log *zap.Logger) (*backend, error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn("using in-memory stores, data is lost on exit")
		return memoryBackend(memory.New()), nil
	}

	client, err := db.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.CreateIndexes(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	log.Info("connected to mongo", zap.String("database", cfg.MongoDatabase))

	return &backend{
		users:    data.NewUsersStore(client.UsersCollection()),
		profiles: data.NewProfilesStore(client.IndividualsCollection(), client.CorporatesCollection()),
		chats:    data.NewChatsStore(client.ChatsCollection()),
		messages: data.NewMessagesStore(client.MessagesCollection()),
		ping:     client.Ping,
		close:    client.Close,
	}, nil
}

func memoryBackend(m *memory.Backend) *backend {
	return &backend{
		users:    m.Users,
		profiles: m.Profiles,
		chats:    m.Chats,
		messages: m.Messages,
		ping:     func(context.Context) error { return nil },
		close:    func(context.Context) error { return nil },
	}
}

// newLimiter prefers a Redis fixed window so limits hold across replicas.
func newLimiter(cfg *config.Config, log *zap.Logger) (middleware.Limiter, func()) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		log.Info("rate limiting via redis", zap.String("addr", cfg.RedisAddr))
		return middleware.NewRedisLimiter(client, cfg.RateLimitRPM), func() { _ = client.Close() }
	}
	store := middleware.NewLimiterStore(cfg.RateLimitRPM, cfg.RateLimitBurst, time.Minute)
	return store, store.Stop
}

// watchHealth mirrors store reachability into the gRPC health service.
func watchHealth(ctx context.Context, hs *health.Server, ping func(context.Context) error, log *zap.Logger) {
	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := ping(pctx); err != nil {
			log.Warn("store ping failed", zap.Error(err))
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	}

	check()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
