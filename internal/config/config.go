// Package config loads service configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

type Config struct {
	Environment string

	HTTPPort       string
	GRPCHealthPort string
	FrontendURL    string

	StoreBackend  string
	MongoURI      string
	MongoDatabase string

	JWTSecret    string
	JWTKeys      map[string]string
	JWTActiveKid string
	JWTTTL       time.Duration

	RateLimitRPM   int
	RateLimitBurst int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	KafkaTopic   string

	TLSCert    string
	TLSKey     string
	RequireTLS bool
}

// Development reports whether the service runs with development defaults.
func (c *Config) Development() bool {
	return c.Environment == "development"
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_PORT", "5001")
	v.SetDefault("GRPC_HEALTH_PORT", "50051")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("STORE_BACKEND", BackendMongo)
	v.SetDefault("MONGODB_DATABASE", "client_portal")
	v.SetDefault("JWT_TTL", "24h")
	v.SetDefault("RATE_LIMIT_RPM", 60)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_TOPIC", "chat.lifecycle")

	cfg := &Config{
		Environment:    strings.ToLower(v.GetString("ENVIRONMENT")),
		HTTPPort:       v.GetString("HTTP_PORT"),
		GRPCHealthPort: v.GetString("GRPC_HEALTH_PORT"),
		FrontendURL:    v.GetString("FRONTEND_URL"),
		StoreBackend:   strings.ToLower(v.GetString("STORE_BACKEND")),
		MongoURI:       v.GetString("MONGODB_URI"),
		MongoDatabase:  v.GetString("MONGODB_DATABASE"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		JWTActiveKid:   v.GetString("JWT_ACTIVE_KID"),
		JWTTTL:         v.GetDuration("JWT_TTL"),
		RateLimitRPM:   v.GetInt("RATE_LIMIT_RPM"),
		RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		KafkaBrokers:   splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:     v.GetString("KAFKA_TOPIC"),
		TLSCert:        v.GetString("TLS_CERT"),
		TLSKey:         v.GetString("TLS_KEY"),
		RequireTLS:     v.GetBool("REQUIRE_TLS"),
	}

	keys, err := parseKeys(v.GetString("JWT_KEYS"))
	if err != nil {
		return nil, err
	}
	cfg.JWTKeys = keys

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendMongo:
		if c.MongoURI == "" {
			return errors.New("MONGODB_URI must be set")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.JWTSecret == "" && len(c.JWTKeys) == 0 {
		return errors.New("either JWT_SECRET or JWT_KEYS must be set")
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.RequireTLS && !c.TLSEnabled() {
		return errors.New("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}
	if c.RateLimitRPM <= 0 {
		c.RateLimitRPM = 60
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 1
	}
	return nil
}

// parseKeys parses "kid:secret,kid2:secret2".
func parseKeys(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	keys := map[string]string{}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
		}
		keys[parts[0]] = parts[1]
	}
	return keys, nil
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
