package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Log       LogConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	Embedding EmbeddingConfig
	Vector    VectorConfig
	Memory    MemoryConfig
	Indexer   IndexerConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32

	// TenantNameTemplate is a fmt template receiving the organization id,
	// e.g. "rsm_tenant_%d".
	TenantNameTemplate string
	TenantMaxConns     int32

	MasterMigrations string
	TenantMigrations string
	AutoMigrate      bool
}

func (c DBConfig) DSN() string {
	return c.dsnFor(c.Name)
}

// TenantDSN returns the connection string of an organization's database.
func (c DBConfig) TenantDSN(organizationID int64) string {
	return c.dsnFor(fmt.Sprintf(c.TenantNameTemplate, organizationID))
}

func (c DBConfig) dsnFor(name string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	MaxAge         int
}

type RateLimitConfig struct {
	Enabled   bool
	MaxReqs   int
	WindowSec int
}

type EmbeddingConfig struct {
	Provider   string // "http" or "hash"
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
	CacheSize  int64
}

type VectorConfig struct {
	Backend string // "pgvector" or "chromem"
}

type MemoryConfig struct {
	RecentWindow     int
	TopK             int
	RetrievalTimeout time.Duration
	// TriggersJSON optionally replaces the default trigger categories,
	// e.g. [{"category":"explicit","pattern":"remember|recall"}].
	TriggersJSON string
	CacheTTL     time.Duration
}

type IndexerConfig struct {
	Enabled   bool
	ChunkSize int
	Overlap   int
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:               k.String("db.host"),
			Port:               k.Int("db.port"),
			User:               k.String("db.user"),
			Password:           k.String("db.password"),
			Name:               k.String("db.name"),
			SSLMode:            k.String("db.sslmode"),
			MaxConns:           int32(k.Int("db.max.conns")),
			TenantNameTemplate: k.String("db.tenant.template"),
			TenantMaxConns:     int32(k.Int("db.tenant.max.conns")),
			MasterMigrations:   k.String("db.master.migrations"),
			TenantMigrations:   k.String("db.tenant.migrations"),
			AutoMigrate:        k.Bool("db.auto.migrate"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
			Issuer:       k.String("jwt.issuer"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
			AllowedMethods: splitList(k.String("cors.allowed.methods")),
			MaxAge:         k.Int("cors.max.age"),
		},
		RateLimit: RateLimitConfig{
			Enabled:   k.String("ratelimit.enabled") != "false",
			MaxReqs:   k.Int("ratelimit.max.reqs"),
			WindowSec: k.Int("ratelimit.window.sec"),
		},
		Embedding: EmbeddingConfig{
			Provider:   k.String("embedding.provider"),
			BaseURL:    k.String("embedding.base.url"),
			APIKey:     k.String("embedding.api.key"),
			Model:      k.String("embedding.model"),
			Dimensions: k.Int("embedding.dimensions"),
			MaxRetries: k.Int("embedding.max.retries"),
			CacheSize:  k.Int64("embedding.cache.size"),
		},
		Vector: VectorConfig{
			Backend: k.String("vector.backend"),
		},
		Memory: MemoryConfig{
			RecentWindow: k.Int("memory.recent.window"),
			TopK:         k.Int("memory.top.k"),
			TriggersJSON: k.String("memory.triggers"),
		},
		Indexer: IndexerConfig{
			Enabled:   k.String("indexer.enabled") != "false",
			ChunkSize: k.Int("indexer.chunk.size"),
			Overlap:   k.Int("indexer.overlap"),
		},
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "rsm"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "rsm_master"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.TenantNameTemplate == "" {
		cfg.DB.TenantNameTemplate = "rsm_tenant_%d"
	}
	if cfg.DB.TenantMaxConns == 0 {
		cfg.DB.TenantMaxConns = 5
	}
	if cfg.DB.MasterMigrations == "" {
		cfg.DB.MasterMigrations = "migrations/master"
	}
	if cfg.DB.TenantMigrations == "" {
		cfg.DB.TenantMigrations = "migrations/tenant"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "rsm"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if len(cfg.CORS.AllowedMethods) == 0 {
		cfg.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = 300
	}
	if cfg.RateLimit.MaxReqs == 0 {
		cfg.RateLimit.MaxReqs = 120
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "http"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10_000
	}
	if cfg.Vector.Backend == "" {
		cfg.Vector.Backend = "pgvector"
	}
	if cfg.Memory.RecentWindow == 0 {
		cfg.Memory.RecentWindow = 15
	}
	if cfg.Memory.TopK == 0 {
		cfg.Memory.TopK = 5
	}
	if cfg.Indexer.ChunkSize == 0 {
		cfg.Indexer.ChunkSize = 400
	}
	// Zero is a valid overlap, so only a missing key takes the default.
	if !k.Exists("indexer.overlap") {
		cfg.Indexer.Overlap = 50
	}

	// Parse durations
	cfg.JWT.AccessExpiry, err = durationOr(k.String("jwt.access.expiry"), "15m")
	if err != nil {
		return nil, fmt.Errorf("parsing jwt access expiry: %w", err)
	}
	cfg.Embedding.Timeout, err = durationOr(k.String("embedding.timeout"), "30s")
	if err != nil {
		return nil, fmt.Errorf("parsing embedding timeout: %w", err)
	}
	cfg.Memory.RetrievalTimeout, err = durationOr(k.String("memory.retrieval.timeout"), "3s")
	if err != nil {
		return nil, fmt.Errorf("parsing memory retrieval timeout: %w", err)
	}
	cfg.Memory.CacheTTL, err = durationOr(k.String("memory.cache.ttl"), "1h")
	if err != nil {
		return nil, fmt.Errorf("parsing memory cache ttl: %w", err)
	}

	return cfg, nil
}

func durationOr(s, fallback string) (time.Duration, error) {
	if s == "" {
		s = fallback
	}
	return time.ParseDuration(s)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
