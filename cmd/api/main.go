package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rsm-platform/rsm/internal/api"
	"github.com/rsm-platform/rsm/internal/auth"
	"github.com/rsm-platform/rsm/internal/chunker"
	"github.com/rsm-platform/rsm/internal/config"
	"github.com/rsm-platform/rsm/internal/conversation"
	"github.com/rsm-platform/rsm/internal/database"
	"github.com/rsm-platform/rsm/internal/embedding"
	"github.com/rsm-platform/rsm/internal/indexer"
	"github.com/rsm-platform/rsm/internal/memory"
	mw "github.com/rsm-platform/rsm/internal/middleware"
	inats "github.com/rsm-platform/rsm/internal/nats"
	iredis "github.com/rsm-platform/rsm/internal/redis"
	"github.com/rsm-platform/rsm/internal/server"
	"github.com/rsm-platform/rsm/internal/vectorstore"
)

var errNATSDisconnected = errors.New("nats disconnected")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PostgreSQL: the master database holds the vector index, each
	// organization has its own database for conversation logs.
	if cfg.DB.AutoMigrate {
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MasterMigrations); err != nil {
			slog.Error("running master migrations", "error", err)
			os.Exit(1)
		}
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		slog.Error("connecting to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	tenants := database.NewTenantPools(cfg.DB)
	defer tenants.Close()

	// Redis
	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Error("connecting to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// NATS (optional)
	var natsClient *inats.Client
	if cfg.NATS.URL != "" {
		natsClient, err = inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			slog.Error("connecting to nats", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
	}

	// Embeddings
	var base embedding.Embedder
	switch cfg.Embedding.Provider {
	case "hash":
		base = embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
	default:
		base = embedding.NewHTTPEmbedder(cfg.Embedding)
	}
	embedder, err := embedding.NewCachedEmbedder(base, cfg.Embedding.CacheSize)
	if err != nil {
		slog.Error("creating embedding cache", "error", err)
		os.Exit(1)
	}
	defer embedder.Close()

	// Vector store, built on first use so a slow backend never blocks startup.
	vectors := vectorstore.NewProvider(func(ctx context.Context) (*vectorstore.Store, error) {
		var index vectorstore.Index
		switch cfg.Vector.Backend {
		case "chromem":
			index = vectorstore.NewChromemIndex()
		default:
			index = vectorstore.NewPgVectorIndex(pool)
		}
		slog.Info("vector store ready", "backend", cfg.Vector.Backend, "model", embedder.Model())
		return vectorstore.NewStore(embedder, index), nil
	})

	// Conversations
	convStore := conversation.NewCachedStore(conversation.NewPostgresStore(tenants), redisClient, cfg.Memory.CacheTTL)
	var convPublisher conversation.Publisher
	var publisher *inats.Publisher
	if natsClient != nil {
		publisher = inats.NewPublisher(natsClient.JetStream())
		convPublisher = publisher
	}
	convSvc := conversation.NewService(convStore, convPublisher)
	convHandler := conversation.NewHandler(convSvc)

	// Memory
	memCfg, err := memory.NewConfig(cfg.Memory)
	if err != nil {
		slog.Error("loading memory config", "error", err)
		os.Exit(1)
	}
	retriever := memory.NewRetriever(memCfg, convStore, vectors)
	memHandler := memory.NewHandler(retriever)

	// Indexer
	if natsClient != nil && cfg.Indexer.Enabled {
		c, err := chunker.New(cfg.Indexer.ChunkSize, cfg.Indexer.Overlap)
		if err != nil {
			slog.Error("creating chunker", "error", err)
			os.Exit(1)
		}
		ix := indexer.New(convStore, vectors, c, redisClient, publisher)
		consumerMgr := inats.NewConsumerManager(natsClient.JetStream())
		go func() {
			if err := ix.Start(ctx, consumerMgr); err != nil {
				slog.Error("indexer stopped", "error", err)
			}
		}()
	}

	// Auth
	jwtManager := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry, cfg.JWT.Issuer)

	var rateLimiter func(http.Handler) http.Handler
	if cfg.RateLimit.Enabled {
		rl := mw.NewRateLimiter(redisClient, cfg.RateLimit.MaxReqs, cfg.RateLimit.WindowSec, organizationKey)
		rateLimiter = rl.Middleware
	}

	healthChecks := []api.HealthCheck{
		{Name: "database", Check: func(ctx context.Context) error { return database.HealthCheck(ctx, pool) }},
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{Name: "nats"},
	}
	if natsClient != nil {
		healthChecks[2].Check = func(context.Context) error {
			if !natsClient.Healthy() {
				return errNATSDisconnected
			}
			return nil
		}
	}

	router := api.NewRouter(api.RouterConfig{
		CORS:         cfg.CORS,
		RateLimiter:  rateLimiter,
		HealthChecks: healthChecks,
	}, api.HandlerSet{
		ListMessages:   convHandler.List,
		AppendMessages: convHandler.Append,
		MemoryContext:  memHandler.Context,
		AuthMiddleware: auth.Middleware(jwtManager),
	})

	srv := server.New(cfg.Server, router)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// organizationKey buckets rate limits per organization. It runs after the
// auth middleware, so claims are always present on API routes.
func organizationKey(r *http.Request) string {
	if claims := auth.GetUserClaims(r.Context()); claims != nil {
		return "org:" + strconv.FormatInt(claims.OrganizationID, 10)
	}
	return mw.ClientIPKey(r)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
