package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}
	if !strings.Contains(c.DB.TenantNameTemplate, "%d") {
		errs = append(errs, "DB_TENANT_TEMPLATE must contain %d for the organization id")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	switch c.Embedding.Provider {
	case "http":
		if c.Embedding.APIKey == "" {
			errs = append(errs, "EMBEDDING_API_KEY is required for the http embedding provider")
		}
	case "hash":
		slog.Warn("EMBEDDING_PROVIDER=hash produces non-semantic vectors; use for development only")
	default:
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be http or hash, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimensions < 1 {
		errs = append(errs, "EMBEDDING_DIMENSIONS must be positive")
	}

	if c.Vector.Backend != "pgvector" && c.Vector.Backend != "chromem" {
		errs = append(errs, fmt.Sprintf("VECTOR_BACKEND must be pgvector or chromem, got %q", c.Vector.Backend))
	}

	if c.Memory.RecentWindow < 1 {
		errs = append(errs, "MEMORY_RECENT_WINDOW must be at least 1")
	}
	if c.Memory.TopK < 1 {
		errs = append(errs, "MEMORY_TOP_K must be at least 1")
	}
	if c.Memory.RetrievalTimeout <= 0 {
		errs = append(errs, "MEMORY_RETRIEVAL_TIMEOUT must be positive")
	}

	if c.Indexer.Overlap < 0 {
		errs = append(errs, "INDEXER_OVERLAP must not be negative")
	}
	if c.Indexer.Overlap >= c.Indexer.ChunkSize {
		errs = append(errs, "INDEXER_OVERLAP must be smaller than INDEXER_CHUNK_SIZE")
	}

	// NATS is optional: without it appended conversations are not indexed.
	if c.NATS.URL == "" && c.Indexer.Enabled {
		slog.Warn("NATS_URL is empty, conversation indexing is disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
