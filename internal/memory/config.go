package memory

import (
	"fmt"
	"time"

	"github.com/rsm-platform/rsm/internal/config"
)

// Config holds the retrieval policy.
type Config struct {
	// RecentWindow is the number of trailing messages always returned.
	RecentWindow int
	// TopK is the number of chunks requested from the vector store.
	TopK int
	// RetrievalTimeout bounds the similarity search, embedding included.
	RetrievalTimeout time.Duration
	Triggers         Triggers
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecentWindow:     15,
		TopK:             5,
		RetrievalTimeout: 3 * time.Second,
		Triggers:         DefaultTriggers(),
	}
}

// NewConfig merges application settings over DefaultConfig. Zero values keep
// the default.
func NewConfig(settings config.MemoryConfig) (Config, error) {
	cfg := DefaultConfig()
	if settings.RecentWindow > 0 {
		cfg.RecentWindow = settings.RecentWindow
	}
	if settings.TopK > 0 {
		cfg.TopK = settings.TopK
	}
	if settings.RetrievalTimeout > 0 {
		cfg.RetrievalTimeout = settings.RetrievalTimeout
	}
	if settings.TriggersJSON != "" {
		triggers, err := ParseTriggers([]byte(settings.TriggersJSON))
		if err != nil {
			return Config{}, fmt.Errorf("parsing memory triggers: %w", err)
		}
		cfg.Triggers = triggers
	}
	return cfg, nil
}
