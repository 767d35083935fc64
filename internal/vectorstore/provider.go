package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// BuildFunc constructs a Store.
type BuildFunc func(ctx context.Context) (*Store, error)

// Provider hands out one Store per process, built on first use. A failed
// build is not cached, so the next call tries again.
type Provider struct {
	build BuildFunc

	mu    sync.Mutex
	store *Store
}

func NewProvider(build BuildFunc) *Provider {
	return &Provider{build: build}
}

// Store returns the shared Store, building it if needed.
func (p *Provider) Store(ctx context.Context) (*Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.store != nil {
		return p.store, nil
	}
	s, err := p.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}
	p.store = s
	return s, nil
}

func (p *Provider) Retrieve(ctx context.Context, query string, filter Filter, k int) ([]Chunk, error) {
	s, err := p.Store(ctx)
	if err != nil {
		return nil, err
	}
	return s.Retrieve(ctx, query, filter, k)
}

func (p *Provider) AddDocuments(ctx context.Context, docs []Document) (int, error) {
	s, err := p.Store(ctx)
	if err != nil {
		return 0, err
	}
	return s.AddDocuments(ctx, docs)
}
