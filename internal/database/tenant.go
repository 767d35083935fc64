package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/singleflight"

	"github.com/rsm-platform/rsm/internal/config"
)

// tenantOpenTimeout bounds one migrate+connect of a tenant database. The open
// is shared by every caller waiting on that tenant, so it does not follow any
// single caller's deadline.
const tenantOpenTimeout = 30 * time.Second

var (
	// ErrUnknownTenant is returned for organization ids that cannot own a database.
	ErrUnknownTenant = errors.New("unknown tenant")

	errPoolsClosed = errors.New("tenant pools closed")
)

// TenantPools lazily opens one connection pool per organization database.
// Opening one tenant never blocks lookups or opens of another. Pools stay
// open until Close.
type TenantPools struct {
	cfg     config.DBConfig
	migrate func(dsn, path string) error
	open    func(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error)

	opening singleflight.Group

	mu     sync.RWMutex
	pools  map[int64]*pgxpool.Pool
	closed bool
}

// NewTenantPools creates a tenant pool registry. When cfg.AutoMigrate is set,
// tenant migrations run the first time an organization's pool is opened.
func NewTenantPools(cfg config.DBConfig) *TenantPools {
	return &TenantPools{
		cfg:     cfg,
		migrate: RunMigrations,
		open:    openPool,
		pools:   make(map[int64]*pgxpool.Pool),
	}
}

// Pool returns the pool of the organization's database, opening it on first
// use. Concurrent first calls for one organization share a single open; each
// caller stops waiting when its own ctx is done.
func (t *TenantPools) Pool(ctx context.Context, organizationID int64) (*pgxpool.Pool, error) {
	if organizationID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTenant, organizationID)
	}

	if pool, ok := t.cached(organizationID); ok {
		return pool, nil
	}

	openCtx := context.WithoutCancel(ctx)
	ch := t.opening.DoChan(strconv.FormatInt(organizationID, 10), func() (any, error) {
		return t.openTenant(openCtx, organizationID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*pgxpool.Pool), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for tenant %d: %w", organizationID, ctx.Err())
	}
}

func (t *TenantPools) cached(organizationID int64) (*pgxpool.Pool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pool, ok := t.pools[organizationID]
	return pool, ok
}

func (t *TenantPools) openTenant(ctx context.Context, organizationID int64) (*pgxpool.Pool, error) {
	// A previous open may have finished between the lookup and this call.
	if pool, ok := t.cached(organizationID); ok {
		return pool, nil
	}

	ctx, cancel := context.WithTimeout(ctx, tenantOpenTimeout)
	defer cancel()

	dsn := t.cfg.TenantDSN(organizationID)
	if t.cfg.AutoMigrate {
		if err := t.migrate(dsn, t.cfg.TenantMigrations); err != nil {
			return nil, fmt.Errorf("migrating tenant %d: %w", organizationID, err)
		}
	}

	pool, err := t.open(ctx, dsn, t.cfg.TenantMaxConns)
	if err != nil {
		return nil, fmt.Errorf("opening tenant %d: %w", organizationID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		pool.Close()
		return nil, errPoolsClosed
	}
	t.pools[organizationID] = pool
	slog.Info("opened tenant database", "organization_id", organizationID)
	return pool, nil
}

// Close closes every opened tenant pool. Later opens fail.
func (t *TenantPools) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id, pool := range t.pools {
		pool.Close()
		delete(t.pools, id)
	}
}
