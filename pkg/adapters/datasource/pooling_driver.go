package datasource

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
)

// ErrPoolingDriverClosed is returned when registering with a closed driver.
var ErrPoolingDriverClosed = errors.New("pooling driver closed")

// PoolingDriverConfig holds configuration for the pooling driver
type PoolingDriverConfig struct {
	// Registerer receives a sql.DBStats collector per registered pool.
	// Nil disables metrics.
	Registerer prometheus.Registerer
}

// PoolingDriver is a registry mapping pool names to connection pools.
// Connection sources register their pool here on build and deregister it on stop.
type PoolingDriver struct {
	mu         sync.RWMutex
	pools      map[string]*ManagedPool
	registerer prometheus.Registerer
	stopped    bool
	logger     *zap.Logger
}

var (
	defaultDriver     *PoolingDriver
	defaultDriverOnce sync.Once
)

// DefaultPoolingDriver returns the process-wide pooling driver used by
// connection sources that are not given one explicitly.
func DefaultPoolingDriver() *PoolingDriver {
	defaultDriverOnce.Do(func() {
		defaultDriver = NewPoolingDriver(PoolingDriverConfig{}, zap.NewNop())
	})
	return defaultDriver
}

// NewPoolingDriver creates an empty pooling driver.
func NewPoolingDriver(cfg PoolingDriverConfig, logger *zap.Logger) *PoolingDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolingDriver{
		pools:      make(map[string]*ManagedPool),
		registerer: cfg.Registerer,
		logger:     logger,
	}
}

// RegisterPool registers pool under its name.
// Returns apperrors.ErrPoolExists if a pool with that name is still registered.
func (d *PoolingDriver) RegisterPool(pool *ManagedPool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return ErrPoolingDriverClosed
	}
	if _, exists := d.pools[pool.name]; exists {
		return fmt.Errorf("%w: %q", apperrors.ErrPoolExists, pool.name)
	}

	if d.registerer != nil {
		collector := collectors.NewDBStatsCollector(pool.db, pool.name)
		if err := d.registerer.Register(collector); err != nil {
			// Metrics are best effort; a clash must not keep the pool from working.
			d.logger.Warn("failed to register pool metrics",
				zap.String("pool", pool.name),
				zap.Error(err),
			)
		} else {
			pool.collector = collector
		}
	}

	d.pools[pool.name] = pool
	d.logger.Info("registered connection pool",
		zap.String("pool", pool.name),
		zap.String("type", pool.dbType),
		zap.Int("totalPools", len(d.pools)),
	)
	return nil
}

// Pool returns the pool registered under name.
func (d *PoolingDriver) Pool(name string) (*ManagedPool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	pool, ok := d.pools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrPoolNotFound, name)
	}
	return pool, nil
}

// ClosePool deregisters the named pool and closes it. Closing a name that is
// not registered is a no-op so teardown can be repeated.
func (d *PoolingDriver) ClosePool(name string) error {
	d.mu.Lock()
	pool, ok := d.pools[name]
	if ok {
		delete(d.pools, name)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}
	return d.closeManaged(pool)
}

// DeregisterPool removes pool from the driver only if it is still the pool
// registered under its name, then closes it. A pool that was already removed
// (and whose name may now belong to another pool) is closed without touching
// the registry or the metrics of its successor.
func (d *PoolingDriver) DeregisterPool(pool *ManagedPool) error {
	d.mu.Lock()
	owned := d.pools[pool.name] == pool
	if owned {
		delete(d.pools, pool.name)
	}
	d.mu.Unlock()

	if owned {
		return d.closeManaged(pool)
	}
	return pool.Close()
}

// Registered reports whether pool is the pool currently registered under its name.
func (d *PoolingDriver) Registered(pool *ManagedPool) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.pools[pool.name] == pool
}

// closeManaged releases metrics and idle connections for a pool that has
// already been removed from the map. Caller must NOT hold d.mu.
func (d *PoolingDriver) closeManaged(pool *ManagedPool) error {
	if pool.collector != nil && d.registerer != nil {
		d.registerer.Unregister(pool.collector)
	}
	err := pool.Close()
	d.logger.Debug("closed connection pool",
		zap.String("pool", pool.name),
		zap.Duration("age", time.Since(pool.createdAt)),
	)
	return err
}

// PoolNames returns the registered pool names, sorted.
func (d *PoolingDriver) PoolNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.pools))
	for name := range d.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered pool. This method is idempotent and safe to
// call multiple times; later RegisterPool calls fail.
func (d *PoolingDriver) Close() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	pools := d.pools
	d.pools = make(map[string]*ManagedPool)
	d.mu.Unlock()

	var errs []error
	for _, pool := range pools {
		if err := d.closeManaged(pool); err != nil {
			errs = append(errs, fmt.Errorf("close pool %q: %w", pool.name, err))
		}
	}
	d.logger.Info("pooling driver closed", zap.Int("closedPools", len(pools)))
	return errors.Join(errs...)
}

// GetStats returns statistics about every registered pool.
// Safe to call concurrently.
func (d *PoolingDriver) GetStats() PoolingStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	now := time.Now()
	stats := PoolingStats{
		TotalPools: len(d.pools),
		Pools:      make(map[string]PoolStats, len(d.pools)),
	}
	for name, pool := range d.pools {
		stats.Pools[name] = newPoolStats(pool, now)
	}
	return stats
}

func newPoolStats(pool *ManagedPool, now time.Time) PoolStats {
	s := pool.db.Stats()
	return PoolStats{
		Name:               pool.name,
		Type:               pool.dbType,
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		MaxLifetimeClosed:  s.MaxLifetimeClosed,
		AgeSeconds:         int(now.Sub(pool.createdAt).Seconds()),
	}
}

// PoolStats describes one registered pool.
type PoolStats struct {
	Name               string `json:"name" yaml:"name"`
	Type               string `json:"type" yaml:"type"`
	MaxOpenConnections int    `json:"max_open_connections" yaml:"max_open_connections"`
	OpenConnections    int    `json:"open_connections" yaml:"open_connections"`
	InUse              int    `json:"in_use" yaml:"in_use"`
	Idle               int    `json:"idle" yaml:"idle"`
	WaitCount          int64  `json:"wait_count" yaml:"wait_count"`
	MaxLifetimeClosed  int64  `json:"max_lifetime_closed" yaml:"max_lifetime_closed"`
	AgeSeconds         int    `json:"age_seconds" yaml:"age_seconds"`
}

// PoolingStats contains statistics about the pooling driver state.
type PoolingStats struct {
	TotalPools int                  `json:"total_pools" yaml:"total_pools"`
	Pools      map[string]PoolStats `json:"pools" yaml:"pools"`
}
