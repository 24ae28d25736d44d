// Package connsource provides a connection source for database log sinks
// backed by a named pool in a PoolingDriver.
package connsource

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

// ConnectionSource hands out database connections to a log sink.
type ConnectionSource interface {
	GetConnection(ctx context.Context) (*Conn, error)
	Dialect() datasource.Dialect
	Stop() error
}

var _ ConnectionSource = (*PoolingDriverSource)(nil)

// Option customizes New.
type Option func(*options)

type options struct {
	driver *datasource.PoolingDriver
	logger *zap.Logger
}

// WithPoolingDriver registers the pool with d instead of the default driver.
func WithPoolingDriver(d *datasource.PoolingDriver) Option {
	return func(o *options) { o.driver = d }
}

// WithLogger sets the logger used by the source.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// PoolingDriverSource is a ConnectionSource whose connections come from a
// pool registered with a PoolingDriver for the lifetime of the source.
type PoolingDriverSource struct {
	poolName   string
	connString string
	dbType     string
	dialect    datasource.Dialect
	factory    FactoryConfig
	driver     *datasource.PoolingDriver
	pool       *datasource.ManagedPool
	logger     *zap.Logger

	mu          sync.Mutex
	stopped     bool
	outstanding map[*Conn]struct{}
}

// New builds a source from cfg and registers its pool. The credential
// buffers in cfg are zeroed before New returns, whether or not it succeeds.
// No connection is opened until GetConnection is called.
func New(ctx context.Context, cfg Config, opts ...Option) (*PoolingDriverSource, error) {
	defer cfg.wipe()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.driver == nil {
		o.driver = datasource.DefaultPoolingDriver()
	}

	props, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	poolName := cfg.PoolName
	if poolName == "" {
		poolName = DefaultPoolNamePrefix + uuid.NewString()
	}

	req := datasource.ConnectRequest{
		ConnectionString: cfg.ConnectionString,
		Credentials:      cfg.credentials(props),
		Properties:       props,
		Logger:           o.logger,
	}

	db, reg, err := datasource.OpenPool(ctx, req, cfg.Factory.poolConfig())
	if err != nil {
		if errors.Is(err, apperrors.ErrConfiguration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}

	pool := datasource.NewManagedPool(poolName, reg.Info.Type, db)
	if err := o.driver.RegisterPool(pool); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}

	s := &PoolingDriverSource{
		poolName:    poolName,
		connString:  logging.SanitizeConnectionString(cfg.ConnectionString),
		dbType:      reg.Info.Type,
		dialect:     reg.Dialect,
		factory:     cfg.Factory,
		driver:      o.driver,
		pool:        pool,
		logger:      o.logger.With(zap.String("pool", poolName)),
		outstanding: make(map[*Conn]struct{}),
	}

	s.logger.Info("connection source started",
		zap.String("type", s.dbType),
		zap.String("connectionString", s.connString),
	)
	return s, nil
}

// GetConnection borrows a connection from the pool. The caller must Close it.
// Failures wrap apperrors.ErrConnection and are never retried here.
func (s *PoolingDriverSource) GetConnection(ctx context.Context) (*Conn, error) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		return nil, fmt.Errorf("%w: pool %s: %w", apperrors.ErrConnection, s.poolName, apperrors.ErrSourceStopped)
	}

	// The name may have been closed out from under this source and reused.
	if !s.driver.Registered(s.pool) {
		return nil, fmt.Errorf("%w: %w: %q", apperrors.ErrConnection, apperrors.ErrPoolNotFound, s.poolName)
	}

	sqlConn, err := s.pool.DB().Conn(ctx)
	if err != nil {
		s.logger.Error("failed to get connection", zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: pool %s: %s", apperrors.ErrConnection, s.poolName, logging.SanitizeError(err))
	}

	conn := &Conn{Conn: sqlConn, source: s}
	if err := s.validate(ctx, conn); err != nil {
		// Mark the physical connection bad so the pool drops it.
		_ = sqlConn.Raw(func(any) error { return driver.ErrBadConn })
		_ = sqlConn.Close()
		s.logger.Warn("connection failed validation", zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: pool %s: validate: %s", apperrors.ErrConnection, s.poolName, logging.SanitizeError(err))
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = sqlConn.Close()
		return nil, fmt.Errorf("%w: pool %s: %w", apperrors.ErrConnection, s.poolName, apperrors.ErrSourceStopped)
	}
	s.outstanding[conn] = struct{}{}
	s.mu.Unlock()

	return conn, nil
}

func (s *PoolingDriverSource) validate(ctx context.Context, conn *Conn) error {
	if s.factory.ValidationQuery == "" {
		return conn.PingContext(ctx)
	}

	if s.factory.ValidationQueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.factory.ValidationQueryTimeout)
		defer cancel()
	}

	rows, err := conn.QueryContext(ctx, s.factory.ValidationQuery)
	if err != nil {
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}
	return rows.Err()
}

func (s *PoolingDriverSource) release(c *Conn) {
	s.mu.Lock()
	delete(s.outstanding, c)
	s.mu.Unlock()
}

// Stop deregisters and closes the pool. Connections still held by callers
// are closed, which blocks until any statement running on them finishes.
// Teardown errors are logged. Stop is idempotent and always returns nil.
func (s *PoolingDriverSource) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	held := make([]*Conn, 0, len(s.outstanding))
	for c := range s.outstanding {
		held = append(held, c)
	}
	s.mu.Unlock()

	for _, c := range held {
		if err := c.Close(); err != nil {
			s.logger.Warn("failed to close outstanding connection", zap.String("error", logging.SanitizeError(err)))
		}
	}
	if len(held) > 0 {
		s.logger.Info("closed outstanding connections", zap.Int("count", len(held)))
	}

	if err := s.driver.DeregisterPool(s.pool); err != nil {
		s.logger.Error("failed to close pool", zap.String("error", logging.SanitizeError(err)))
	}

	s.logger.Info("connection source stopped")
	return nil
}

// IsStopped reports whether Stop has been called.
func (s *PoolingDriverSource) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// PoolName returns the name the pool is registered under.
func (s *PoolingDriverSource) PoolName() string {
	return s.poolName
}

// Type returns the driver adapter type, e.g. "postgres".
func (s *PoolingDriverSource) Type() string {
	return s.dbType
}

// Dialect returns the SQL dialect of the pooled database.
func (s *PoolingDriverSource) Dialect() datasource.Dialect {
	return s.dialect
}

// Stats returns the current pool statistics. ok is false once the pool has
// been closed.
func (s *PoolingDriverSource) Stats() (stats datasource.PoolStats, ok bool) {
	if !s.driver.Registered(s.pool) {
		return datasource.PoolStats{}, false
	}
	stats, ok = s.driver.GetStats().Pools[s.poolName]
	return stats, ok
}

// String describes the source with the connection string sanitized.
func (s *PoolingDriverSource) String() string {
	return fmt.Sprintf("PoolingDriverSource{pool=%s, type=%s, connectionString=%s}", s.poolName, s.dbType, s.connString)
}
