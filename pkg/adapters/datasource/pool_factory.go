package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

const (
	DefaultPoolMaxOpenConns = 8
	DefaultPoolMaxIdleConns = 8
)

// PoolConfig tunes a pool opened by OpenPool. Zero durations mean connections
// are reused forever; zero or negative counts fall back to the defaults.
type PoolConfig struct {
	MaxOpenConns       int
	MaxIdleConns       int
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	ConnectionInitSQLs []string
}

// OpenPool resolves the adapter for req.ConnectionString, builds its
// connector and returns a configured *sql.DB. No connection is dialed here;
// the first one is opened when a caller asks for it.
func OpenPool(ctx context.Context, req ConnectRequest, cfg PoolConfig) (*sql.DB, DriverAdapterRegistration, error) {
	logger := req.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg, err := Resolve(req.ConnectionString)
	if err != nil {
		return nil, DriverAdapterRegistration{}, err
	}

	connector, err := reg.Factory(ctx, req)
	if err != nil {
		logger.Error("failed to build connector",
			zap.String("type", reg.Info.Type),
			zap.String("connectionString", logging.SanitizeConnectionString(req.ConnectionString)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, reg, fmt.Errorf("build %s connector: %w", reg.Info.Type, err)
	}

	db := sql.OpenDB(WithInitSQL(connector, cfg.ConnectionInitSQLs, logger))
	applyPoolConfig(db, cfg)

	logger.Debug("opened connection pool",
		zap.String("type", reg.Info.Type),
		zap.String("connectionString", logging.SanitizeConnectionString(req.ConnectionString)),
		zap.Any("properties", logging.SanitizeProperties(req.Properties)),
		zap.Duration("maxConnLifetime", cfg.MaxConnLifetime),
	)
	return db, reg, nil
}

func applyPoolConfig(db *sql.DB, cfg PoolConfig) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = DefaultPoolMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = DefaultPoolMaxIdleConns
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
}
