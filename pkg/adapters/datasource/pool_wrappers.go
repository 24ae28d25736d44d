package datasource

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ManagedPool is a *sql.DB registered with a PoolingDriver under a name.
type ManagedPool struct {
	name      string
	dbType    string
	db        *sql.DB
	createdAt time.Time
	collector prometheus.Collector
}

// NewManagedPool wraps db for registration under name.
func NewManagedPool(name, dbType string, db *sql.DB) *ManagedPool {
	return &ManagedPool{
		name:      name,
		dbType:    dbType,
		db:        db,
		createdAt: time.Now(),
	}
}

// Close closes idle connections and stops the pool handing out new ones.
// Connections already checked out are closed when their holder releases them.
func (p *ManagedPool) Close() error {
	return p.db.Close()
}

// GetType returns the database type
func (p *ManagedPool) GetType() string {
	return p.dbType
}

// Name returns the name the pool is registered under.
func (p *ManagedPool) Name() string {
	return p.name
}

// DB returns the underlying *sql.DB
func (p *ManagedPool) DB() *sql.DB {
	return p.db
}
