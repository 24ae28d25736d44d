package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
)

func newFakeDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := OpenPool(context.Background(), ConnectRequest{ConnectionString: "fake:" + t.Name()}, PoolConfig{})
	require.NoError(t, err)
	return db
}

func TestPoolingDriver_RegisterAndLookup(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))
	defer d.Close()

	pool := NewManagedPool("MyPoolName", "fake", newFakeDB(t))
	require.NoError(t, d.RegisterPool(pool))

	got, err := d.Pool("MyPoolName")
	require.NoError(t, err)
	assert.Same(t, pool, got)
	assert.Equal(t, "fake", got.GetType())
	assert.Equal(t, []string{"MyPoolName"}, d.PoolNames())
}

func TestPoolingDriver_DuplicateName(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))
	defer d.Close()

	require.NoError(t, d.RegisterPool(NewManagedPool("dup", "fake", newFakeDB(t))))
	err := d.RegisterPool(NewManagedPool("dup", "fake", newFakeDB(t)))
	assert.ErrorIs(t, err, apperrors.ErrPoolExists)
}

func TestPoolingDriver_NameReusableAfterClose(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))
	defer d.Close()

	require.NoError(t, d.RegisterPool(NewManagedPool("MyPoolName", "fake", newFakeDB(t))))
	require.NoError(t, d.ClosePool("MyPoolName"))
	require.NoError(t, d.RegisterPool(NewManagedPool("MyPoolName", "fake", newFakeDB(t))))
}

func TestPoolingDriver_ClosePoolIdempotent(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))
	defer d.Close()

	db := newFakeDB(t)
	require.NoError(t, d.RegisterPool(NewManagedPool("p", "fake", db)))

	require.NoError(t, d.ClosePool("p"))
	require.NoError(t, d.ClosePool("p"))
	require.NoError(t, d.ClosePool("never-registered"))

	_, err := d.Pool("p")
	assert.ErrorIs(t, err, apperrors.ErrPoolNotFound)
	assert.Error(t, db.PingContext(context.Background()), "closed pool must not hand out connections")
}

func TestPoolingDriver_CloseIdempotent(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))

	require.NoError(t, d.RegisterPool(NewManagedPool("a", "fake", newFakeDB(t))))
	require.NoError(t, d.RegisterPool(NewManagedPool("b", "fake", newFakeDB(t))))

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Empty(t, d.PoolNames())

	err := d.RegisterPool(NewManagedPool("c", "fake", newFakeDB(t)))
	assert.ErrorIs(t, err, ErrPoolingDriverClosed)
}

func TestPoolingDriver_GetStats(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))
	defer d.Close()

	db := newFakeDB(t)
	require.NoError(t, d.RegisterPool(NewManagedPool("stats", "fake", db)))

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)

	stats := d.GetStats()
	assert.Equal(t, 1, stats.TotalPools)
	s := stats.Pools["stats"]
	assert.Equal(t, "fake", s.Type)
	assert.Equal(t, 1, s.InUse)
	assert.Equal(t, DefaultPoolMaxOpenConns, s.MaxOpenConnections)

	require.NoError(t, conn.Close())
	assert.Equal(t, 0, d.GetStats().Pools["stats"].InUse)
}

func TestPoolingDriver_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := NewPoolingDriver(PoolingDriverConfig{Registerer: reg}, zaptest.NewLogger(t))
	defer d.Close()

	require.NoError(t, d.RegisterPool(NewManagedPool("metrics-pool", "fake", newFakeDB(t))))
	assert.True(t, hasDBStatsFor(t, reg, "metrics-pool"))

	require.NoError(t, d.ClosePool("metrics-pool"))
	assert.False(t, hasDBStatsFor(t, reg, "metrics-pool"), "collector should be unregistered with the pool")
}

func hasDBStatsFor(t *testing.T, g prometheus.Gatherer, name string) bool {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "go_sql_open_connections" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "db_name" && l.GetValue() == name {
					return true
				}
			}
		}
	}
	return false
}

func TestPoolingDriver_ConcurrentRegister(t *testing.T) {
	d := NewPoolingDriver(PoolingDriverConfig{}, zaptest.NewLogger(t))
	defer d.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("pool-%02d", i)
			db, _, err := OpenPool(context.Background(), ConnectRequest{ConnectionString: "fake:" + name}, PoolConfig{})
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, d.RegisterPool(NewManagedPool(name, "fake", db)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, d.PoolNames(), 20)
}

func TestDefaultPoolingDriver(t *testing.T) {
	assert.Same(t, DefaultPoolingDriver(), DefaultPoolingDriver())
}

func TestPoolingDriver_DeregisterPoolLeavesSuccessor(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := NewPoolingDriver(PoolingDriverConfig{Registerer: reg}, zaptest.NewLogger(t))
	defer d.Close()

	first := NewManagedPool("logs", "fake", newFakeDB(t))
	require.NoError(t, d.RegisterPool(first))
	require.NoError(t, d.ClosePool("logs"))

	second := NewManagedPool("logs", "fake", newFakeDB(t))
	require.NoError(t, d.RegisterPool(second))
	assert.False(t, d.Registered(first))
	assert.True(t, d.Registered(second))

	require.NoError(t, d.DeregisterPool(first))

	got, err := d.Pool("logs")
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.NoError(t, second.DB().PingContext(context.Background()))
	assert.True(t, hasDBStatsFor(t, reg, "logs"), "successor metrics stay registered")

	require.NoError(t, d.DeregisterPool(second))
	assert.Empty(t, d.PoolNames())
	assert.False(t, hasDBStatsFor(t, reg, "logs"))
}
