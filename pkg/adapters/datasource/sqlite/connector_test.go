package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

func TestWithProperties(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		props    map[string]string
		expected string
	}{
		{name: "no properties", dsn: ":memory:", expected: ":memory:"},
		{name: "file uri gains query", dsn: "file:logs.db", props: map[string]string{"_busy_timeout": "5000"}, expected: "file:logs.db?_busy_timeout=5000"},
		{name: "existing query extended", dsn: "file:test?mode=memory", props: map[string]string{"cache": "shared"}, expected: "file:test?mode=memory&cache=shared"},
		{name: "plain path becomes file uri", dsn: "logs.db", props: map[string]string{"_fk": "1"}, expected: "file:logs.db?_fk=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, withProperties(tt.dsn, tt.props))
		})
	}
}

func TestNewConnector_OpensInMemoryDatabase(t *testing.T) {
	c, err := NewConnector(context.Background(), datasource.ConnectRequest{
		ConnectionString: "sqlite:file:connector_test?mode=memory&cache=shared",
		Credentials:      datasource.Credentials{User: "sa", Password: "", HasPassword: true},
		Logger:           zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	_, ok := c.Driver().(*sqlite3.SQLiteDriver)
	require.True(t, ok)

	db := sql.OpenDB(c)
	defer db.Close()

	var one int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}

func TestRegistration(t *testing.T) {
	for _, connStr := range []string{"sqlite::memory:", "sqlite3:file:x.db", "SQLITE:file:x.db"} {
		reg, err := datasource.Resolve(connStr)
		require.NoError(t, err, connStr)
		assert.Equal(t, "sqlite", reg.Info.Type)
	}
}
