package sqlite

import (
	"context"
	"database/sql/driver"
	"net/url"
	"strings"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
)

// NewConnector accepts "sqlite:" followed by a go-sqlite3 DSN, for example
// sqlite:file:logs.db?_journal_mode=WAL or sqlite:file:test?mode=memory&cache=shared.
// SQLite has no server-side authentication, so credentials are accepted and
// ignored; properties are appended as DSN query parameters.
func NewConnector(_ context.Context, req datasource.ConnectRequest) (driver.Connector, error) {
	if req.Credentials.User != "" || req.Credentials.HasPassword {
		logger := req.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Debug("sqlite ignores credentials", zap.String("user", req.Credentials.User))
	}

	dsn := withProperties(datasource.StripScheme(req.ConnectionString), req.Properties)
	return datasource.NewDSNConnector(&sqlite3.SQLiteDriver{}, dsn), nil
}

func withProperties(dsn string, props map[string]string) string {
	if len(props) == 0 {
		return dsn
	}
	values := url.Values{}
	for k, v := range props {
		values.Set(k, v)
	}
	if !strings.HasPrefix(dsn, "file:") && !strings.Contains(dsn, "?") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + values.Encode()
}
