package postgres

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

// NewConnector parses a postgres:// URL (or "postgres:" followed by
// keyword/value pairs), merges driver properties into it and applies explicit
// credentials on top of whatever the connection string carried.
func NewConnector(_ context.Context, req datasource.ConnectRequest) (driver.Connector, error) {
	raw := req.ConnectionString
	if !strings.Contains(raw, "://") {
		raw = datasource.StripScheme(raw)
	}

	connString, err := withProperties(raw, req.Properties)
	if err != nil {
		return nil, err
	}

	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres connection string: %s",
			apperrors.ErrConfiguration, logging.SanitizeError(err))
	}

	if req.Credentials.User != "" {
		cfg.User = req.Credentials.User
	}
	if req.Credentials.HasPassword {
		cfg.Password = req.Credentials.Password
	}

	return stdlib.GetConnector(*cfg), nil
}

// withProperties adds properties as URL query parameters. pgx maps the ones it
// knows (sslmode, connect_timeout, ...) onto its config and sends the rest to
// the server as runtime parameters.
func withProperties(connString string, props map[string]string) (string, error) {
	if len(props) == 0 {
		return connString, nil
	}

	if !strings.Contains(connString, "://") {
		return appendKeywordValues(connString, props), nil
	}

	u, err := url.Parse(connString)
	if err != nil {
		return "", fmt.Errorf("%w: parse postgres url: %s",
			apperrors.ErrConfiguration, logging.SanitizeError(err))
	}
	q := u.Query()
	for k, v := range props {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// appendKeywordValues handles "host=... dbname=..." strings.
func appendKeywordValues(connString string, props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(connString)
	for _, k := range keys {
		v := strings.ReplaceAll(props[k], `\`, `\\`)
		v = strings.ReplaceAll(v, `'`, `\'`)
		fmt.Fprintf(&b, " %s='%s'", k, v)
	}
	return b.String()
}
