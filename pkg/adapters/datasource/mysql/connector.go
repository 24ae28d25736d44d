package mysql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

// NewConnector accepts "mysql:" followed by a go-sql-driver DSN, e.g.
// mysql:root@tcp(localhost:3306)/app?parseTime=true.
// Properties are merged into the DSN parameters before parsing so the driver
// maps known names (parseTime, loc, timeout, ...) onto its config.
func NewConnector(_ context.Context, req datasource.ConnectRequest) (driver.Connector, error) {
	dsn := withProperties(datasource.StripScheme(req.ConnectionString), req.Properties)

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse mysql dsn: %s",
			apperrors.ErrConfiguration, logging.SanitizeError(err))
	}

	if req.Credentials.User != "" {
		cfg.User = req.Credentials.User
	}
	if req.Credentials.HasPassword {
		cfg.Passwd = req.Credentials.Password
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: mysql connector: %s",
			apperrors.ErrConfiguration, logging.SanitizeError(err))
	}
	return connector, nil
}

func withProperties(dsn string, props map[string]string) string {
	if len(props) == 0 {
		return dsn
	}
	values := url.Values{}
	for k, v := range props {
		values.Set(k, v)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + values.Encode()
}
