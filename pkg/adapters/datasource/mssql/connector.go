package mssql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"net/url"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

// NewConnector builds a go-mssqldb connector from a sqlserver:// URL.
// Credentials become the URL userinfo and properties become query parameters
// ("database", "encrypt", "TrustServerCertificate", "connection timeout", ...).
func NewConnector(_ context.Context, req datasource.ConnectRequest) (driver.Connector, error) {
	dsn, err := buildDSN(req)
	if err != nil {
		return nil, err
	}

	connector, err := mssql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse sqlserver connection string: %s",
			apperrors.ErrConfiguration, logging.SanitizeError(err))
	}
	return connector, nil
}

func buildDSN(req datasource.ConnectRequest) (string, error) {
	u, err := url.Parse(req.ConnectionString)
	if err != nil {
		return "", fmt.Errorf("%w: parse sqlserver url: %s",
			apperrors.ErrConfiguration, logging.SanitizeError(err))
	}

	user := req.Credentials.User
	password, hasPassword := "", false
	if u.User != nil {
		if user == "" {
			user = u.User.Username()
		}
		password, hasPassword = u.User.Password()
	}
	if req.Credentials.HasPassword {
		password, hasPassword = req.Credentials.Password, true
	}

	switch {
	case user != "" && hasPassword:
		u.User = url.UserPassword(user, password)
	case user != "":
		u.User = url.User(user)
	}

	if len(req.Properties) > 0 {
		q := u.Query()
		for k, v := range req.Properties {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
