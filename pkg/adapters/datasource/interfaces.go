package datasource

import (
	"context"
	"database/sql/driver"

	"go.uber.org/zap"
)

// Credentials are the user name and password handed to a driver adapter.
// HasPassword distinguishes an empty password ("") from no password at all.
type Credentials struct {
	User        string
	Password    string
	HasPassword bool
}

// ConnectRequest carries everything a driver adapter needs to build a connector.
type ConnectRequest struct {
	ConnectionString string
	Credentials      Credentials

	// Properties are driver properties other than the credentials. Each
	// adapter decides where they go (URL query, runtime params, DSN params).
	Properties map[string]string

	Logger *zap.Logger
}

// ConnectorFactory turns a connection request into a database/sql connector.
// It must not dial the database: connections are opened lazily by the pool.
type ConnectorFactory func(ctx context.Context, req ConnectRequest) (driver.Connector, error)
