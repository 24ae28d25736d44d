package datasource

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

// initSQLConnector runs a fixed list of statements on every new physical
// connection before the pool hands it out.
type initSQLConnector struct {
	driver.Connector
	statements []string
	logger     *zap.Logger
}

// WithInitSQL wraps c so each new connection executes statements in order.
// A failing statement closes the connection and fails the connect.
func WithInitSQL(c driver.Connector, statements []string, logger *zap.Logger) driver.Connector {
	if len(statements) == 0 {
		return c
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &initSQLConnector{Connector: c, statements: statements, logger: logger}
}

func (c *initSQLConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.Connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	for _, stmt := range c.statements {
		if err := execOnDriverConn(ctx, conn, stmt); err != nil {
			_ = conn.Close()
			c.logger.Warn("connection init sql failed",
				zap.String("statement", logging.SanitizeQuery(stmt)),
				zap.String("error", logging.SanitizeError(err)),
			)
			return nil, fmt.Errorf("connection init sql %q: %w", logging.SanitizeQuery(stmt), err)
		}
	}
	return conn, nil
}

// Close forwards to the wrapped connector so sql.DB.Close still releases
// driver-level resources.
func (c *initSQLConnector) Close() error {
	if closer, ok := c.Connector.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func execOnDriverConn(ctx context.Context, conn driver.Conn, query string) error {
	if execer, ok := conn.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, query, nil)
		if err != driver.ErrSkip {
			return err
		}
	}

	var (
		stmt driver.Stmt
		err  error
	)
	if preparer, ok := conn.(driver.ConnPrepareContext); ok {
		stmt, err = preparer.PrepareContext(ctx, query)
	} else {
		stmt, err = conn.Prepare(query)
	}
	if err != nil {
		return err
	}
	defer stmt.Close()

	if sc, ok := stmt.(driver.StmtExecContext); ok {
		_, err = sc.ExecContext(ctx, nil)
		return err
	}
	_, err = stmt.Exec(nil) //nolint:staticcheck // fallback for drivers without StmtExecContext
	return err
}
