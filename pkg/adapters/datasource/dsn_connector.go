package datasource

import (
	"context"
	"database/sql/driver"
)

// DSNConnector adapts a driver that only knows Open(dsn) into a
// driver.Connector so every adapter hands the pool the same shape.
type DSNConnector struct {
	dsn    string
	driver driver.Driver
}

// NewDSNConnector returns a connector opening dsn with d.
func NewDSNConnector(d driver.Driver, dsn string) *DSNConnector {
	return &DSNConnector{dsn: dsn, driver: d}
}

func (c *DSNConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.driver.Open(c.dsn)
}

func (c *DSNConnector) Driver() driver.Driver {
	return c.driver
}
