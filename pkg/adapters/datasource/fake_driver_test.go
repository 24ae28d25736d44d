package datasource

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
)

// fakeDriver records statements executed on its connections.
type fakeDriver struct {
	mu     sync.Mutex
	execs  []string
	opened int
	failOn string
}

func (d *fakeDriver) Open(string) (driver.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened++
	return &fakeConn{d: d}, nil
}

func (d *fakeDriver) executed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.execs...)
}

func (d *fakeDriver) openCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

type fakeConn struct {
	d      *fakeDriver
	closed bool
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.d.execs = append(c.d.execs, query)
	if c.d.failOn != "" && query == c.d.failOn {
		return nil, errors.New("syntax error near " + query)
	}
	return driver.RowsAffected(0), nil
}

var sharedFakeDriver = &fakeDriver{}

func init() {
	Register(DriverAdapterRegistration{
		Info: DriverAdapterInfo{
			Type:        "fake",
			DisplayName: "Fake",
			Schemes:     []string{"fake", "fakedb"},
		},
		Factory: func(_ context.Context, req ConnectRequest) (driver.Connector, error) {
			if req.Properties["fail"] == "factory" {
				return nil, errors.New("bad password=hunter2")
			}
			return NewDSNConnector(sharedFakeDriver, StripScheme(req.ConnectionString)), nil
		},
		Dialect: Dialect{Name: "fake", QuoteOpen: `"`, QuoteClose: `"`},
	})
}
