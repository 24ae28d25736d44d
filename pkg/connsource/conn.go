package connsource

import (
	"database/sql"
	"sync/atomic"
)

// Conn is a pooled connection handed out by a PoolingDriverSource. Close
// returns it to the pool; it must be called exactly once by the holder,
// typically with defer.
type Conn struct {
	*sql.Conn

	source *PoolingDriverSource
	closed atomic.Bool
}

// Close releases the connection back to its pool. Repeated calls are no-ops.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.source.release(c)
	return c.Conn.Close()
}

// IsClosed reports whether the connection was closed by its holder or by
// stopping the source it came from.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
