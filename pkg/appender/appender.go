// Package appender writes zap log entries as rows of a database table using
// connections from a connsource.ConnectionSource.
package appender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-poolsource/pkg/connsource"
	"github.com/ekaya-inc/ekaya-poolsource/pkg/logging"
)

const (
	DefaultTable        = "log_events"
	DefaultWriteTimeout = 5 * time.Second
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("database appender closed")

// Config configures a Core.
type Config struct {
	// Table receives the rows. It may be schema-qualified ("logs.events").
	Table string
	// Level filters entries; nil enables every level.
	Level zapcore.LevelEnabler
	// BufferSize batches this many entries per insert. Values below 2 write
	// each entry as it arrives.
	BufferSize int
	// WriteTimeout bounds a single flush, including borrowing the connection.
	WriteTimeout time.Duration
	// StopSourceOnClose makes Close stop the connection source as well.
	StopSourceOnClose bool
}

// Row is one log entry as stored in the table.
type Row struct {
	Time    time.Time
	Level   string
	Logger  string
	Message string
	Caller  string
	Fields  string
}

// Core is a zapcore.Core that stores entries in a database table.
type Core struct {
	zapcore.LevelEnabler
	w      *writer
	fields []zapcore.Field
}

var _ zapcore.Core = (*Core)(nil)

// New returns a Core writing through source. logger receives the appender's
// own diagnostics and must not itself be backed by the returned Core.
func New(source connsource.ConnectionSource, cfg Config, logger *zap.Logger) (*Core, error) {
	if source == nil {
		return nil, errors.New("connection source is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if strings.TrimSpace(cfg.Table) != cfg.Table {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.Level == nil {
		cfg.Level = zapcore.DebugLevel
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialect := source.Dialect()
	return &Core{
		LevelEnabler: cfg.Level,
		w: &writer{
			source:    source,
			cfg:       cfg,
			createSQL: createTableSQL(dialect, cfg.Table),
			insertSQL: insertSQL(dialect, cfg.Table),
			logger:    logger.Named("appender"),
		},
	}, nil
}

// EnsureTable creates the log table if it does not exist.
func (c *Core) EnsureTable(ctx context.Context) error {
	return c.w.ensureTable(ctx)
}

// With returns a Core that adds fields to every entry.
func (c *Core) With(fields []zapcore.Field) zapcore.Core {
	clone := *c
	clone.fields = make([]zapcore.Field, 0, len(c.fields)+len(fields))
	clone.fields = append(clone.fields, c.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// Check adds c to ce when the entry level is enabled.
func (c *Core) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write stores the entry, or buffers it when BufferSize is set.
func (c *Core) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	row, err := c.row(ent, fields)
	if err != nil {
		return err
	}
	if err := c.w.add(row); err != nil {
		return err
	}
	// Flush before a fatal or panic entry takes the process down.
	if ent.Level > zapcore.ErrorLevel {
		return c.Sync()
	}
	return nil
}

// Sync flushes buffered entries.
func (c *Core) Sync() error {
	return c.w.flush()
}

// Close flushes buffered entries and rejects further writes. The connection
// source is stopped only when Config.StopSourceOnClose is set.
func (c *Core) Close() error {
	return c.w.close()
}

func (c *Core) row(ent zapcore.Entry, fields []zapcore.Field) (Row, error) {
	row := Row{
		Time:    ent.Time.UTC(),
		Level:   ent.Level.String(),
		Logger:  ent.LoggerName,
		Message: ent.Message,
	}
	if ent.Caller.Defined {
		row.Caller = ent.Caller.TrimmedPath()
	}

	if len(c.fields)+len(fields) == 0 {
		return row, nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	data, err := json.Marshal(enc.Fields)
	if err != nil {
		return Row{}, fmt.Errorf("encode fields: %w", err)
	}
	row.Fields = string(data)
	return row, nil
}

// writer is shared by a Core and every clone made by With.
type writer struct {
	source    connsource.ConnectionSource
	cfg       Config
	createSQL string
	insertSQL string
	logger    *zap.Logger

	mu     sync.Mutex
	buf    []Row
	closed bool
}

func (w *writer) ensureTable(ctx context.Context) error {
	conn, err := w.source.GetConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, w.createSQL); err != nil {
		return fmt.Errorf("create log table %s: %w", w.cfg.Table, err)
	}
	w.logger.Debug("log table ready", zap.String("table", w.cfg.Table))
	return nil
}

func (w *writer) add(row Row) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.cfg.BufferSize < 2 {
		w.mu.Unlock()
		return w.insert([]Row{row})
	}

	w.buf = append(w.buf, row)
	if len(w.buf) < w.cfg.BufferSize {
		w.mu.Unlock()
		return nil
	}
	batch := w.buf
	w.buf = nil
	w.mu.Unlock()

	return w.insert(batch)
}

func (w *writer) flush() error {
	w.mu.Lock()
	batch := w.buf
	w.buf = nil
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return w.insert(batch)
}

func (w *writer) close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.flush()
	if w.cfg.StopSourceOnClose {
		if stopErr := w.source.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
	}
	return err
}

// insert writes batch using one borrowed connection. A failed batch is
// dropped and the error returned.
func (w *writer) insert(batch []Row) error {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.WriteTimeout)
	defer cancel()

	conn, err := w.source.GetConnection(ctx)
	if err != nil {
		w.logger.Warn("dropping log entries", zap.Int("count", len(batch)), zap.String("error", logging.SanitizeError(err)))
		return fmt.Errorf("write %d log entries: %w", len(batch), err)
	}
	defer conn.Close()

	if len(batch) == 1 {
		if _, err := conn.ExecContext(ctx, w.insertSQL, batch[0].args()...); err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin log batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, w.insertSQL)
	if err != nil {
		return fmt.Errorf("prepare log insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range batch {
		if _, err := stmt.ExecContext(ctx, row.args()...); err != nil {
			return fmt.Errorf("insert log entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit log batch: %w", err)
	}
	return nil
}

func (r Row) args() []any {
	return []any{r.Time, r.Level, r.Logger, r.Message, r.Caller, r.Fields}
}
