package toolsurface

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// AnalyticsSink records every tool invocation for offline analysis,
// independent of the in-process Monitor window. Recording never blocks
// the call it describes: Surface fires it from a goroutine.
type AnalyticsSink interface {
	Record(ctx context.Context, operation string, dur time.Duration, callErr error)
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseSink appends one row per tool call to a ClickHouse table,
// grounded on the teacher's metrics/logs ClickHouse readers
// (internal/agentd/metrics_clickhouse.go, logs_clickhouse.go): parse
// the DSN, open a native-protocol connection, ping it once at
// construction, validate the configured table name against the same
// identifier pattern before it ever reaches a query string.
type ClickHouseSink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
	logger  Logger
}

// NewClickHouseSink opens a connection to dsn and verifies table is a
// safe identifier. The connection is pinged once so a misconfigured
// sink fails at startup rather than on the first recorded call.
func NewClickHouseSink(ctx context.Context, dsn, table string, timeout time.Duration, logger Logger) (*ClickHouseSink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("clickhouse dsn is empty")
	}
	if table == "" {
		table = "tool_calls"
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("invalid clickhouse table name: %s", table)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	return &ClickHouseSink{conn: conn, table: table, timeout: timeout, logger: logger}, nil
}

// Record inserts one row. A failed insert is logged, never returned:
// analytics is a side channel, not part of the tool call's result.
func (c *ClickHouseSink) Record(ctx context.Context, operation string, dur time.Duration, callErr error) {
	insertCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	errText := ""
	if callErr != nil {
		errText = callErr.Error()
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (ts, operation, duration_ms, success, error) VALUES (?, ?, ?, ?, ?)",
		c.table)
	if err := c.conn.Exec(insertCtx, query,
		time.Now(), operation, float64(dur.Microseconds())/1000.0, callErr == nil, errText,
	); err != nil && c.logger != nil {
		c.logger.Warn("clickhouse analytics insert failed", map[string]any{"operation": operation, "error": err.Error()})
	}
}

// Close releases the underlying connection.
func (c *ClickHouseSink) Close() error { return c.conn.Close() }
