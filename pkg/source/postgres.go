// Package source wraps the operational totesys Postgres database. The
// pipeline only ever issues SELECTs: changed-row scans for transactional
// tables, full scans for dimension source tables, and schema introspection.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"
)

type Config struct {
	Logger *slog.Logger
	DSN    string

	// QueriesPerSecond throttles scans against the operational database.
	// Zero disables throttling.
	QueriesPerSecond float64

	// Conn overrides the pool; used by tests.
	Conn Connection
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.DSN == "" && cfg.Conn == nil {
		return errors.New("dsn is required")
	}
	return nil
}

// Connection is the pgx surface the client uses.
type Connection interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Client reads rows and schema metadata from the source database.
type Client struct {
	log     *slog.Logger
	cfg     Config
	conn    Connection
	limiter *rate.Limiter
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn := cfg.Conn
	if conn == nil {
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create source pool: %w", err)
		}
		conn = pool
	}

	var limiter *rate.Limiter
	if cfg.QueriesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), 1)
	}

	return &Client{
		log:     cfg.Logger,
		cfg:     cfg,
		conn:    conn,
		limiter: limiter,
	}, nil
}

// Ping validates the connection.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.conn.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to ping source database: %w", err)
	}
	return nil
}

// ChangedRows returns rows of table created or updated after since, with the
// ordered column names of the result set.
func (c *Client) ChangedRows(ctx context.Context, tableName string, since time.Time) ([][]any, []string, error) {
	if err := validTableName(tableName); err != nil {
		return nil, nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE created_at > $1 OR last_updated > $1", tableName)
	return c.selectWithColumns(ctx, query, since)
}

// AllRows returns every row of table; used for dimension source tables,
// which are fully re-extracted each cycle.
func (c *Client) AllRows(ctx context.Context, tableName string) ([][]any, []string, error) {
	if err := validTableName(tableName); err != nil {
		return nil, nil, err
	}
	return c.selectWithColumns(ctx, fmt.Sprintf("SELECT * FROM %s", tableName))
}

// TableColumns returns the declared column names of a public-schema table in
// ordinal order.
func (c *Client) TableColumns(ctx context.Context, tableName string) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := c.conn.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1
		 ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to introspect %s: %w", tableName, err)
	}
	defer rows.Close()

	columns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var name string
		err := row.Scan(&name)
		return name, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect columns for %s: %w", tableName, err)
	}
	return columns, nil
}

// ListTables returns the public-schema tables, excluding migration bookkeeping
// and anything underscore-prefixed.
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	rows, err := c.conn.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_name NOT LIKE '\_%'
		 ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var name string
		err := row.Scan(&name)
		return name, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect table names: %w", err)
	}
	return tables, nil
}

func (c *Client) selectWithColumns(ctx context.Context, query string, args ...any) ([][]any, []string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, nil, err
	}

	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	collected, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([]any, error) {
		return row.Values()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to collect row values: %w", err)
	}
	return collected, columns, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait cancelled: %w", err)
	}
	return nil
}

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
