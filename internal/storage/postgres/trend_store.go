// Package postgres provides the Postgres-backed target analytical store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // migration driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"trendsync/internal/trends"
	"trendsync/migrations"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for interest rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Close()
}

// TrendStore reads existing keys from and appends delta rows to the
// interest table. It is the only component that touches the target store:
// one snapshot read and at most one append per run.
type TrendStore struct {
	pool  pgxPool
	table string
}

// NewTrendStore creates a Postgres-backed TrendStore using the provided config.
func NewTrendStore(ctx context.Context, cfg Config) (*TrendStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "interest_scores"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TrendStore{pool: pool, table: table}, nil
}

// NewTrendStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewTrendStoreWithPool(pool pgxPool, table string) (*TrendStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "interest_scores"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TrendStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *TrendStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// ExistingKeys returns the (market, keyword, date) keys already present for
// dates in [from, to]. Called once per run; the result is treated as an
// immutable snapshot by the caller.
func (s *TrendStore) ExistingKeys(ctx context.Context, from, to time.Time) (map[trends.RowKey]struct{}, error) {
	query := fmt.Sprintf(`SELECT market, keyword, date FROM %s WHERE date >= $1 AND date <= $2`, s.table)
	rows, err := s.pool.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query existing keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[trends.RowKey]struct{})
	for rows.Next() {
		var market, keyword string
		var date time.Time
		if err := rows.Scan(&market, &keyword, &date); err != nil {
			return nil, fmt.Errorf("scan existing key: %w", err)
		}
		keys[trends.RowKey{Market: market, Keyword: keyword, Date: date.UTC().Format(trends.DateLayout)}] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing keys: %w", err)
	}
	return keys, nil
}

// AppendRows bulk-appends delta rows via COPY, stamping each with the
// extraction time. Returns the number of rows written.
func (s *TrendStore) AppendRows(ctx context.Context, rows []trends.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	extractedAt := time.Now().UTC()
	copied, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{s.table},
		[]string{"market", "keyword", "date", "interest_score", "extracted_at"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{r.Market, r.Keyword, r.Date.UTC(), r.Score, extractedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy rows: %w", err)
	}
	return int(copied), nil
}

// RunMigrations applies all embedded SQL migrations against the database.
func RunMigrations(dsn string) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
