package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/proctorline/relay/internal/ports"
)

// Dialect selects placeholder and column syntax for the backing database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore is a key-value store on a single relational table. Values are
// opaque blobs; upserts are idempotent via the primary key.
type SQLStore struct {
	db     *sql.DB
	table  string
	setQ   string
	getQ   string
	delQ   string
	initQ  string
	ownsDB bool
}

// NewSQLStore wraps an existing database handle. The caller keeps ownership
// of the handle; Close is a no-op on it.
func NewSQLStore(db *sql.DB, table string, dialect Dialect) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db handle is nil")
	}
	if table == "" {
		table = "relay_kv"
	}
	s := &SQLStore{db: db, table: table}

	switch dialect {
	case DialectSQLite:
		s.setQ = fmt.Sprintf("INSERT INTO %s (k, v) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET v = excluded.v", table)
		s.getQ = fmt.Sprintf("SELECT v FROM %s WHERE k = ?", table)
		s.delQ = fmt.Sprintf("DELETE FROM %s WHERE k = ?", table)
		s.initQ = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BLOB NOT NULL)", table)
	case DialectPostgres:
		s.setQ = fmt.Sprintf("INSERT INTO %s (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v", table)
		s.getQ = fmt.Sprintf("SELECT v FROM %s WHERE k = $1", table)
		s.delQ = fmt.Sprintf("DELETE FROM %s WHERE k = $1", table)
		s.initQ = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BYTEA NOT NULL)", table)
	default:
		return nil, fmt.Errorf("store: unknown dialect %q", dialect)
	}
	return s, nil
}

// Init creates the backing table when it does not exist yet.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.initQ); err != nil {
		return fmt.Errorf("store: init table %s: %w", s.table, err)
	}
	return nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	if _, err := s.db.ExecContext(ctx, s.setQ, key, value); err != nil {
		return fmt.Errorf("store: set %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, s.getQ, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return v, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.delQ, key); err != nil {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

var _ ports.Store = (*SQLStore)(nil)
