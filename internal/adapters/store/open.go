package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) an embedded SQLite store at the given path.
// This is the default durability backend for single-host agents.
func OpenSQLite(ctx context.Context, dsn, table string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return openSQL(ctx, db, table, DialectSQLite)
}

// OpenPostgres opens a store on a shared Postgres database, for deployments
// where multiple exam-room hosts persist through one server.
func OpenPostgres(ctx context.Context, dsn, table string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return openSQL(ctx, db, table, DialectPostgres)
}

func openSQL(ctx context.Context, db *sql.DB, table string, dialect Dialect) (*SQLStore, error) {
	s, err := NewSQLStore(db, table, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
