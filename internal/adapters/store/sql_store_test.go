package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/proctorline/relay/internal/ports"
)

func TestSQLStoreSetGetDeletePostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s, err := NewSQLStore(db, "relay_kv", DialectPostgres)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx := context.Background()

	setQ := regexp.QuoteMeta("INSERT INTO relay_kv (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v")
	mock.ExpectExec(setQ).
		WithArgs("tesla_l1_9_request_1", []byte(`{"seq":1}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Set(ctx, "tesla_l1_9_request_1", []byte(`{"seq":1}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	getQ := regexp.QuoteMeta("SELECT v FROM relay_kv WHERE k = $1")
	mock.ExpectQuery(getQ).
		WithArgs("tesla_l1_9_request_1").
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte(`{"seq":1}`)))

	got, err := s.Get(ctx, "tesla_l1_9_request_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"seq":1}` {
		t.Fatalf("unexpected value %q", got)
	}

	delQ := regexp.QuoteMeta("DELETE FROM relay_kv WHERE k = $1")
	mock.ExpectExec(delQ).
		WithArgs("tesla_l1_9_request_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Delete(ctx, "tesla_l1_9_request_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreGetMissingKey(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	s, err := NewSQLStore(db, "relay_kv", DialectSQLite)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	getQ := regexp.QuoteMeta("SELECT v FROM relay_kv WHERE k = ?")
	mock.ExpectQuery(getQ).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"v"}))

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreUnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	if _, err := NewSQLStore(db, "relay_kv", Dialect("oracle")); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}
