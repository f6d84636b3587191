package migrations

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	for range Statements(Postgres) {
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), db, Postgres); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyIgnoresExistingColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	for _, stmt := range Statements(SQLite) {
		exp := mock.ExpectExec(regexp.QuoteMeta(stmt))
		if strings.HasPrefix(stmt, "ALTER TABLE") {
			exp.WillReturnError(errors.New("duplicate column name: phone"))
			continue
		}
		exp.WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := Apply(context.Background(), db, SQLite); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestApplyStopsOnSchemaError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(".*").WillReturnError(errors.New("permission denied for schema public"))

	err = Apply(context.Background(), db, Postgres)
	if err == nil || !strings.Contains(err.Error(), "CREATE TABLE IF NOT EXISTS invoices") {
		t.Fatalf("Apply() error = %v, want failing statement in message", err)
	}
}

func TestStatementsPerDialect(t *testing.T) {
	for _, stmt := range Statements(Postgres) {
		if strings.HasPrefix(stmt, "ALTER TABLE") && !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("postgres alter must be conditional: %s", stmt)
		}
	}
	for _, stmt := range Statements(SQLite) {
		if strings.Contains(stmt, "ADD COLUMN IF NOT EXISTS") {
			t.Errorf("sqlite does not support conditional columns: %s", stmt)
		}
	}
}
