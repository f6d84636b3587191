// Package migrations creates and upgrades the relational schema. Every
// statement is idempotent so Apply can run on each start.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect selects SQL variants.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		merchant_address TEXT NOT NULL,
		customer_email TEXT DEFAULT '',
		amount TEXT NOT NULL,
		token_address TEXT NOT NULL,
		memo TEXT NOT NULL,
		status TEXT DEFAULT 'PENDING',
		created_at TEXT NOT NULL,
		paid_at TEXT,
		expires_at TEXT,
		payment_link TEXT,
		tempo_tx_hash TEXT DEFAULT '',
		payer_address TEXT DEFAULT '',
		tempo_chain_id TEXT,
		tempo_rpc TEXT,
		stablecoin_name TEXT DEFAULT 'USD Stablecoin',
		fee_sponsored TEXT DEFAULT 'false'
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		owner_wallet TEXT NOT NULL,
		name TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		email TEXT DEFAULT '',
		phone TEXT DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_merchant ON invoices (LOWER(merchant_address))`,
	`CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts (LOWER(owner_wallet))`,
}

// column is an additive change for databases created by older releases.
type column struct {
	table      string
	definition string
}

var additive = []column{
	{table: "contacts", definition: "phone TEXT DEFAULT ''"},
	{table: "invoices", definition: "fee_sponsored TEXT DEFAULT 'false'"},
}

// Statements returns the statements Apply runs for dialect, in order.
func Statements(dialect Dialect) []string {
	stmts := append([]string(nil), schema...)
	for _, col := range additive {
		if dialect == Postgres {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", col.table, col.definition))
			continue
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", col.table, col.definition))
	}
	return stmts
}

// Apply runs the schema statements. Additive column changes that fail
// because the column already exists are skipped.
func Apply(ctx context.Context, db *sql.DB, dialect Dialect) error {
	for _, stmt := range Statements(dialect) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isAlter(stmt) && isDuplicateColumn(err) {
				continue
			}
			return fmt.Errorf("apply %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func isAlter(stmt string) bool {
	return strings.HasPrefix(stmt, "ALTER TABLE")
}

func isDuplicateColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

func firstLine(stmt string) string {
	if idx := strings.IndexByte(stmt, '\n'); idx != -1 {
		return strings.TrimSpace(stmt[:idx])
	}
	return stmt
}
