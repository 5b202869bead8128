// Package migrations embeds the SQL that creates the loops schema used by
// the Postgres ledger store and exposes it as a bun/migrate registry.
package migrations

import (
	"embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed *.sql
var ledgerSQL embed.FS

// Migrations holds the ledger schema migrations, discovered from the
// embedded SQL at package load.
var Migrations = func() *migrate.Migrations {
	m := migrate.NewMigrations()
	if err := m.Discover(ledgerSQL); err != nil {
		panic("loopkit migrations: " + err.Error())
	}
	return m
}()

// NewMigrator returns a runner over the embedded migrations for db. Callers
// own Init and Migrate; loopkit never migrates implicitly.
func NewMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, Migrations)
}
