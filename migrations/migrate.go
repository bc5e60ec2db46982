// Package migrations embeds and applies this repository's SQL schema
// migrations using golang-migrate.
package migrations

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
)

//go:embed *.sql
var embedded embed.FS

// Up applies every pending migration against db.
func Up(db *sql.DB) error {
	return run(db, func(m *migrate.Migrate) error { return m.Up() })
}

// Down rolls back every applied migration against db. Intended for test
// teardown, not production use.
func Down(db *sql.DB) error {
	return run(db, func(m *migrate.Migrate) error { return m.Down() })
}

func run(db *sql.DB, action func(*migrate.Migrate) error) error {
	source, err := iofs.New(embedded, ".")
	if err != nil {
		return apperrors.FatalStartup("open embedded migrations", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return apperrors.FatalStartup("create postgres migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return apperrors.FatalStartup("construct migrator", err)
	}

	if err := action(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperrors.DatabaseError("apply migrations", err)
	}
	return nil
}
