package main

import (
	"database/sql"

	"github.com/trezcool/masomo-credits/storage/database"
)

// migrator runs a goose command against the app's database.
type migrator func(command string, args ...string) error

var migrateFunc = database.Migrate // mockable

func newMigrator(db *sql.DB) migrator {
	return func(command string, args ...string) error {
		return migrateFunc(db, command, args...)
	}
}

func (cli *commandLine) migrate(args []string) error {
	return cli.migrator(args[0], args[1:]...)
}
