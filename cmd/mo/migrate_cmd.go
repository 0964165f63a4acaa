package main

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/os2mo/mora/modules/org/infrastructure/persistence"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate <up|down|status>",
		Short:     "Apply the settings database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			run, ok := migrations[args[0]]
			if !ok {
				return withCode(exitUsage, fmt.Errorf("unknown migration command %q", args[0]))
			}
			conf, err := e.config()
			if err != nil {
				return err
			}
			db, err := sql.Open("postgres", conf.Database.Opts)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer db.Close()

			goose.SetBaseFS(persistence.MigrationFiles)
			if err := goose.SetDialect("postgres"); err != nil {
				return withCode(exitDB, err)
			}
			if err := run(db, persistence.MigrationsDir); err != nil {
				return withCode(exitDB, fmt.Errorf("migrate %s: %w", args[0], err))
			}
			return nil
		},
	}
}

var migrations = map[string]func(db *sql.DB, dir string) error{
	"up":     func(db *sql.DB, dir string) error { return goose.Up(db, dir) },
	"down":   func(db *sql.DB, dir string) error { return goose.Down(db, dir) },
	"status": func(db *sql.DB, dir string) error { return goose.Status(db, dir) },
}
