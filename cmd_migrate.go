package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelc143/Planarc/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			dialect, err := database.ParseDialect(cfg.DBDriver)
			if err != nil {
				return err
			}

			db, err := sql.Open(dialect.DriverName(), dialect.DSN(cfg.DatabaseURL))
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			applied, err := database.Migrate(cmd.Context(), db, dialect)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			logger.Info("migrations applied", "driver", dialect.Name(), "versions", applied)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s): %v\n", len(applied), applied)
			return nil
		},
	}
}
