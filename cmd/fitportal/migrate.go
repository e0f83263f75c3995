package main

import (
	"github.com/spf13/cobra"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/database"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Управление миграциями таблиц ролей",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Применить все новые миграции",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, logger, err := loadConfig()
				if err != nil {
					return err
				}
				return database.Migrate(cfg, logger)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Откатить последнюю миграцию",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, logger, err := loadConfig()
				if err != nil {
					return err
				}
				return database.MigrateDown(cfg, logger)
			},
		},
	)

	return cmd
}
