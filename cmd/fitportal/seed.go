package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/repository"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/service"
)

func seedCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Заполнить таблицы ролей из YAML-файла",
		Long: `Записывает строки professores, alunos и admins из YAML-файла.
Существующие строки обновляются. Все записи выполняются в одной транзакции.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("открытие файла: %w", err)
			}
			defer f.Close()

			// Разбор не требует БД: ошибки файла видны до подключения
			records, err := service.NewSeeder(nil, nil, logger).ParseSeed(f)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "Файл корректен, записей: %d\n", len(records))
				return nil
			}

			ctx := context.Background()
			pool, err := connectDB(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			seeder := service.NewSeeder(repository.NewRoleRepository(pool), repository.NewTxRunner(pool), logger)
			if err := seeder.Apply(ctx, records); err != nil {
				return fmt.Errorf("запись ролей: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Записано строк: %d\n", len(records))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "только проверить файл")

	return cmd
}
