// Точка входа портала FitLife: HTTP-сервер с ролевой аутентификацией
// и служебные команды (миграции, заполнение ролей, проверка роли).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/config"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/database"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fitportal",
		Short: "Портал FitLife: вход, роли и защищённые разделы",
		Long: `fitportal обслуживает портал преподавателей и учеников FitLife.

Команда serve запускает HTTP-сервер (веб-портал и JSON API).
Остальные команды помогают администрировать таблицы ролей.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var envFile string
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "файл с переменными окружения")
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return config.LoadDotEnv(envFile)
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		seedCmd(),
		resolveRoleCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %s\n", err)
		os.Exit(1)
	}
}

// loadConfig загружает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}

// connectDB открывает пул соединений без применения миграций.
func connectDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("подключение к PostgreSQL: %w", err)
	}
	return pool, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}
