package main

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/domain/model"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/repository"
	"github.com/MatheusGomesCG/fit-life-dashboard-sub001/internal/service"
)

// resolvedUser — вывод resolve-role.
type resolvedUser struct {
	ID      string                 `json:"id"`
	Nome    string                 `json:"nome"`
	Tipo    model.RoleKind         `json:"tipo"`
	IsAdmin bool                   `json:"is_admin"`
	Profile *model.ExtendedProfile `json:"profile,omitempty"`
}

func resolveRoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve-role <user-id>",
		Short: "Показать роль пользователя так, как её видит портал",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := connectDB(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			resolver := service.NewResolver(repository.NewRoleRepository(pool), nil, cfg.RoleLookupTimeout, logger)
			user := resolver.Resolve(ctx, id.String(), "")
			isAdmin, err := resolver.IsAdmin(ctx, id.String())
			if err != nil {
				return err
			}

			out := resolvedUser{
				ID:      user.ID,
				Nome:    user.Nome,
				Tipo:    user.Kind(),
				IsAdmin: isAdmin,
			}
			out.Profile = user.Profile()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
