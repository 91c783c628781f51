package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/songgift/internal/migration"
	templatedomain "github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	settingsdomain "github.com/smallbiznis/songgift/internal/settings/domain"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed default templates and settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				conn      *gorm.DB
				templates templatedomain.Service
				settings  settingsdomain.Service
				log       *zap.Logger
			)
			return withComponents(cmd, func(ctx context.Context) error {
				if err := migration.Run(ctx, conn, templates, settings, log); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			}, &conn, &templates, &settings, &log)
		},
	}
}
