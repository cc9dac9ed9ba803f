package main

import (
	"fmt"
	"log/slog"

	"axiapac.com/workforce/attendance/app"
	"axiapac.com/workforce/attendance/model"
	"axiapac.com/workforce/console"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateMaster bool

var migrateCmd = &cobra.Command{
	Use:   "migrate [company...]",
	Short: "Create or update the attendance tables of development databases",
	Long: `Production schemas are owned elsewhere. This brings a development master
and company databases up to the tables the service reads and writes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		if migrateMaster {
			master, err := a.DM.MasterPool(ctx)
			if err != nil {
				return err
			}
			if err := master.WithContext(ctx).AutoMigrate(&console.Company{}); err != nil {
				return fmt.Errorf("failed to migrate master: %w", err)
			}
			slog.Info("master migrated")
		}

		codes := args
		if len(codes) == 0 {
			companies, err := a.DM.ActiveCompanies(ctx)
			if err != nil {
				return err
			}
			for _, c := range companies {
				codes = append(codes, c.Code)
			}
		}
		for _, code := range codes {
			err := a.DM.Exec(ctx, code, func(db *gorm.DB) error {
				return db.AutoMigrate(model.TenantModels()...)
			})
			if err != nil {
				return fmt.Errorf("failed to migrate %s: %w", code, err)
			}
			slog.Info("company migrated", "company", code)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateMaster, "master", false, "also migrate the companies table")
	rootCmd.AddCommand(migrateCmd)
}
