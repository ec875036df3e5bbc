package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bpr-rehab/campaigner/internal/db"
	"github.com/bpr-rehab/campaigner/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations and seed default templates",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		return err
	}
	fmt.Println("Migrations completed successfully")

	seeded, err := repository.NewTemplateRepository(database.DB).SeedDefaults()
	if err != nil {
		return fmt.Errorf("failed to seed templates: %w", err)
	}
	if seeded > 0 {
		fmt.Printf("Seeded %d default templates\n", seeded)
	}

	return nil
}
