package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bpr-rehab/campaigner/internal/app"
	"github.com/bpr-rehab/campaigner/internal/config"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "campaigner",
	Short: "Campaigner - bulk messaging dispatcher",
	Long:  `Campaigner sends batched email campaigns to patient contact lists.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the campaign API server",
	Long:  `Start the campaigner HTTP API and dispatch engine.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("campaigner version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd, migrateCmd, runCmd, cleanupCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	return config.Load(cfgFile)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  API: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  SMTP: %s:%d\n", cfg.SMTP.Host, cfg.SMTP.Port)
	fmt.Printf("  Batch size: %d (interval %dms)\n",
		cfg.Dispatch.DefaultBatchSize, cfg.Dispatch.DefaultBatchIntervalMs)
	if cfg.RateLimit.Enabled {
		fmt.Printf("  Rate limit: %d/hour, %d/day per domain\n",
			cfg.RateLimit.MessagesPerHour, cfg.RateLimit.MessagesPerDay)
	}

	return nil
}
