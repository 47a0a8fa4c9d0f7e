package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/beanvault/wallpaper-ai/internal/config"
	"github.com/beanvault/wallpaper-ai/internal/lambdaboot"
	"github.com/beanvault/wallpaper-ai/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "wallpaper-cli",
	Short: "Wallpaper generation pipeline - local server and catalog tools",
	Long: `wallpaper-cli runs the wallpaper pipeline outside Lambda.

Configuration is read from WALLPAPER_* environment variables (a local .env
file is loaded first), an optional config.yaml, and the flags below.

Examples:
  wallpaper-cli serve --port 8080 --catalog-backend sqlite
  wallpaper-cli generate --mode dark --category tsukimi
  wallpaper-cli catalog top`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal outside local development.
		_ = godotenv.Load()
		logging.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().String("base-url", "", "Public base URL the provider calls back")
	rootCmd.PersistentFlags().String("catalog-backend", config.BackendDynamo, "Catalog backend (dynamo or sqlite)")
	rootCmd.PersistentFlags().String("sqlite-path", "wallpapers.db", "SQLite database path")
	rootCmd.PersistentFlags().String("dynamo-table", "", "DynamoDB table name")
	rootCmd.PersistentFlags().String("bucket", "", "Object store bucket")

	for _, name := range []string{"base-url", "catalog-backend", "sqlite-path", "dynamo-table", "bucket"} {
		viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}

	rootCmd.AddCommand(serveCmd, generateCmd, catalogCmd)
}

// loadApp loads and validates configuration and wires the service.
func loadApp(ctx context.Context) (*lambdaboot.App, error) {
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return lambdaboot.Build(ctx, cfg)
}
