package main

import (
	"encoding/json"
	"fmt"
	"os"

	"travel-intel/internal/bootstrap"
	"travel-intel/internal/config"
	"travel-intel/pkg/database"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "travelctl",
		Short:   "Operate the travel-intel consolidation engine",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML overlay applied over the environment")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output as JSON")

	rootCmd.AddCommand(consolidateCmd())
	rootCmd.AddCommand(latestCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(regenerateCmd())
	rootCmd.AddCommand(destinationsCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(workerCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadContainer wires the same stack the REST server runs on.
func loadContainer(cmd *cobra.Command) (*bootstrap.Container, error) {
	cfg := config.Load()
	overlay, _ := cmd.Flags().GetString("config")
	if overlay == "" {
		overlay = cfg.App.ConfigFile
	}
	if err := cfg.ApplyOverlay(overlay); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *gorm.DB
	if cfg.Consolidation.DatasetBackend == "postgres" {
		conn, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		db = conn
	}
	return bootstrap.NewContainer(db, cfg), nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var (
	heading = color.New(color.FgCyan, color.Bold).SprintFunc()
	good    = color.New(color.FgGreen).SprintFunc()
	warn    = color.New(color.FgYellow).SprintFunc()
	bad     = color.New(color.FgRed).SprintFunc()
)
