package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-gate/internal/config"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

// migrationLister is implemented by the SQL backends.
type migrationLister interface {
	AppliedMigrations(ctx context.Context) ([]string, error)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer backend.Close()

	fmt.Println("Database schema is up to date")
	if l, ok := backend.(migrationLister); ok {
		applied, err := l.AppliedMigrations(ctx)
		if err != nil {
			return fmt.Errorf("listing migrations: %w", err)
		}
		for _, v := range applied {
			fmt.Printf("  %s\n", v)
		}
	}
	return nil
}
