package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/qr-table-ordering/internal/config"
)

var (
	seedFirst int
	seedCount int
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Manage restaurant tables",
}

var tablesSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create numbered tables, skipping numbers that already exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedFirst <= 0 || seedCount <= 0 {
			return errors.New("--first and --count must be positive")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Store.Driver == config.StoreMemory {
			return errors.New("seeding needs a persistent store; set STORE_DRIVER=mongo")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		g, err := newGuard(ctx, cfg)
		if err != nil {
			return err
		}
		defer g.Close(context.Background())

		n, err := seedTables(ctx, g.Tables(), seedFirst, seedCount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %d table(s)\n", n)
		return nil
	},
}

func init() {
	tablesSeedCmd.Flags().IntVar(&seedFirst, "first", 1, "First table number")
	tablesSeedCmd.Flags().IntVar(&seedCount, "count", 20, "Number of tables")
	tablesCmd.AddCommand(tablesSeedCmd)
}
