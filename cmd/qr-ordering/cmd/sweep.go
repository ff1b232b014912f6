package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/qr-table-ordering/internal/config"
)

var sweepTimeout time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire every active session past its deadline",
	Long: `Moves active sessions whose expiry time has passed to expired in one
bulk update. Validation already expires sessions lazily; run this from a
scheduler to keep listings and statistics current.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Store.Driver == config.StoreMemory {
			return errors.New("sweep needs a persistent store; set STORE_DRIVER=mongo")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), sweepTimeout)
		defer cancel()

		g, err := newGuard(ctx, cfg)
		if err != nil {
			return err
		}
		defer g.Close(context.Background())

		n, err := g.SweepExpired(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "expired %d session(s)\n", n)
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", time.Minute, "Maximum time to wait for the store")
}
