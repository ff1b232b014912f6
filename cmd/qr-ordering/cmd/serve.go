package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/qr-table-ordering/guard"
	"github.com/tendant/qr-table-ordering/internal/config"
)

var seedTableCount int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ordering API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		g, err := newGuard(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := g.Close(closeCtx); err != nil {
				logger.Error("failed to close store", "error", err)
			}
		}()
		logger.Info("store ready", "driver", cfg.Store.Driver)

		if cfg.Store.Driver == config.StoreMemory && seedTableCount > 0 {
			n, err := seedTables(ctx, g.Tables(), 1, seedTableCount)
			if err != nil {
				return err
			}
			logger.Info("seeded tables", "count", n)
		}

		if !g.HasAdminLogin() {
			logger.Warn("ADMIN_PASSWORD_HASH is not set; admin login is disabled")
		}
		if cfg.HasAdminTOTP() {
			logger.Info("admin TOTP enabled")
		}

		// Create router
		router := g.RouterWith(guard.RouterOptions{
			RateLimit:         cfg.RateLimit,
			SecurityHeaders:   cfg.SecurityHeaders,
			MaxBodyBytes:      cfg.Validation.MaxRequestBodySize,
			TrustProxyHeaders: cfg.TrustProxyHeaders,
			CookieSecure:      cfg.Admin.CookieSecure,
		})

		if cfg.Session.SweepInterval > 0 {
			go runSweeper(ctx, g, cfg.Session.SweepInterval)
			logger.Info("session sweeper enabled", "interval", cfg.Session.SweepInterval)
		}

		server := &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// Wait for interrupt signal
		select {
		case <-ctx.Done():
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		logger.Info("server stopped")
		return nil
	},
}

// runSweeper expires stale sessions every interval until ctx is done.
func runSweeper(ctx context.Context, g *guard.Guard, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := g.SweepExpired(ctx); err != nil {
				logger.Error("session sweep failed", "error", err)
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&seedTableCount, "seed-tables", 20, "Tables to create at startup when STORE_DRIVER=memory")
}
