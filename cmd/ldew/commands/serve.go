package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/ldew/internal/config"
	"github.com/dyluth/ldew/internal/hooks"
	"github.com/dyluth/ldew/internal/printer"
	"github.com/dyluth/ldew/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveNoReload  bool
	serveRateLimit float64
	serveBurst     int
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: groupHost,
	Short:   "Serve the render hooks over HTTP",
	Long: `Serve the render hooks for the host over HTTP.

Endpoints:
  GET  /healthz
  POST /hooks/every-page-top
  POST /hooks/data-entry-form
  POST /hooks/save-record
  GET  /render/data-entry-form

project.yml is reloaded when it changes; an invalid edit is rejected and
the previous configuration stays active.

Environment:
  LDEW_CONFIG  path to project.yml
  REDIS_URL    Redis connection URL
  LDEW_ADDR    listen address (default :8080)`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $LDEW_ADDR, then :8080)")
	serveCmd.Flags().BoolVar(&serveNoReload, "no-reload", false, "Do not watch project.yml for changes")
	serveCmd.Flags().Float64Var(&serveRateLimit, "rate-limit", 50, "Max hook requests per second (0 = unlimited)")
	serveCmd.Flags().IntVar(&serveBurst, "burst", 100, "Burst size for --rate-limit")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := resolvedConfigPath()
	cfgWatcher, err := config.NewWatcher(path)
	if err != nil {
		return printer.ErrorWithContext(
			"invalid project configuration",
			err.Error(),
			map[string]string{"Config": path},
			[]string{"Fix the file and validate it:\n  ldew check"},
		)
	}
	if !serveNoReload {
		if err := cfgWatcher.Start(runCtx); err != nil {
			return fmt.Errorf("failed to watch configuration: %w", err)
		}
		defer cfgWatcher.Close()
	}

	store, err := connectStore(runCtx, cfgWatcher.Current())
	if err != nil {
		return err
	}
	defer store.Close()

	addr := firstNonEmpty(serveAddr, "LDEW_ADDR", defaultAddr)
	srv := server.New(addr, hooks.New(cfgWatcher, store), store)
	srv.SetRateLimit(serveRateLimit, serveBurst)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	printer.Success("Serving project '%s' on %s\n", cfgWatcher.Current().ProjectID, addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	printer.Info("Received signal %v, shutting down gracefully...\n", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
