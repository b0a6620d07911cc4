package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldsync/syncd/internal/api"
	"github.com/fieldsync/syncd/internal/clock"
	"github.com/fieldsync/syncd/internal/config"
	"github.com/fieldsync/syncd/internal/logging"
	"github.com/fieldsync/syncd/internal/store"
)

// ServeOptions holds flags for the serve command, wrapping the
// config.Server knobs (database path, listen address, log verbosity and
// format). Both embedded structs carry a Verbose field, so it is always
// reached through RootOptions or Server explicitly.
type ServeOptions struct {
	*RootOptions
	config.Server
}

// NewServeCommand builds the serve subcommand.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync HTTP server",
		Long: `Start the sync protocol HTTP server.

Opens (or creates) a SQLite database and serves GET /sync, POST /sync,
GET /sync/v2, and GET /health.

Example:
  syncd serve --db ./syncd.db --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Server.Verbose = opts.RootOptions.Verbose
			opts.JSONLogs = opts.RootOptions.Format == "json"
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Addr, "addr", config.DefaultAddr, "address to listen on")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	level := logging.InfoLevel
	if opts.Server.Verbose {
		level = logging.DebugLevel
	}
	logging.Init(logging.Config{Level: level, JSONOutput: opts.JSONLogs})

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logging.Logger.Error().Err(closeErr).Msg("error closing database")
		}
	}()

	srv := api.New(st, clock.RealClock{})
	httpServer := &http.Server{
		Addr:    opts.Addr,
		Handler: srv.Handler(),
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		logging.Logger.Info().Str("addr", opts.Addr).Str("db", opts.Database).Msg("serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case sig := <-sigChan:
		logging.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		_ = httpServer.Shutdown(ctx)
		return nil
	case err := <-errChan:
		if err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		return nil
	case <-ctx.Done():
		_ = httpServer.Shutdown(context.Background())
		return nil
	}
}
