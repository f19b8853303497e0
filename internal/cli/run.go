package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridsignal/oadr2ven/internal/config"
	"github.com/gridsignal/oadr2ven/internal/engine"
	"github.com/gridsignal/oadr2ven/internal/oadr"
	"github.com/gridsignal/oadr2ven/internal/store"
	"github.com/gridsignal/oadr2ven/internal/transport"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the VEN",
		Long: `Start the VEN with the configured transports.

Opens the event database (creating it if it doesn't exist), then polls the
VTN for events, listens for pushed events, or both, depending on which
transports the configuration enables.

Example:
  oadr2ven run --config ven.yaml
  oadr2ven run --config ven.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVEN(rootOpts, cmd)
		},
	}
	return cmd
}

func runVEN(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if cfg.Poll == nil && cfg.Push == nil {
		return NewExitError(ExitCommandError, "config enables neither poll nor push transport")
	}
	interval, err := cfg.PollInterval()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid poll configuration", err)
	}

	slog.Info("opening event database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing event database", "error", closeErr)
		}
	}()

	eng := engine.New(cfg.Engine())
	h := engine.NewHandler(eng, st)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 2)

	var srv *http.Server
	if cfg.Push != nil {
		srv = &http.Server{
			Addr:              cfg.Push.Listen,
			Handler:           transport.NewRouter(h, slog.Default()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				errCh <- serveErr
			}
		}()
		slog.Info("push listener started", "addr", cfg.Push.Listen)
	}

	if cfg.Poll != nil {
		p := transport.NewPoller(cfg.Poll.URL, cfg.VENID, oadr.Profile(cfg.Profile), h, slog.Default())
		go func() {
			errCh <- p.Run(ctx, interval)
		}()
		slog.Info("polling started", "url", cfg.Poll.URL, "interval", interval)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "VEN started. Press Ctrl-C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
		cancel()
	}

	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down push listener", "error", err)
		}
	}

	if runErr != nil {
		return WrapExitError(ExitFailure, "ven error", runErr)
	}
	slog.Info("ven stopped gracefully")
	return nil
}
