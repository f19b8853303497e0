package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/gridsignal/oadr2ven/internal/config"
	"github.com/gridsignal/oadr2ven/internal/engine"
	"github.com/gridsignal/oadr2ven/internal/store"
)

// IngestResult holds the outcome of a one-shot reconciliation.
type IngestResult struct {
	Reply  string `json:"reply,omitempty"`
	Events int    `json:"events"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <payload.xml>",
		Short: "Reconcile one distribute payload from a file",
		Long: `Run a single reconciliation pass over a saved oadrDistributeEvent
payload and print the reply that would go back to the VTN.

Useful for replaying captured traffic against a local event database.

Example:
  oadr2ven ingest --config ven.yaml captured-batch.xml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runIngest(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open payload", err)
	}
	defer f.Close()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	h := engine.NewHandler(engine.New(cfg.Engine()), st)
	reply, err := h.HandlePayload(ctx, f)
	if err != nil {
		_ = formatter.Error(ErrCodePayload, err.Error(), nil)
		return WrapExitError(ExitFailure, "payload rejected", err)
	}

	count, err := st.CountEvents(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to count events", err)
	}

	formatter.VerboseLog("Reconciled %s, %d event(s) now stored", path, count)
	return formatter.Success(IngestResult{Reply: string(reply), Events: count})
}
