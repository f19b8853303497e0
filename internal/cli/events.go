package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gridsignal/oadr2ven/internal/config"
	"github.com/gridsignal/oadr2ven/internal/oadr"
	"github.com/gridsignal/oadr2ven/internal/store"
)

// EventSummary is one stored event in listing output.
type EventSummary struct {
	EventID   string `json:"event_id"`
	VTNID     string `json:"vtn_id"`
	ModNumber int    `json:"mod_number"`
	Status    string `json:"status,omitempty"`
	Start     string `json:"start,omitempty"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List stored events",
		Long: `List the events currently held in the VEN's event database.

Example:
  oadr2ven events --config ven.yaml
  oadr2ven events --config ven.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(rootOpts, cmd)
		},
	}
	return cmd
}

func runEvents(opts *RootOptions, cmd *cobra.Command) error {
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

	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open event database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := st.ListEvents(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	summaries := make([]EventSummary, 0, len(rows))
	for _, row := range rows {
		s := EventSummary{
			EventID:   row.EventID,
			VTNID:     row.VTNID,
			ModNumber: row.ModNumber,
		}
		if ev, parseErr := oadr.ParseEvent(row.Raw, oadr.Profile(cfg.Profile)); parseErr == nil {
			s.Status = ev.Status()
			if start, startErr := ev.ActivePeriodStart(); startErr == nil {
				s.Start = start.Format("2006-01-02T15:04:05Z07:00")
			}
		}
		summaries = append(summaries, s)
	}

	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		return formatter.Success("no stored events")
	}
	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "%s  mod=%d  vtn=%s", s.EventID, s.ModNumber, s.VTNID)
		if s.Status != "" {
			fmt.Fprintf(&b, "  status=%s", s.Status)
		}
		if s.Start != "" {
			fmt.Fprintf(&b, "  start=%s", s.Start)
		}
		b.WriteByte('\n')
	}
	return formatter.Success(strings.TrimRight(b.String(), "\n"))
}
