package cli

import (
	"github.com/spf13/cobra"

	"github.com/gridsignal/oadr2ven/internal/config"
)

// ValidationResult holds config validation results.
type ValidationResult struct {
	Valid   bool   `json:"valid"`
	Config  string `json:"config"`
	Profile string `json:"profile,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the VEN configuration",
		Long: `Validate the configuration file against the schema without starting
the VEN. Reports the first schema violation found.

Example:
  oadr2ven validate --config ven.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(rootOpts, cmd)
		},
	}
	return cmd
}

func runConfigValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Poll settings are checked beyond the schema (duration syntax).
	if _, err := cfg.PollInterval(); err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	formatter.VerboseLog("Validated %s", opts.Config)
	return formatter.Success(ValidationResult{
		Valid:   true,
		Config:  opts.Config,
		Profile: cfg.Profile,
	})
}
