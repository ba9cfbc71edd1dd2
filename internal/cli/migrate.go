package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sh1vu7/secreteshare/internal/config"
)

// MigrateResult contains the outcome of a migration run.
type MigrateResult struct {
	Driver        string `json:"driver"`
	SchemaVersion int    `json:"schema_version"`
}

func (r MigrateResult) String() string {
	return fmt.Sprintf("%s database at schema version %d", r.Driver, r.SchemaVersion)
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Opens the configured database, applying the base schema and any pending
migrations, then reports the schema version. Safe to run repeatedly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd, rootOpts)
		},
	}
}

func runMigrate(cmd *cobra.Command, opts *RootOptions) error {
	out := opts.formatter(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		_ = out.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid configuration", err)
	}
	return migrate(cmd, cfg, out)
}

func migrate(cmd *cobra.Command, cfg *config.Config, out *OutputFormatter) error {
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		_ = out.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "migration failed", err)
	}
	defer st.Close()

	version, err := st.SchemaVersion(cmd.Context())
	if err != nil {
		_ = out.Error(ErrCodeStorage, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read schema version", err)
	}
	return out.Success(MigrateResult{Driver: cfg.Database.Driver, SchemaVersion: version})
}
