package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldsync/syncd/internal/canon"
	"github.com/fieldsync/syncd/internal/store"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
	TenantID string
	UserID   string
}

// NewSeedCommand builds the seed subcommand: creates a demo tenant and
// user so a fresh database can immediately accept overlay batches (every
// overlay batch's preflight requires a pre-existing tenant and user -
// nothing in the protocol itself creates them).
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed a demo tenant and user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			now := canon.GenesisTime
			if err := st.CreateTenant(cmd.Context(), opts.TenantID, opts.TenantID, now); err != nil {
				return WrapExitError(ExitCommandError, "failed to seed tenant", err)
			}
			if _, err := st.DB().ExecContext(ctx, `
				INSERT INTO users (id, tenant_id, object_name, object_type, status, version, created_by, modified_by, created_at, updated_at, data)
				VALUES (?, ?, 'user', 'user', 'active', 1, ?, ?, ?, ?, '{}')
				ON CONFLICT(id) DO NOTHING
			`, opts.UserID, opts.TenantID, opts.UserID, opts.UserID, now, now); err != nil {
				return WrapExitError(ExitCommandError, "failed to seed user", err)
			}

			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
			return formatter.Success(fmt.Sprintf("seeded tenant %q and user %q", opts.TenantID, opts.UserID))
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "t1", "tenant id to seed")
	cmd.Flags().StringVar(&opts.UserID, "user", "u1", "user id to seed")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
