package rootcmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/modernice/cqrs/cli/internal/clifactory"
	"github.com/modernice/cqrs/cli/internal/cmd/eventcmd"
	"github.com/modernice/cqrs/cli/internal/cmd/snapshotcmd"
	"github.com/spf13/cobra"
)

// New returns the root command.
func New(f *clifactory.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cqrs",
		Short:         "Inspect the event log and snapshots of a cqrs application",
		SilenceErrors: true,
		SilenceUsage:  true,
		Long: heredoc.Doc(`
			The backend is configured through the environment (CQRS_BACKEND,
			CQRS_SQLITE_PATH, POSTGRES_EVENTSTORE, MONGO_URL, ...). Variables
			are also read from a .env file in the working directory.
		`),
		Example: heredoc.Doc(`
			$ cqrs head
			$ cqrs events --from 100 --limit 20
			$ CQRS_BACKEND=mongo cqrs snapshots delete order <id>
		`),
	}

	cmd.PersistentFlags().StringSliceVar(
		&f.EnvFiles,
		"env-file",
		f.EnvFiles,
		".env files to load (default \".env\")",
	)

	cmd.PersistentFlags().StringVarP(
		&f.Backend,
		"backend", "b",
		f.Backend,
		"Backend to use; overrides CQRS_BACKEND",
	)

	cmd.AddCommand(
		eventcmd.Head(f),
		eventcmd.Events(f),
		snapshotcmd.New(f),
	)

	return cmd
}
