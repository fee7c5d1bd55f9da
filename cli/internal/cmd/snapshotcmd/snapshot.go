package snapshotcmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/google/uuid"
	"github.com/logrusorgru/aurora"
	"github.com/modernice/cqrs/cli/internal/cliargs"
	"github.com/modernice/cqrs/cli/internal/clifactory"
	"github.com/spf13/cobra"
)

// New returns the snapshots command.
func New(f *clifactory.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage persisted snapshots",
	}
	cmd.AddCommand(deleteCmd(f))
	return cmd
}

func deleteCmd(f *clifactory.Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <aggregate-name> <aggregate-id>",
		Short: "Delete the snapshots of an aggregate",
		Long: heredoc.Doc(`
			Delete all persisted snapshots of an aggregate. The aggregate is
			hydrated from its events the next time it is loaded.
		`),
		Example: heredoc.Doc(`
			$ cqrs snapshots delete order 6f1c7d7e-4f8e-4a57-9e3b-0d0d6a6b9d3c
		`),
		Args: cliargs.ExactN(2, "Must provide the aggregate name and id."),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			id, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid aggregate id %q: %w", args[1], err)
			}

			store, err := f.SnapshotStore(f.Context)
			if err != nil {
				return err
			}

			if err := store.Delete(f.Context, name, id); err != nil {
				return fmt.Errorf("delete snapshots: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), aurora.Green(heredoc.Docf(`
				Snapshots deleted.

				Aggregate: %s(%s)
			`, name, id)).String())

			return nil
		},
	}
}
