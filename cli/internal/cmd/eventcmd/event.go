package eventcmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/logrusorgru/aurora"
	"github.com/modernice/cqrs/cli/internal/clifactory"
	"github.com/modernice/cqrs/event"
	"github.com/spf13/cobra"
)

// Head returns the head command.
func Head(f *clifactory.Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "Print the next global sequence number",
		Long: heredoc.Doc(`
			Print the global sequence number the next appended event will be
			assigned. This equals the number of events in the log.
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := f.EventStore(f.Context)
			if err != nil {
				return err
			}

			next, err := store.NextGlobalSequenceNumber(f.Context)
			if err != nil {
				return fmt.Errorf("next global sequence number: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), next)

			return nil
		},
	}
}

// Events returns the events command.
func Events(f *clifactory.Factory) *cobra.Command {
	var cfg struct {
		from  int64
		limit int
	}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the events of the log",
		Example: heredoc.Doc(`
			List the first 20 events:

			$ cqrs events --limit 20

			List the events from global sequence number 100:

			$ cqrs events --from 100
		`),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.from < 0 {
				return fmt.Errorf("--from must not be negative")
			}

			store, err := f.EventStore(f.Context)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(f.Context)
			defer cancel()

			events, errs, err := store.Stream(ctx, cfg.from)
			if err != nil {
				return fmt.Errorf("stream events: %w", err)
			}

			tabw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 1, ' ', 0)
			fmt.Fprintln(tabw, "GLOBAL\tNAME\tAGGREGATE\tSEQ\tTIME")

			var n int
			if err := event.Walk(ctx, func(evt event.Event) error {
				if cfg.limit > 0 && n >= cfg.limit {
					cancel()
					return nil
				}
				n++
				fmt.Fprintf(
					tabw, "%d\t%s\t%s\t%d\t%s\n",
					evt.GlobalSequenceNumber(),
					evt.Name(),
					event.Ref(evt),
					evt.SequenceNumber(),
					evt.Time().UTC().Format(time.RFC3339),
				)
				return nil
			}, events, errs); err != nil && ctx.Err() == nil {
				return fmt.Errorf("stream events: %w", err)
			}

			if err := tabw.Flush(); err != nil {
				return err
			}

			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), aurora.Yellow("No events."))
			}

			return nil
		},
	}

	cmd.Flags().Int64Var(&cfg.from, "from", 0, "Global sequence number of the first listed event")
	cmd.Flags().IntVar(&cfg.limit, "limit", 50, "Maximum number of listed events (0 = no limit)")

	return cmd
}
