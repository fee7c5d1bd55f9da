package cliargs

import (
	"errors"

	"github.com/spf13/cobra"
)

// ExactN returns a cobra.PositionalArgs that requires exactly n arguments.
func ExactN(n int, errmsg string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.New(errmsg)
		}
		return nil
	}
}
