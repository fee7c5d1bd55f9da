// Package cmdtest runs cobra commands in tests.
package cmdtest

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// Run executes cmd with args and returns the combined stdout and stderr
// output together with the error of the command.
func Run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.Execute()

	return out.String(), err
}

// MustRun is like Run but fails t if the command fails.
func MustRun(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()

	out, err := Run(t, cmd, args...)
	if err != nil {
		t.Fatalf("%s failed with %q\n\noutput:\n%s", strings.Join(args, " "), err, out)
	}

	return out
}

// Output runs cmd and expects it to output want.
func Output(t *testing.T, cmd *cobra.Command, args []string, want string) {
	t.Helper()

	if got := MustRun(t, cmd, args...); got != want {
		t.Fatalf("Command has wrong output.\n\nwant:\n%v\n\ngot:\n%v\n", want, got)
	}
}

// Table renders rows the way the commands render tables.
func Table(rows [][]string) string {
	var b strings.Builder
	tabw := tabwriter.NewWriter(&b, 0, 2, 1, ' ', 0)
	for _, row := range rows {
		fmt.Fprintln(tabw, strings.Join(row, "\t"))
	}
	if err := tabw.Flush(); err != nil {
		panic(fmt.Errorf("flush tabwriter: %w", err))
	}
	return b.String()
}
