// Command cqrs inspects the event log and the snapshots of a cqrs
// application.
package main

import "github.com/modernice/cqrs/cli"

func main() {
	cli.Main()
}
