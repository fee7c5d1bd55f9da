package cli

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/logrusorgru/aurora"
	"github.com/modernice/cqrs/cli/internal/clifactory"
	"github.com/modernice/cqrs/internal/config"
)

// Main is the entrypoint for the CLI. Call Main from an actual main function.
func Main() {
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := New(clifactory.Context(ctx))

	if err := app.Run(); err != nil {
		if errors.Is(err, config.ErrInvalid) {
			log.Fatalf(aurora.Red("Invalid configuration: %v").String(), err)
		}
		log.Fatal(aurora.Red(err))
	}
}
