package cli

import (
	"github.com/modernice/cqrs/cli/internal/clifactory"
	"github.com/modernice/cqrs/cli/internal/cmd/rootcmd"
	"github.com/spf13/cobra"
)

// App is the CLI application.
type App struct {
	factory *clifactory.Factory
	root    *cobra.Command
}

// New returns the CLI App.
func New(opts ...clifactory.Option) *App {
	f := clifactory.New(opts...)
	return &App{
		factory: f,
		root:    rootcmd.New(f),
	}
}

// Root returns the root command.
func (app *App) Root() *cobra.Command {
	return app.root
}

// Run runs the app and closes the opened backends.
func (app *App) Run() error {
	defer app.factory.Close()
	return app.root.Execute()
}
