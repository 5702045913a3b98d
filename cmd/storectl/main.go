// Command storectl compiles filters and queries collections of a docstore
// database from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	// Version is set by the build
	Version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Query docstore collections with filter text",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Log compiled query documents")

	env := &environment{debug: &debug}
	root.AddCommand(newParseCommand())
	root.AddCommand(newFindCommand(env))
	root.AddCommand(newCountCommand(env))
	root.AddCommand(newDistinctCommand(env))
	root.AddCommand(newVisitCommand(env))
	root.AddCommand(newRemoveCommand(env))
	return root
}
