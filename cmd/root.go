package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rc := &cobra.Command{
		Use:   "breach-checker",
		Short: "Breach lookup service with k-anonymity password range queries.",
		Long: `breach-checker imports leaked email:password lists into a partitioned
store and answers two questions about them: whether an exact email address
appears in a known breach, and which password hash suffixes share a given
6-character SHA-1 prefix.

Configuration is read from a .env file, then the environment, then flags.`,
		SilenceUsage: true,
	}

	rc.AddCommand(newServeCommand())
	rc.AddCommand(newImportCommand())
	rc.AddCommand(newSetupCommand())
	return rc
}

func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
