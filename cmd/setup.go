package cmd

import (
	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/store"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the database and its tables if they do not exist.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			s, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			pterm.Info.Println("creating tables ...")
			if err := s.CreateIfMissing(ctx); err != nil {
				return err
			}
			pterm.Success.Println("setup completed successfully!")
			return nil
		},
	}
}
