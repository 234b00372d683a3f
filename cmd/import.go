package cmd

import (
	"context"

	"github.com/parolam/breach-checker/config"
	"github.com/parolam/breach-checker/services"
	"github.com/parolam/breach-checker/store"
	"github.com/pkg/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import leak files into the store.",
		Long: `Recursively imports every .txt file under --input. Each line is an
email and a password separated by the first ':', ',', ';' or tab; other
lines are skipped.

All rows are attributed to the breach named by DEFAULT_BREACH_NAME and
dated DEFAULT_BREACH_DATE (DD-MM-YYYY). The breach is created on first use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			input, _ := flags.GetString("input")
			create, _ := flags.GetBool("create")
			noProgress, _ := flags.GetBool("no-progress")

			ctx, stop := signalContext()
			defer stop()
			return runImport(ctx, cfg, input, create, !noProgress)
		},
	}

	flags := importCmd.Flags()
	flags.String("input", "", "Directory holding the .txt files to import.")
	flags.Int("batch-size", config.DefaultBatchSize, "Rows sent to the store per insert.")
	flags.Bool("create", false, "Create the tables before importing.")
	flags.Bool("no-progress", false, "Disable the progress bar and its line counting pass.")
	_ = importCmd.MarkFlagRequired("input")
	return importCmd
}

func runImport(ctx context.Context, cfg *config.Config, input string, create, progress bool) error {
	files, err := services.DiscoverFiles(input)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Errorf("no .txt files found in %q", input)
	}

	s, err := store.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if create {
		if err := s.CreateIfMissing(ctx); err != nil {
			return err
		}
	}

	rdb, err := store.ConnectRedis(ctx, cfg)
	if err != nil {
		return err
	}
	var locker services.Locker = store.NewLocalLocker()
	cache := store.NewCache(rdb, cfg.CacheTTL)
	if rdb != nil {
		defer rdb.Close()
		locker = store.NewRedisLocker(rdb)
	}

	breachID, err := services.NewRegistry(s, locker).GetOrCreate(ctx, cfg.BreachName, cfg.BreachDate)
	if err != nil {
		return err
	}

	in := &services.Ingestor{
		Store:     s,
		BatchSize: cfg.BatchSize,
		BreachID:  breachID,
		Progress:  progress,
		Cache:     cache,
	}
	res, err := in.Run(ctx, files)
	pterm.Info.Printf("files: %d (failed %d), lines: %d (skipped %d), rows: %d, flushes: %d\n",
		res.Files, res.FailedFiles, res.Lines, res.Skipped, res.Rows, res.Flushes)
	return err
}
