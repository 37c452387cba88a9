package main

import (
	"github.com/spf13/cobra"

	"github.com/scrypster/orderscope/internal/dataset"
)

var warmCmd = &cobra.Command{
	Use:   "warm",
	Short: "Refresh the chunk count and the first chunk once",
	Long: `Runs one cache warming pass: refreshes the chunk count and loads the first
chunk, persisting both when a storage engine is configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, appLog)
		if err != nil {
			return err
		}
		defer a.Close()

		warmer, err := dataset.NewWarmer(a.service, cfg.Warmer.Schedule, appLog)
		if err != nil {
			return err
		}
		ctx, cancel := commandContext()
		defer cancel()
		if err := warmer.RunOnce(ctx); err != nil {
			return err
		}
		cmd.Printf("dataset %s: %d chunks, first chunk cached\n", cfg.Remote.DatasetID, a.service.TotalChunks(ctx))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(warmCmd)
}
