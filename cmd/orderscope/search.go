package main

import (
	"github.com/spf13/cobra"
)

var (
	searchPage int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the remote index",
	Long: `Searches the remote index and reconciles the hits against the records of
--page. Hits that match no local record are shown as they came from the
index. When the index is unreachable the page is searched locally.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "page whose records hits are reconciled against")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, appLog)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()
	local, err := a.service.Records(ctx, searchPage)
	if err != nil {
		return err
	}
	results := a.search.Search(ctx, args[0], local)

	if searchJSON {
		return printJSON(cmd.OutOrStdout(), results)
	}
	p := newPrinter(cmd.OutOrStdout())
	if len(results) == 0 {
		p.Note("No orders found.")
		return nil
	}
	p.Records(results)
	p.Note("%d orders", len(results))
	return nil
}
