package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

var (
	pageSize int
	pageJSON bool
)

var pageCmd = &cobra.Command{
	Use:   "page [number]",
	Short: "Print one page of the dataset",
	Long: `Prints page number (1-based, default 1). A page beyond the end of the
dataset is served as the last page and says so.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPage,
}

func init() {
	pageCmd.Flags().IntVar(&pageSize, "size", 0, "page size (default: chunk size)")
	pageCmd.Flags().BoolVar(&pageJSON, "json", false, "output the page as JSON")
	rootCmd.AddCommand(pageCmd)
}

func runPage(cmd *cobra.Command, args []string) error {
	number := 1
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return err
		}
		number = n
	}

	a, err := newApp(cfg, appLog)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()
	page, err := a.service.GetPage(ctx, number, pageSize)
	if err != nil {
		return err
	}

	if pageJSON {
		return printJSON(cmd.OutOrStdout(), page)
	}
	p := newPrinter(cmd.OutOrStdout())
	p.Records(page.Records)
	p.Note("page %d of %d, %d records", page.Page, page.TotalChunks, len(page.Records))
	if page.Corrected {
		p.Note("page %d does not exist, showing page %d", page.RequestedPage, page.Page)
	}
	if page.Notice != "" {
		p.Note("%s", page.Notice)
	}
	return nil
}
