package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scrypster/orderscope/internal/query"
	"github.com/scrypster/orderscope/internal/search"
)

var (
	queryPage    int
	queryJSON    bool
	queryExplain bool
)

var queryCmd = &cobra.Command{
	Use:   "query [expression]",
	Short: "Filter a page with the query language",
	Long: `Filters the records of --page with a query such as

  status:paid AND total>100
  "Jane" OR email:example.com
  created>=2024-06-01

An expression that yields no conditions is treated as a plain substring
search.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryPage, "page", 1, "page to filter")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output results as JSON")
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false, "print the parsed conditions only")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	conds := query.Parse(args[0])
	if queryExplain {
		if queryJSON {
			return printJSON(cmd.OutOrStdout(), conds)
		}
		p := newPrinter(cmd.OutOrStdout())
		if !query.Valid(conds) {
			p.Note("no conditions, substring search for %q", strings.TrimSpace(args[0]))
		}
		for _, c := range conds {
			line := c.Column + " " + string(c.Operator) + " " + c.Value
			if c.Connector != "" {
				line = string(c.Connector) + " " + line
			}
			cmd.Println(line)
		}
		return nil
	}

	a, err := newApp(cfg, appLog)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()
	local, err := a.service.Records(ctx, queryPage)
	if err != nil {
		return err
	}

	results := search.LocalFallback(args[0], local)
	if query.Valid(conds) {
		results = query.Apply(local, conds)
	}

	if queryJSON {
		return printJSON(cmd.OutOrStdout(), results)
	}
	p := newPrinter(cmd.OutOrStdout())
	p.Records(results)
	p.Note("%d of %d orders on page %d", len(results), len(local), queryPage)
	return nil
}
