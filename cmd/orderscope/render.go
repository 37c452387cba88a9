package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/scrypster/orderscope/pkg/types"
)

var recordColumns = []string{"ORDER", "CUSTOMER", "EMAIL", "TOTAL", "CREATED", "FINANCIAL", "FULFILLMENT"}

// printer writes records either as an aligned, colored table (terminals)
// or as tab-separated lines (pipes and files).
type printer struct {
	w      io.Writer
	styled bool

	header lipgloss.Style
	muted  lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.styled = true
	}
	r := lipgloss.NewRenderer(w)
	p.header = r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	p.muted = r.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	p.good = r.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	p.warn = r.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	p.bad = r.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	return p
}

func recordCells(r types.Record) []string {
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format("2006-01-02")
	}
	total := fmt.Sprintf("%.2f", r.Total)
	if r.Currency != "" {
		total += " " + r.Currency
	}
	return []string{
		r.OrderNumber,
		r.CustomerName,
		r.Email,
		total,
		created,
		string(r.FinancialStatus),
		string(r.FulfillmentStatus),
	}
}

// Records prints records with a header row.
func (p *printer) Records(records []types.Record) {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = recordCells(r)
	}

	if !p.styled {
		fmt.Fprintln(p.w, strings.Join(recordColumns, "\t"))
		for _, row := range rows {
			fmt.Fprintln(p.w, strings.Join(row, "\t"))
		}
		return
	}

	widths := make([]int, len(recordColumns))
	for i, h := range recordColumns {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	cells := make([]string, len(recordColumns))
	for i, h := range recordColumns {
		cells[i] = p.header.Width(widths[i]).Render(h)
	}
	fmt.Fprintln(p.w, strings.Join(cells, "  "))

	for _, row := range rows {
		for i, cell := range row {
			cells[i] = p.cellStyle(i, cell).Width(widths[i]).Render(cell)
		}
		fmt.Fprintln(p.w, strings.Join(cells, "  "))
	}
}

func (p *printer) cellStyle(column int, value string) lipgloss.Style {
	if column < 5 {
		return lipgloss.NewStyle()
	}
	switch value {
	case string(types.FinancialPaid), string(types.FulfillmentFulfilled):
		return p.good
	case string(types.FinancialRefunded), string(types.FinancialVoided):
		return p.bad
	default:
		return p.warn
	}
}

// Note prints a secondary line such as a page summary.
func (p *printer) Note(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if p.styled {
		line = p.muted.Render(line)
	}
	fmt.Fprintln(p.w, line)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
