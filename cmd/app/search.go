package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/starford/mtvsearch/internal"
	"github.com/starford/mtvsearch/internal/filter"
	"github.com/starford/mtvsearch/internal/models"
	"github.com/starford/mtvsearch/internal/session"
	"github.com/starford/mtvsearch/internal/view"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	activeHeaderStyle = headerStyle.
				Underline(true)

	cellStyle = lipgloss.NewStyle().
			PaddingRight(2)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	currentPageStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

// Column widths in cells, title first.
var columnWidths = map[string]int{
	filter.FieldTitle:    40,
	filter.FieldChannel:  10,
	filter.FieldStart:    20,
	filter.FieldDuration: 9,
	filter.FieldTopic:    30,
}

func searchCommand() *cli.Command {
	flags := make([]cli.Flag, 0, 12)
	for _, field := range filter.Fields() {
		flags = append(flags, &cli.StringFlag{
			Name:  field,
			Usage: "Filter on " + field,
		})
		if kind, _ := filter.KindOf(field); kind != filter.KindPlain {
			flags = append(flags, &cli.StringFlag{
				Name:  field + "-mode",
				Usage: "How " + field + " is compared (" + modesFor(kind) + ")",
			})
		}
	}
	flags = append(flags,
		&cli.IntFlag{
			Name:  "page",
			Usage: "Result page",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "sort",
			Usage: "Sort field",
		},
		&cli.StringFlag{
			Name:  "direction",
			Usage: "Sort direction (ascending, descending)",
		},
	)

	return &cli.Command{
		Name:  "search",
		Usage: "Run one catalog search and print the result page",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			p, err := searchParams(cmd)
			if err != nil {
				return err
			}

			// stdout carries the table.
			logger := internal.NewLogger(cfg, os.Stderr)
			client := internal.NewBackend(cfg, nil)
			sessions := internal.NewSessions(cfg, client, logger, nil, nil)
			defer sessions.Close()

			v, err := sessions.Search(ctx, p)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			renderView(os.Stdout, v)
			if v.Error != "" {
				return fmt.Errorf("search failed: %s", v.Error)
			}
			return nil
		},
	}
}

func modesFor(kind filter.Kind) string {
	var names []string
	for _, m := range []filter.Modifier{filter.Before, filter.After, filter.RelativeAge, filter.Shorter, filter.Longer} {
		if m.ValidFor(kind) {
			names = append(names, m.String())
		}
	}
	return strings.Join(names, ", ")
}

func searchParams(cmd *cli.Command) (session.SearchParams, error) {
	p := session.SearchParams{
		Page:      cmd.Int("page"),
		SortField: cmd.String("sort"),
	}
	if raw := cmd.String("direction"); raw != "" {
		dir, err := models.ParseSortDirection(raw)
		if err != nil {
			return p, err
		}
		p.SortDirection = dir
	}
	for _, field := range filter.Fields() {
		text := cmd.String(field)
		if text == "" {
			continue
		}
		m, err := filter.ParseModifier(cmd.String(field + "-mode"))
		if err != nil {
			return p, err
		}
		p.Filters = append(p.Filters, filter.Value{Field: field, Text: text, Modifier: m})
	}
	return p, nil
}

func renderView(w io.Writer, v view.View) {
	if v.Error != "" {
		fmt.Fprintln(w, errorStyle.Render("Error: "+v.Error))
	}
	if len(v.Rules) == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No filters set"))
		return
	}
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No results found"))
		return
	}

	var header []string
	for _, col := range v.Columns {
		label := col.Field
		style := headerStyle
		for _, s := range col.Sort {
			if s.Active {
				label += " " + arrow(s.Direction)
				style = activeHeaderStyle
			}
		}
		header = append(header, cellStyle.Width(columnWidths[col.Field]).Render(style.Render(label)))
	}
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, header...))

	for _, row := range v.Rows {
		cells := make([]string, 0, len(v.Columns))
		for _, col := range v.Columns {
			width := columnWidths[col.Field]
			cells = append(cells, cellStyle.Width(width).MaxHeight(1).Render(truncate(row.Text(col.Field), width-2)))
		}
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, metaStyle.Render(fmt.Sprintf("%d-%d of %d", v.Bounds.First, v.Bounds.Last, v.Bounds.Total)))
	if pager := renderPager(v.Pager); pager != "" {
		fmt.Fprintln(w, pager)
	}
}

func renderPager(items []view.PageItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case it.Kind == view.KindEllipsis:
			parts = append(parts, "...")
		case it.Current:
			parts = append(parts, currentPageStyle.Render(strconv.Itoa(it.Page)))
		default:
			parts = append(parts, strconv.Itoa(it.Page))
		}
	}
	return strings.Join(parts, " ")
}

func arrow(d models.SortDirection) string {
	if d == models.Ascending {
		return "^"
	}
	return "v"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "~"
}
