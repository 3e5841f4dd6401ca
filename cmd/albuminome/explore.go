package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"albuminome/internal/core"
	"albuminome/internal/present"
	"albuminome/internal/server"
	"albuminome/internal/session"
	"albuminome/pkg/domain"
)

// Output formats of the explore command.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

// Views selectable with --view.
const (
	viewBoth     = "both"
	viewStudies  = "studies"
	viewProteins = "proteins"
)

type exploreOptions struct {
	albuminOnly   string
	otherProteins []string
	format        string
	view          string
}

func (c *cli) exploreCmd() *cobra.Command {
	opts := exploreOptions{}
	cmd := &cobra.Command{
		Use:   "explore",
		Short: "Filter studies and rank the proteins they mention",
		Long: "Select studies by whether they examine albumin-binding proteins only and, for co-removal " +
			"studies, by the high-abundance proteins depleted with albumin. Prints the selected studies " +
			"and the proteins ranked by how many of them mention each.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := c.loadService(cmd.Context())
			if err != nil {
				return err
			}
			params := svc.DefaultParams()
			params.AlbuminOnly = domain.AlbuminOnlyMode(opts.albuminOnly)
			if cmd.Flags().Changed("other-protein") {
				params.OtherProteins = splitProteins(opts.otherProteins)
				if err := core.CheckSelection(svc.Vocabulary(), params.OtherProteins); err != nil {
					return err
				}
			}
			result, err := svc.Explore(cmd.Context(), params)
			if err != nil {
				return err
			}
			return writeExploration(c.stdout, session.NewView(result, svc.Now()), opts.format, opts.view)
		},
	}
	cmd.Flags().StringVar(&opts.albuminOnly, "albumin-only", string(domain.DefaultAlbuminOnlyMode), "All, Yes or No")
	cmd.Flags().StringArrayVar(&opts.otherProteins, "other-protein", nil, "co-removed protein to select (repeatable; empty selects none)")
	cmd.Flags().StringVar(&opts.format, "format", formatTable, "table, json or csv")
	cmd.Flags().StringVar(&opts.view, "view", viewBoth, "both, studies or proteins")
	return cmd
}

func (c *cli) loadService(ctx context.Context) (*core.Service, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = logger.Sync() }()
	svc, _, err := server.LoadService(ctx, cfg, logger)
	return svc, err
}

// splitProteins drops empty entries so --other-protein "" selects nothing.
func splitProteins(values []string) []string {
	out := []string{}
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}

type namedTable struct {
	title string
	table present.Table
}

func selectTables(view session.View, which string) ([]namedTable, error) {
	studies := namedTable{title: core.SelectedPapersTitle, table: view.SelectedPapers}
	proteins := namedTable{title: core.AggregatedTableTitle, table: view.AggregatedTable}
	switch which {
	case viewBoth, "":
		return []namedTable{studies, proteins}, nil
	case viewStudies:
		return []namedTable{studies}, nil
	case viewProteins:
		return []namedTable{proteins}, nil
	default:
		return nil, fmt.Errorf("unknown view %q: want both, studies or proteins", which)
	}
}

func writeExploration(w io.Writer, view session.View, format, which string) error {
	tables, err := selectTables(view, which)
	if err != nil {
		return err
	}
	switch format {
	case formatJSON:
		payload := map[string]any{"params": view.Params}
		for _, t := range tables {
			if t.title == core.SelectedPapersTitle {
				payload["selected_papers"] = t.table
			} else {
				payload["aggregated_table"] = t.table
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	case formatCSV:
		for i, t := range tables {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if err := t.table.WriteCSV(w); err != nil {
				return err
			}
		}
		return nil
	case formatTable, "":
		for i, t := range tables {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w, renderTable(t.title, t.table)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q: want table, json or csv", format)
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Italic(true).Padding(0, 1)
)

// renderTable draws a bordered terminal table. Placeholders render their
// message in italics.
func renderTable(title string, t present.Table) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.ColumnNames()...).
		Rows(t.Records()...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case t.Placeholder:
				return noticeStyle
			default:
				return cellStyle
			}
		})
	return titleStyle.Render(title) + "\n" + tbl.Render()
}
