package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/finview/internal/sheet"
)

var (
	headerRow    int
	inspectSheet string
)

func init() {
	inspectCmd.Flags().IntVar(&headerRow, "header-row", 1, "row holding the column titles")
	inspectCmd.Flags().StringVar(&inspectSheet, "sheet", "", "only show this sheet")
}

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "List the sheets and header columns of a spreadsheet",
	Long: `List the sheets and header columns of a local spreadsheet so the mapping
of a new project can be filled in. Nothing is uploaded.

Examples:
  finview inspect caixa.xlsx
  finview inspect extrato.csv --header-row 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wb, err := sheet.InspectFile(args[0], headerRow)
		if err != nil {
			return err
		}
		return printWorkbook(cmd.OutOrStdout(), wb, inspectSheet)
	},
}

func printWorkbook(w io.Writer, wb sheet.Workbook, only string) error {
	sheets := wb.Sheets
	if only != "" {
		s, ok := wb.Find(only)
		if !ok {
			return fmt.Errorf("sheet %q not found, available: %s", only, strings.Join(wb.Names(), ", "))
		}
		sheets = []sheet.Sheet{s}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, s := range sheets {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "Sheet %q (%d rows)\n", s.Name, s.Rows)
		if len(s.Columns) == 0 {
			fmt.Fprintln(tw, "  (empty header row)")
			continue
		}
		for _, c := range s.Columns {
			fmt.Fprintf(tw, "  %s\t%s\n", c.Letter, c.Title)
		}
	}
	return tw.Flush()
}
