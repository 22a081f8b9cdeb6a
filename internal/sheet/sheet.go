// Package sheet reads just enough of a local spreadsheet to fill the mapping
// form: sheet names and the header row of each sheet.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupported is returned for files that cannot be inspected locally.
var ErrUnsupported = errors.New("unsupported spreadsheet format")

// Column is one header cell.
type Column struct {
	Letter string
	Title  string
}

// Sheet is one worksheet and its header row.
type Sheet struct {
	Name    string
	Columns []Column
	Rows    int
}

// Workbook is the inspected file.
type Workbook struct {
	Sheets []Sheet
}

// Names returns the sheet names in workbook order.
func (w Workbook) Names() []string {
	out := make([]string, 0, len(w.Sheets))
	for _, s := range w.Sheets {
		out = append(out, s.Name)
	}
	return out
}

// Find returns the sheet called name, ignoring case.
func (w Workbook) Find(name string) (Sheet, bool) {
	for _, s := range w.Sheets {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Sheet{}, false
}

// InspectFile opens path and reads the header row headerRow (1-based) of
// every sheet. CSV files yield a single sheet named after the file.
func InspectFile(path string, headerRow int) (Workbook, error) {
	f, err := os.Open(path)
	if err != nil {
		return Workbook{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return Inspect(f, filepath.Base(path), headerRow)
}

// Inspect reads r, whose format is taken from name's extension.
func Inspect(r io.Reader, name string, headerRow int) (Workbook, error) {
	if headerRow < 1 {
		return Workbook{}, fmt.Errorf("header row must be at least 1, got %d", headerRow)
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return inspectXLSX(r, headerRow)
	case ".csv":
		return inspectCSV(r, strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)), headerRow)
	default:
		return Workbook{}, fmt.Errorf("%s: %w", name, ErrUnsupported)
	}
}

func inspectXLSX(r io.Reader, headerRow int) (Workbook, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return Workbook{}, fmt.Errorf("reading workbook: %w", err)
	}
	defer wb.Close()

	var out Workbook
	for _, name := range wb.GetSheetList() {
		rows, err := wb.GetRows(name)
		if err != nil {
			return Workbook{}, fmt.Errorf("reading sheet %s: %w", name, err)
		}
		s := Sheet{Name: name, Rows: len(rows)}
		if headerRow <= len(rows) {
			s.Columns, err = columns(rows[headerRow-1])
			if err != nil {
				return Workbook{}, err
			}
		}
		out.Sheets = append(out.Sheets, s)
	}
	return out, nil
}

func inspectCSV(r io.Reader, name string, headerRow int) (Workbook, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return Workbook{}, fmt.Errorf("reading csv: %w", err)
	}
	s := Sheet{Name: name, Rows: len(records)}
	if headerRow <= len(records) {
		s.Columns, err = columns(records[headerRow-1])
		if err != nil {
			return Workbook{}, err
		}
	}
	return Workbook{Sheets: []Sheet{s}}, nil
}

func columns(cells []string) ([]Column, error) {
	out := make([]Column, 0, len(cells))
	for i, cell := range cells {
		title := strings.TrimSpace(cell)
		if title == "" {
			continue
		}
		letter, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out = append(out, Column{Letter: letter, Title: title})
	}
	return out, nil
}
