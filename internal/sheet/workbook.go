// Package sheet reads uploaded workbooks and renders their sheets as cleaned
// CSV text for the KPI extractor.
package sheet

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var (
	// ErrInvalidWorkbook is returned when the upload cannot be parsed as xlsx.
	ErrInvalidWorkbook = eris.New("sheet: invalid workbook")
	// ErrNoSheets is returned when no sheet yields any content.
	ErrNoSheets = eris.New("sheet: no sheets could be processed")
)

// Workbook is an opened xlsx file held in memory.
type Workbook struct {
	file *xlsx.File
}

// Open parses xlsx bytes.
func Open(data []byte) (*Workbook, error) {
	if len(data) == 0 {
		return nil, eris.Wrap(ErrInvalidWorkbook, "empty file")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidWorkbook, "open: %v", err)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Wrap(ErrNoSheets, "workbook has no sheets")
	}
	return &Workbook{file: f}, nil
}

// SheetNames returns the sheet names in workbook order.
func (w *Workbook) SheetNames() []string {
	names := make([]string, len(w.file.Sheets))
	for i, s := range w.file.Sheets {
		names[i] = s.Name
	}
	return names
}

// lookup resolves a requested name exactly, then by trimmed comparison.
func (w *Workbook) lookup(name string) (*xlsx.Sheet, bool) {
	if s, ok := w.file.Sheet[name]; ok {
		return s, true
	}
	want := strings.TrimSpace(name)
	for _, s := range w.file.Sheets {
		if strings.TrimSpace(s.Name) == want {
			return s, true
		}
	}
	return nil, false
}

// rows returns the cell text of every row in the sheet.
func rows(s *xlsx.Sheet) [][]string {
	out := make([][]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		out = append(out, rowToStrings(row))
	}
	return out
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cellText(cell)
	}
	return cells
}

// cellText returns the trimmed display value. Formula cells without a cached
// value render as the formula itself.
func cellText(c *xlsx.Cell) string {
	if c == nil {
		return ""
	}
	v := strings.TrimSpace(c.String())
	if v == "" {
		if f := c.Formula(); f != "" {
			return "=" + f
		}
	}
	return v
}

// SelectSheets picks the sheets to process. Supplier workbooks open with
// summary sheets: with more than two sheets the first two are skipped, with
// exactly two the first is skipped, a single sheet is always kept.
func SelectSheets(names []string, skipSummary bool) []string {
	if !skipSummary {
		return append([]string(nil), names...)
	}
	switch {
	case len(names) > 2:
		return append([]string(nil), names[2:]...)
	case len(names) == 2:
		return append([]string(nil), names[1:]...)
	default:
		return append([]string(nil), names...)
	}
}
