package sheet

import (
	"encoding/csv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/model"
)

// Options controls how sheet rows are trimmed before rendering.
type Options struct {
	StartRow      int // 1-based first row considered; default 6
	TrailingRows  int // rows kept after the last meaningful row; default 3
	FallbackRows  int // rows kept when no row is meaningful; default 10
	MaxEmptyRows  int // longest run of empty rows kept in the output
	StripSuffixes []string
}

// DefaultOptions mirrors the layout of the supplier performance workbooks.
func DefaultOptions() Options {
	return Options{
		StartRow:      6,
		TrailingRows:  3,
		FallbackRows:  10,
		MaxEmptyRows:  3,
		StripSuffixes: []string{"- Supplier Partner Performance Matrix"},
	}
}

func (o Options) withDefaults() Options {
	if o.StartRow <= 0 {
		o.StartRow = 6
	}
	if o.TrailingRows < 0 {
		o.TrailingRows = 0
	}
	if o.FallbackRows <= 0 {
		o.FallbackRows = 10
	}
	if o.MaxEmptyRows < 0 {
		o.MaxEmptyRows = 0
	}
	return o
}

// Convert renders each named sheet as CSV. Sheets that are missing or have
// no content are logged and skipped; ErrNoSheets is returned if none remain.
func Convert(wb *Workbook, names []string, opts Options) ([]model.SheetCSV, error) {
	opts = opts.withDefaults()

	var out []model.SheetCSV
	for _, name := range names {
		s, ok := wb.lookup(name)
		if !ok {
			zap.L().Warn("sheet: not found in workbook",
				zap.String("sheet", name),
				zap.Strings("available", wb.SheetNames()),
			)
			continue
		}

		csvSheet, ok, err := convertRows(rows(s), s.Name, opts)
		if err != nil {
			zap.L().Warn("sheet: conversion failed", zap.String("sheet", s.Name), zap.Error(err))
			continue
		}
		if !ok {
			zap.L().Warn("sheet: no meaningful content", zap.String("sheet", s.Name))
			continue
		}

		zap.L().Debug("sheet: converted",
			zap.String("sheet", s.Name),
			zap.String("clean_name", csvSheet.CleanName),
			zap.Int("rows", csvSheet.Rows),
			zap.Int("columns", csvSheet.Columns),
		)
		out = append(out, csvSheet)
	}

	if len(out) == 0 {
		return nil, eris.Wrapf(ErrNoSheets, "none of %d selected sheets had content", len(names))
	}
	return out, nil
}

func convertRows(all [][]string, sheetName string, opts Options) (model.SheetCSV, bool, error) {
	kept := DataRows(all, opts.StartRow, opts.TrailingRows, opts.FallbackRows)

	width := 0
	for _, r := range kept {
		if w := contentWidth(r); w > width {
			width = w
		}
	}
	if width == 0 {
		return model.SheetCSV{}, false, nil
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	written := 0
	emptyRun := 0
	pendingEmpty := 0
	for _, r := range kept {
		if IsEmptyRow(r) {
			emptyRun++
			if emptyRun <= opts.MaxEmptyRows {
				pendingEmpty++
			}
			continue
		}
		emptyRun = 0
		// Empty rows are flushed only when followed by content, which drops
		// trailing blanks.
		for ; pendingEmpty > 0; pendingEmpty-- {
			if err := w.Write(make([]string, width)); err != nil {
				return model.SheetCSV{}, false, eris.Wrap(err, "sheet: write csv")
			}
			written++
		}
		if err := w.Write(pad(r, width)); err != nil {
			return model.SheetCSV{}, false, eris.Wrap(err, "sheet: write csv")
		}
		written++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return model.SheetCSV{}, false, eris.Wrap(err, "sheet: flush csv")
	}

	return model.SheetCSV{
		SheetName: sheetName,
		CleanName: NormalizeName(sheetName),
		Company:   CompanyName(sheetName, opts.StripSuffixes),
		Rows:      written,
		Columns:   width,
		CSV:       b.String(),
	}, true, nil
}

// DataRows returns the rows starting at startRow (1-based) up to the last
// meaningful row plus trailing rows. When no row is meaningful the first
// fallback rows are returned.
func DataRows(all [][]string, startRow, trailing, fallback int) [][]string {
	if startRow < 1 {
		startRow = 1
	}
	if startRow > len(all) {
		return nil
	}
	body := all[startRow-1:]

	last := -1
	for i, r := range body {
		if IsMeaningfulRow(r) {
			last = i
		}
	}

	end := fallback
	if last >= 0 {
		end = last + 1 + trailing
	}
	if end > len(body) {
		end = len(body)
	}
	return body[:end]
}

// IsEmptyRow reports whether every cell is blank.
func IsEmptyRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// IsMeaningfulRow reports whether a row carries data: at least two non-empty
// cells, and not a short row made only of formulas.
func IsMeaningfulRow(row []string) bool {
	var nonEmpty []string
	for _, c := range row {
		if c = strings.TrimSpace(c); c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) < 2 {
		return false
	}
	formulaOnly := true
	for _, c := range nonEmpty {
		if !strings.HasPrefix(c, "=") {
			formulaOnly = false
			break
		}
	}
	return !(formulaOnly && len(nonEmpty) < 3)
}

// contentWidth is the index of the last non-empty cell plus one.
func contentWidth(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i + 1
		}
	}
	return 0
}

func pad(row []string, width int) []string {
	out := make([]string, width)
	for i := 0; i < width && i < len(row); i++ {
		out[i] = strings.TrimSpace(row[i])
	}
	return out
}
