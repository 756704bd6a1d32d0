// Package export renders a KPI document as an xlsx workbook.
package export

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/kpi-insights/internal/model"
)

const overviewSheet = "Overview"

// KPIWorkbook builds a workbook with an overview sheet followed by one
// sheet per KPI: companies as rows, Jan..Dec as columns, blank cells for
// months without a value.
func KPIWorkbook(doc *model.KPIDocument) ([]byte, error) {
	if doc.Empty() {
		return nil, eris.New("export: kpi document is empty")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, eris.Wrap(err, "export: header style")
	}

	if err := f.SetSheetName(f.GetSheetName(0), overviewSheet); err != nil {
		return nil, eris.Wrap(err, "export: rename first sheet")
	}
	if err := writeOverview(f, doc, header); err != nil {
		return nil, err
	}

	used := map[string]bool{strings.ToLower(overviewSheet): true}
	for _, key := range doc.KPIKeys() {
		name := sheetName(key, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, eris.Wrapf(err, "export: new sheet %q", name)
		}
		if err := writeKPISheet(f, name, doc.KPIs[key], header); err != nil {
			return nil, eris.Wrapf(err, "export: kpi %q", key)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "export: write workbook")
	}
	return buf.Bytes(), nil
}

func writeOverview(f *excelize.File, doc *model.KPIDocument, header int) error {
	rows := [][]any{
		{"Generated on", doc.GeneratedOn},
		{},
		{"KPI", "Unit", "Companies"},
	}
	for _, key := range doc.KPIKeys() {
		rows = append(rows, []any{key, doc.Metadata.UnitDescriptions[key], len(doc.KPIs[key])})
	}
	for i, row := range rows {
		if err := setRow(f, overviewSheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(overviewSheet, "A3", "C3", header); err != nil {
		return eris.Wrap(err, "export: overview style")
	}
	return eris.Wrap(f.SetColWidth(overviewSheet, "A", "B", 32), "export: overview width")
}

func writeKPISheet(f *excelize.File, sheet string, byCompany map[string]model.MonthlyValues, header int) error {
	head := make([]any, 0, 13)
	head = append(head, "Company")
	for _, m := range model.Months {
		head = append(head, m)
	}
	if err := setRow(f, sheet, 1, head); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "M1", header); err != nil {
		return eris.Wrap(err, "export: header style")
	}

	companies := make([]string, 0, len(byCompany))
	for c := range byCompany {
		companies = append(companies, c)
	}
	sort.Strings(companies)

	for i, company := range companies {
		row := i + 2
		if err := setCell(f, sheet, 1, row, company); err != nil {
			return err
		}
		values := byCompany[company]
		for m, v := range values {
			if v == nil {
				continue
			}
			if err := setCell(f, sheet, m+2, row, *v); err != nil {
				return err
			}
		}
	}
	return eris.Wrap(f.SetColWidth(sheet, "A", "A", 36), "export: column width")
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	if len(values) == 0 {
		return nil
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return eris.Wrap(err, "export: cell name")
	}
	return eris.Wrapf(f.SetSheetRow(sheet, cell, &values), "export: row %d", row)
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return eris.Wrap(err, "export: cell name")
	}
	return eris.Wrapf(f.SetCellValue(sheet, cell, v), "export: cell %s", cell)
}

// sheetName makes a KPI key a valid, unique sheet name: no []:*?/\
// characters and at most 31 runes.
func sheetName(key string, used map[string]bool) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(key))
	name = strings.Trim(name, "'")
	if name == "" {
		name = "KPI"
	}
	name = truncate(name, 31)

	base := name
	for i := 2; used[strings.ToLower(name)]; i++ {
		suffix := "_" + strconv.Itoa(i)
		name = truncate(base, 31-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
