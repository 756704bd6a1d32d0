package sheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

type fixtureSheet struct {
	name string
	rows [][]string
}

// buildWorkbook creates an in-memory xlsx with the given sheets in order.
// Cells starting with "=" are written as formulas without a cached value.
func buildWorkbook(t *testing.T, sheets ...fixtureSheet) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sh, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sh.AddRow()
			for _, cellData := range rowData {
				if formula, ok := strings.CutPrefix(cellData, "="); ok {
					row.AddCell().SetFormula(formula)
					continue
				}
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

// supplierRows lays out a sheet the way the supplier matrices do: five
// banner rows, a month header on row 6, then KPI rows.
func supplierRows() [][]string {
	return [][]string{
		{"Supplier Partner Performance Matrix"},
		{},
		{"Plant", "Pune"},
		{},
		{},
		{"Sr", "KPI", "Jan", "Feb", "Mar"},
		{"1", "Number of trips / month", "10", "12", "11"},
		{"2", "Qty Shipped / month", "1000", "", "1100"},
		{"3", "Vehicle turnaround time", "2.5", "3", " "},
		{"Prepared by QA"},
	}
}
