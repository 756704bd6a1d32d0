package model

// SheetCSV is one workbook sheet rendered as CSV text after cleanup.
type SheetCSV struct {
	SheetName string `json:"sheet_name"` // name as it appears in the workbook
	CleanName string `json:"clean_name"` // normalized, file-safe name
	Company   string `json:"company"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	CSV       string `json:"-"`
}
