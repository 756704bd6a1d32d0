package pipeline

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/kpi-insights/internal/artifact"
	"github.com/sells-group/kpi-insights/internal/config"
	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/store"
	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

const testModel = "claude-sonnet-4-5-20250929"

func testConfig() *config.Config {
	return &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:             testModel,
			KPIMaxTokens:      8192,
			InsightsMaxTokens: 2048,
			SummaryMaxTokens:  1024,
		},
		Pipeline: config.PipelineConfig{
			KPIMode:     KPIModeCombined,
			Concurrency: 2,
			Retry: config.RetryConfig{
				MaxAttempts:      3,
				InitialBackoffMs: 1,
				MaxBackoffMs:     5,
				Multiplier:       2,
			},
		},
		Sheets: config.SheetsConfig{
			SkipSummary:   true,
			StartRow:      6,
			TrailingRows:  3,
			FallbackRows:  10,
			MaxEmptyRows:  3,
			StripSuffixes: []string{"- Supplier Partner Performance Matrix"},
		},
	}
}

func newTestPipeline(cfg *config.Config, client anthropic.Client, st store.Store, sink artifact.Sink) *Pipeline {
	if st == nil {
		st = store.NewMemory()
	}
	p := New(cfg, st, sink, client, nil)
	p.now = func() time.Time { return time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC) }
	return p
}

func textResponse(text string, in, out int64) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg_test",
		Model:      testModel,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: in, OutputTokens: out},
	}
}

// stageRequest matches requests by their output budget, which differs per
// stage in testConfig.
func stageRequest(maxTokens int64) any {
	return mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.MaxTokens == maxTokens
	})
}

// sheetRequest matches a per-sheet KPI request for company.
func sheetRequest(company string) any {
	return mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		return r.MaxTokens == 8192 && len(r.Messages) == 1 &&
			strings.Contains(r.Messages[0].Content, "(company: "+company+")")
	})
}

type fixtureSheet struct {
	name string
	rows [][]string
}

func buildWorkbook(t *testing.T, sheets ...fixtureSheet) []byte {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sh, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sh.AddRow()
			for _, cellData := range rowData {
				row.AddCell().SetString(cellData)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func supplierRows(trips ...string) [][]string {
	rows := [][]string{
		{"Supplier Partner Performance Matrix"},
		{},
		{"Plant", "Pune"},
		{},
		{},
		{"Sr", "KPI", "Jan", "Feb", "Mar"},
	}
	return append(rows,
		append([]string{"1", "Number of trips / month"}, trips...),
		[]string{"2", "Qty Shipped / month", "1000", "", "1100"},
	)
}

// sampleWorkbook has two summary sheets followed by two supplier sheets.
func sampleWorkbook(t *testing.T) []byte {
	t.Helper()
	return buildWorkbook(t,
		fixtureSheet{name: "Summary", rows: [][]string{{"Overview"}}},
		fixtureSheet{name: "Dashboard", rows: [][]string{{"Charts"}}},
		fixtureSheet{name: "Acme Ltd", rows: supplierRows("10", "12", "11")},
		fixtureSheet{name: "Beta Corp", rows: supplierRows("7", "8", "")},
	)
}

func sampleSheets() []model.SheetCSV {
	return []model.SheetCSV{
		{SheetName: "Acme Ltd", CleanName: "Acme_Ltd", Company: "Acme Ltd", Rows: 3, Columns: 5,
			CSV: "Sr,KPI,Jan,Feb,Mar\n1,Number of trips / month,10,12,11\n"},
		{SheetName: "Beta Corp", CleanName: "Beta_Corp", Company: "Beta Corp", Rows: 3, Columns: 5,
			CSV: "Sr,KPI,Jan,Feb,Mar\n1,Number of trips / month,7,8,\n"},
	}
}

const combinedReply = "```json\n" + `{
  "suppliers": [
    {"supplier": "Acme Ltd", "kpis": {
      "trips": {"Jan": 10, "Feb": "12", "Mar": 11, "Apr": null},
      "Qty Shipped / month": {"Jan": 1000, "Feb": "#DIV/0!", "Mar": "1,100"},
      "bogusMetric": {"Jan": 1}
    }},
    {"supplier": "beta corp", "kpis": {
      "TRIPS": {"Jan": 7, "Feb": 8, "Mar": null}
    }}
  ]
}` + "\n```"

const insightsReply = `Here are the insights:
{
  "Acme Ltd": ["Trips rose from 10 in Jan to 12 in Feb.", "  ", "Shipped quantity was 1000 in Jan."],
  "beta corp": "Trips were 7 in Jan and 8 in Feb."
}`

const summaryReply = `[
  "Acme Ltd ran more trips than Beta Corp in every reported month.",
  "Acme Ltd peaked at 12 trips in Feb.",
  "Beta Corp reported no trips for Mar.",
  "Only Acme Ltd reported shipped quantities.",
  "Both suppliers increased trips from Jan to Feb."
]`

func floatPtr(f float64) *float64 { return &f }
