package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued      RunStatus = "queued"
	RunStatusConverting  RunStatus = "converting"
	RunStatusExtracting  RunStatus = "extracting"
	RunStatusAnalyzing   RunStatus = "analyzing"
	RunStatusSummarizing RunStatus = "summarizing"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// Run is one execution of the pipeline over an uploaded workbook.
type Run struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Status    RunStatus `json:"status"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageUsage records token consumption for one pipeline stage.
type StageUsage struct {
	Stage               string  `json:"stage"`
	Calls               int     `json:"calls"`
	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int64   `json:"cache_read_tokens,omitempty"`
	CostUSD             float64 `json:"cost_usd"`
}

// Usage aggregates token consumption across a run.
type Usage struct {
	Model        string       `json:"model"`
	Stages       []StageUsage `json:"stages"`
	InputTokens  int64        `json:"input_tokens"`
	OutputTokens int64        `json:"output_tokens"`
	CostUSD      float64      `json:"cost_usd"`
}

// Add appends a stage and folds it into the totals.
func (u *Usage) Add(s StageUsage) {
	u.Stages = append(u.Stages, s)
	u.InputTokens += s.InputTokens
	u.OutputTokens += s.OutputTokens
	u.CostUSD += s.CostUSD
}

// Result is the assembled response for one processed workbook.
type Result struct {
	RunID           string          `json:"run_id"`
	Message         string          `json:"message"`
	ProcessedSheets []string        `json:"processed_sheets"`
	KPIs            *KPIDocument    `json:"kpis"`
	Insights        CompanyInsights `json:"insights"`
	GeneralSummary  GeneralSummary  `json:"general_summary"`
	Usage           *Usage          `json:"usage,omitempty"`
}
