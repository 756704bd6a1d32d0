package pipeline

import (
	"github.com/sells-group/kpi-insights/internal/model"
)

// SuccessMessage is returned with every assembled result.
const SuccessMessage = "File processed successfully"

// Assemble merges the stage outputs into the response for one run.
func Assemble(runID string, sheets []model.SheetCSV, doc *model.KPIDocument, insights model.CompanyInsights, summary model.GeneralSummary, usage *model.Usage) *model.Result {
	names := make([]string, len(sheets))
	for i, s := range sheets {
		names[i] = s.SheetName
	}
	if insights == nil {
		insights = model.CompanyInsights{}
	}
	if summary == nil {
		summary = model.GeneralSummary{}
	}
	return &model.Result{
		RunID:           runID,
		Message:         SuccessMessage,
		ProcessedSheets: names,
		KPIs:            doc,
		Insights:        insights,
		GeneralSummary:  summary,
		Usage:           usage,
	}
}
