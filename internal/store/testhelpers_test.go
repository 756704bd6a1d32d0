package store

import (
	"github.com/sells-group/kpi-insights/internal/model"
)

func sampleResult(runID string) *model.Result {
	v := 42.0
	var jan model.MonthlyValues
	jan[0] = &v

	doc := model.NewKPIDocument("2025-06-01", map[string]string{"Number of trips / month": "count"})
	doc.Merge("Acme Ltd", map[string]model.MonthlyValues{"Number of trips / month": jan})

	return &model.Result{
		RunID:           runID,
		Message:         "Processed 1 sheet(s)",
		ProcessedSheets: []string{"Acme Ltd"},
		KPIs:            doc,
		Insights:        model.CompanyInsights{"Acme Ltd": {"Trips peaked in January"}},
		GeneralSummary:  model.GeneralSummary{"Acme Ltd leads on trips"},
	}
}
