package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

// GenerateInsights asks the model for up to five key points per company in
// the KPI document.
func (p *Pipeline) GenerateInsights(ctx context.Context, doc *model.KPIDocument) (model.CompanyInsights, model.StageUsage, error) {
	m := newMeter(StageInsights)
	if doc.Empty() {
		return nil, m.result(p.ai.modelName), eris.New("pipeline: insights: empty KPI document")
	}

	docJSON, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, m.result(p.ai.modelName), eris.Wrap(err, "pipeline: insights: marshal kpi document")
	}
	companies := doc.Companies()

	text, err := p.ai.send(ctx, prompt{
		stage:   StageInsights,
		subject: "all",
		system:  anthropic.PlainSystem(insightsSystemPrompt),
		user: fmt.Sprintf(insightsPrompt,
			model.MaxCompanyInsights,
			strings.Join(companies, ", "),
			string(docJSON),
		),
		maxTokens: p.cfg.Anthropic.InsightsMaxTokens,
	}, m)
	usage := m.result(p.ai.modelName)
	if err != nil {
		return nil, usage, eris.Wrap(err, "pipeline: insights")
	}

	insights, err := decodeInsights(text)
	if err != nil {
		return nil, usage, eris.Wrap(err, "pipeline: insights")
	}
	insights = alignCompanies(insights, companies)
	if len(insights) == 0 {
		return nil, usage, eris.New("pipeline: insights: model returned no insights")
	}
	for _, c := range companies {
		if _, ok := insights[c]; !ok {
			zap.L().Warn("pipeline: insights: company missing from reply", zap.String("company", c))
		}
	}
	return insights, usage, nil
}

// decodeInsights reads {company: [points]}. A company given a single string
// gets one point; other values are skipped.
func decodeInsights(text string) (model.CompanyInsights, error) {
	var raw map[string]json.RawMessage
	if err := decodeObject(text, &raw); err != nil {
		return nil, err
	}
	out := make(model.CompanyInsights, len(raw))
	for company, val := range raw {
		points, err := rawPoints(val)
		if err != nil {
			zap.L().Warn("pipeline: insights: unreadable points skipped",
				zap.String("company", company),
				zap.Error(err),
			)
			continue
		}
		out[company] = points
	}
	return out.Normalize(), nil
}

// alignCompanies renames reply keys that differ from the document's company
// names only by case or surrounding space.
func alignCompanies(ci model.CompanyInsights, companies []string) model.CompanyInsights {
	out := make(model.CompanyInsights, len(ci))
	for name, points := range ci {
		key := name
		for _, c := range companies {
			if strings.EqualFold(strings.TrimSpace(name), c) {
				key = c
				break
			}
		}
		out[key] = points
	}
	return out
}
