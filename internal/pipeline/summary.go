package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

// GenerateSummary asks the model for a 5-10 point comparison across all
// companies. Longer lists are truncated; shorter ones are kept with a warning.
func (p *Pipeline) GenerateSummary(ctx context.Context, insights model.CompanyInsights) (model.GeneralSummary, model.StageUsage, error) {
	m := newMeter(StageSummary)
	if len(insights) == 0 {
		return nil, m.result(p.ai.modelName), eris.New("pipeline: summary: no insights to summarize")
	}

	text, err := p.ai.send(ctx, prompt{
		stage:   StageSummary,
		subject: "all",
		system:  anthropic.PlainSystem(summarySystemPrompt),
		user: fmt.Sprintf(summaryPrompt,
			model.MinSummaryPoints,
			model.MaxSummaryPoints,
			insightsBlock(insights),
		),
		maxTokens: p.cfg.Anthropic.SummaryMaxTokens,
	}, m)
	usage := m.result(p.ai.modelName)
	if err != nil {
		return nil, usage, eris.Wrap(err, "pipeline: summary")
	}

	points, err := decodePoints(text)
	if err != nil {
		return nil, usage, eris.Wrap(err, "pipeline: summary")
	}
	if len(model.CleanPoints(points, 0)) > model.MaxSummaryPoints {
		zap.L().Info("pipeline: summary: truncating",
			zap.Int("points", len(points)),
			zap.Int("max", model.MaxSummaryPoints),
		)
	}
	summary := model.GeneralSummary(points).Normalize()
	if len(summary) == 0 {
		return nil, usage, eris.New("pipeline: summary: model returned no points")
	}
	if len(summary) < model.MinSummaryPoints {
		zap.L().Warn("pipeline: summary: fewer points than requested",
			zap.Int("points", len(summary)),
			zap.Int("min", model.MinSummaryPoints),
		)
	}
	return summary, usage, nil
}

// insightsBlock renders insights as a markdown list grouped by company, in
// name order.
func insightsBlock(insights model.CompanyInsights) string {
	var b strings.Builder
	for _, company := range insights.Companies() {
		fmt.Fprintf(&b, "## %s\n", company)
		for _, point := range insights[company] {
			fmt.Fprintf(&b, "- %s\n", point)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
