// Package pipeline turns an uploaded workbook into KPIs, per-company
// insights and a general summary.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/artifact"
	"github.com/sells-group/kpi-insights/internal/catalog"
	"github.com/sells-group/kpi-insights/internal/config"
	"github.com/sells-group/kpi-insights/internal/cost"
	"github.com/sells-group/kpi-insights/internal/metrics"
	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/resilience"
	"github.com/sells-group/kpi-insights/internal/sheet"
	"github.com/sells-group/kpi-insights/internal/store"
	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

// Upload is a workbook received for processing.
type Upload struct {
	Filename string
	Data     []byte
}

// Pipeline orchestrates the conversion, extraction, insight and summary
// stages for one upload at a time. It is safe for concurrent use.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	artifacts artifact.Sink
	catalog   *catalog.Catalog
	ai        *caller
	now       func() time.Time
}

// New creates a Pipeline. A nil sink discards artifacts; a nil catalog uses
// the built-in one.
func New(
	cfg *config.Config,
	st store.Store,
	sink artifact.Sink,
	aiClient anthropic.Client,
	cat *catalog.Catalog,
) *Pipeline {
	if sink == nil {
		sink = artifact.Nop{}
	}
	if cat == nil {
		cat = catalog.Default()
	}

	var breaker *resilience.CircuitBreaker
	if bcfg, ok := resilience.FromPipelineBreaker(cfg.Pipeline); ok {
		breaker = resilience.NewCircuitBreaker(bcfg)
	}

	return &Pipeline{
		cfg:       cfg,
		store:     st,
		artifacts: sink,
		catalog:   cat,
		ai: &caller{
			client:      aiClient,
			modelName:   cfg.Anthropic.Model,
			temperature: cfg.Anthropic.Temperature,
			retry:       resilience.FromRetryConfig(cfg.Pipeline.Retry),
			limiter:     resilience.NewLimiter(cfg.Pipeline.RequestsPerSecond, cfg.Pipeline.Concurrency),
			breaker:     breaker,
			costs:       cost.FromConfig(cfg.Pricing),
		},
		now: time.Now,
	}
}

// SheetOptions converts sheet settings into converter options.
func SheetOptions(c config.SheetsConfig) sheet.Options {
	return sheet.Options{
		StartRow:      c.StartRow,
		TrailingRows:  c.TrailingRows,
		FallbackRows:  c.FallbackRows,
		MaxEmptyRows:  c.MaxEmptyRows,
		StripSuffixes: c.StripSuffixes,
	}
}

// ConvertWorkbook opens an xlsx workbook and renders its selected sheets as
// CSV.
func (p *Pipeline) ConvertWorkbook(data []byte) ([]model.SheetCSV, error) {
	wb, err := sheet.Open(data)
	if err != nil {
		return nil, err
	}
	names := sheet.SelectSheets(wb.SheetNames(), p.cfg.Sheets.SkipSummary)
	if len(names) == 0 {
		return nil, eris.Wrap(sheet.ErrNoSheets, "pipeline: no sheets selected")
	}
	return sheet.Convert(wb, names, SheetOptions(p.cfg.Sheets))
}

// Run processes one upload through every stage and records it as a run.
func (p *Pipeline) Run(ctx context.Context, up Upload) (*model.Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("filename", up.Filename), zap.Int("bytes", len(up.Data)))

	run, err := p.store.CreateRun(ctx, up.Filename)
	if err != nil {
		metrics.RecordRun(string(model.RunStatusFailed), 0, time.Since(start))
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run")

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	// fail marks the run failed even when ctx is already cancelled.
	fail := func(stage string, stageErr error) (*model.Result, error) {
		log.Error("pipeline: run failed", zap.String("stage", stage), zap.Error(stageErr))
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if failErr := p.store.FailRun(recordCtx, run.ID, stageErr.Error()); failErr != nil {
			log.Warn("pipeline: failed to record failure", zap.Error(failErr))
		}
		metrics.RecordRun(string(model.RunStatusFailed), 0, time.Since(start))
		return nil, stageErr
	}

	usage := &model.Usage{Model: p.cfg.Anthropic.Model}

	// ===== Stage 2: sheets to CSV =====
	setStatus(model.RunStatusConverting)
	done := metrics.Timer("convert")
	sheets, err := p.ConvertWorkbook(up.Data)
	elapsed := done()
	if err != nil {
		return fail("convert", err)
	}
	log.Info("pipeline: stage complete",
		zap.String("stage", "convert"),
		zap.Int("sheets", len(sheets)),
		zap.Duration("duration", elapsed),
	)

	// ===== Stage 3: KPI extraction =====
	setStatus(model.RunStatusExtracting)
	done = metrics.Timer(StageKPIs)
	doc, stageUsage, err := p.ExtractKPIs(ctx, sheets)
	elapsed = done()
	usage.Add(stageUsage)
	if err != nil {
		return fail(StageKPIs, err)
	}
	p.archive(ctx, run.ID, artifact.KPIFile, doc)
	log.Info("pipeline: stage complete",
		zap.String("stage", StageKPIs),
		zap.Int("companies", len(doc.Companies())),
		zap.Int("kpis", len(doc.KPIs)),
		zap.Duration("duration", elapsed),
	)

	// ===== Stage 4: company insights =====
	setStatus(model.RunStatusAnalyzing)
	done = metrics.Timer(StageInsights)
	insights, stageUsage, err := p.GenerateInsights(ctx, doc)
	elapsed = done()
	usage.Add(stageUsage)
	if err != nil {
		return fail(StageInsights, err)
	}
	p.archive(ctx, run.ID, artifact.InsightsFile, insights)
	log.Info("pipeline: stage complete",
		zap.String("stage", StageInsights),
		zap.Int("companies", len(insights)),
		zap.Duration("duration", elapsed),
	)

	// ===== Stage 5: general summary =====
	setStatus(model.RunStatusSummarizing)
	done = metrics.Timer(StageSummary)
	summary, stageUsage, err := p.GenerateSummary(ctx, insights)
	elapsed = done()
	usage.Add(stageUsage)
	if err != nil {
		return fail(StageSummary, err)
	}
	p.archive(ctx, run.ID, artifact.SummaryFile, summary)
	log.Info("pipeline: stage complete",
		zap.String("stage", StageSummary),
		zap.Int("points", len(summary)),
		zap.Duration("duration", elapsed),
	)

	// ===== Stage 6: assemble =====
	result := Assemble(run.ID, sheets, doc, insights, summary, usage)
	if err := p.store.CompleteRun(ctx, run.ID, result); err != nil {
		return fail("assemble", eris.Wrap(err, "pipeline: complete run"))
	}

	metrics.RecordRun(string(model.RunStatusComplete), len(sheets), time.Since(start))
	log.Info("pipeline: run complete",
		zap.Int("sheets", len(sheets)),
		zap.Int64("input_tokens", usage.InputTokens),
		zap.Int64("output_tokens", usage.OutputTokens),
		zap.Float64("cost_usd", usage.CostUSD),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// archive writes one JSON artifact. Failures are logged and do not fail
// the run.
func (p *Pipeline) archive(ctx context.Context, runID, name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		zap.L().Warn("pipeline: marshal artifact", zap.String("artifact", name), zap.Error(err))
		return
	}
	if err := p.artifacts.Put(ctx, runID, name, data); err != nil {
		zap.L().Warn("pipeline: archive artifact",
			zap.String("run_id", runID),
			zap.String("artifact", name),
			zap.Error(err),
		)
	}
}
