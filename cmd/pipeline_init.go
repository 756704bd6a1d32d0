package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/artifact"
	"github.com/sells-group/kpi-insights/internal/catalog"
	"github.com/sells-group/kpi-insights/internal/pipeline"
	"github.com/sells-group/kpi-insights/internal/store"
	anthropicpkg "github.com/sells-group/kpi-insights/pkg/anthropic"
)

// pipelineEnv holds the store, artifact sink, and pipeline needed by the
// run and serve commands.
type pipelineEnv struct {
	Store     store.Store
	Artifacts artifact.Sink
	Pipeline  *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens and migrates the configured run store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initPipeline validates config for mode, then builds the store, artifact
// sink, catalog, and Anthropic client. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load kpi catalog")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	sink, err := artifact.Open(ctx, cfg.Artifacts)
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init artifact sink")
	}

	client := anthropicpkg.NewClient(anthropicpkg.Options{
		APIKey:  cfg.Anthropic.Key,
		BaseURL: cfg.Anthropic.BaseURL,
		Timeout: time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
	})

	zap.L().Info("pipeline initialized",
		zap.String("model", cfg.Anthropic.Model),
		zap.String("kpi_mode", cfg.Pipeline.KPIMode),
		zap.Int("catalog_kpis", len(cat.KPIs)),
		zap.String("store", cfg.Store.Driver),
		zap.String("artifacts", cfg.Artifacts.Driver),
	)

	return &pipelineEnv{
		Store:     st,
		Artifacts: sink,
		Pipeline:  pipeline.New(cfg, st, sink, client, cat),
	}, nil
}
