// Package artifact archives the JSON documents produced by each run.
package artifact

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/kpi-insights/internal/config"
)

// Artifact names written for every completed run.
const (
	KPIFile      = "final_supplier_kpis.json"
	InsightsFile = "insights.json"
	SummaryFile  = "general-info.json"
)

// ErrNotFound is returned by Get when an artifact does not exist.
var ErrNotFound = eris.New("artifact: not found")

// Sink stores and retrieves run artifacts.
type Sink interface {
	Put(ctx context.Context, runID, name string, data []byte) error
	Get(ctx context.Context, runID, name string) ([]byte, error)
}

// Open builds the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.ArtifactsConfig) (Sink, error) {
	switch cfg.Driver {
	case "fs", "":
		return NewFS(cfg.Dir), nil
	case "s3":
		return NewS3(ctx, cfg.S3)
	case "none":
		return Nop{}, nil
	default:
		return nil, eris.Errorf("artifact: unknown driver %q", cfg.Driver)
	}
}

// Nop discards artifacts.
type Nop struct{}

func (Nop) Put(context.Context, string, string, []byte) error { return nil }

func (Nop) Get(_ context.Context, runID, name string) ([]byte, error) {
	return nil, eris.Wrapf(ErrNotFound, "%s/%s", runID, name)
}
