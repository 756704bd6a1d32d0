package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/sheet"
	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

// KPI extraction modes.
const (
	KPIModeCombined = "combined"
	KPIModePerSheet = "per_sheet"
)

// supplierKPIs is one supplier entry in a model reply. KPI series are kept
// raw so a malformed series only drops itself.
type supplierKPIs struct {
	Supplier string                     `json:"supplier"`
	KPIs     map[string]json.RawMessage `json:"kpis"`
}

type combinedKPIs struct {
	Suppliers []supplierKPIs `json:"suppliers"`
}

// ExtractKPIs asks the model to structure the KPIs found in sheets and
// returns the KPI document.
func (p *Pipeline) ExtractKPIs(ctx context.Context, sheets []model.SheetCSV) (*model.KPIDocument, model.StageUsage, error) {
	m := newMeter(StageKPIs)
	if len(sheets) == 0 {
		return nil, m.result(p.ai.modelName), eris.New("pipeline: kpi: no sheets to extract")
	}

	doc := model.NewKPIDocument(p.now().UTC().Format("2006-01-02"), p.catalog.Descriptions())

	var err error
	if p.cfg.Pipeline.KPIMode == KPIModePerSheet {
		err = p.extractPerSheet(ctx, sheets, doc, m)
	} else {
		err = p.extractCombined(ctx, sheets, doc, m)
	}
	usage := m.result(p.ai.modelName)
	if err != nil {
		return nil, usage, err
	}
	if doc.Empty() {
		return nil, usage, eris.New("pipeline: kpi: model returned no KPI data")
	}
	return doc, usage, nil
}

func (p *Pipeline) extractCombined(ctx context.Context, sheets []model.SheetCSV, doc *model.KPIDocument, m *meter) error {
	text, err := p.ai.send(ctx, prompt{
		stage:     StageKPIs,
		subject:   "all",
		system:    anthropic.PlainSystem(kpiSystemPrompt),
		user:      combinedKPIPrompt(p.catalog, sheets),
		maxTokens: p.cfg.Anthropic.KPIMaxTokens,
	}, m)
	if err != nil {
		return eris.Wrap(err, "pipeline: kpi")
	}

	var reply combinedKPIs
	if err := decodeObject(text, &reply); err != nil {
		return eris.Wrap(err, "pipeline: kpi")
	}
	if len(reply.Suppliers) == 0 {
		// Some replies skip the wrapper when there is a single supplier.
		var single supplierKPIs
		if err := decodeObject(text, &single); err == nil && len(single.KPIs) > 0 {
			reply.Suppliers = []supplierKPIs{single}
		}
	}

	for _, s := range reply.Suppliers {
		company := p.matchCompany(s.Supplier, sheets)
		if company == "" {
			zap.L().Warn("pipeline: kpi: supplier without a name skipped")
			continue
		}
		doc.Merge(company, p.resolveKPIs(company, s.KPIs))
	}
	return nil
}

// extractPerSheet sends one call per sheet. Failed sheets are skipped; the
// stage fails only when every sheet failed.
func (p *Pipeline) extractPerSheet(ctx context.Context, sheets []model.SheetCSV, doc *model.KPIDocument, m *meter) error {
	var (
		mu       sync.Mutex
		failed   int
		firstErr error
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Pipeline.Concurrency)

	for _, s := range sheets {
		g.Go(func() error {
			kpis, err := p.extractSheet(gCtx, s, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				zap.L().Warn("pipeline: kpi: sheet failed",
					zap.String("sheet", s.SheetName),
					zap.Error(err),
				)
				failed++
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			doc.Merge(s.Company, kpis)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "pipeline: kpi")
	}
	if failed == len(sheets) {
		return eris.Wrapf(firstErr, "pipeline: kpi: all %d sheets failed", failed)
	}
	return nil
}

func (p *Pipeline) extractSheet(ctx context.Context, s model.SheetCSV, m *meter) (map[string]model.MonthlyValues, error) {
	text, err := p.ai.send(ctx, prompt{
		stage:     StageKPIs,
		subject:   s.Company,
		system:    anthropic.CachedSystem(kpiSystemPrompt, "5m"),
		user:      sheetKPIPrompt(p.catalog, s),
		maxTokens: p.cfg.Anthropic.KPIMaxTokens,
	}, m)
	if err != nil {
		return nil, err
	}
	var reply supplierKPIs
	if err := decodeObject(text, &reply); err != nil {
		return nil, eris.Wrapf(err, "sheet %s", s.SheetName)
	}
	return p.resolveKPIs(s.Company, reply.KPIs), nil
}

// resolveKPIs maps model KPI names onto catalog keys and decodes each
// series. Unknown names and malformed series are dropped.
func (p *Pipeline) resolveKPIs(company string, raw map[string]json.RawMessage) map[string]model.MonthlyValues {
	out := make(map[string]model.MonthlyValues, len(raw))
	for name, series := range raw {
		key, ok := p.catalog.Resolve(name)
		if !ok {
			zap.L().Debug("pipeline: kpi: unknown kpi dropped",
				zap.String("company", company),
				zap.String("kpi", name),
			)
			continue
		}
		var values model.MonthlyValues
		if err := json.Unmarshal(series, &values); err != nil {
			zap.L().Warn("pipeline: kpi: malformed series dropped",
				zap.String("company", company),
				zap.String("kpi", key),
				zap.Error(err),
			)
			continue
		}
		out[key] = values
	}
	return out
}

// matchCompany maps a supplier name from the model back to the company of
// the sheet it came from. Unmatched names are kept, minus known suffixes.
func (p *Pipeline) matchCompany(name string, sheets []model.SheetCSV) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	stripped := sheet.CompanyName(name, p.cfg.Sheets.StripSuffixes)
	for _, s := range sheets {
		for _, candidate := range []string{s.Company, s.SheetName, s.CleanName} {
			if strings.EqualFold(candidate, name) || strings.EqualFold(candidate, stripped) {
				return s.Company
			}
		}
	}
	zap.L().Warn("pipeline: kpi: supplier does not match any sheet", zap.String("supplier", name))
	return stripped
}
