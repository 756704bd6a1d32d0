package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

func TestExtractKPIs_Combined(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, stageRequest(8192)).
		Return(textResponse(combinedReply, 1200, 400), nil).Once()

	p := newTestPipeline(testConfig(), mc, nil, nil)
	doc, usage, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.NoError(t, err)

	assert.Equal(t, "2025-07-30", doc.GeneratedOn)
	assert.Contains(t, doc.Metadata.UnitDescriptions, "trips")
	assert.ElementsMatch(t, []string{"trips", "quantityShipped"}, doc.KPIKeys())
	assert.Equal(t, []string{"Acme Ltd", "Beta Corp"}, doc.Companies())

	acme := doc.KPIs["trips"]["Acme Ltd"]
	require.NotNil(t, acme[0])
	assert.Equal(t, 10.0, *acme[0])
	assert.Equal(t, 12.0, *acme[1])
	assert.Nil(t, acme[3])

	shipped := doc.KPIs["quantityShipped"]["Acme Ltd"]
	assert.Equal(t, floatPtr(1000), shipped[0])
	assert.Nil(t, shipped[1], "excel errors become null")
	assert.Equal(t, floatPtr(1100), shipped[2])

	assert.Equal(t, 2, doc.KPIs["trips"]["Beta Corp"].Count())

	assert.Equal(t, StageKPIs, usage.Stage)
	assert.Equal(t, 1, usage.Calls)
	assert.Equal(t, int64(1200), usage.InputTokens)
	assert.Equal(t, int64(400), usage.OutputTokens)
	assert.Greater(t, usage.CostUSD, 0.0)
	mc.AssertExpectations(t)
}

func TestExtractKPIs_CombinedPromptCarriesSheets(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.MatchedBy(func(r anthropic.MessageRequest) bool {
		content := r.Messages[0].Content
		return r.Model == testModel &&
			r.Temperature != nil && *r.Temperature == 0 &&
			len(r.System) == 1 &&
			containsAll(content, `"suppliers"`, "Acme Ltd", "Beta Corp", "Number of trips / month", `"okDeliveryPercent"`)
	})).Return(textResponse(combinedReply, 10, 10), nil).Once()

	p := newTestPipeline(testConfig(), mc, nil, nil)
	_, _, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.NoError(t, err)
	mc.AssertExpectations(t)
}

func TestExtractKPIs_CombinedUnwrappedSupplier(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, stageRequest(8192)).
		Return(textResponse(`{"supplier": "Acme Ltd - Supplier Partner Performance Matrix", "kpis": {"trips": {"Jan": 3}}}`, 10, 10), nil)

	p := newTestPipeline(testConfig(), mc, nil, nil)
	doc, _, err := p.ExtractKPIs(context.Background(), sampleSheets()[:1])
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Ltd"}, doc.Companies())
}

func TestExtractKPIs_CombinedNoData(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, stageRequest(8192)).
		Return(textResponse(`{"suppliers": []}`, 10, 10), nil)

	p := newTestPipeline(testConfig(), mc, nil, nil)
	_, usage, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no KPI data")
	assert.Equal(t, 1, usage.Calls)
}

func TestExtractKPIs_CombinedMalformed(t *testing.T) {
	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, stageRequest(8192)).
		Return(textResponse("I could not read the table.", 10, 10), nil)

	p := newTestPipeline(testConfig(), mc, nil, nil)
	_, _, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: kpi")
}

func TestExtractKPIs_NoSheets(t *testing.T) {
	p := newTestPipeline(testConfig(), new(mockAnthropicClient), nil, nil)
	_, _, err := p.ExtractKPIs(context.Background(), nil)
	require.Error(t, err)
}

func TestExtractKPIs_PerSheet(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.KPIMode = KPIModePerSheet

	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, sheetRequest("Acme Ltd")).
		Return(textResponse(`{"supplier": "Acme", "kpis": {"trips": {"Jan": 10}, "machineBreakdowns": {"Feb": "2"}}}`, 500, 100), nil).Once()
	mc.On("CreateMessage", mock.Anything, sheetRequest("Beta Corp")).
		Return(textResponse(`{"supplier": "Beta", "kpis": {"trips": {"Jan": 7}}}`, 400, 80), nil).Once()

	p := newTestPipeline(cfg, mc, nil, nil)
	doc, usage, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.NoError(t, err)

	// Per-sheet mode names companies after the sheet, not the reply.
	assert.Equal(t, []string{"Acme Ltd", "Beta Corp"}, doc.Companies())
	assert.Equal(t, floatPtr(2), doc.KPIs["machineBreakdowns"]["Acme Ltd"][1])
	assert.Equal(t, 2, usage.Calls)
	assert.Equal(t, int64(900), usage.InputTokens)
	assert.Equal(t, int64(180), usage.OutputTokens)
	mc.AssertExpectations(t)
}

func TestExtractKPIs_PerSheetPartialFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.KPIMode = KPIModePerSheet

	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, sheetRequest("Acme Ltd")).
		Return(textResponse(`{"kpis": {"trips": {"Jan": 10}}}`, 10, 10), nil)
	mc.On("CreateMessage", mock.Anything, sheetRequest("Beta Corp")).
		Return(nil, errors.New("bad request"))

	p := newTestPipeline(cfg, mc, nil, nil)
	doc, usage, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Ltd"}, doc.Companies())
	assert.Equal(t, 1, usage.Calls)
}

func TestExtractKPIs_PerSheetAllFail(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.KPIMode = KPIModePerSheet

	mc := new(mockAnthropicClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("not json", 10, 10), nil)

	p := newTestPipeline(cfg, mc, nil, nil)
	_, _, err := p.ExtractKPIs(context.Background(), sampleSheets())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 sheets failed")
}

func TestResolveKPIs(t *testing.T) {
	p := newTestPipeline(testConfig(), new(mockAnthropicClient), nil, nil)

	var reply supplierKPIs
	require.NoError(t, decodeObject(`{"kpis": {
		"Vehicle turnaround time": {"Jan": 2.5},
		"vehicletat": {"Feb": 3},
		"partsPerTrip": [1, 2, 3],
		"unknown": {"Jan": 1}
	}}`, &reply))

	got := p.resolveKPIs("Acme Ltd", reply.KPIs)
	require.Contains(t, got, "vehicleTAT")
	assert.NotContains(t, got, "partsPerTrip", "malformed series dropped")
	assert.NotContains(t, got, "unknown")
	assert.Len(t, got, 1)
}

func TestMatchCompany(t *testing.T) {
	p := newTestPipeline(testConfig(), new(mockAnthropicClient), nil, nil)
	sheets := sampleSheets()

	assert.Equal(t, "Acme Ltd", p.matchCompany("acme ltd", sheets))
	assert.Equal(t, "Beta Corp", p.matchCompany("Beta_Corp", sheets))
	assert.Equal(t, "Acme Ltd", p.matchCompany("Acme Ltd - Supplier Partner Performance Matrix", sheets))
	assert.Equal(t, "Gamma", p.matchCompany(" Gamma ", sheets))
	assert.Equal(t, "", p.matchCompany("  ", sheets))
}

func TestSheetOptions(t *testing.T) {
	opts := SheetOptions(testConfig().Sheets)
	assert.Equal(t, 6, opts.StartRow)
	assert.Equal(t, 3, opts.TrailingRows)
	assert.Equal(t, 10, opts.FallbackRows)
	assert.Equal(t, []string{"- Supplier Partner Performance Matrix"}, opts.StripSuffixes)
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
