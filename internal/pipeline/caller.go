package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-insights/internal/cost"
	"github.com/sells-group/kpi-insights/internal/metrics"
	"github.com/sells-group/kpi-insights/internal/model"
	"github.com/sells-group/kpi-insights/internal/resilience"
	"github.com/sells-group/kpi-insights/pkg/anthropic"
)

// Stage names used in logs, metrics and usage.
const (
	StageKPIs     = "kpis"
	StageInsights = "insights"
	StageSummary  = "summary"
)

// caller sends prompts to the model with pacing, retries and a breaker.
type caller struct {
	client      anthropic.Client
	modelName   string
	temperature float64
	retry       resilience.RetryConfig
	limiter     *resilience.Limiter
	breaker     *resilience.CircuitBreaker
	costs       *cost.Calculator
}

type prompt struct {
	stage     string
	subject   string // company or "all", for logs
	system    []anthropic.SystemBlock
	user      string
	maxTokens int64
}

// send performs one logical model call and returns the reply text. Usage of
// the successful attempt is added to m.
func (c *caller) send(ctx context.Context, p prompt, m *meter) (string, error) {
	retry := c.retry
	logRetry := resilience.RetryLogger(p.stage, p.subject)
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		metrics.RecordRetry(p.stage)
		logRetry(attempt, delay, err)
	}

	temp := c.temperature
	req := anthropic.MessageRequest{
		Model:       c.modelName,
		MaxTokens:   p.maxTokens,
		System:      p.system,
		Messages:    []anthropic.Message{{Role: "user", Content: p.user}},
		Temperature: &temp,
	}

	start := time.Now()
	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return c.client.CreateMessage(ctx, req)
		})
	})
	if err != nil {
		metrics.RecordModelCall(p.stage, "error", metrics.ModelTokens{}, 0)
		return "", eris.Wrapf(err, "%s: model call for %s", p.stage, p.subject)
	}

	u := resp.Usage
	costUSD := c.costs.Claude(c.modelName, cost.Tokens{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheCreationInputTokens,
		CacheRead:  u.CacheReadInputTokens,
	})
	metrics.RecordModelCall(p.stage, "ok", metrics.ModelTokens{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheCreationInputTokens,
		CacheRead:  u.CacheReadInputTokens,
	}, costUSD)
	m.add(u, costUSD)

	zap.L().Debug("pipeline: model call complete",
		zap.String("stage", p.stage),
		zap.String("subject", p.subject),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	if resp.Truncated() {
		zap.L().Warn("pipeline: model response hit max tokens",
			zap.String("stage", p.stage),
			zap.String("subject", p.subject),
			zap.Int64("max_tokens", p.maxTokens),
		)
	}
	return resp.Text(), nil
}

// meter accumulates token usage for one stage. Safe for concurrent use.
type meter struct {
	stage string

	mu    sync.Mutex
	calls int
	usage anthropic.TokenUsage
	cost  float64
}

func newMeter(stage string) *meter {
	return &meter{stage: stage}
}

func (m *meter) add(u anthropic.TokenUsage, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.usage.Add(u)
	m.cost += costUSD
}

// result logs the stage cost and returns it as a StageUsage.
func (m *meter) result(modelName string) model.StageUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage.LogCost(modelName, m.stage, m.cost)
	return model.StageUsage{
		Stage:               m.stage,
		Calls:               m.calls,
		InputTokens:         m.usage.InputTokens,
		OutputTokens:        m.usage.OutputTokens,
		CacheCreationTokens: m.usage.CacheCreationInputTokens,
		CacheReadTokens:     m.usage.CacheReadInputTokens,
		CostUSD:             m.cost,
	}
}
