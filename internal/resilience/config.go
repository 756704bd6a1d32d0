package resilience

import (
	"time"

	"github.com/sells-group/kpi-insights/internal/config"
)

// FromRetryConfig converts pipeline retry settings, keeping defaults for
// unset values.
func FromRetryConfig(c config.RetryConfig) RetryConfig {
	cfg := DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		cfg.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(c.InitialBackoffMs) * time.Millisecond
	}
	if c.MaxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(c.MaxBackoffMs) * time.Millisecond
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	if c.JitterFraction >= 0 {
		cfg.JitterFraction = c.JitterFraction
	}
	return cfg
}

// FromPipelineBreaker builds the model-call breaker settings. It returns
// false when the breaker is disabled.
func FromPipelineBreaker(p config.PipelineConfig) (CircuitBreakerConfig, bool) {
	if p.BreakerThreshold <= 0 {
		return CircuitBreakerConfig{}, false
	}
	cfg := DefaultCircuitBreakerConfig()
	cfg.FailureThreshold = p.BreakerThreshold
	if p.BreakerResetSecs > 0 {
		cfg.ResetTimeout = time.Duration(p.BreakerResetSecs) * time.Second
	}
	return cfg, true
}
