package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter paces outbound model calls. A nil *Limiter never blocks.
type Limiter struct {
	rl *rate.Limiter
}

// NewLimiter allows rps calls per second with the given burst. rps <= 0
// returns nil, which disables pacing.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{rl: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a call may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.rl.Wait(ctx); err != nil {
		return eris.Wrap(err, "resilience: rate limit wait")
	}
	return nil
}
