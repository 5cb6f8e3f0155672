package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/intellifactory/internal/decision"
	"github.com/zulandar/intellifactory/internal/logging"
)

// FallbackFunc builds the decision returned once every attempt has failed.
type FallbackFunc func(agent string, attempts int, lastRaw string, cause error, now time.Time) decision.Decision

// AttemptFunc makes one attempt. raw is the advisor text, if any was
// received, and is kept for the fallback audit trail.
type AttemptFunc func(ctx context.Context, attempt int) (d decision.Decision, raw string, err error)

// RetryPolicy bounds how an agent is asked: at most MaxAttempts tries, each
// under its own AttemptTimeout, then Fallback.
type RetryPolicy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	Fallback       FallbackFunc
}

// DefaultRetryPolicy allows three attempts of thirty seconds each.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		AttemptTimeout: 30 * time.Second,
		Fallback:       decision.Fallback,
	}
}

// Do runs fn until it succeeds, the attempts run out, or ctx is done. It
// never returns an error; failures end in p.Fallback. The returned decision
// carries the number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, agent string, log logging.Logger, fn AttemptFunc) decision.Decision {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if log == nil {
		log = logging.Nop()
	}

	var (
		lastRaw string
		lastErr error
		made    int
	)
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		made = attempt

		actx, cancel := p.attemptContext(ctx)
		d, raw, err := fn(actx, attempt)
		cancel()

		if err == nil {
			d.Attempts = attempt
			log.Info("valid decision", "agent", agent, "attempt", attempt)
			return d
		}
		if raw != "" {
			lastRaw = raw
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			log.Warn("attempt timed out", "agent", agent, "attempt", attempt, "timeout", p.AttemptTimeout)
		} else {
			log.Warn("invalid response", "agent", agent, "attempt", attempt, "err", err)
		}
		lastErr = err
	}

	log.Error("using fallback decision", "agent", agent, "attempts", made, "err", lastErr)
	return p.fallback()(agent, made, lastRaw, lastErr, time.Now())
}

func (p RetryPolicy) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.AttemptTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.AttemptTimeout)
}

func (p RetryPolicy) fallback() FallbackFunc {
	if p.Fallback == nil {
		return decision.Fallback
	}
	return p.Fallback
}
