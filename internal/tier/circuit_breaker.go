package tier

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
)

// CircuitBreakerTier wraps an Executor so a tier that is failing hard (a
// browser pool crashing on every attempt) trips out of rotation for a
// cooldown instead of being retried on every job. This does not appear in
// spec.md directly; it is infrastructure protecting the tiers the spec
// does name from a thundering-herd of doomed attempts against a dead
// backend.
type CircuitBreakerTier struct {
	inner   Executor
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreakerTier wraps inner with a breaker that opens after
// consecutive failures, per the sony/gobreaker defaults tuned down to this
// domain's tolerance: five consecutive failures trips it, and it stays
// open for a cooldown before allowing a single trial request through.
func NewCircuitBreakerTier(inner Executor, cooldown time.Duration) *CircuitBreakerTier {
	if cooldown == 0 {
		cooldown = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        inner.Level().String(),
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn(logging.Tier, "circuit breaker state change",
				zap.String("tier", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &CircuitBreakerTier{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (t *CircuitBreakerTier) Level() model.TierLevel { return t.inner.Level() }

func (t *CircuitBreakerTier) Execute(ctx context.Context, url string, opts model.FetchOptions) model.TierResult {
	out, err := t.breaker.Execute(func() (interface{}, error) {
		result := t.inner.Execute(ctx, url, opts)
		if result.ErrorType == model.ErrorBrowserCrash {
			return result, errors.New("browser_crash")
		}
		return result, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return model.TierResult{
				Success:        false,
				TierUsed:       t.inner.Level(),
				Error:          "tier circuit breaker open: " + err.Error(),
				ErrorType:      model.ErrorBrowserCrash,
				ShouldEscalate: true,
			}
		}
	}
	return out.(model.TierResult)
}

func (t *CircuitBreakerTier) Cleanup(ctx context.Context) error {
	return t.inner.Cleanup(ctx)
}
