package tier

import (
	"context"

	"go.uber.org/multierr"

	"github.com/titanscrape/titan/internal/model"
)

// Ladder is the ordered collection of tier executors the orchestrator
// drives, indexed by model.TierLevel.
type Ladder struct {
	tiers map[model.TierLevel]Executor
}

// NewLadder builds a ladder from the given executors, keyed by their own
// reported Level().
func NewLadder(executors ...Executor) *Ladder {
	l := &Ladder{tiers: make(map[model.TierLevel]Executor, len(executors))}
	for _, e := range executors {
		l.tiers[e.Level()] = e
	}
	return l
}

// Get returns the executor for level, or nil if none is registered.
func (l *Ladder) Get(level model.TierLevel) Executor {
	return l.tiers[level]
}

// Has reports whether level has a registered executor.
func (l *Ladder) Has(level model.TierLevel) bool {
	_, ok := l.tiers[level]
	return ok
}

// MaxLevel returns the highest registered tier level, or 0 if the ladder is
// empty. Used to default an "auto" strategy's upper bound to "the last
// configured tier" (spec.md §4.2).
func (l *Ladder) MaxLevel() model.TierLevel {
	var max model.TierLevel
	for level := range l.tiers {
		if level > max {
			max = level
		}
	}
	return max
}

// CleanupAll calls Cleanup on every registered tier, aggregating failures
// with multierr so a single unreachable browser pool during shutdown
// doesn't mask cleanup errors from the rest of the ladder.
func (l *Ladder) CleanupAll(ctx context.Context) error {
	var err error
	for _, t := range l.tiers {
		err = multierr.Append(err, t.Cleanup(ctx))
	}
	return err
}
