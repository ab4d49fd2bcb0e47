// Package tier implements the TierExecutor contract: every escalation
// level in the orchestrator's ladder is a value satisfying Executor, so
// the orchestrator can treat a plain HTTP client and a full browser
// identically.
package tier

import (
	"context"

	"github.com/titanscrape/titan/internal/model"
)

// Executor is the contract every tier in the escalation ladder satisfies
// (spec.md §3 "used by tiers"). Execute must be idempotent: calling it
// twice with the same url/options performs two independent fetch attempts
// with no hidden shared state surviving between them beyond what Cleanup
// releases.
type Executor interface {
	// Level reports which rung of the ladder this executor occupies.
	Level() model.TierLevel
	// Execute performs one fetch attempt and classifies the outcome
	// exhaustively — every return path sets error_type even on success
	// (model.ErrorNone).
	Execute(ctx context.Context, url string, opts model.FetchOptions) model.TierResult
	// Cleanup releases any resources the tier is holding (browser handles,
	// warmed connections). Safe to call multiple times.
	Cleanup(ctx context.Context) error
}

// ShouldEscalate applies the tier-independent part of the escalation
// policy named in spec.md §4.1/§4.2: fail-fast error types never escalate,
// success never escalates, everything else defers to the tier's own
// should_escalate hint (a tier is best placed to know whether retrying at
// a stronger level could help).
func ShouldEscalate(result model.TierResult) bool {
	if result.Success {
		return false
	}
	if result.ErrorType.FailsFast() {
		return false
	}
	return result.ShouldEscalate
}
