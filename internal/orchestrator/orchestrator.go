// Package orchestrator drives one fetch request through the escalation
// ladder (spec.md §4.2): strategy-bounded tier selection, ticket injection,
// fail-fast short-circuits, the captcha_required → HITL short-circuit, and
// the tier-1-JS-challenge skip rule.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/metrics"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/telemetry"
	"github.com/titanscrape/titan/internal/ticketstore"
	"github.com/titanscrape/titan/internal/tier"
)

// Config bundles an Orchestrator's collaborators. The Ticket Store and
// Event Bus publication around CAPTCHA/HITL state live in their owning
// packages (internal/captcha, internal/hitl); the orchestrator only reads
// and invalidates tickets.
type Config struct {
	Ladder    *tier.Ladder
	Tickets   ticketstore.Store
	Metrics   *metrics.Metrics
	Telemetry *telemetry.TelemetryManager
}

// Orchestrator runs the escalation state machine described in spec.md §4.2.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator from cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// escalationStep records one rejected tier attempt for diagnostics
// (spec.md §4.2 "history.append((current, result.detected_challenge))").
type escalationStep struct {
	Tier      model.TierLevel     `json:"tier"`
	ErrorType model.ErrorType     `json:"error_type"`
	Challenge model.ChallengeType `json:"detected_challenge,omitempty"`
}

// Execute runs req through the ladder to completion, implementing
// spec.md §4.2's conceptual execute() loop. It also satisfies
// jobqueue.Handler's signature and is registered as the handler for the
// fetch-job function.
func (o *Orchestrator) Execute(ctx context.Context, req model.FetchRequest) model.TierResult {
	domain := domainOf(req.URL)
	start, max, err := o.resolveTierRange(req)
	if err != nil {
		return model.TierResult{ErrorType: model.ErrorUnknown, Error: err.Error()}
	}

	opts := req.Options.Clone()
	var ticket *model.GoldenTicket
	if o.cfg.Tickets != nil {
		if t, tErr := o.cfg.Tickets.Get(ctx, domain); tErr == nil && t != nil {
			ticket = t
			opts = t.ApplyToOptions(opts)
		}
	}

	current := start
	var history []escalationStep

	for {
		executor := o.cfg.Ladder.Get(current)
		if executor == nil {
			return model.TierResult{
				ErrorType: model.ErrorUnknown,
				Error:     fmt.Sprintf("orchestrator: no executor registered for %s", current),
				TierUsed:  current,
			}
		}

		result := o.runTier(ctx, executor, current, req.URL, opts)

		if result.Success {
			return withHistory(result, history)
		}

		if ticket != nil && result.ErrorType == model.ErrorBlocked {
			if delErr := o.cfg.Tickets.Delete(ctx, domain); delErr != nil {
				logging.Warn(logging.Orchestrator, "failed to invalidate blocked ticket",
					zap.String("domain", domain), zap.Error(delErr))
			}
			ticket = nil
		}

		if result.ErrorType.FailsFast() {
			return withHistory(withManualCaptchaHint(result, domain), history)
		}

		if result.ErrorType == model.ErrorCaptchaRequired && current < model.TierHITL {
			hitlExecutor := o.cfg.Ladder.Get(model.TierHITL)
			if hitlExecutor == nil {
				return withHistory(withManualCaptchaHint(result, domain), history)
			}
			hitlResult := o.runTier(ctx, hitlExecutor, model.TierHITL, req.URL, opts)
			return withHistory(withManualCaptchaHint(hitlResult, domain), history)
		}

		if current == max || !tier.ShouldEscalate(result) {
			return withHistory(withManualCaptchaHint(result, domain), history)
		}

		next := current + 1
		if current == model.TierRequest && result.DetectedChallenge.RequiresJS() {
			next = model.FirstBrowserTier
		}

		if o.cfg.Metrics != nil {
			o.cfg.Metrics.TierEscalations.WithLabelValues(current.String()).Inc()
		}
		history = append(history, escalationStep{Tier: current, ErrorType: result.ErrorType, Challenge: result.DetectedChallenge})
		current = next
	}
}

// runTier invokes one tier, recording metrics and a trace span around it.
func (o *Orchestrator) runTier(ctx context.Context, executor tier.Executor, level model.TierLevel, url string, opts model.FetchOptions) model.TierResult {
	if o.cfg.Metrics != nil {
		o.cfg.Metrics.TierAttempts.WithLabelValues(level.String()).Inc()
	}

	start := time.Now()
	var result model.TierResult
	runFn := func(ctx context.Context) error {
		result = executor.Execute(ctx, url, opts)
		return nil
	}
	if o.cfg.Telemetry != nil {
		_ = o.cfg.Telemetry.TraceTierExecution(ctx, level.String(), url, runFn)
	} else {
		_ = runFn(ctx)
	}

	if o.cfg.Metrics != nil {
		o.cfg.Metrics.TierDuration.WithLabelValues(level.String()).Observe(time.Since(start).Seconds())
		if result.Success {
			o.cfg.Metrics.TierSuccesses.WithLabelValues(level.String()).Inc()
		}
	}
	return result
}

// resolveTierRange applies the strategy mapping from spec.md §4.2.
func (o *Orchestrator) resolveTierRange(req model.FetchRequest) (start, max model.TierLevel, err error) {
	start, max = req.StartTier, req.MaxTier
	if start == 0 {
		start = model.TierRequest
	}
	if max == 0 {
		max = o.cfg.Ladder.MaxLevel()
		if max == 0 {
			max = model.MaxTier
		}
	}

	switch req.Strategy {
	case model.StrategyRequestOnly:
		start, max = model.TierRequest, model.TierRequest
	case model.StrategyBrowserOnly:
		if start < model.FirstBrowserTier {
			start = model.FirstBrowserTier
		}
	case model.StrategyAuto, "":
	default:
		return 0, 0, fmt.Errorf("orchestrator: unknown strategy %q", req.Strategy)
	}

	if !start.Valid() || !max.Valid() || start > max {
		return 0, 0, fmt.Errorf("orchestrator: invalid tier range [%d, %d]", start, max)
	}
	return start, max, nil
}

func withHistory(result model.TierResult, history []escalationStep) model.TierResult {
	if len(history) > 0 {
		result.WithMetadata("escalation_history", history)
	}
	return result
}

// withManualCaptchaHint flags a final captcha_required result so a caller
// inspecting TierResult metadata can decide to open a CAPTCHA task, the way
// the original orchestrator's needs_manual_captcha/captcha_domain fields did.
func withManualCaptchaHint(result model.TierResult, domain string) model.TierResult {
	if result.ErrorType != model.ErrorCaptchaRequired {
		return result
	}
	result.WithMetadata("needs_manual_captcha", true)
	result.WithMetadata("captcha_domain", domain)
	return result
}
