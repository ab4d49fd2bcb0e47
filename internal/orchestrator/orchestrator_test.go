package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/ticketstore"
	"github.com/titanscrape/titan/internal/tier"
)

// stubTier is a scripted tier.Executor used to drive the escalation state
// machine deterministically in tests.
type stubTier struct {
	level   model.TierLevel
	results []model.TierResult
	calls   int
}

func (s *stubTier) Level() model.TierLevel { return s.level }

func (s *stubTier) Execute(ctx context.Context, url string, opts model.FetchOptions) model.TierResult {
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	r := s.results[i]
	r.TierUsed = s.level
	return r
}

func (s *stubTier) Cleanup(ctx context.Context) error { return nil }

func newOrchestrator(tiers ...tier.Executor) *Orchestrator {
	return New(Config{
		Ladder:  tier.NewLadder(tiers...),
		Tickets: ticketstore.NewMemoryStore(),
	})
}

func TestOrchestrator_FirstTierSucceeds(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{{Success: true, Content: "ok"}}}
	o := newOrchestrator(tier1)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.True(t, result.Success)
	assert.Equal(t, 1, tier1.calls)
}

func TestOrchestrator_EscalatesThroughTiers(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorBlocked, ShouldEscalate: true},
	}}
	tier2 := &stubTier{level: model.TierBrowserRequest, results: []model.TierResult{
		{Success: true, Content: "escalated ok"},
	}}
	o := newOrchestrator(tier1, tier2)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.True(t, result.Success)
	assert.Equal(t, "escalated ok", result.Content)
	assert.Equal(t, 1, tier1.calls)
	assert.Equal(t, 1, tier2.calls)
}

func TestOrchestrator_DNSErrorFailsFast(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorDNS, ShouldEscalate: true},
	}}
	tier2 := &stubTier{level: model.TierBrowserRequest, results: []model.TierResult{{Success: true}}}
	o := newOrchestrator(tier1, tier2)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://nowhere.invalid/"})
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorDNS, result.ErrorType)
	assert.Equal(t, 0, tier2.calls, "a fail-fast error must never escalate")
}

func TestOrchestrator_CaptchaRequiredShortCircuitsToHITL(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorCaptchaRequired, ShouldEscalate: true},
	}}
	tier2 := &stubTier{level: model.TierBrowserRequest, results: []model.TierResult{{Success: true}}}
	hitl := &stubTier{level: model.TierHITL, results: []model.TierResult{
		{Success: true, Content: "solved by human"},
	}}
	o := newOrchestrator(tier1, tier2, hitl)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.True(t, result.Success)
	assert.Equal(t, "solved by human", result.Content)
	assert.Equal(t, 0, tier2.calls, "captcha_required must short-circuit straight to hitl")
	assert.Equal(t, 1, hitl.calls)
}

func TestOrchestrator_CaptchaRequiredWithoutHITLTierFlagsManualCaptcha(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorCaptchaRequired, ShouldEscalate: true},
	}}
	o := newOrchestrator(tier1)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.False(t, result.Success)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, true, result.Metadata["needs_manual_captcha"])
	assert.Equal(t, "example.com", result.Metadata["captcha_domain"])
}

func TestOrchestrator_SkipRuleJumpsPastTier2OnJSChallenge(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorBlocked, ShouldEscalate: true, DetectedChallenge: model.ChallengeCloudflare},
	}}
	tier2 := &stubTier{level: model.TierBrowserRequest, results: []model.TierResult{{Success: true}}}
	tier3 := &stubTier{level: model.TierFullBrowser, results: []model.TierResult{{Success: true, Content: "full browser ok"}}}
	o := newOrchestrator(tier1, tier2, tier3)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.True(t, result.Success)
	assert.Equal(t, "full browser ok", result.Content)
	assert.Equal(t, 0, tier2.calls, "tier 2 cannot resolve a JS challenge and must be skipped")
	assert.Equal(t, 1, tier3.calls)
}

func TestOrchestrator_RequestOnlyStrategyNeverEscalates(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorBlocked, ShouldEscalate: true},
	}}
	tier2 := &stubTier{level: model.TierBrowserRequest, results: []model.TierResult{{Success: true}}}
	o := newOrchestrator(tier1, tier2)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/", Strategy: model.StrategyRequestOnly})
	assert.False(t, result.Success)
	assert.Equal(t, 0, tier2.calls)
}

func TestOrchestrator_BrowserOnlyStrategySkipsTier1(t *testing.T) {
	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{{Success: true}}}
	tier3 := &stubTier{level: model.TierFullBrowser, results: []model.TierResult{{Success: true, Content: "browser only"}}}
	o := newOrchestrator(tier1, tier3)

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/", Strategy: model.StrategyBrowserOnly})
	assert.True(t, result.Success)
	assert.Equal(t, "browser only", result.Content)
	assert.Equal(t, 0, tier1.calls)
}

func TestOrchestrator_BlockedTicketIsInvalidated(t *testing.T) {
	tickets := ticketstore.NewMemoryStore()
	require.NoError(t, tickets.Set(context.Background(), model.GoldenTicket{
		Domain: "example.com", HarvestedAt: time.Now(), TTLSeconds: 900, Cookies: []model.Cookie{{Name: "c", Value: "v"}},
	}))

	tier1 := &stubTier{level: model.TierRequest, results: []model.TierResult{
		{Success: false, ErrorType: model.ErrorBlocked, ShouldEscalate: false},
	}}
	o := New(Config{Ladder: tier.NewLadder(tier1), Tickets: tickets})

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.False(t, result.Success)

	ticket, err := tickets.Get(context.Background(), "example.com")
	require.NoError(t, err)
	assert.Nil(t, ticket, "a ticket that triggers a blocked response must be invalidated")
}

func TestOrchestrator_FreshTicketIsInjectedIntoOptions(t *testing.T) {
	tickets := ticketstore.NewMemoryStore()
	require.NoError(t, tickets.Set(context.Background(), model.GoldenTicket{
		Domain: "example.com", HarvestedAt: time.Now(), TTLSeconds: 900, Cookies: []model.Cookie{{Name: "session", Value: "abc"}},
	}))

	var seenCookies map[string]string
	tier1 := &tierFunc{
		level: model.TierRequest,
		fn: func(ctx context.Context, url string, opts model.FetchOptions) model.TierResult {
			seenCookies = opts.ExtraCookies
			return model.TierResult{Success: true}
		},
	}
	o := New(Config{Ladder: tier.NewLadder(tier1), Tickets: tickets})

	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.True(t, result.Success)
	assert.Equal(t, "abc", seenCookies["session"])
}

func TestOrchestrator_NoExecutorForRangeReturnsError(t *testing.T) {
	o := New(Config{Ladder: tier.NewLadder(), Tickets: ticketstore.NewMemoryStore()})
	result := o.Execute(context.Background(), model.FetchRequest{URL: "https://example.com/"})
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorUnknown, result.ErrorType)
}

// tierFunc adapts a plain function to tier.Executor for tests that need to
// inspect the FetchOptions the orchestrator actually passed in.
type tierFunc struct {
	level model.TierLevel
	fn    func(ctx context.Context, url string, opts model.FetchOptions) model.TierResult
}

func (t *tierFunc) Level() model.TierLevel { return t.level }
func (t *tierFunc) Execute(ctx context.Context, url string, opts model.FetchOptions) model.TierResult {
	return t.fn(ctx, url, opts)
}
func (t *tierFunc) Cleanup(ctx context.Context) error { return nil }
