package hitl

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/titanscrape/titan/internal/config"
	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/ticketstore"
)

// pollInterval is how often the Coordinator polls a Harvester for
// auto-resolution or a solved page while an admin waits or works.
const pollInterval = 2 * time.Second

// Config bundles a Coordinator's collaborators and timeouts (spec.md §4.4,
// §5's admin_connect_timeout / solve_timeout defaults).
type Config struct {
	Tickets             ticketstore.Store
	Bus                 eventbus.Bus
	EventsChannel       string
	AdminConnectTimeout time.Duration
	SolveTimeout        time.Duration
	SessionMaxTTL       time.Duration
	StreamFPS           int
	NewHarvester        func(ctx context.Context) (Harvester, error)
}

// Coordinator runs the HITL escalation path: it owns every live session
// and is also the tier.Executor plugged into the ladder at TierHITL.
type Coordinator struct {
	cfg     Config
	mu      sync.Mutex
	live    map[string]*liveSession
	channel string
}

// liveSession is the in-memory state of one in-progress session, shared
// between Execute (which drives the lifecycle) and the websocket handler
// (which an admin attaches to).
type liveSession struct {
	mu        sync.Mutex
	session   model.HITLSession
	harvester Harvester

	adminConnected chan struct{}
	adminOnce      sync.Once

	solved     chan model.SolverResult
	solvedOnce sync.Once

	frameSeq uint64
}

// NewCoordinator wires a Coordinator from its collaborators.
func NewCoordinator(cfg Config) *Coordinator {
	channel := cfg.EventsChannel
	if channel == "" {
		channel = eventbus.DefaultChannel
	}
	return &Coordinator{cfg: cfg, live: make(map[string]*liveSession), channel: channel}
}

// Level implements tier.Executor.
func (c *Coordinator) Level() model.TierLevel { return model.TierHITL }

// Cleanup implements tier.Executor; live sessions manage their own
// Harvester lifetime, so there is nothing global to release here.
func (c *Coordinator) Cleanup(ctx context.Context) error { return nil }

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Hostname())
}

// Execute runs one full HITL session end to end (spec.md §4.4).
func (c *Coordinator) Execute(ctx context.Context, targetURL string, opts model.FetchOptions) model.TierResult {
	domain := domainOf(targetURL)

	// Step 1: cache check — no human required if a ticket is already fresh.
	if ticket, err := c.cfg.Tickets.Get(ctx, domain); err == nil && ticket != nil {
		return successResult("", ticket.UserAgent, ticket)
	}

	harvester, err := c.cfg.NewHarvester(ctx)
	if err != nil {
		return browserCrashResult(err)
	}
	if err := harvester.Navigate(ctx, targetURL, opts); err != nil {
		harvester.Close(ctx)
		return browserCrashResult(err)
	}

	live := &liveSession{
		session: model.HITLSession{
			SessionID:           uuid.NewString(),
			URL:                 targetURL,
			Domain:              domain,
			Status:              model.HITLPending,
			CreatedAt:           time.Now(),
			AdminConnectTimeout: c.cfg.AdminConnectTimeout,
			SolveTimeout:        c.cfg.SolveTimeout,
		},
		harvester:      harvester,
		adminConnected: make(chan struct{}),
		solved:         make(chan model.SolverResult, 1),
	}
	c.register(live)
	defer func() {
		c.unregister(live.session.SessionID)
		harvester.Close(ctx)
	}()

	c.publish(ctx, model.EventHITLRequired, domain, "", map[string]any{
		"session_id": live.session.SessionID,
		"url":        targetURL,
	})

	// Step 3: await admin, racing a concurrent auto-resolve poll.
	adminConnected, autoResolved := c.awaitAdminOrAutoResolve(ctx, live)
	if !adminConnected && !autoResolved {
		c.markStatus(live, model.HITLTimedOut)
		return captchaRequiredResult("admin_timeout")
	}

	// Step 5: await solve, unless the challenge already cleared itself.
	if !autoResolved {
		live.mu.Lock()
		live.session.Status = model.HITLSolving
		live.mu.Unlock()
		c.publish(ctx, model.EventTaskSolving, domain, "", map[string]any{"session_id": live.session.SessionID})

		if !c.awaitSolved(ctx, live) {
			c.markStatus(live, model.HITLTimedOut)
			return captchaRequiredResult("solve_timeout")
		}
	}

	// Step 6: harvest.
	cookies, userAgent, html, err := harvester.Harvest(ctx)
	if err != nil || len(cookies) == 0 || domain == "" {
		c.markStatus(live, model.HITLTimedOut)
		return captchaRequiredResult("harvesting_error")
	}

	now := time.Now()
	live.mu.Lock()
	live.session.Status = model.HITLCompleted
	live.session.SolvedAt = &now
	live.mu.Unlock()

	ticket := model.GoldenTicket{
		Domain:      domain,
		SourceURL:   targetURL,
		HarvestedAt: now,
		TTLSeconds:  int(c.cfg.SessionMaxTTL.Seconds()),
		Cookies:     cookies,
		UserAgent:   userAgent,
		ProxyURL:    opts.ProxyURL,
	}
	ticket.ClampTTL(int(c.cfg.SessionMaxTTL.Seconds()))

	// Step 7: persist.
	if err := c.cfg.Tickets.Set(ctx, ticket); err != nil {
		logging.Warn(logging.HITL, "failed to persist harvested ticket", zap.String("domain", domain), zap.Error(err))
	} else {
		c.publish(ctx, model.EventTicketStored, domain, "", nil)
	}

	// Step 8: return.
	return successResult(html, userAgent, &ticket)
}

func (c *Coordinator) register(live *liveSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live[live.session.SessionID] = live
}

func (c *Coordinator) unregister(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.live, sessionID)
}

// Attach looks up a live session for the websocket handler, the moment an
// admin connects to stream its viewport (spec.md §4.4 step 4).
func (c *Coordinator) Attach(sessionID string) (*liveSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.live[sessionID]
	return s, ok
}

// streamFPS returns the configured frame rate, defaulting to 10 (spec.md
// §5 "stream_fps").
func (c *Coordinator) streamFPS() int {
	if c.cfg.StreamFPS <= 0 {
		return 10
	}
	return c.cfg.StreamFPS
}

func (c *Coordinator) markStatus(live *liveSession, status model.HITLStatus) {
	live.mu.Lock()
	live.session.Status = status
	live.mu.Unlock()
}

// markAdminConnected is called once by the websocket handler on upgrade.
func (s *liveSession) markAdminConnected() {
	s.adminOnce.Do(func() {
		now := time.Now()
		s.mu.Lock()
		s.session.Status = model.HITLAdminConnected
		s.session.AdminConnectedAt = &now
		s.mu.Unlock()
		close(s.adminConnected)
	})
}

// signalSolved is called once by the websocket handler when the admin
// reports an explicit solved event.
func (s *liveSession) signalSolved(result model.SolverResult) {
	s.solvedOnce.Do(func() {
		s.solved <- result
	})
}

// awaitAdminOrAutoResolve blocks until an admin connects, the page
// auto-resolves, the connect deadline elapses, or ctx is cancelled.
func (c *Coordinator) awaitAdminOrAutoResolve(ctx context.Context, live *liveSession) (adminConnected, autoResolved bool) {
	deadline := time.NewTimer(live.session.AdminConnectTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	if config.GetFeatureManager().IsEnabled("auto_resolve_poll") {
		if ok, err := live.harvester.IsSolved(ctx); err == nil && ok {
			return false, true
		}
	}

	for {
		select {
		case <-live.adminConnected:
			return true, false
		case <-ticker.C:
			if !config.GetFeatureManager().IsEnabled("auto_resolve_poll") {
				continue
			}
			if ok, err := live.harvester.IsSolved(ctx); err == nil && ok {
				return false, true
			}
		case <-deadline.C:
			return false, false
		case <-ctx.Done():
			return false, false
		}
	}
}

// awaitSolved blocks until the admin signals a solve, the page
// auto-resolves, the solve deadline elapses, or ctx is cancelled.
func (c *Coordinator) awaitSolved(ctx context.Context, live *liveSession) bool {
	deadline := time.NewTimer(live.session.SolveDeadline().Sub(time.Now()))
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-live.solved:
			return true
		case <-ticker.C:
			if !config.GetFeatureManager().IsEnabled("auto_resolve_poll") {
				continue
			}
			if ok, err := live.harvester.IsSolved(ctx); err == nil && ok {
				return true
			}
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, t model.EventType, domain, taskUUID string, fields map[string]any) {
	event := model.NewEvent(t, domain, fields)
	event.TaskUUID = taskUUID
	if err := c.cfg.Bus.Publish(ctx, c.channel, event); err != nil {
		logging.Warn(logging.HITL, "failed to publish hitl event", zap.String("type", string(t)), zap.Error(err))
	}
}

func successResult(content, userAgent string, ticket *model.GoldenTicket) model.TierResult {
	r := model.TierResult{
		Success:   true,
		Content:   content,
		TierUsed:  model.TierHITL,
		ErrorType: model.ErrorNone,
	}
	if ticket != nil {
		r.WithMetadata("golden_ticket", map[string]any{
			"domain":      ticket.Domain,
			"harvested_at": ticket.HarvestedAt,
			"ttl_seconds": ticket.TTLSeconds,
		})
	}
	if userAgent != "" {
		r.WithMetadata("user_agent", userAgent)
	}
	return r
}

func captchaRequiredResult(subtype string) model.TierResult {
	r := model.TierResult{
		TierUsed:       model.TierHITL,
		ErrorType:      model.ErrorCaptchaRequired,
		ShouldEscalate: false,
	}
	r.WithMetadata("hitl_status", subtype)
	return r
}

func browserCrashResult(err error) model.TierResult {
	r := model.TierResult{
		TierUsed:       model.TierHITL,
		ErrorType:      model.ErrorBrowserCrash,
		Error:          err.Error(),
		ShouldEscalate: false,
	}
	return r
}
