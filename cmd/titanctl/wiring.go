package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/titanscrape/titan/internal/browserdriver"
	"github.com/titanscrape/titan/internal/captcha"
	"github.com/titanscrape/titan/internal/config"
	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/hitl"
	"github.com/titanscrape/titan/internal/jobqueue"
	"github.com/titanscrape/titan/internal/metrics"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/telemetry"
	"github.com/titanscrape/titan/internal/ticketstore"
	"github.com/titanscrape/titan/internal/tier"
)

// app bundles every collaborator a subcommand might need. Not every
// subcommand uses every field; building them all up front keeps the
// wiring in one place instead of duplicated per-command.
type app struct {
	cfg       *config.Config
	redis     *redis.Client
	tickets   ticketstore.Store
	bus       eventbus.Bus
	metrics   *metrics.Metrics
	telemetry *telemetry.TelemetryManager
	captchaStore captcha.TaskStore
	captcha   *captcha.Manager
	hitl      *hitl.Coordinator
	ladder    *tier.Ladder
	queue     jobqueue.Queue
}

// newApp wires every collaborator from cfg, following this codebase's
// connect-then-construct order: Redis first (most other pieces key off
// it), then the task store, then the things that depend on both.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	a.redis = redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("titanctl: connect to redis: %w", err)
	}

	a.tickets = ticketstore.NewRedisStore(a.redis, cfg.Captcha.SessionKeyPrefix)
	a.bus = eventbus.NewRedisBus(a.redis)

	m := metrics.New()
	if err := m.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("titanctl: register metrics: %w", err)
	}
	a.metrics = m

	tm, err := telemetry.NewTelemetryManager(telemetry.TelemetryConfig{
		ServiceName:    "titanctl",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Server.Mode,
		Enabled:        false,
	})
	if err != nil {
		return nil, fmt.Errorf("titanctl: init telemetry: %w", err)
	}
	a.telemetry = tm

	captchaStore, err := newCaptchaStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.captchaStore = captchaStore
	a.captcha = captcha.NewManager(captcha.Config{
		Store:         captchaStore,
		Tickets:       a.tickets,
		Bus:           a.bus,
		EventsChannel: cfg.Captcha.EventsChannel,
		TaskTimeout:   cfg.Captcha.TaskTimeout,
	})

	a.hitl = hitl.NewCoordinator(hitl.Config{
		Tickets:             a.tickets,
		Bus:                 a.bus,
		EventsChannel:        cfg.Captcha.EventsChannel,
		AdminConnectTimeout: cfg.HITL.AdminConnectTimeout,
		SolveTimeout:        cfg.HITL.SolveTimeout,
		SessionMaxTTL:       cfg.Captcha.SessionMaxTTL,
		StreamFPS:           cfg.HITL.StreamFPS,
		NewHarvester: func(ctx context.Context) (hitl.Harvester, error) {
			return browserdriver.NewHarvester("")
		},
	})

	a.ladder = newLadder(cfg, a.hitl)
	a.queue = jobqueue.NewRedisQueue(a.redis, cfg.JobQueue.QueueKey)

	return a, nil
}

// newCaptchaStore picks the durable CaptchaTask store per cfg.DB.Driver:
// pgx/v5 in production, modernc.org/sqlite for local/dev/test (SPEC_FULL.md
// DOMAIN STACK).
func newCaptchaStore(ctx context.Context, cfg *config.Config) (captcha.TaskStore, error) {
	switch cfg.DB.Driver {
	case "postgres":
		store, err := captcha.NewPostgresStore(ctx, cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("titanctl: open postgres captcha store: %w", err)
		}
		return store, nil
	case "sqlite":
		store, err := captcha.NewSQLiteStore(cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("titanctl: open sqlite captcha store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("titanctl: unknown database driver %q", cfg.DB.Driver)
	}
}

// newLadder builds the seven-tier escalation ladder: tier 1 is the
// lightweight HTTP client, tiers 2-6 share the headless-browser-shaped
// HTTP driver at increasing timeouts (the built-in solver flag follows
// SPEC_FULL.md's note that tiers 4/5 carry one), each wrapped in a circuit
// breaker when the circuit_breaker flag is on so a tier failing hard on
// every attempt cools down instead of being retried into the ground, and
// tier 7 is the HITL coordinator.
func newLadder(cfg *config.Config, coordinator *hitl.Coordinator) *tier.Ladder {
	requestTier := tier.NewRequestTier(tier.RequestTierConfig{
		Timeout:             cfg.Titan.RequestTierTimeout,
		RateLimitPerHostRPS: cfg.Titan.RateLimitPerHostRPS,
	})

	executors := []tier.Executor{requestTier}
	executors = append(executors, newBrowserTiers(cfg)...)
	executors = append(executors, coordinator)

	return tier.NewLadder(executors...)
}

// browserTierSpec names one of tiers 2-6 and whether it carries a
// built-in challenge solver (spec.md §3: tiers 4/5 do).
type browserTierSpec struct {
	level         model.TierLevel
	builtinSolver bool
}

var browserTierSpecs = []browserTierSpec{
	{model.TierBrowserRequest, false},
	{model.TierFullBrowser, false},
	{model.TierStealthBrowser, true},
	{model.TierCDPBrowser, true},
	{model.TierNonWebdriver, false},
}

// newBrowserTiers builds tiers 2-6, each sharing one HTTPDriver instance
// (warmed per-domain profiles); when the circuit_breaker flag is on, each
// is wrapped individually in a circuit breaker so one tier tripping out
// doesn't affect its siblings.
func newBrowserTiers(cfg *config.Config) []tier.Executor {
	driver := browserdriver.NewHTTPDriver("", cfg.Titan.BrowserTierTimeout)
	breakerEnabled := config.GetFeatureManager().IsEnabled("circuit_breaker")
	out := make([]tier.Executor, 0, len(browserTierSpecs))
	for _, spec := range browserTierSpecs {
		var exec tier.Executor = tier.NewBrowserTier(spec.level, driver, cfg.Titan.BrowserTierTimeout, spec.builtinSolver)
		if breakerEnabled {
			exec = tier.NewCircuitBreakerTier(exec, 30*time.Second)
		}
		out = append(out, exec)
	}
	return out
}
