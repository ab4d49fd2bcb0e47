package tier

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/titanscrape/titan/internal/challenge"
	"github.com/titanscrape/titan/internal/logging"
	"github.com/titanscrape/titan/internal/model"
)

// defaultUserAgent mimics a recent desktop Chrome build, the same spirit as
// the original's TLS-fingerprint impersonation: tier 1 never identifies as
// a Go HTTP client.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// RequestTier is tier 1: a lightweight HTTP client that sends browser-like
// headers (a desktop Chrome User-Agent, Accept, Accept-Language) over Go's
// default TLS configuration, with a per-host rate limiter. It does not
// impersonate a browser's TLS fingerprint (cipher suite order, ALPN offer).
// It never executes JavaScript.
type RequestTier struct {
	client      *http.Client
	timeout     time.Duration
	maxRetries  int
	retrySleep  time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// RequestTierConfig configures the tier-1 HTTP client.
type RequestTierConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	RateLimitPerHostRPS float64
	RateLimitBurst      int
}

// NewRequestTier builds tier 1 with the given config. Fields left zero
// default to a 60s timeout (the spec's tier-1 ~60s), 2 retries, 2 requests
// per second per host and a burst of 4.
func NewRequestTier(cfg RequestTierConfig) *RequestTier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RateLimitPerHostRPS == 0 {
		cfg.RateLimitPerHostRPS = 2
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 4
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			// CipherSuites left nil: Go's default ordering on 1.24 already
			// tracks modern browser preference order closely enough that a
			// custom list buys little; a bespoke JA3 matcher is out of
			// scope for this tier's budget.
		},
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}

	return &RequestTier{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		retrySleep: 1100 * time.Millisecond, // spec.md §7: ~1.1s per retry on rate_limit
		limiters:   make(map[string]*rate.Limiter),
		rps:        rate.Limit(cfg.RateLimitPerHostRPS),
		burst:      cfg.RateLimitBurst,
	}
}

func (t *RequestTier) Level() model.TierLevel { return model.TierRequest }

func (t *RequestTier) limiterFor(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.limiters[host]
	if !ok {
		l = rate.NewLimiter(t.rps, t.burst)
		t.limiters[host] = l
	}
	return l
}

func (t *RequestTier) Execute(ctx context.Context, target string, opts model.FetchOptions) model.TierResult {
	start := time.Now()
	parsed, err := url.Parse(target)
	if err != nil {
		return errorResult(model.TierRequest, start, model.ErrorUnknown, err.Error(), false)
	}

	if err := t.limiterFor(parsed.Hostname()).Wait(ctx); err != nil {
		return errorResult(model.TierRequest, start, model.ErrorTimeout, "rate limiter wait: "+err.Error(), true)
	}

	var lastResult model.TierResult
	cookies := opts.ExtraCookies
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		result := t.attempt(ctx, target, opts, cookies, start)
		if result.ErrorType != model.ErrorRateLimit {
			return result
		}
		lastResult = result
		if attempt < t.maxRetries {
			logging.Action(logging.Tier, "tier1 retrying after rate_limit",
				zap.String("url", target), zap.Int("attempt", attempt+1))
			select {
			case <-ctx.Done():
				return errorResult(model.TierRequest, start, model.ErrorTimeout, ctx.Err().Error(), false)
			case <-time.After(t.retrySleep):
			}
			// A bad_request-flavored retry would clear cookies per spec
			// §7; rate_limit retries keep the session intact.
		}
	}
	return lastResult
}

func (t *RequestTier) attempt(ctx context.Context, target string, opts model.FetchOptions, cookies map[string]string, start time.Time) model.TierResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errorResult(model.TierRequest, start, model.ErrorUnknown, err.Error(), false)
	}

	ua := defaultUserAgent
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
		if strings.EqualFold(k, "User-Agent") {
			ua = v
		}
	}
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return classifyNetworkError(start, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return errorResult(model.TierRequest, start, model.ErrorNetwork, err.Error(), true)
	}
	content := string(body)

	detected := challenge.Detect(content, resp.StatusCode)
	if resp.StatusCode < 300 && detected == model.ChallengeNone {
		return model.TierResult{
			Success:           true,
			Content:           content,
			StatusCode:        resp.StatusCode,
			TierUsed:          model.TierRequest,
			ExecutionTimeMS:   time.Since(start).Milliseconds(),
			ResponseSizeBytes: len(body),
			ErrorType:         model.ErrorNone,
		}
	}

	errType := challenge.ClassifyError(resp.StatusCode, detected)
	result := model.TierResult{
		Success:           false,
		Content:           content,
		StatusCode:        resp.StatusCode,
		TierUsed:          model.TierRequest,
		ExecutionTimeMS:   time.Since(start).Milliseconds(),
		ResponseSizeBytes: len(body),
		Error:             "non-success response",
		ErrorType:         errType,
		DetectedChallenge: detected,
		ShouldEscalate:    errType != model.ErrorRateLimit && errType != model.ErrorServer,
	}
	if detected == model.ChallengeCaptcha || detected == model.ChallengeTurnstile {
		result.ErrorType = model.ErrorCaptchaRequired
	}
	return result
}

func classifyNetworkError(start time.Time, err error) model.TierResult {
	var dnsErr *net.DNSError
	var netErr net.Error
	msg := err.Error()
	switch {
	case isDNSError(err, &dnsErr):
		return errorResult(model.TierRequest, start, model.ErrorDNS, msg, false)
	case strings.Contains(msg, "connection refused"):
		return errorResult(model.TierRequest, start, model.ErrorConnectionRefused, msg, false)
	case strings.Contains(msg, "tls") || strings.Contains(msg, "x509") || strings.Contains(msg, "certificate"):
		return errorResult(model.TierRequest, start, model.ErrorSSL, msg, true)
	case asNetTimeout(err, &netErr):
		return errorResult(model.TierRequest, start, model.ErrorTimeout, msg, true)
	default:
		return errorResult(model.TierRequest, start, model.ErrorNetwork, msg, true)
	}
}

func isDNSError(err error, target **net.DNSError) bool {
	for err != nil {
		if d, ok := err.(*net.DNSError); ok {
			*target = d
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

func asNetTimeout(err error, target *net.Error) bool {
	for err != nil {
		if n, ok := err.(net.Error); ok && n.Timeout() {
			*target = n
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return false
}

func errorResult(tier model.TierLevel, start time.Time, errType model.ErrorType, msg string, escalate bool) model.TierResult {
	return model.TierResult{
		Success:         false,
		TierUsed:        tier,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
		Error:           msg,
		ErrorType:       errType,
		ShouldEscalate:  escalate && !errType.FailsFast(),
	}
}

func (t *RequestTier) Cleanup(ctx context.Context) error {
	t.client.CloseIdleConnections()
	return nil
}
