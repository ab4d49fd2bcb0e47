// Package browserdriver provides the "headless-browser-shaped" collaborator
// tiers 2 through 6 drive through tier.BrowserDriver, and the matching
// hitl.Harvester used when a session escalates to a human. Neither wraps a
// real render engine: SPEC_FULL.md scopes actual browser automation (a CDP
// session, a stealth-patched browser) as infrastructure this deployment
// plugs in separately, so this package stands in with a real HTTP fetch
// plus a per-profile cookie jar — the same shape a render-backed driver
// would present to the orchestrator, minus JavaScript execution.
package browserdriver

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/titanscrape/titan/internal/config"
	"github.com/titanscrape/titan/internal/model"
)

// HTTPDriver implements tier.BrowserDriver with a real HTTP client whose
// cookie jar is kept per warmed profile, so two jobs sharing a profile key
// share fingerprint continuity the way a warmed browser profile would
// (spec.md §5).
type HTTPDriver struct {
	client     *http.Client
	userAgent  string

	mu       sync.Mutex
	profiles map[string]*cookiejar.Jar
	active   string
}

// NewHTTPDriver builds a driver whose requests carry userAgent (left empty
// to use a recent desktop Chrome UA, matching tier 1's impersonation).
func NewHTTPDriver(userAgent string, timeout time.Duration) *HTTPDriver {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &HTTPDriver{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		profiles:  make(map[string]*cookiejar.Jar),
	}
}

// Warm binds profileKey's cookie jar as the active one, creating it on
// first use.
func (d *HTTPDriver) Warm(ctx context.Context, profileKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.profiles[profileKey]; !ok {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return fmt.Errorf("browserdriver: new cookie jar: %w", err)
		}
		d.profiles[profileKey] = jar
	}
	d.active = profileKey
	return nil
}

// Release clears the active profile binding; the jar itself is kept so a
// later Warm with the same key resumes the same session state.
func (d *HTTPDriver) Release(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = ""
	return nil
}

func (d *HTTPDriver) jarFor(profileKey string) *cookiejar.Jar {
	d.mu.Lock()
	defer d.mu.Unlock()
	if profileKey == "" {
		profileKey = d.active
	}
	jar, ok := d.profiles[profileKey]
	if !ok {
		jar, _ = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		d.profiles[profileKey] = jar
	}
	return jar
}

// Navigate performs a GET against target, honoring opts.ExtraHeaders and
// opts.ExtraCookies, and folds the response's Set-Cookie headers into the
// bound profile's jar so subsequent navigations on the same profile carry
// them forward.
func (d *HTTPDriver) Navigate(ctx context.Context, target string, opts model.FetchOptions) (string, int, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", 0, fmt.Errorf("browserdriver: parse url: %w", err)
	}

	if opts.UseStealthNavigation && config.GetFeatureManager().IsEnabled("stealth_navigation") {
		if err := stealthPace(ctx); err != nil {
			return "", 0, err
		}
	}

	jar := d.jarFor(opts.ProfileID)
	client := &http.Client{Timeout: d.client.Timeout, Jar: jar}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
	}
	for name, value := range opts.ExtraCookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value, Domain: parsed.Hostname()})
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", 0, err
	}
	return string(body), resp.StatusCode, nil
}

// stealthPace sleeps a short randomized interval before navigation when a
// caller opts into stealth navigation and the feature flag allows it,
// approximating the human-like pacing a real stealth-patched browser
// would add between actions.
func stealthPace(ctx context.Context) error {
	delay := time.Duration(400+rand.Intn(900)) * time.Millisecond
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
