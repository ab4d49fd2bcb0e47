package browserdriver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"

	"github.com/titanscrape/titan/internal/challenge"
	"github.com/titanscrape/titan/internal/model"
)

// ErrNoVisualBackend is returned by Inject: this harvester has no real
// render engine behind it, so pointer/keyboard events have nothing to land
// on. An admin attached to a session backed by this harvester can still
// resolve it through the `solved`/`cancel` control events, which don't
// require a visual target.
var ErrNoVisualBackend = errors.New("browserdriver: no visual backend to inject input into")

// Harvester implements hitl.Harvester the same way HTTPDriver implements
// tier.BrowserDriver: a real HTTP fetch plus a cookie jar stand in for a
// render engine, since a HITL session's own job is to hand a human a
// captcha_required page, not to execute its JavaScript. Snapshot renders a
// plain placeholder frame rather than an actual screenshot; a deployment
// that wires a real browser backend swaps this type out.
type Harvester struct {
	client    *http.Client
	userAgent string

	mu      sync.Mutex
	jar     *cookiejar.Jar
	lastURL string
	lastDoc string
}

// NewHarvester builds a harvester for one HITL session.
func NewHarvester(userAgent string) (*Harvester, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("browserdriver: new cookie jar: %w", err)
	}
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	return &Harvester{
		client:    &http.Client{Jar: jar},
		userAgent: userAgent,
		jar:       jar,
	}, nil
}

func (h *Harvester) Navigate(ctx context.Context, rawURL string, opts model.FetchOptions) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", h.userAgent)
	for k, v := range opts.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return err
	}

	h.mu.Lock()
	h.lastURL = rawURL
	h.lastDoc = buf.String()
	h.mu.Unlock()
	return nil
}

// Snapshot renders a minimal solid-color placeholder JPEG: this harvester
// has no pixels to show, only the page it last fetched. The streaming
// transport still needs *a* frame to push on cadence, so this keeps the
// protocol exercised without claiming a screenshot that doesn't exist.
func (h *Harvester) Snapshot(ctx context.Context) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 180))
	fill := color.RGBA{R: 24, G: 24, B: 28, A: 255}
	for y := 0; y < img.Rect.Dy(); y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Harvester) IsSolved(ctx context.Context) (bool, error) {
	h.mu.Lock()
	doc := h.lastDoc
	h.mu.Unlock()
	if doc == "" {
		return false, nil
	}
	return challenge.Detect(doc, http.StatusOK) == model.ChallengeNone, nil
}

// Inject always fails: see ErrNoVisualBackend. The Coordinator calls
// Inject for every admin message other than `ping`/`solved`/`cancel`;
// those control messages never reach it.
func (h *Harvester) Inject(ctx context.Context, event model.InputEvent) error {
	return ErrNoVisualBackend
}

func (h *Harvester) Harvest(ctx context.Context) ([]model.Cookie, string, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	parsed, err := url.Parse(h.lastURL)
	if err != nil {
		return nil, "", "", fmt.Errorf("browserdriver: parse last url: %w", err)
	}

	var cookies []model.Cookie
	for _, c := range h.jar.Cookies(parsed) {
		cookies = append(cookies, model.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: parsed.Hostname(),
			Path:   "/",
		})
	}
	return cookies, h.userAgent, h.lastDoc, nil
}

func (h *Harvester) Close(ctx context.Context) error {
	return nil
}
