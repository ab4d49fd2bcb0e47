package hitl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/ticketstore"
)

type stubHarvester struct {
	mu       sync.Mutex
	solved   bool
	cookies  []model.Cookie
	html     string
	closeErr error
}

func (h *stubHarvester) Navigate(ctx context.Context, url string, opts model.FetchOptions) error {
	return nil
}

func (h *stubHarvester) Snapshot(ctx context.Context) ([]byte, error) {
	return []byte{0xFF, 0xD8, 0xFF}, nil
}

func (h *stubHarvester) IsSolved(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.solved, nil
}

func (h *stubHarvester) Inject(ctx context.Context, event model.InputEvent) error { return nil }

func (h *stubHarvester) Harvest(ctx context.Context) ([]model.Cookie, string, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cookies, "stub-agent/1.0", h.html, nil
}

func (h *stubHarvester) Close(ctx context.Context) error { return h.closeErr }

func (h *stubHarvester) setSolved(cookies []model.Cookie, html string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.solved = true
	h.cookies = cookies
	h.html = html
}

func newTestCoordinator(harvester *stubHarvester) *Coordinator {
	return NewCoordinator(Config{
		Tickets:             ticketstore.NewMemoryStore(),
		Bus:                 eventbus.NewMemoryBus(),
		EventsChannel:       eventbus.DefaultChannel,
		AdminConnectTimeout: 200 * time.Millisecond,
		SolveTimeout:        500 * time.Millisecond,
		SessionMaxTTL:       time.Hour,
		NewHarvester:        func(ctx context.Context) (Harvester, error) { return harvester, nil },
	})
}

func TestCoordinator_AutoResolveDuringAdminWaitSkipsSolveWait(t *testing.T) {
	harvester := &stubHarvester{}
	harvester.setSolved([]model.Cookie{{Name: "cf_clearance", Value: "abc"}}, "<html>ok</html>")

	c := newTestCoordinator(harvester)
	result := c.Execute(context.Background(), "https://auto.example/", model.FetchOptions{})

	assert.True(t, result.Success)
	assert.Equal(t, "<html>ok</html>", result.Content)
	assert.Equal(t, model.ErrorNone, result.ErrorType)
}

func TestCoordinator_AdminTimeout(t *testing.T) {
	harvester := &stubHarvester{}
	c := newTestCoordinator(harvester)

	result := c.Execute(context.Background(), "https://nobody-connects.example/", model.FetchOptions{})

	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorCaptchaRequired, result.ErrorType)
	assert.Equal(t, "admin_timeout", result.Metadata["hitl_status"])
	assert.False(t, result.ShouldEscalate)
}

func TestCoordinator_AdminConnectsThenSolves(t *testing.T) {
	harvester := &stubHarvester{}
	c := newTestCoordinator(harvester)

	var result model.TierResult
	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		result = c.Execute(context.Background(), "https://manual.example/", model.FetchOptions{})
	}()

	// Wait for the session to register, then simulate the admin attaching.
	var live *liveSession
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, s := range c.live {
			live = s
			return true
		}
		return false
	}, time.Second, 5*time.Millisecond)

	live.markAdminConnected()
	harvester.setSolved([]model.Cookie{{Name: "session", Value: "xyz"}}, "<html>solved</html>")
	live.signalSolved(model.SolverResult{Type: model.SolverResultCookie})

	<-doneCh
	assert.True(t, result.Success)
	assert.Equal(t, "<html>solved</html>", result.Content)
}

func TestCoordinator_CachedTicketShortCircuits(t *testing.T) {
	harvester := &stubHarvester{}
	c := newTestCoordinator(harvester)

	require.NoError(t, c.cfg.Tickets.Set(context.Background(), model.GoldenTicket{
		Domain:      "cached.example",
		SourceURL:   "https://cached.example/",
		HarvestedAt: time.Now(),
		TTLSeconds:  900,
		Cookies:     []model.Cookie{{Name: "cf_clearance", Value: "cached"}},
	}))

	called := false
	c.cfg.NewHarvester = func(ctx context.Context) (Harvester, error) {
		called = true
		return harvester, nil
	}

	result := c.Execute(context.Background(), "https://cached.example/", model.FetchOptions{})
	assert.True(t, result.Success)
	assert.False(t, called, "a cached ticket must not invoke the harvester at all")
}

func TestEncodeFrame_HeaderRoundtrip(t *testing.T) {
	frame := model.StreamFrame{Sequence: 7, Timestamp: time.Now(), JPEG: []byte{1, 2, 3}}
	encoded := EncodeFrame(frame)

	seq, _, jpeg, ok := DecodeFrameHeader(encoded)
	require.True(t, ok)
	assert.Equal(t, uint32(7), seq)
	assert.Equal(t, []byte{1, 2, 3}, jpeg)
}
