package tier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/model"
)

type stubDriver struct {
	content    string
	statusCode int
	navErr     error
	warmErr    error
	warmCalls  int
}

func (d *stubDriver) Navigate(ctx context.Context, url string, opts model.FetchOptions) (string, int, error) {
	if d.navErr != nil {
		return "", 0, d.navErr
	}
	return d.content, d.statusCode, nil
}

func (d *stubDriver) Warm(ctx context.Context, profileKey string) error {
	d.warmCalls++
	return d.warmErr
}

func (d *stubDriver) Release(ctx context.Context) error { return nil }

func TestBrowserTier_SuccessNoChallenge(t *testing.T) {
	driver := &stubDriver{content: "<html>hello</html>", statusCode: 200}
	bt := NewBrowserTier(model.TierFullBrowser, driver, time.Second, false)

	result := bt.Execute(context.Background(), "https://example.com", model.FetchOptions{})
	assert.True(t, result.Success)
	assert.Equal(t, model.TierFullBrowser, result.TierUsed)
	assert.Equal(t, 1, driver.warmCalls)
}

func TestBrowserTier_NonSuccessStatusWithNoChallengeIsFailure(t *testing.T) {
	driver := &stubDriver{content: "<html>server error</html>", statusCode: 500}
	bt := NewBrowserTier(model.TierFullBrowser, driver, time.Second, false)

	result := bt.Execute(context.Background(), "https://example.com", model.FetchOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorServer, result.ErrorType)
	assert.Equal(t, model.ChallengeNone, result.DetectedChallenge)
	assert.False(t, result.ShouldEscalate, "a bare server_error must not escalate by policy")
}

func TestBrowserTier_ChallengeDetectedEscalates(t *testing.T) {
	driver := &stubDriver{content: "checking your browser before accessing", statusCode: 503}
	bt := NewBrowserTier(model.TierFullBrowser, driver, time.Second, false)

	result := bt.Execute(context.Background(), "https://example.com", model.FetchOptions{})
	assert.False(t, result.Success)
	assert.True(t, result.ShouldEscalate)
	assert.Equal(t, model.ChallengeCloudflare, result.DetectedChallenge)
}

func TestBrowserTier_NavigateErrorIsBrowserCrash(t *testing.T) {
	driver := &stubDriver{navErr: errors.New("renderer process crashed")}
	bt := NewBrowserTier(model.TierStealthBrowser, driver, time.Second, true)

	result := bt.Execute(context.Background(), "https://example.com", model.FetchOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorBrowserCrash, result.ErrorType)
	assert.True(t, result.ShouldEscalate)
}

func TestBrowserTier_WarmOnlyOnce(t *testing.T) {
	driver := &stubDriver{content: "ok", statusCode: 200}
	bt := NewBrowserTier(model.TierFullBrowser, driver, time.Second, false)

	_, _ = bt.Execute(context.Background(), "https://example.com", model.FetchOptions{}), error(nil)
	bt.Execute(context.Background(), "https://example.com/page2", model.FetchOptions{})
	assert.Equal(t, 1, driver.warmCalls)
}

func TestShouldEscalate_FailFastNeverEscalates(t *testing.T) {
	assert.False(t, ShouldEscalate(model.TierResult{ErrorType: model.ErrorDNS, ShouldEscalate: true}))
	assert.False(t, ShouldEscalate(model.TierResult{ErrorType: model.ErrorConnectionRefused, ShouldEscalate: true}))
}

func TestShouldEscalate_SuccessNeverEscalates(t *testing.T) {
	assert.False(t, ShouldEscalate(model.TierResult{Success: true, ShouldEscalate: true}))
}

func TestShouldEscalate_DefersToTierHint(t *testing.T) {
	assert.True(t, ShouldEscalate(model.TierResult{ErrorType: model.ErrorBlocked, ShouldEscalate: true}))
	assert.False(t, ShouldEscalate(model.TierResult{ErrorType: model.ErrorBlocked, ShouldEscalate: false}))
}

func TestLadder_GetAndHas(t *testing.T) {
	driver := &stubDriver{content: "ok", statusCode: 200}
	req := NewRequestTier(RequestTierConfig{})
	bt := NewBrowserTier(model.TierFullBrowser, driver, time.Second, false)
	ladder := NewLadder(req, bt)

	require.True(t, ladder.Has(model.TierRequest))
	require.True(t, ladder.Has(model.TierFullBrowser))
	assert.False(t, ladder.Has(model.TierHITL))
	assert.Equal(t, model.TierRequest, ladder.Get(model.TierRequest).Level())
}

func TestLadder_CleanupAllReturnsNilWhenEveryTierCleansUp(t *testing.T) {
	driver := &stubDriver{}
	bt := NewBrowserTier(model.TierFullBrowser, driver, time.Second, false)
	bt.Execute(context.Background(), "https://example.com", model.FetchOptions{})

	ladder := NewLadder(bt)
	err := ladder.CleanupAll(context.Background())
	assert.NoError(t, err)
}
