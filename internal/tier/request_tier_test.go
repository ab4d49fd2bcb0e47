package tier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/titanscrape/titan/internal/model"
)

func TestRequestTier_SuccessOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>hello</html>"))
	}))
	defer srv.Close()

	rt := NewRequestTier(RequestTierConfig{Timeout: 5 * time.Second})
	result := rt.Execute(context.Background(), srv.URL, model.FetchOptions{})
	assert.True(t, result.Success)
	assert.Equal(t, model.TierRequest, result.TierUsed)
}

func TestRequestTier_CloudflareChallengeIsBlockedNotCaptchaRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("Checking your browser before accessing example.com. cloudflare ray id: abc123"))
	}))
	defer srv.Close()

	rt := NewRequestTier(RequestTierConfig{Timeout: 5 * time.Second})
	result := rt.Execute(context.Background(), srv.URL, model.FetchOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, model.ChallengeCloudflare, result.DetectedChallenge)
	assert.Equal(t, model.ErrorBlocked, result.ErrorType,
		"a cloudflare/bot-detection hit must stay error_type=blocked so the orchestrator's tier-2 skip rule governs it")
	assert.True(t, result.ShouldEscalate)
}

func TestRequestTier_BotDetectedChallengeIsBlockedNotCaptchaRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("We have detected unusual traffic from your computer network."))
	}))
	defer srv.Close()

	rt := NewRequestTier(RequestTierConfig{Timeout: 5 * time.Second})
	result := rt.Execute(context.Background(), srv.URL, model.FetchOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, model.ChallengeBotDetected, result.DetectedChallenge)
	assert.Equal(t, model.ErrorBlocked, result.ErrorType)
}

func TestRequestTier_CaptchaWidgetIsCaptchaRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Please verify you are human: <div class=\"g-recaptcha\"></div>"))
	}))
	defer srv.Close()

	rt := NewRequestTier(RequestTierConfig{Timeout: 5 * time.Second})
	result := rt.Execute(context.Background(), srv.URL, model.FetchOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, model.ChallengeCaptcha, result.DetectedChallenge)
	assert.Equal(t, model.ErrorCaptchaRequired, result.ErrorType)
}

func TestRequestTier_BareServerErrorDoesNotEscalate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<html>Service Unavailable</html>"))
	}))
	defer srv.Close()

	rt := NewRequestTier(RequestTierConfig{Timeout: 5 * time.Second})
	result := rt.Execute(context.Background(), srv.URL, model.FetchOptions{})
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrorServer, result.ErrorType)
	assert.False(t, result.ShouldEscalate, "a bare server_error must return without escalating, by policy")
}
