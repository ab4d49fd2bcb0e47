package browserdriver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/model"
)

func TestHTTPDriver_NavigateCarriesCookiesAcrossSameProfile(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if _, err := r.Cookie("session"); err == nil {
			w.Write([]byte("already have a session"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		w.Write([]byte("set a session"))
	}))
	defer srv.Close()

	d := NewHTTPDriver("", time.Second*5)
	require.NoError(t, d.Warm(context.Background(), "profile:"+srv.URL))

	content, status, err := d.Navigate(context.Background(), srv.URL, model.FetchOptions{ProfileID: "profile:" + srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, content, "set a session")

	content, _, err = d.Navigate(context.Background(), srv.URL, model.FetchOptions{ProfileID: "profile:" + srv.URL})
	require.NoError(t, err)
	assert.Contains(t, content, "already have a session")
	assert.Equal(t, 2, hits)
}

func TestHTTPDriver_DifferentProfilesDoNotShareCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			w.Write([]byte("already have a session"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc123"})
		w.Write([]byte("set a session"))
	}))
	defer srv.Close()

	d := NewHTTPDriver("", time.Second*5)
	require.NoError(t, d.Warm(context.Background(), "profile-a"))
	_, _, err := d.Navigate(context.Background(), srv.URL, model.FetchOptions{ProfileID: "profile-a"})
	require.NoError(t, err)

	require.NoError(t, d.Warm(context.Background(), "profile-b"))
	content, _, err := d.Navigate(context.Background(), srv.URL, model.FetchOptions{ProfileID: "profile-b"})
	require.NoError(t, err)
	assert.Contains(t, content, "set a session")
}

func TestHarvester_NavigateSnapshotAndHarvest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "xyz"})
		w.Write([]byte("<html><body>welcome back</body></html>"))
	}))
	defer srv.Close()

	h, err := NewHarvester("")
	require.NoError(t, err)

	require.NoError(t, h.Navigate(context.Background(), srv.URL, model.FetchOptions{}))

	frame, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, frame)

	solved, err := h.IsSolved(context.Background())
	require.NoError(t, err)
	assert.True(t, solved)

	cookies, ua, html, err := h.Harvest(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, ua)
	assert.Contains(t, html, "welcome back")
	require.Len(t, cookies, 1)
	assert.Equal(t, "cf_clearance", cookies[0].Name)

	assert.ErrorIs(t, h.Inject(context.Background(), model.InputEvent{Type: model.InputMouseClick}), ErrNoVisualBackend)
	require.NoError(t, h.Close(context.Background()))
}

func TestHarvester_IsSolvedFalseBeforeNavigate(t *testing.T) {
	h, err := NewHarvester("")
	require.NoError(t, err)
	solved, err := h.IsSolved(context.Background())
	require.NoError(t, err)
	assert.False(t, solved)
}
