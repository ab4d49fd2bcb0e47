package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titanscrape/titan/internal/captcha"
	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/jobqueue"
	"github.com/titanscrape/titan/internal/model"
	"github.com/titanscrape/titan/internal/ticketstore"
)

func newTestRouter(t *testing.T) (*mux.Router, jobqueue.Queue, *captcha.Manager) {
	t.Helper()
	queue := jobqueue.NewMemoryQueue(8)
	mgr := captcha.NewManager(captcha.Config{
		Store:       captcha.NewMemoryStore(),
		Tickets:     ticketstore.NewMemoryStore(),
		Bus:         eventbus.NewMemoryBus(),
		TaskTimeout: 10 * time.Minute,
	})
	router := NewRouter(Deps{
		Queue:         queue,
		CaptchaMgr:    mgr,
		Bus:           eventbus.NewMemoryBus(),
		EventsChannel: eventbus.DefaultChannel,
	})
	return router, queue, mgr
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestFetchHandlers_SubmitGetResult(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/fetch", model.FetchRequest{URL: "https://example.com/"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, model.JobQueued, submitted.Status)
	assert.NotEmpty(t, submitted.JobID)

	rec = doJSON(t, router, http.MethodGet, "/fetch/"+submitted.JobID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/fetch/"+submitted.JobID+"/result", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "result must 404 until the job completes")
}

func TestFetchHandlers_SubmitRejectsMissingURL(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/fetch", model.FetchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchHandlers_CancelQueuedJobSucceeds(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/fetch", model.FetchRequest{URL: "https://example.com/"})
	var submitted submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	rec = doJSON(t, router, http.MethodPost, "/fetch/"+submitted.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFetchHandlers_CancelInProgressConflicts(t *testing.T) {
	router, queue, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/fetch", model.FetchRequest{URL: "https://example.com/"})
	var submitted submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))

	_, err := queue.Reserve(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodPost, "/fetch/"+submitted.JobID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFetchHandlers_GetUnknownJob(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/fetch/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCaptchaHandlers_CreateAssignSolve(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/captcha/tasks", createTaskRequest{
		URL: "https://example.com/checkout", ChallengeType: model.ChallengeCloudflare,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var task model.CaptchaTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, model.CaptchaPending, task.Status)

	rec = doJSON(t, router, http.MethodPost, "/captcha/tasks/"+task.UUID+"/assign", assignRequest{OperatorID: "op-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/captcha/tasks/"+task.UUID+"/assign", assignRequest{OperatorID: "op-2"})
	assert.Equal(t, http.StatusConflict, rec.Code, "a second assign must fail")

	rec = doJSON(t, router, http.MethodPost, "/captcha/tasks/"+task.UUID+"/solve", model.SolverResult{
		Type:    model.SolverResultCookie,
		Cookies: []model.Cookie{{Name: "cf_clearance", Value: "abc"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/captcha/sessions/example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.True(t, session.HasSession)
}

func TestCaptchaHandlers_ListAndDetail(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/captcha/tasks", createTaskRequest{URL: "https://a.example/"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var task model.CaptchaTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))

	rec = doJSON(t, router, http.MethodGet, "/captcha/tasks?domain=a.example", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listTasksResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Tasks, 1)

	rec = doJSON(t, router, http.MethodGet, "/captcha/tasks/"+task.UUID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCaptchaHandlers_MarkUnsolvable(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/captcha/tasks", createTaskRequest{URL: "https://example.com/"})
	var task model.CaptchaTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))

	rec = doJSON(t, router, http.MethodPost, "/captcha/tasks/"+task.UUID+"/mark-unsolvable", markUnsolvableRequest{Reason: "expired image"})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.CaptchaTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, model.CaptchaUnsolvable, updated.Status)
}

func TestCaptchaHandlers_SessionWithNoTicket(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/captcha/sessions/never-seen.example", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.False(t, session.HasSession)
}

func TestHealthz(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
