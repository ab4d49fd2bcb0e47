package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/titanscrape/titan/internal/captcha"
	"github.com/titanscrape/titan/internal/eventbus"
	"github.com/titanscrape/titan/internal/hitl"
	"github.com/titanscrape/titan/internal/jobqueue"
)

// Deps bundles the collaborators the router wires into handlers.
type Deps struct {
	Queue         jobqueue.Queue
	CaptchaMgr    *captcha.Manager
	HITL          *hitl.Coordinator
	Bus           eventbus.Bus
	EventsChannel string
}

// NewRouter builds the full HTTP surface named in spec.md §6.
func NewRouter(deps Deps) *mux.Router {
	r := mux.NewRouter()

	fetch := &FetchHandlers{Queue: deps.Queue}
	r.HandleFunc("/fetch", fetch.Submit).Methods(http.MethodPost)
	r.HandleFunc("/fetch/{job_id}", fetch.Get).Methods(http.MethodGet)
	r.HandleFunc("/fetch/{job_id}/result", fetch.GetResult).Methods(http.MethodGet)
	r.HandleFunc("/fetch/{job_id}/cancel", fetch.Cancel).Methods(http.MethodPost)

	captchaH := &CaptchaHandlers{Manager: deps.CaptchaMgr}
	r.HandleFunc("/captcha/tasks", captchaH.Create).Methods(http.MethodPost)
	r.HandleFunc("/captcha/tasks", captchaH.List).Methods(http.MethodGet)
	r.HandleFunc("/captcha/tasks/{uuid}", captchaH.Detail).Methods(http.MethodGet)
	r.HandleFunc("/captcha/tasks/{uuid}/assign", captchaH.Assign).Methods(http.MethodPost)
	r.HandleFunc("/captcha/tasks/{uuid}/solve", captchaH.Solve).Methods(http.MethodPost)
	r.HandleFunc("/captcha/tasks/{uuid}/mark-unsolvable", captchaH.MarkUnsolvable).Methods(http.MethodPost)
	r.HandleFunc("/captcha/sessions/{domain}", captchaH.Session).Methods(http.MethodGet)

	if deps.HITL != nil {
		r.HandleFunc("/hitl/sessions/{session_id}/stream", deps.HITL.StreamHandler)
	}

	events := &EventStreamHandlers{Bus: deps.Bus, Channel: deps.EventsChannel}
	r.HandleFunc("/events", events.Stream)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	return r
}

func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
