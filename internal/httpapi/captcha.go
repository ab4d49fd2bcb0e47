package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/titanscrape/titan/internal/apperrors"
	"github.com/titanscrape/titan/internal/captcha"
	"github.com/titanscrape/titan/internal/model"
)

// CaptchaHandlers implements the operator-facing CAPTCHA task API
// (spec.md §6).
type CaptchaHandlers struct {
	Manager *captcha.Manager
}

type createTaskRequest struct {
	URL           string              `json:"url"`
	ChallengeType model.ChallengeType `json:"challenge_type"`
	ProxyURL      string              `json:"proxy_url,omitempty"`
	UserAgent     string              `json:"user_agent,omitempty"`
	Priority      int                 `json:"priority,omitempty"`
}

// Create handles POST /captcha/tasks.
func (h *CaptchaHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.URL == "" {
		writeError(w, apperrors.NewValidationError("url is required"))
		return
	}

	task, err := h.Manager.Create(r.Context(), req.URL, req.ProxyURL, req.UserAgent, req.ChallengeType, req.Priority)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

type listTasksResponse struct {
	Tasks []model.CaptchaTask `json:"tasks"`
	Total int                 `json:"total"`
}

// List handles GET /captcha/tasks?status=&domain=&limit=&offset=.
func (h *CaptchaHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := captcha.ListFilter{
		Status: model.CaptchaStatus(q.Get("status")),
		Domain: q.Get("domain"),
		Limit:  atoiDefault(q.Get("limit"), 0),
		Offset: atoiDefault(q.Get("offset"), 0),
	}

	tasks, err := h.Manager.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	total := len(tasks)
	if filter.Limit > 0 {
		all, err := h.Manager.List(r.Context(), captcha.ListFilter{Status: filter.Status, Domain: filter.Domain})
		if err != nil {
			writeError(w, err)
			return
		}
		total = len(all)
	}

	if tasks == nil {
		tasks = []model.CaptchaTask{}
	}
	writeJSON(w, http.StatusOK, listTasksResponse{Tasks: tasks, Total: total})
}

// Detail handles GET /captcha/tasks/{uuid}.
func (h *CaptchaHandlers) Detail(w http.ResponseWriter, r *http.Request) {
	task, err := h.Manager.Get(r.Context(), mux.Vars(r)["uuid"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type assignRequest struct {
	OperatorID string `json:"operator_id"`
}

// Assign handles POST /captcha/tasks/{uuid}/assign.
func (h *CaptchaHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.OperatorID == "" {
		writeError(w, apperrors.NewValidationError("operator_id is required"))
		return
	}

	task, err := h.Manager.Assign(r.Context(), mux.Vars(r)["uuid"], req.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Solve handles POST /captcha/tasks/{uuid}/solve. The body is the
// SolverResult itself: {type, cookies?, token?, expires_at?}.
func (h *CaptchaHandlers) Solve(w http.ResponseWriter, r *http.Request) {
	var result model.SolverResult
	if err := decodeJSON(r, &result); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.Manager.SubmitSolution(r.Context(), mux.Vars(r)["uuid"], result)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type markUnsolvableRequest struct {
	Reason string `json:"reason"`
}

// MarkUnsolvable handles POST /captcha/tasks/{uuid}/mark-unsolvable.
func (h *CaptchaHandlers) MarkUnsolvable(w http.ResponseWriter, r *http.Request) {
	var req markUnsolvableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	task, err := h.Manager.MarkUnsolvable(r.Context(), mux.Vars(r)["uuid"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type sessionResponse struct {
	HasSession bool               `json:"has_session"`
	Session    *model.GoldenTicket `json:"session,omitempty"`
}

// Session handles GET /captcha/sessions/{domain}.
func (h *CaptchaHandlers) Session(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Manager.GetCachedSession(r.Context(), mux.Vars(r)["domain"])
	if err != nil {
		writeError(w, err)
		return
	}
	if ticket == nil {
		writeJSON(w, http.StatusOK, sessionResponse{HasSession: false})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{HasSession: true, Session: ticket})
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
