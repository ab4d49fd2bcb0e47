package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/titanscrape/titan/internal/apperrors"
	"github.com/titanscrape/titan/internal/jobqueue"
	"github.com/titanscrape/titan/internal/model"
)

// FetchHandlers implements the fetch submission surface of spec.md §6:
// submit/get/get_result/cancel, backed by the Job Queue.
type FetchHandlers struct {
	Queue jobqueue.Queue
}

type submitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// Submit handles POST /fetch: enqueues a FetchRequest and returns its job_id.
func (h *FetchHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.FetchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, apperrors.NewValidationError(err.Error()))
		return
	}

	jobID, err := h.Queue.Enqueue(r.Context(), req)
	if err != nil {
		writeError(w, apperrors.NewInternalError("enqueue fetch job", err))
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, Status: model.JobQueued})
}

type jobStatusResponse struct {
	JobID      string           `json:"job_id"`
	Status     model.JobStatus  `json:"status"`
	Result     *model.TierResult `json:"result,omitempty"`
	EnqueueTime string          `json:"enqueue_time"`
	StartTime  *string          `json:"start_time,omitempty"`
	FinishTime *string          `json:"finish_time,omitempty"`
}

// Get handles GET /fetch/{job_id}: the job's lifecycle status and, once
// complete, its result.
func (h *FetchHandlers) Get(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, err := h.Queue.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, jobQueueError(err, jobID))
		return
	}
	writeJSON(w, http.StatusOK, toJobStatusResponse(job))
}

// GetResult handles GET /fetch/{job_id}/result: 404 unless the job is
// complete (spec.md §6).
func (h *FetchHandlers) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	job, err := h.Queue.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, jobQueueError(err, jobID))
		return
	}
	if job.Status != model.JobComplete || job.Result == nil {
		writeError(w, apperrors.NewNotFoundError("fetch_result", jobID))
		return
	}
	writeJSON(w, http.StatusOK, job.Result)
}

// Cancel handles POST /fetch/{job_id}/cancel. Succeeds only while queued;
// in_progress is a conflict, a terminal job is already-done (spec.md §4.6).
func (h *FetchHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["job_id"]
	err := h.Queue.Cancel(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case err == jobqueue.ErrNotFound:
		writeError(w, apperrors.NewNotFoundError("fetch_job", jobID))
	case err == jobqueue.ErrNotQueued:
		writeError(w, apperrors.NewConflictError("job is already in progress"))
	case err == jobqueue.ErrAlreadyDone:
		writeError(w, apperrors.NewConflictError("job has already finished"))
	default:
		writeError(w, apperrors.NewInternalError("cancel fetch job", err))
	}
}

func jobQueueError(err error, jobID string) error {
	if err == jobqueue.ErrNotFound {
		return apperrors.NewNotFoundError("fetch_job", jobID)
	}
	return apperrors.NewInternalError("load fetch job", err)
}

func toJobStatusResponse(job *model.Job) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Result:      job.Result,
		EnqueueTime: job.EnqueuedAt.Format(timeFormat),
	}
	if job.StartedAt != nil {
		s := job.StartedAt.Format(timeFormat)
		resp.StartTime = &s
	}
	if job.FinishedAt != nil {
		f := job.FinishedAt.Format(timeFormat)
		resp.FinishTime = &f
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"
