package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/skorper/harmony/internal/api/middleware"
	"github.com/skorper/harmony/internal/api/response"
	"github.com/skorper/harmony/internal/service"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
	"github.com/skorper/harmony/pkg/permalink"
)

// JobService defines the job operations the handlers depend on.
type JobService interface {
	ListJobs(ctx context.Context, username string, page, limit int) (*store.JobPage, error)
	ListAllJobs(ctx context.Context, page, limit int) (*store.JobPage, error)
	GetJob(ctx context.Context, username string, requestID uuid.UUID) (*models.Job, error)
	AdminGetJob(ctx context.Context, requestID uuid.UUID) (*models.Job, error)
	CancelJob(ctx context.Context, username string, requestID uuid.UUID) (*models.Job, error)
	AdminCancelJob(ctx context.Context, requestID uuid.UUID) (*models.Job, error)
}

// NewListJobsHandler returns an http.HandlerFunc for GET /jobs.
func NewListJobsHandler(svc JobService, urlRoot string, paging Paging) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, ok := mw.GetUsername(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		listJobs(w, r, urlRoot, "/jobs", paging, func(page, limit int) (*store.JobPage, error) {
			return svc.ListJobs(r.Context(), username, page, limit)
		})
	}
}

// NewAdminListJobsHandler returns an http.HandlerFunc for GET /admin/jobs.
func NewAdminListJobsHandler(svc JobService, urlRoot string, paging Paging) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listJobs(w, r, urlRoot, "/admin/jobs", paging, func(page, limit int) (*store.JobPage, error) {
			return svc.ListAllJobs(r.Context(), page, limit)
		})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /jobs/{jobID}.
func NewJobStatusHandler(svc JobService, urlRoot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, ok := mw.GetUsername(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		jobAction(w, r, urlRoot, func(id uuid.UUID) (*models.Job, error) {
			return svc.GetJob(r.Context(), username, id)
		})
	}
}

// NewAdminJobStatusHandler returns an http.HandlerFunc for GET /admin/jobs/{jobID}.
func NewAdminJobStatusHandler(svc JobService, urlRoot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobAction(w, r, urlRoot, func(id uuid.UUID) (*models.Job, error) {
			return svc.AdminGetJob(r.Context(), id)
		})
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for POST and GET
// /jobs/{jobID}/cancel.
func NewCancelJobHandler(svc JobService, urlRoot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		username, ok := mw.GetUsername(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}
		jobAction(w, r, urlRoot, func(id uuid.UUID) (*models.Job, error) {
			return svc.CancelJob(r.Context(), username, id)
		})
	}
}

// NewAdminCancelJobHandler returns an http.HandlerFunc for POST and GET
// /admin/jobs/{jobID}/cancel.
func NewAdminCancelJobHandler(svc JobService, urlRoot string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobAction(w, r, urlRoot, func(id uuid.UUID) (*models.Job, error) {
			return svc.AdminCancelJob(r.Context(), id)
		})
	}
}

func listJobs(w http.ResponseWriter, r *http.Request, urlRoot, path string, paging Paging,
	list func(page, limit int) (*store.JobPage, error)) {
	params, err := paging.parse(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
		return
	}
	linkType, ok := parseLinkType(w, r)
	if !ok {
		return
	}

	page, err := list(params.page, params.limit)
	if err != nil {
		slog.Error("listing jobs", "path", path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}

	listing := models.JobListing{
		Count: page.Pagination.Total,
		Jobs:  make([]models.SerializedJob, 0, len(page.Jobs)),
		Links: pagingLinks(urlRoot, path, page.Pagination),
	}
	for _, job := range page.Jobs {
		sj, err := job.Serialize(urlRoot, linkType)
		if err != nil {
			slog.Error("serializing job", "request_id", job.RequestID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		listing.Jobs = append(listing.Jobs, *sj)
	}

	response.Document(w, http.StatusOK, listing)
}

// jobAction resolves the jobID path parameter, runs fn and writes the
// resulting job or the matching error.
func jobAction(w http.ResponseWriter, r *http.Request, urlRoot string, fn func(id uuid.UUID) (*models.Job, error)) {
	rawID := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(rawID)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			fmt.Sprintf("jobID %s is in invalid format.", rawID), nil)
		return
	}
	linkType, ok := parseLinkType(w, r)
	if !ok {
		return
	}

	job, err := fn(id)
	if err != nil {
		var (
			conflict *models.ConflictError
			invalid  *service.ValidationError
		)
		switch {
		case errors.Is(err, service.ErrNotFound):
			response.Error(w, http.StatusNotFound, "NOT_FOUND",
				fmt.Sprintf("Unable to find job %s", id), nil)
		case errors.As(err, &conflict):
			response.Error(w, http.StatusConflict, "CONFLICT", conflict.Error(), nil)
		case errors.As(err, &invalid):
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Job is invalid", invalid.Problems)
		default:
			slog.Error("job request failed", "request_id", id, "path", r.URL.Path, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		}
		return
	}

	sj, err := job.Serialize(urlRoot, linkType)
	if err != nil {
		slog.Error("serializing job", "request_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
		return
	}
	response.Document(w, http.StatusOK, sj)
}

func parseLinkType(w http.ResponseWriter, r *http.Request) (string, bool) {
	linkType := strings.ToLower(r.URL.Query().Get("linktype"))
	switch linkType {
	case "", "http", "https", permalink.LinkTypeS3:
		return linkType, true
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
		`Invalid linkType '`+linkType+`' must be http, https, or s3`, nil)
	return "", false
}
