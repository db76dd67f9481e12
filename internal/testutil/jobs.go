// Package testutil holds fixtures and request helpers shared by the job
// service tests.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AdminUsername is the user the admin fixtures act as.
const AdminUsername = "adam"

// ExpectedJobKeys are the fields every serialized job exposes.
var ExpectedJobKeys = []string{
	"username", "status", "message", "progress", "createdAt", "updatedAt",
	"links", "request", "numInputGranules", "jobID",
}

// JobsEqual reports whether a serialized job matches rec on its identity,
// owner, status, progress, request and data links. The message only needs to
// be present on both sides since serialization may substitute a default.
func JobsEqual(rec models.JobRecord, sj models.SerializedJob) bool {
	recordLinks := models.NewJob(nil, rec).RelatedLinks("data")
	serializedLinks := sj.RelatedLinks("data")

	return rec.RequestID.String() == sj.JobID &&
		rec.Username == sj.Username &&
		rec.Message != "" && sj.Message != "" &&
		rec.Progress == sj.Progress &&
		rec.Status == sj.Status &&
		rec.Request == sj.Request &&
		linksEqual(recordLinks, serializedLinks)
}

// ContainsJob reports whether listing holds a job equal to rec.
func ContainsJob(rec models.JobRecord, listing models.JobListing) bool {
	return slices.ContainsFunc(listing.Jobs, func(sj models.SerializedJob) bool {
		return JobsEqual(rec, sj)
	})
}

func linksEqual(a, b []models.JobLink) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// NewJobFixture returns an unsaved job with the usual fixture values, after
// applying overrides to its record.
func NewJobFixture(settings *models.JobSettings, overrides ...func(*models.JobRecord)) *models.Job {
	rec := models.JobRecord{
		Username:         "anonymous",
		RequestID:        uuid.New(),
		Request:          "http://example.com/",
		NumInputGranules: 1,
	}
	for _, o := range overrides {
		o(&rec)
	}
	return models.NewJob(settings, rec)
}

// CreateJob saves a job fixture using q.
func CreateJob(t *testing.T, ctx context.Context, q store.Querier, repo *store.JobRepository, overrides ...func(*models.JobRecord)) *models.Job {
	t.Helper()
	job := NewJobFixture(repo.Settings(), overrides...)
	require.NoError(t, repo.Save(ctx, q, job))
	return job
}

// CreateIndexedJobs saves count running jobs owned by username. Each job's
// progress is the index at which it appears in the default newest-first
// listing, and creation times are strictly sequential. The jobs are returned
// newest first.
func CreateIndexedJobs(t *testing.T, ctx context.Context, q store.Querier, repo *store.JobRepository, username string, count int) []*models.Job {
	t.Helper()
	jobs := make([]*models.Job, 0, count)
	created := time.Now().UTC().Truncate(time.Millisecond).Add(-time.Duration(count+100) * time.Millisecond)
	for progress := count - 1; progress >= 0; progress-- {
		job := models.NewJob(repo.Settings(), models.JobRecord{
			Username:         username,
			RequestID:        uuid.New(),
			Status:           models.JobStatusRunning,
			Message:          "In progress",
			Progress:         progress,
			Request:          fmt.Sprintf("http://example.com/%d", progress),
			IsAsync:          true,
			NumInputGranules: count,
		})
		require.NoError(t, repo.Save(ctx, q, job))
		// created_at can only be pinned on update
		job.CreatedAt = created
		created = created.Add(time.Millisecond)
		require.NoError(t, repo.Save(ctx, q, job))
		jobs = append(jobs, job)
	}
	slices.Reverse(jobs)
	return jobs
}

// RequestOption adjusts a request before it is served.
type RequestOption func(*http.Request)

// WithAPIKey authenticates the request with a bearer key.
func WithAPIKey(key string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+key)
	}
}

func serve(h http.Handler, method, path string, query url.Values, opts []RequestOption) *httptest.ResponseRecorder {
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req := httptest.NewRequest(method, target, nil)
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// JobListing requests the caller's job listing.
func JobListing(h http.Handler, query url.Values, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, "/jobs", query, opts)
}

// AdminJobListing requests the listing of every user's jobs.
func AdminJobListing(h http.Handler, query url.Values, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, "/admin/jobs", query, opts)
}

// JobStatus requests the status of one of the caller's jobs.
func JobStatus(h http.Handler, jobID string, query url.Values, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, "/jobs/"+jobID, query, opts)
}

// AdminJobStatus requests the status of any user's job.
func AdminJobStatus(h http.Handler, jobID string, query url.Values, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, "/admin/jobs/"+jobID, query, opts)
}

// CancelJob cancels one of the caller's jobs.
func CancelJob(h http.Handler, jobID string, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodPost, "/jobs/"+jobID+"/cancel", nil, opts)
}

// AdminCancelJob cancels any user's job.
func AdminCancelJob(h http.Handler, jobID string, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodPost, "/admin/jobs/"+jobID+"/cancel", nil, opts)
}

// CancelJobWithGET cancels one of the caller's jobs using GET.
func CancelJobWithGET(h http.Handler, jobID string, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, "/jobs/"+jobID+"/cancel", nil, opts)
}

// AdminCancelJobWithGET cancels any user's job using GET.
func AdminCancelJobWithGET(h http.Handler, jobID string, opts ...RequestOption) *httptest.ResponseRecorder {
	return serve(h, http.MethodGet, "/admin/jobs/"+jobID+"/cancel", nil, opts)
}

// PagingRelations maps a link relation to the page it should point at. A zero
// page asserts that the relation is absent.
type PagingRelations map[string]int

// AssertPagingRelations checks the paging links of a listing body against
// relations.
func AssertPagingRelations(t *testing.T, body []byte, pageCount int, relations PagingRelations, limit int) {
	t.Helper()
	var listing models.JobListing
	require.NoError(t, json.Unmarshal(body, &listing))

	for rel, page := range relations {
		idx := slices.IndexFunc(listing.Links, func(l models.JobLink) bool { return l.Rel == rel })
		if page == 0 {
			assert.Equal(t, -1, idx, "unexpected %q link relation", rel)
			continue
		}
		if !assert.NotEqual(t, -1, idx, "missing %q link relation", rel) {
			continue
		}
		link := listing.Links[idx]
		assert.Contains(t, link.Href, fmt.Sprintf("/jobs?page=%d&limit=%d", page, limit))
		assert.Contains(t, link.Title, fmt.Sprintf("(%d of %d)", page, pageCount))
	}
}

// AssertRequestURL checks that the request field of a job body is a URL
// ending in expectedPath.
func AssertRequestURL(t *testing.T, body []byte, expectedPath string) {
	t.Helper()
	var job models.SerializedJob
	require.NoError(t, json.Unmarshal(body, &job))

	_, err := url.ParseRequestURI(job.Request)
	require.NoError(t, err)
	assert.Regexp(t, "^https?://.*"+regexp.QuoteMeta(expectedPath)+"$", job.Request)
}
