package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/skorper/harmony/pkg/models"
)

// DefaultPerPage is used when a listing asks for a non-positive page size.
const DefaultPerPage = 10

const jobColumns = `id, username, request_id, status, message, progress, batches_completed,
	_json_links, request, is_async, num_input_granules, created_at, updated_at`

// JobQuery holds exact-match constraints for job listings. Nil fields are
// not constrained.
type JobQuery struct {
	ID               *int64
	Username         *string
	RequestID        *uuid.UUID
	Status           *models.JobStatus
	Message          *string
	Progress         *int
	BatchesCompleted *int
	Request          *string
	IsAsync          *bool
}

// Pagination describes one page of a length-aware listing. Pages are
// numbered from 1; From and To are zero-based offsets of the returned rows.
type Pagination struct {
	Total       int `json:"total"`
	PerPage     int `json:"perPage"`
	CurrentPage int `json:"currentPage"`
	LastPage    int `json:"lastPage"`
	From        int `json:"from"`
	To          int `json:"to"`
}

// JobPage is a page of hydrated jobs.
type JobPage struct {
	Jobs       []*models.Job
	Pagination Pagination
}

// JobRepository reads and writes the jobs table. Every method runs on the
// Querier it is given, normally an open transaction.
type JobRepository struct {
	settings *models.JobSettings
}

// NewJobRepository creates a JobRepository that hydrates rows with settings.
func NewJobRepository(settings *models.JobSettings) *JobRepository {
	if settings == nil {
		settings = models.NewJobSettings("")
	}
	return &JobRepository{settings: settings}
}

// Settings returns the settings used to hydrate jobs.
func (r *JobRepository) Settings() *models.JobSettings {
	return r.settings
}

// Save inserts a new job or updates an existing one. It refuses to write a
// job that was loaded in a terminal state, truncates the long text columns
// and stores the links as JSON. Validate is not called here.
func (r *JobRepository) Save(ctx context.Context, q Querier, job *models.Job) error {
	if err := job.PrepareForSave(); err != nil {
		return err
	}

	links, err := json.Marshal(job.Links)
	if err != nil {
		return fmt.Errorf("encode job links: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	job.UpdatedAt = now

	if job.ID == 0 {
		if job.CreatedAt.IsZero() {
			job.CreatedAt = now
		}
		err := q.QueryRow(ctx,
			`INSERT INTO jobs (username, request_id, status, message, progress, batches_completed,
			   _json_links, request, is_async, num_input_granules, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING id`,
			job.Username, job.RequestID, string(job.Status), job.Message, job.Progress, job.BatchesCompleted,
			string(links), job.Request, job.IsAsync, job.NumInputGranules, job.CreatedAt, job.UpdatedAt,
		).Scan(&job.ID)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert job: %w", err)
		}
		return nil
	}

	tag, err := q.Exec(ctx,
		`UPDATE jobs SET username = $2, request_id = $3, status = $4, message = $5, progress = $6,
		   batches_completed = $7, _json_links = $8, request = $9, is_async = $10,
		   num_input_granules = $11, created_at = $12, updated_at = $13
		 WHERE id = $1`,
		job.ID, job.Username, job.RequestID, string(job.Status), job.Message, job.Progress,
		job.BatchesCompleted, string(links), job.Request, job.IsAsync, job.NumInputGranules,
		job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ByID returns the job with the given primary key, locked for update, or
// nil when there is none.
func (r *JobRepository) ByID(ctx context.Context, q Querier, id int64) (*models.Job, error) {
	return r.lockOne(ctx, q, `id = $1`, id)
}

// ByRequestID returns the job for requestID, locked for update, or nil.
func (r *JobRepository) ByRequestID(ctx context.Context, q Querier, requestID uuid.UUID) (*models.Job, error) {
	return r.lockOne(ctx, q, `request_id = $1`, requestID)
}

// ByUsernameAndRequestID returns the job owned by username for requestID,
// locked for update, or nil.
func (r *JobRepository) ByUsernameAndRequestID(ctx context.Context, q Querier, username string, requestID uuid.UUID) (*models.Job, error) {
	return r.lockOne(ctx, q, `username = $1 AND request_id = $2`, username, requestID)
}

func (r *JobRepository) lockOne(ctx context.Context, q Querier, where string, args ...any) (*models.Job, error) {
	job, err := r.scanJob(q.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE `+where+` FOR UPDATE`, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// QueryAll returns the jobs matching every set constraint, newest first.
func (r *JobRepository) QueryAll(ctx context.Context, q Querier, query JobQuery, page, perPage int) (*JobPage, error) {
	conditions, args := query.conditions()
	return r.paginate(ctx, q, conditions, args, page, perPage)
}

// ForUser returns the jobs owned by username, newest first.
func (r *JobRepository) ForUser(ctx context.Context, q Querier, username string, page, perPage int) (*JobPage, error) {
	return r.QueryAll(ctx, q, JobQuery{Username: &username}, page, perPage)
}

// NotUpdatedForMinutes returns running jobs whose last update is older than
// the given number of minutes, newest first.
func (r *JobRepository) NotUpdatedForMinutes(ctx context.Context, q Querier, minutes, page, perPage int) (*JobPage, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
	return r.paginate(ctx, q,
		[]string{"status = $1", "updated_at < $2"},
		[]any{string(models.JobStatusRunning), cutoff},
		page, perPage)
}

func (r *JobRepository) paginate(ctx context.Context, q Querier, conditions []string, args []any, page, perPage int) (*JobPage, error) {
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM jobs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	page, perPage = normalizePage(page, perPage)
	offset := (page - 1) * perPage

	dataQuery := fmt.Sprintf(`SELECT %s FROM jobs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, dataQuery, append(args, perPage, offset)...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		job, err := r.scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	return &JobPage{
		Jobs:       jobs,
		Pagination: newPagination(total, page, perPage, offset, len(jobs)),
	}, nil
}

func (r *JobRepository) scanJob(row pgx.Row) (*models.Job, error) {
	var (
		rec      models.JobRecord
		status   string
		rawLinks string
	)
	if err := row.Scan(&rec.ID, &rec.Username, &rec.RequestID, &status, &rec.Message, &rec.Progress,
		&rec.BatchesCompleted, &rawLinks, &rec.Request, &rec.IsAsync, &rec.NumInputGranules,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = models.JobStatus(status)

	if rawLinks != "" {
		if err := json.Unmarshal([]byte(rawLinks), &rec.Links); err != nil {
			return nil, fmt.Errorf("decode links of job %d: %w", rec.ID, err)
		}
	}
	return models.NewJob(r.settings, rec), nil
}

// conditions renders the set constraints as positional SQL predicates.
func (jq JobQuery) conditions() ([]string, []any) {
	var (
		conditions []string
		args       []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if jq.ID != nil {
		add("id", *jq.ID)
	}
	if jq.Username != nil {
		add("username", *jq.Username)
	}
	if jq.RequestID != nil {
		add("request_id", *jq.RequestID)
	}
	if jq.Status != nil {
		add("status", string(*jq.Status))
	}
	if jq.Message != nil {
		add("message", *jq.Message)
	}
	if jq.Progress != nil {
		add("progress", *jq.Progress)
	}
	if jq.BatchesCompleted != nil {
		add("batches_completed", *jq.BatchesCompleted)
	}
	if jq.Request != nil {
		add("request", *jq.Request)
	}
	if jq.IsAsync != nil {
		add("is_async", *jq.IsAsync)
	}
	return conditions, args
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return page, perPage
}

func newPagination(total, page, perPage, offset, count int) Pagination {
	lastPage := (total + perPage - 1) / perPage
	return Pagination{
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    lastPage,
		From:        offset,
		To:          offset + count,
	}
}
