// Package service implements the job use cases behind the HTTP API, the CLI
// and the stalled job reaper.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skorper/harmony/internal/cache"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
)

// ErrNotFound is returned when no job matches the request ID, or it belongs
// to someone else.
var ErrNotFound = store.ErrNotFound

const (
	userCancelMessage  = "Canceled by user."
	adminCancelMessage = "Canceled by admin."
)

// ValidationError lists the problems found on a job before it was saved.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, ", ")
}

// JobStore is the persistence surface JobService needs. It is satisfied by
// *store.JobRepository.
type JobStore interface {
	Save(ctx context.Context, q store.Querier, job *models.Job) error
	ByRequestID(ctx context.Context, q store.Querier, requestID uuid.UUID) (*models.Job, error)
	ByUsernameAndRequestID(ctx context.Context, q store.Querier, username string, requestID uuid.UUID) (*models.Job, error)
	QueryAll(ctx context.Context, q store.Querier, query store.JobQuery, page, perPage int) (*store.JobPage, error)
	ForUser(ctx context.Context, q store.Querier, username string, page, perPage int) (*store.JobPage, error)
	NotUpdatedForMinutes(ctx context.Context, q store.Querier, minutes, page, perPage int) (*store.JobPage, error)
	Settings() *models.JobSettings
}

// JobService coordinates transactions, the job repository and the cache of
// finished jobs.
type JobService struct {
	tx       store.Transactor
	jobs     JobStore
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewJobService creates a JobService. ca may be nil to disable caching.
func NewJobService(tx store.Transactor, jobs JobStore, ca cache.Cache, cacheTTL time.Duration) *JobService {
	return &JobService{tx: tx, jobs: jobs, cache: ca, cacheTTL: cacheTTL}
}

// ListJobs returns a page of the jobs owned by username, newest first.
func (s *JobService) ListJobs(ctx context.Context, username string, page, limit int) (*store.JobPage, error) {
	var result *store.JobPage
	err := s.tx.Transaction(ctx, func(q store.Querier) error {
		var err error
		result, err = s.jobs.ForUser(ctx, q, username, page, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs of %s: %w", username, err)
	}
	return result, nil
}

// ListAllJobs returns a page of every user's jobs, newest first.
func (s *JobService) ListAllJobs(ctx context.Context, page, limit int) (*store.JobPage, error) {
	var result *store.JobPage
	err := s.tx.Transaction(ctx, func(q store.Querier) error {
		var err error
		result, err = s.jobs.QueryAll(ctx, q, store.JobQuery{}, page, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list all jobs: %w", err)
	}
	return result, nil
}

// GetJob returns the job with requestID if it is owned by username.
func (s *JobService) GetJob(ctx context.Context, username string, requestID uuid.UUID) (*models.Job, error) {
	return s.getJob(ctx, &username, requestID)
}

// AdminGetJob returns the job with requestID regardless of its owner.
func (s *JobService) AdminGetJob(ctx context.Context, requestID uuid.UUID) (*models.Job, error) {
	return s.getJob(ctx, nil, requestID)
}

func (s *JobService) getJob(ctx context.Context, username *string, requestID uuid.UUID) (*models.Job, error) {
	if job, ok := s.cachedJob(ctx, requestID); ok {
		if username != nil && job.Username != *username {
			return nil, ErrNotFound
		}
		return job, nil
	}

	var job *models.Job
	err := s.tx.Transaction(ctx, func(q store.Querier) error {
		var err error
		job, err = s.lookup(ctx, q, username, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cacheJob(ctx, job)
	return job, nil
}

// CancelJob cancels a job owned by username.
func (s *JobService) CancelJob(ctx context.Context, username string, requestID uuid.UUID) (*models.Job, error) {
	return s.cancel(ctx, &username, requestID, userCancelMessage)
}

// AdminCancelJob cancels any user's job.
func (s *JobService) AdminCancelJob(ctx context.Context, requestID uuid.UUID) (*models.Job, error) {
	return s.cancel(ctx, nil, requestID, adminCancelMessage)
}

func (s *JobService) cancel(ctx context.Context, username *string, requestID uuid.UUID, message string) (*models.Job, error) {
	var job *models.Job
	err := s.tx.Transaction(ctx, func(q store.Querier) error {
		var err error
		job, err = s.lookup(ctx, q, username, requestID)
		if err != nil {
			return err
		}

		job.Cancel(message)
		if err := job.ValidateStatus(); err != nil {
			return err
		}
		if problems := job.Validate(); problems != nil {
			return &ValidationError{Problems: problems}
		}
		return s.jobs.Save(ctx, q, job)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("job canceled", "request_id", requestID, "username", job.Username)
	s.cacheJob(ctx, job)
	return job, nil
}

// FailStalledJobs fails every running job that has not been updated for the
// given number of minutes, in batches of batchSize per transaction. It
// returns how many jobs were failed.
func (s *JobService) FailStalledJobs(ctx context.Context, minutes, batchSize int) (int, error) {
	message := fmt.Sprintf("Job was not updated for %d minutes and is assumed to have failed", minutes)
	total := 0

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var failed []*models.Job
		err := s.tx.Transaction(ctx, func(q store.Querier) error {
			page, err := s.jobs.NotUpdatedForMinutes(ctx, q, minutes, 1, batchSize)
			if err != nil {
				return err
			}
			for _, job := range page.Jobs {
				job.Fail(message)
				if err := s.jobs.Save(ctx, q, job); err != nil {
					return fmt.Errorf("fail job %s: %w", job.RequestID, err)
				}
				failed = append(failed, job)
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("fail stalled jobs: %w", err)
		}

		for _, job := range failed {
			slog.Warn("stalled job failed", "request_id", job.RequestID, "username", job.Username, "minutes", minutes)
			s.cacheJob(ctx, job)
		}
		total += len(failed)

		if batchSize <= 0 || len(failed) < batchSize {
			return total, nil
		}
	}
}

func (s *JobService) lookup(ctx context.Context, q store.Querier, username *string, requestID uuid.UUID) (*models.Job, error) {
	var (
		job *models.Job
		err error
	)
	if username != nil {
		job, err = s.jobs.ByUsernameAndRequestID(ctx, q, *username, requestID)
	} else {
		job, err = s.jobs.ByRequestID(ctx, q, requestID)
	}
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", requestID, ErrNotFound)
	}
	return job, nil
}

func (s *JobService) cachedJob(ctx context.Context, requestID uuid.UUID) (*models.Job, bool) {
	if s.cache == nil {
		return nil, false
	}
	rec, found, err := s.cache.GetJob(ctx, requestID)
	if err != nil {
		slog.Warn("job cache read failed", "request_id", requestID, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	return models.NewJob(s.jobs.Settings(), rec), true
}

func (s *JobService) cacheJob(ctx context.Context, job *models.Job) {
	if s.cache == nil || !job.IsComplete() {
		return
	}
	if err := s.cache.SetJob(ctx, job.Record(), s.cacheTTL); err != nil {
		slog.Warn("job cache write failed", "request_id", job.RequestID, "error", err)
	}
}
