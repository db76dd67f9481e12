package models

import (
	"regexp"
	"slices"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusAccepted   JobStatus = "accepted"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccessful JobStatus = "successful"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// MaxTextLength bounds the message and request columns.
const MaxTextLength = 4096

// StagingLinkRel marks the direct object storage link of a job's results.
const StagingLinkRel = "s3-access"

var terminalStatuses = []JobStatus{JobStatusSuccessful, JobStatusFailed, JobStatusCanceled}

var requestURLPattern = regexp.MustCompile(`^https?://.+$`)

// IsTerminal reports whether no further transition is permitted out of s.
func (s JobStatus) IsTerminal() bool {
	return slices.Contains(terminalStatuses, s)
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusAccepted, JobStatusRunning, JobStatusSuccessful, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// JobRecord carries the column values used to build a Job, either for a new
// request or when hydrating an existing row. A non-zero CreatedAt marks the
// record as already persisted.
type JobRecord struct {
	ID               int64
	Username         string
	RequestID        uuid.UUID
	Status           JobStatus
	Message          string
	Progress         int
	BatchesCompleted int
	Links            []JobLink
	Request          string
	IsAsync          bool
	NumInputGranules int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Job tracks one asynchronous processing request. Transition and link methods
// only mutate memory; nothing is written until the job is saved through a
// store.
type Job struct {
	ID               int64
	Username         string
	RequestID        uuid.UUID
	Status           JobStatus
	Message          string
	Progress         int
	BatchesCompleted int
	Links            []JobLink
	Request          string
	IsAsync          bool
	NumInputGranules int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// originalStatus is the status the job had when it was loaded. Empty for
	// jobs that have never been read back from the database.
	originalStatus JobStatus
	settings       *JobSettings
}

// NewJob builds a Job from rec using the given settings. A nil settings value
// falls back to NewJobSettings with an empty region.
func NewJob(settings *JobSettings, rec JobRecord) *Job {
	if settings == nil {
		settings = NewJobSettings("")
	}
	j := &Job{
		ID:               rec.ID,
		Username:         rec.Username,
		RequestID:        rec.RequestID,
		Message:          rec.Message,
		BatchesCompleted: rec.BatchesCompleted,
		Links:            rec.Links,
		Request:          rec.Request,
		IsAsync:          rec.IsAsync,
		NumInputGranules: rec.NumInputGranules,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		settings:         settings,
	}
	status := rec.Status
	if status == "" {
		status = JobStatusAccepted
	}
	j.UpdateStatus(status, rec.Message)
	// Stored progress wins over the value UpdateStatus derives.
	j.Progress = rec.Progress
	if j.Links == nil {
		j.Links = []JobLink{}
	}
	if !rec.CreatedAt.IsZero() {
		j.originalStatus = j.Status
	}
	return j
}

// Record returns the persisted column values of the job.
func (j *Job) Record() JobRecord {
	return JobRecord{
		ID:               j.ID,
		Username:         j.Username,
		RequestID:        j.RequestID,
		Status:           j.Status,
		Message:          j.Message,
		Progress:         j.Progress,
		BatchesCompleted: j.BatchesCompleted,
		Links:            slices.Clone(j.Links),
		Request:          j.Request,
		IsAsync:          j.IsAsync,
		NumInputGranules: j.NumInputGranules,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

// Settings returns the settings the job was built with.
func (j *Job) Settings() *JobSettings {
	return j.settings
}

// OriginalStatus returns the status captured when the job was loaded.
func (j *Job) OriginalStatus() JobStatus {
	return j.originalStatus
}

// UpdateStatus sets the status and applies the message precedence rules: a
// non-empty message always replaces the current one, and a message that is
// empty or one of the stock defaults is swapped for the new status's default.
// Succeeding forces progress to 100. No transition check happens here.
func (j *Job) UpdateStatus(status JobStatus, message string) {
	j.Status = status
	if message != "" {
		j.Message = message
	}
	if j.Message == "" || j.settings.isDefaultMessage(j.Message) {
		j.Message = j.settings.DefaultMessages[status]
	}
	if j.Status == JobStatusSuccessful {
		j.Progress = 100
	}
}

// Fail marks the job failed. An empty message means an unknown error; callers
// should pass the real cause whenever they have one.
func (j *Job) Fail(message string) {
	if message == "" {
		message = j.settings.DefaultMessages[JobStatusFailed]
	}
	j.UpdateStatus(JobStatusFailed, message)
}

// Cancel marks the job canceled.
func (j *Job) Cancel(message string) {
	if message == "" {
		message = j.settings.DefaultMessages[JobStatusCanceled]
	}
	j.UpdateStatus(JobStatusCanceled, message)
}

// Succeed marks the job successful. Only pass a message when there is
// something to tell the user about the result, since it overrides any prior
// message including warnings.
func (j *Job) Succeed(message string) {
	j.UpdateStatus(JobStatusSuccessful, message)
}

// IsComplete reports whether the job expects no further work from backend
// services.
func (j *Job) IsComplete() bool {
	return j.Status.IsTerminal()
}

// ValidateStatus returns a ConflictError when the job was loaded in a
// terminal state. The check does not look at the current status, so saving a
// terminal job unchanged is a conflict too.
func (j *Job) ValidateStatus() error {
	if j.originalStatus.IsTerminal() {
		return &ConflictError{From: j.originalStatus, To: j.Status}
	}
	return nil
}

// Validate returns nil if the job is valid, otherwise every problem found.
// Other constraints are left to the database.
func (j *Job) Validate() []string {
	var errs []string
	if j.Progress < 0 || j.Progress > 100 {
		errs = append(errs, "Job progress must be between 0 and 100")
	}
	if j.BatchesCompleted < 0 {
		errs = append(errs, "Job batchesCompleted must be greater than or equal to 0")
	}
	if !requestURLPattern.MatchString(j.Request) {
		errs = append(errs, "Invalid request "+j.Request+". Job request must be a URL.")
	}
	return errs
}

// PrepareForSave checks transition legality and truncates the long text
// columns. Stores call it before writing the row.
func (j *Job) PrepareForSave() error {
	if err := j.ValidateStatus(); err != nil {
		return err
	}
	j.Message = TruncateString(j.Message, MaxTextLength)
	j.Request = TruncateString(j.Request, MaxTextLength)
	return nil
}

// AddLink appends a result link. Order is kept and duplicates are allowed.
func (j *Job) AddLink(link JobLink) {
	j.Links = append(j.Links, link)
}

// AddStagingBucketLink appends a link to the results staging location. An
// empty location is ignored.
func (j *Job) AddStagingBucketLink(location string) {
	if location == "" {
		return
	}
	j.Links = append(j.Links, JobLink{
		Href:  location,
		Title: j.settings.StagingBucketTitle,
		Rel:   StagingLinkRel,
	})
}

// RelatedLinks returns the links whose rel matches, in insertion order.
func (j *Job) RelatedLinks(rel string) []JobLink {
	return filterLinks(j.Links, rel)
}
