package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skorper/harmony/internal/service"
	"github.com/skorper/harmony/internal/store"
	"github.com/skorper/harmony/pkg/models"
)

// --- fakes ---

type fakeKeys struct {
	created   []*models.APIKey
	listed    []*models.APIKey
	listUser  string
	revoked   []uuid.UUID
	revokeErr error
}

func (f *fakeKeys) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	f.created = append(f.created, key)
	return nil
}
func (f *fakeKeys) ListAPIKeys(_ context.Context, username string) ([]*models.APIKey, error) {
	f.listUser = username
	return f.listed, nil
}
func (f *fakeKeys) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	f.revoked = append(f.revoked, id)
	return f.revokeErr
}

type fakeJobs struct {
	jobs     []*models.Job
	listUser string
	allCalls int
	reaped   int
	reapArgs [2]int
	err      error
}

func (f *fakeJobs) page(page, limit int) *store.JobPage {
	return &store.JobPage{Jobs: f.jobs, Pagination: store.Pagination{
		Total: len(f.jobs), PerPage: limit, CurrentPage: page, LastPage: 1, To: len(f.jobs),
	}}
}
func (f *fakeJobs) ListJobs(_ context.Context, username string, page, limit int) (*store.JobPage, error) {
	f.listUser = username
	return f.page(page, limit), f.err
}
func (f *fakeJobs) ListAllJobs(_ context.Context, page, limit int) (*store.JobPage, error) {
	f.allCalls++
	return f.page(page, limit), f.err
}
func (f *fakeJobs) AdminGetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	for _, j := range f.jobs {
		if j.RequestID == id {
			return j, nil
		}
	}
	return nil, service.ErrNotFound
}
func (f *fakeJobs) AdminCancelJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := f.AdminGetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Cancel("Canceled by admin.")
	return job, nil
}
func (f *fakeJobs) FailStalledJobs(_ context.Context, minutes, batchSize int) (int, error) {
	f.reapArgs = [2]int{minutes, batchSize}
	return f.reaped, f.err
}

// --- helpers ---

func useBackend(t *testing.T, keys *fakeKeys, jobs *fakeJobs) {
	t.Helper()
	orig := openBackend
	openBackend = func(_ context.Context) (*backend, error) {
		return &backend{keys: keys, jobs: jobs, urlRoot: "http://localhost:3000", close: func() {}}, nil
	}
	t.Cleanup(func() { openBackend = orig })
}

func resetFlags(c *cobra.Command) {
	c.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newJob(username string, status models.JobStatus) *models.Job {
	return models.NewJob(nil, models.JobRecord{
		ID:               1,
		Username:         username,
		RequestID:        uuid.New(),
		Status:           status,
		Message:          "In progress",
		Progress:         40,
		Request:          "http://example.com/harmony",
		NumInputGranules: 3,
		CreatedAt:        time.Now().Add(-time.Hour),
		UpdatedAt:        time.Now(),
	})
}

// ========================================
// keys
// ========================================

func TestKeysCreate(t *testing.T) {
	bcryptCost = bcrypt.MinCost
	t.Cleanup(func() { bcryptCost = bcrypt.DefaultCost })
	keys := &fakeKeys{}
	useBackend(t, keys, &fakeJobs{})

	out, err := execute(t, "keys", "create", "--user", "adam", "--admin")
	require.NoError(t, err)

	require.Len(t, keys.created, 1)
	key := keys.created[0]
	assert.Equal(t, "adam", key.Username)
	assert.Equal(t, []string{models.ScopeAdmin}, key.Scopes)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	raw := lines[1]
	assert.True(t, strings.HasPrefix(raw, rawKeyPrefix))
	assert.Equal(t, raw[:8], key.KeyPrefix)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(raw)))
}

func TestKeysCreate_RegularUserHasNoScopes(t *testing.T) {
	bcryptCost = bcrypt.MinCost
	t.Cleanup(func() { bcryptCost = bcrypt.DefaultCost })
	keys := &fakeKeys{}
	useBackend(t, keys, &fakeJobs{})

	_, err := execute(t, "keys", "create", "--user", "joe")
	require.NoError(t, err)
	require.Len(t, keys.created, 1)
	assert.NotNil(t, keys.created[0].Scopes)
	assert.Empty(t, keys.created[0].Scopes)
}

func TestKeysCreate_RequiresUser(t *testing.T) {
	useBackend(t, &fakeKeys{}, &fakeJobs{})

	_, err := execute(t, "keys", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}

func TestKeysList(t *testing.T) {
	keys := &fakeKeys{listed: []*models.APIKey{{
		ID: uuid.New(), Username: "joe", Name: "laptop", KeyPrefix: "hm_abcde",
		Scopes: []string{}, CreatedAt: time.Now(),
	}}}
	useBackend(t, keys, &fakeJobs{})

	out, err := execute(t, "keys", "list", "--user", "joe")
	require.NoError(t, err)
	assert.Equal(t, "joe", keys.listUser)
	assert.Contains(t, out, "PREFIX")
	assert.Contains(t, out, "hm_abcde")
	assert.Contains(t, out, "laptop")
}

func TestKeysList_JSON(t *testing.T) {
	keys := &fakeKeys{listed: []*models.APIKey{{ID: uuid.New(), Username: "joe", KeyHash: "secret"}}}
	useBackend(t, keys, &fakeJobs{})

	out, err := execute(t, "keys", "list", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")

	var decoded []models.APIKey
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "joe", decoded[0].Username)
}

func TestKeysRevoke(t *testing.T) {
	keys := &fakeKeys{}
	useBackend(t, keys, &fakeJobs{})
	id := uuid.New()

	out, err := execute(t, "keys", "revoke", id.String())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, keys.revoked)
	assert.Contains(t, out, "Revoked key "+id.String())
}

func TestKeysRevoke_NotFound(t *testing.T) {
	useBackend(t, &fakeKeys{revokeErr: store.ErrNotFound}, &fakeJobs{})
	id := uuid.New()

	_, err := execute(t, "keys", "revoke", id.String())
	require.Error(t, err)
	assert.Equal(t, "api key "+id.String()+" not found", err.Error())
}

func TestKeysRevoke_InvalidID(t *testing.T) {
	keys := &fakeKeys{}
	useBackend(t, keys, &fakeJobs{})

	_, err := execute(t, "keys", "revoke", "nope")
	require.Error(t, err)
	assert.Empty(t, keys.revoked)
}

// ========================================
// jobs
// ========================================

func TestJobsList_AllUsers(t *testing.T) {
	job := newJob("joe", models.JobStatusRunning)
	jobs := &fakeJobs{jobs: []*models.Job{job}}
	useBackend(t, &fakeKeys{}, jobs)

	out, err := execute(t, "jobs", "list")
	require.NoError(t, err)
	assert.Equal(t, 1, jobs.allCalls)
	assert.Contains(t, out, job.RequestID.String())
	assert.Contains(t, out, "40%")
	assert.Contains(t, out, "page 1 of 1 (1 jobs)")
}

func TestJobsList_OneUserJSON(t *testing.T) {
	job := newJob("joe", models.JobStatusRunning)
	jobs := &fakeJobs{jobs: []*models.Job{job}}
	useBackend(t, &fakeKeys{}, jobs)

	out, err := execute(t, "jobs", "list", "--user", "joe", "--json", "--page", "2", "--limit", "5")
	require.NoError(t, err)
	assert.Equal(t, "joe", jobs.listUser)
	assert.Zero(t, jobs.allCalls)

	var decoded struct {
		Jobs       []models.SerializedJob `json:"jobs"`
		Pagination store.Pagination       `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded.Jobs, 1)
	assert.Equal(t, job.RequestID.String(), decoded.Jobs[0].JobID)
	assert.Equal(t, 2, decoded.Pagination.CurrentPage)
	assert.Equal(t, 5, decoded.Pagination.PerPage)
}

func TestJobsList_Error(t *testing.T) {
	useBackend(t, &fakeKeys{}, &fakeJobs{err: errors.New("db down")})

	_, err := execute(t, "jobs", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestJobsStatus(t *testing.T) {
	job := newJob("joe", models.JobStatusRunning)
	useBackend(t, &fakeKeys{}, &fakeJobs{jobs: []*models.Job{job}})

	out, err := execute(t, "jobs", "status", job.RequestID.String(), "--json")
	require.NoError(t, err)

	var sj models.SerializedJob
	require.NoError(t, json.Unmarshal([]byte(out), &sj))
	assert.Equal(t, "joe", sj.Username)
	assert.Equal(t, models.JobStatusRunning, sj.Status)
	assert.Equal(t, 3, sj.NumInputGranules)
}

func TestJobsStatus_Table(t *testing.T) {
	job := newJob("joe", models.JobStatusRunning)
	job.AddLink(models.JobLink{Href: "s3://staging/out.tif", Rel: "data"})
	useBackend(t, &fakeKeys{}, &fakeJobs{jobs: []*models.Job{job}})

	out, err := execute(t, "jobs", "status", job.RequestID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "Status:")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "http://localhost:3000/service-results/staging/out.tif")
}

func TestJobsStatus_NotFound(t *testing.T) {
	useBackend(t, &fakeKeys{}, &fakeJobs{})
	id := uuid.New()

	_, err := execute(t, "jobs", "status", id.String())
	require.Error(t, err)
	assert.Equal(t, "unable to find job "+id.String(), err.Error())
}

func TestJobsCancel(t *testing.T) {
	job := newJob("joe", models.JobStatusRunning)
	useBackend(t, &fakeKeys{}, &fakeJobs{jobs: []*models.Job{job}})

	out, err := execute(t, "jobs", "cancel", job.RequestID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "owned by joe")
	assert.Equal(t, models.JobStatusCanceled, job.Status)
}

func TestJobsReap(t *testing.T) {
	jobs := &fakeJobs{reaped: 7}
	useBackend(t, &fakeKeys{}, jobs)

	out, err := execute(t, "jobs", "reap", "--minutes", "30", "--batch-size", "5")
	require.NoError(t, err)
	assert.Equal(t, [2]int{30, 5}, jobs.reapArgs)
	assert.Equal(t, "Failed 7 stalled jobs\n", out)
}

func TestJobsReap_RejectsNonPositiveMinutes(t *testing.T) {
	useBackend(t, &fakeKeys{}, &fakeJobs{})

	_, err := execute(t, "jobs", "reap", "--minutes", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--minutes")
}

func TestBackendErrorPropagates(t *testing.T) {
	orig := openBackend
	openBackend = func(_ context.Context) (*backend, error) { return nil, errors.New("load config: DATABASE_URL is required") }
	t.Cleanup(func() { openBackend = orig })

	_, err := execute(t, "jobs", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
