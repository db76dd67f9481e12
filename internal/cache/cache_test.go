package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/skorper/harmony/internal/cache"
	"github.com/skorper/harmony/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	return rc
}

func finishedJob() models.JobRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return models.JobRecord{
		ID:        7,
		Username:  "joe",
		RequestID: uuid.New(),
		Status:    models.JobStatusSuccessful,
		Message:   "The job has completed successfully",
		Progress:  100,
		Links: []models.JobLink{
			{Href: "s3://bucket/out.nc", Rel: "data", Type: "application/x-netcdf4"},
		},
		Request:          "http://example.com/r",
		NumInputGranules: 3,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Jobs ---

func TestSetGetJob_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	want := finishedJob()

	require.NoError(t, rc.SetJob(ctx, want, 10*time.Second))

	got, found, err := rc.GetJob(ctx, want.RequestID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want.RequestID, got.RequestID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Links, got.Links)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestGetJob_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	_, found, err := rc.GetJob(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSetJob_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	rec := finishedJob()

	require.NoError(t, rc.SetJob(ctx, rec, 1*time.Second))

	_, found, err := rc.GetJob(ctx, rec.RequestID)
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.GetJob(ctx, rec.RequestID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	rec := finishedJob()

	require.NoError(t, rc.SetJob(ctx, rec, 10*time.Second))
	require.NoError(t, rc.DeleteJob(ctx, rec.RequestID))

	_, found, err := rc.GetJob(ctx, rec.RequestID)
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting a missing key is fine.
	assert.NoError(t, rc.DeleteJob(ctx, uuid.New()))
}

// --- IncrWithExpiry ---

func TestIncrWithExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("user-" + uuid.NewString()[:8])

	for want := int64(1); want <= 3; want++ {
		val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, val)
	}
}

func TestIncrWithExpiry_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	key := cache.RateLimitKey("expiry-" + uuid.NewString()[:8])

	_, err := rc.IncrWithExpiry(ctx, key, 1*time.Second)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	// After expiry, should start from 1 again
	val, err := rc.IncrWithExpiry(ctx, key, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), val)
}

// --- Cache Key Builders ---

func TestJobKey(t *testing.T) {
	requestID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	assert.Equal(t, "harmony:job:22222222-2222-2222-2222-222222222222", cache.JobKey(requestID))
}

func TestRateLimitKey(t *testing.T) {
	assert.Equal(t, "harmony:ratelimit:joe", cache.RateLimitKey("joe"))
}
