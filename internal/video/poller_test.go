package video

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/internal/store"
)

func startMiniredis(t *testing.T) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	common.RDB = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	common.SetRedisEnabled(true)
	t.Cleanup(func() { common.SetRedisEnabled(false) })
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Init(db))
	return db
}

func TestIsPermanentPollErrorClassifiesStatusAndMessage(t *testing.T) {
	require.True(t, isPermanentPollError(404, ""))
	require.True(t, isPermanentPollError(401, ""))
	require.False(t, isPermanentPollError(429, ""))
	require.False(t, isPermanentPollError(500, ""))
	require.True(t, isPermanentPollError(200, "Invalid API Key supplied"))
	require.True(t, isPermanentPollError(0, "task does not exist"))
	require.False(t, isPermanentPollError(503, "temporarily unavailable"))
}

func TestBackoffCapsAtFiveMinutesAndIncrementsRetryCount(t *testing.T) {
	task := &store.VideoTask{RetryCount: 10}
	before := time.Now()
	// base=10s, retry_count capped at 5 -> 10 * 2^5 = 320s, capped to 300s
	backoff(task, 10*time.Second)
	require.Equal(t, 11, task.RetryCount)
	require.WithinDuration(t, before.Add(300*time.Second), task.NextPollAt, 2*time.Second)
}

func TestBackoffGrowsExponentially(t *testing.T) {
	task := &store.VideoTask{RetryCount: 2}
	before := time.Now()
	backoff(task, 5*time.Second)
	// base=5s, retry_count=2 -> 5 * 2^2 = 20s
	require.WithinDuration(t, before.Add(20*time.Second), task.NextPollAt, 2*time.Second)
}

func TestCheckPollTimeoutFailsOnceMaxReached(t *testing.T) {
	task := &store.VideoTask{PollCount: 10, MaxPollCount: 10, Status: store.VideoTaskProcessing}
	checkPollTimeout(task)
	require.Equal(t, store.VideoTaskFailed, task.Status)
}

func TestApplyPollResultPermanentErrorMarksFailedWithoutBackoff(t *testing.T) {
	task := &store.VideoTask{Status: store.VideoTaskProcessing, MaxPollCount: 360}
	applyPollResult(task, nil, &PollHTTPError{Status: 404, Message: "task not found"}, 5*time.Second)
	require.Equal(t, store.VideoTaskFailed, task.Status)
	require.NotNil(t, task.CompletedAt)
	require.Equal(t, 1, task.PollCount)
}

func TestApplyPollResultTransientErrorBacksOff(t *testing.T) {
	task := &store.VideoTask{Status: store.VideoTaskProcessing, MaxPollCount: 360}
	applyPollResult(task, nil, &PollHTTPError{Status: 503, Message: "server error"}, 5*time.Second)
	require.Equal(t, store.VideoTaskProcessing, task.Status)
	require.Equal(t, 1, task.RetryCount)
	require.True(t, task.NextPollAt.After(time.Now()))
}

func TestApplyPollResultDoneSetsCompletedFields(t *testing.T) {
	task := &store.VideoTask{Status: store.VideoTaskProcessing, MaxPollCount: 360}
	applyPollResult(task, &PollOutcome{
		Done:      true,
		VideoURL:  "https://upstream/video.mp4",
		VideoURLs: []string{"https://upstream/video.mp4"},
	}, nil, 5*time.Second)

	require.Equal(t, store.VideoTaskCompleted, task.Status)
	require.Equal(t, 100, task.ProgressPercent)
	require.Equal(t, "https://upstream/video.mp4", task.VideoURL)
	require.Len(t, task.VideoURLs, 1)
	require.NotNil(t, task.CompletedAt)
}

func TestTickPollsDueTaskAndAppliesBackoff(t *testing.T) {
	startMiniredis(t)
	db := setupTestDB(t)

	task := store.VideoTask{
		ShortID:        "short-1",
		ExternalTaskID: "operations/abc",
		Status:         store.VideoTaskSubmitted,
		NextPollAt:     time.Now().Add(-time.Second),
		MaxPollCount:   360,
	}
	require.NoError(t, db.Create(&task).Error)

	prepareCalls := 0
	fetchCalls := 0
	poller := &Poller{
		DB: db,
		Prepare: func(ctx context.Context, task *store.VideoTask) (*VideoPollContext, error) {
			prepareCalls++
			return &VideoPollContext{StatusURL: "https://upstream/status"}, nil
		},
		Fetch: func(ctx context.Context, pc *VideoPollContext) (*PollOutcome, error) {
			fetchCalls++
			return nil, &PollHTTPError{Status: 500, Message: "server error"}
		},
		BatchSize:    10,
		BaseInterval: 5 * time.Second,
	}

	require.NoError(t, poller.Tick(context.Background()))
	require.Equal(t, 1, prepareCalls)
	require.Equal(t, 1, fetchCalls)

	var reloaded store.VideoTask
	require.NoError(t, db.First(&reloaded, task.ID).Error)
	require.Equal(t, 1, reloaded.PollCount)
	require.Equal(t, 1, reloaded.RetryCount)
	require.Equal(t, store.VideoTaskSubmitted, reloaded.Status)
}

func TestTickSettlesOnCompletion(t *testing.T) {
	startMiniredis(t)
	db := setupTestDB(t)

	task := store.VideoTask{
		ShortID:        "short-2",
		ExternalTaskID: "operations/def",
		Status:         store.VideoTaskProcessing,
		NextPollAt:     time.Now().Add(-time.Second),
		MaxPollCount:   360,
	}
	require.NoError(t, db.Create(&task).Error)

	settled := false
	poller := &Poller{
		DB: db,
		Prepare: func(ctx context.Context, task *store.VideoTask) (*VideoPollContext, error) {
			return &VideoPollContext{StatusURL: "https://upstream/status"}, nil
		},
		Fetch: func(ctx context.Context, pc *VideoPollContext) (*PollOutcome, error) {
			return &PollOutcome{Done: true, VideoURL: "https://upstream/video.mp4"}, nil
		},
		Settle: func(ctx context.Context, tx *gorm.DB, settledTask *store.VideoTask) error {
			settled = true
			require.Equal(t, store.VideoTaskCompleted, settledTask.Status)
			return nil
		},
		BatchSize: 10,
	}

	require.NoError(t, poller.Tick(context.Background()))
	require.True(t, settled)

	var reloaded store.VideoTask
	require.NoError(t, db.First(&reloaded, task.ID).Error)
	require.Equal(t, store.VideoTaskCompleted, reloaded.Status)
}
