package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/extractor"
)

func waitForStatus(t *testing.T, jq *JobQueue, id string, want JobStatus) *Job {
	t.Helper()
	var job *Job
	require.Eventually(t, func() bool {
		job = jq.GetJob(id)
		return job != nil && job.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobQueueRecordsFailureCode(t *testing.T) {
	jq := NewJobQueue(1, func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
		return nil, &extractor.DouyinError{Code: extractor.CodeResolutionFailed, Message: "content unavailable"}
	})
	jq.Start()
	defer jq.Stop()

	job, err := jq.AddJob("https://v.douyin.com/a")
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)

	got := waitForStatus(t, jq, job.ID, JobStatusFailed)
	assert.Equal(t, "resolution_failed", got.ErrorCode)
	assert.Equal(t, "content unavailable", got.Error)
}

func TestJobQueueProgress(t *testing.T) {
	release := make(chan struct{})
	jq := NewJobQueue(1, func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
		r.Resolved(&extractor.ImageMedia{Title: "set"})
		r.Progress(1, 4)
		<-release
		return &downloader.Artifact{FileName: "x.zip"}, nil
	})
	jq.Start()
	defer jq.Stop()

	job, err := jq.AddJob("https://v.douyin.com/a")
	require.NoError(t, err)

	got := waitForStatus(t, jq, job.ID, JobStatusDownloading)
	assert.Equal(t, "images", got.Type)
	assert.Equal(t, "set", got.Title)
	assert.InDelta(t, 25, got.Progress, 0.01)

	close(release)
	got = waitForStatus(t, jq, job.ID, JobStatusCompleted)
	assert.Equal(t, "/downloads/x.zip", got.DownloadURL)
}

func TestJobQueueCancel(t *testing.T) {
	started := make(chan struct{})
	jq := NewJobQueue(1, func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	jq.Start()
	defer jq.Stop()

	job, err := jq.AddJob("https://v.douyin.com/a")
	require.NoError(t, err)
	<-started

	assert.True(t, jq.CancelJob(job.ID))
	assert.False(t, jq.CancelJob(job.ID))

	// The worker exits without overwriting the cancelled state.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, JobStatusCancelled, jq.GetJob(job.ID).Status)

	assert.True(t, jq.RemoveJob(job.ID))
	assert.Nil(t, jq.GetJob(job.ID))
}

func TestJobQueueClearHistory(t *testing.T) {
	jq := NewJobQueue(2, func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
		return &downloader.Artifact{FileName: "a.mp4"}, nil
	})
	jq.Start()
	defer jq.Stop()

	for i := 0; i < 3; i++ {
		job, err := jq.AddJob("https://v.douyin.com/a")
		require.NoError(t, err)
		waitForStatus(t, jq, job.ID, JobStatusCompleted)
	}

	assert.Len(t, jq.GetAllJobs(), 3)
	assert.Equal(t, 3, jq.ClearHistory())
	assert.Empty(t, jq.GetAllJobs())
}

func TestJobQueueForgetsOldJobs(t *testing.T) {
	jq := NewJobQueue(1, nil)
	jq.jobs["old"] = &Job{ID: "old", Status: JobStatusCompleted, UpdatedAt: time.Now().Add(-2 * time.Hour)}
	jq.jobs["new"] = &Job{ID: "new", Status: JobStatusFailed, UpdatedAt: time.Now()}
	jq.jobs["running"] = &Job{ID: "running", Status: JobStatusDownloading, UpdatedAt: time.Now().Add(-2 * time.Hour)}

	jq.cleanupOldJobs()

	assert.Nil(t, jq.GetJob("old"))
	assert.NotNil(t, jq.GetJob("new"))
	assert.NotNil(t, jq.GetJob("running"))
}

func TestJobQueueAddAfterStop(t *testing.T) {
	jq := NewJobQueue(1, func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
		return &downloader.Artifact{FileName: "x.mp4"}, nil
	})
	jq.Start()
	jq.Stop()

	assert.NotPanics(t, func() {
		job, err := jq.AddJob("https://v.douyin.com/a")
		assert.ErrorIs(t, err, ErrQueueStopped)
		assert.Nil(t, job)
	})
	assert.Empty(t, jq.GetAllJobs())
}

func TestJobQueueAddRacingStop(t *testing.T) {
	jq := NewJobQueue(2, func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	jq.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := jq.AddJob("https://v.douyin.com/a"); errors.Is(err, ErrQueueStopped) {
					return
				}
			}
		}()
	}
	jq.Stop()
	wg.Wait()
}

func TestJobQueueFull(t *testing.T) {
	jq := NewJobQueue(1, nil)
	for i := 0; i < cap(jq.queue); i++ {
		_, err := jq.AddJob("https://v.douyin.com/a")
		require.NoError(t, err)
	}

	_, err := jq.AddJob("https://v.douyin.com/a")
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Len(t, jq.GetAllJobs(), cap(jq.queue))
}
