package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/core/downloader"
	"github.com/dyget/dyget/internal/core/extractor"
)

// JobStatus represents the current state of a download job
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusResolving   JobStatus = "resolving"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Job represents an asynchronous resolve-and-materialize request
type Job struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Status      JobStatus `json:"status"`
	Progress    float64   `json:"progress"`
	Downloaded  int64     `json:"downloaded"`
	Total       int64     `json:"total"` // -1 if unknown
	Title       string    `json:"title,omitempty"`
	Type        string    `json:"type,omitempty"`
	DownloadURL string    `json:"downloadUrl,omitempty"`
	ExpireAt    time.Time `json:"expireAt,omitzero"`
	ErrorCode   string    `json:"errorCode,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	cancel context.CancelFunc
	ctx    context.Context
}

func (j *Job) finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// JobReporter lets a JobFunc publish its progress
type JobReporter interface {
	Resolved(media extractor.Media)
	Progress(downloaded, total int64)
}

// JobFunc resolves url and materializes the result
type JobFunc func(ctx context.Context, url string, r JobReporter) (*downloader.Artifact, error)

// JobQueue manages download jobs with a worker pool
type JobQueue struct {
	jobs          map[string]*Job
	mu            sync.RWMutex
	queue         chan *Job
	maxConcurrent int
	run           JobFunc
	wg            sync.WaitGroup
	retention     time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
	stopped       bool // guarded by mu; queue is closed once set
}

// NewJobQueue creates a new job queue with the specified concurrency
func NewJobQueue(maxConcurrent int, run JobFunc) *JobQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}

	return &JobQueue{
		jobs:          make(map[string]*Job),
		queue:         make(chan *Job, 100),
		maxConcurrent: maxConcurrent,
		run:           run,
		retention:     time.Hour,
		stopCleanup:   make(chan struct{}),
	}
}

// Start begins the worker pool and cleanup routine
func (jq *JobQueue) Start() {
	for i := 0; i < jq.maxConcurrent; i++ {
		jq.wg.Add(1)
		go jq.worker()
	}

	// Every 10 minutes, forget finished jobs older than the retention
	jq.cleanupTicker = time.NewTicker(10 * time.Minute)
	go jq.cleanupLoop()
}

// Stop cancels running jobs and waits for the workers to exit
func (jq *JobQueue) Stop() {
	jq.stopOnce.Do(func() {
		jq.mu.Lock()
		jq.stopped = true
		for _, job := range jq.jobs {
			if !job.finished() {
				job.cancel()
				job.Status = JobStatusCancelled
				job.UpdatedAt = time.Now()
			}
		}
		close(jq.queue)
		jq.mu.Unlock()

		close(jq.stopCleanup)
		if jq.cleanupTicker != nil {
			jq.cleanupTicker.Stop()
		}
		jq.wg.Wait()
	})
}

func (jq *JobQueue) worker() {
	defer jq.wg.Done()

	for job := range jq.queue {
		jq.processJob(job)
	}
}

type jobReporter struct {
	jq *JobQueue
	id string
}

func (r jobReporter) Resolved(media extractor.Media) {
	r.jq.update(r.id, func(j *Job) {
		j.Status = JobStatusDownloading
		j.Title = media.GetTitle()
		j.Type = string(media.Type())
	})
}

func (r jobReporter) Progress(downloaded, total int64) {
	r.jq.update(r.id, func(j *Job) {
		j.Downloaded = downloaded
		j.Total = total
		if total > 0 {
			j.Progress = float64(downloaded) / float64(total) * 100
		}
	})
}

func (jq *JobQueue) processJob(job *Job) {
	if job.ctx.Err() != nil {
		return
	}
	jq.update(job.ID, func(j *Job) { j.Status = JobStatusResolving })

	artifact, err := jq.run(job.ctx, job.URL, jobReporter{jq: jq, id: job.ID})
	if err != nil {
		if errors.Is(job.ctx.Err(), context.Canceled) {
			// CancelJob or Stop already marked it
			return
		}
		log.WithError(err).WithField("job", job.ID).Warn("job failed")
		jq.update(job.ID, func(j *Job) {
			j.Status = JobStatusFailed
			j.ErrorCode = string(extractor.CodeOf(err))
			j.Error = err.Error()
		})
		return
	}

	jq.update(job.ID, func(j *Job) {
		j.Status = JobStatusCompleted
		j.Progress = 100
		j.DownloadURL = artifact.DownloadURL()
		j.ExpireAt = artifact.ExpireAt
	})
}

func (jq *JobQueue) cleanupLoop() {
	for {
		select {
		case <-jq.cleanupTicker.C:
			jq.cleanupOldJobs()
		case <-jq.stopCleanup:
			return
		}
	}
}

func (jq *JobQueue) cleanupOldJobs() {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	cutoff := time.Now().Add(-jq.retention)
	for id, job := range jq.jobs {
		if job.finished() && job.UpdatedAt.Before(cutoff) {
			delete(jq.jobs, id)
		}
	}
}

// ClearHistory removes all completed, failed, and cancelled jobs
func (jq *JobQueue) ClearHistory() int {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	count := 0
	for id, job := range jq.jobs {
		if job.finished() {
			delete(jq.jobs, id)
			count++
		}
	}
	return count
}

// RemoveJob removes a single completed, failed, or cancelled job by ID
func (jq *JobQueue) RemoveJob(id string) bool {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	job, ok := jq.jobs[id]
	if !ok || !job.finished() {
		return false
	}
	delete(jq.jobs, id)
	return true
}

// AddJob creates and queues a new job
func (jq *JobQueue) AddJob(url string) (*Job, error) {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	job := &Job{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    JobStatusQueued,
		Total:     -1,
		CreatedAt: now,
		UpdatedAt: now,
		ctx:       ctx,
		cancel:    cancel,
	}

	jobCopy := *job

	jq.mu.Lock()
	defer jq.mu.Unlock()

	if jq.stopped {
		cancel()
		return nil, ErrQueueStopped
	}

	select {
	case jq.queue <- job:
		jq.jobs[job.ID] = job
		return &jobCopy, nil
	default:
		cancel()
		return nil, ErrQueueFull
	}
}

var (
	// ErrQueueFull is returned by AddJob when the buffer is exhausted
	ErrQueueFull = fmt.Errorf("job queue is full")
	// ErrQueueStopped is returned by AddJob after Stop
	ErrQueueStopped = fmt.Errorf("job queue is stopped")
)

// GetJob returns a copy of the job with the given ID
func (jq *JobQueue) GetJob(id string) *Job {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	if job, ok := jq.jobs[id]; ok {
		jobCopy := *job
		return &jobCopy
	}
	return nil
}

// GetAllJobs returns copies of all jobs
func (jq *JobQueue) GetAllJobs() []*Job {
	jq.mu.RLock()
	defer jq.mu.RUnlock()

	jobs := make([]*Job, 0, len(jq.jobs))
	for _, job := range jq.jobs {
		jobCopy := *job
		jobs = append(jobs, &jobCopy)
	}
	return jobs
}

// CancelJob cancels a queued or running job by ID
func (jq *JobQueue) CancelJob(id string) bool {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	job, ok := jq.jobs[id]
	if !ok || job.finished() {
		return false
	}

	job.cancel()
	job.Status = JobStatusCancelled
	job.UpdatedAt = time.Now()
	return true
}

// update applies fn to the job unless it was cancelled meanwhile.
func (jq *JobQueue) update(id string, fn func(j *Job)) {
	jq.mu.Lock()
	defer jq.mu.Unlock()

	job, ok := jq.jobs[id]
	if !ok {
		return
	}
	if job.Status == JobStatusCancelled {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now()
}
