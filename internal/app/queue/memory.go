package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	domain "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
)

// MemoryQueue is an in-process Queue implementation for tests and
// single-process deployments. It has no durability across restarts.
type MemoryQueue struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewMemoryQueue constructs an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{jobs: make(map[string]*domain.Job)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, data domain.ExecutePlanPayload, opts domain.EnqueueOptions) (string, error) {
	opts = opts.WithDefaults(time.Now().UTC())

	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	q.jobs[id] = &domain.Job{
		ID:           id,
		QueueName:    QueueName,
		Data:         data,
		Location:     opts.Location,
		Status:       domain.StatusPending,
		MaxAttempts:  opts.MaxAttempts,
		Priority:     opts.Priority,
		ScheduledFor: opts.RunAt,
	}
	return id, nil
}

// Dequeue atomically selects the highest-priority, oldest-scheduled eligible
// job for location and flips it to RUNNING. The mutex held for the full
// select+update makes this safe against concurrent callers, mirroring the
// exclusive-lock guarantee a SELECT ... FOR UPDATE SKIP LOCKED gives a
// durable backend.
func (q *MemoryQueue) Dequeue(_ context.Context, location string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	var eligible []*domain.Job
	for _, j := range q.jobs {
		if j.Location != location {
			continue
		}
		if j.Status != domain.StatusPending && j.Status != domain.StatusRetrying {
			continue
		}
		if j.ScheduledFor.After(now) {
			continue
		}
		eligible = append(eligible, j)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.Slice(eligible, func(i, k int) bool {
		if eligible[i].Priority != eligible[k].Priority {
			return eligible[i].Priority > eligible[k].Priority
		}
		return eligible[i].ScheduledFor.Before(eligible[k].ScheduledFor)
	})

	chosen := eligible[0]
	chosen.Status = domain.StatusRunning
	chosen.Attempts++
	started := now
	chosen.StartedAt = &started

	copy := *chosen
	return &copy, nil
}

func (q *MemoryQueue) Acknowledge(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return apperrors.NotFound("job", jobID)
	}
	job.Status = domain.StatusCompleted
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, jobID string, cause error, retry bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return apperrors.NotFound("job", jobID)
	}
	if cause != nil {
		job.Error = cause.Error()
	}
	if retry && job.Attempts < job.MaxAttempts {
		job.Status = domain.StatusRetrying
		job.ScheduledFor = time.Now().UTC().Add(Backoff(job.Attempts))
		return nil
	}
	job.Status = domain.StatusFailed
	now := time.Now().UTC()
	job.CompletedAt = &now
	return nil
}

func (q *MemoryQueue) GetStatus(_ context.Context, jobID string) (domain.Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return "", apperrors.NotFound("job", jobID)
	}
	return job.Status, nil
}

func (q *MemoryQueue) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, apperrors.NotFound("job", jobID)
	}
	copy := *job
	return &copy, nil
}

func (q *MemoryQueue) Depth(_ context.Context, location string, status domain.Status) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, j := range q.jobs {
		if j.Location == location && j.Status == status {
			count++
		}
	}
	return count, nil
}

// SweepVisibilityTimeout moves RUNNING jobs whose StartedAt predates
// now-timeout back to PENDING, leaving Attempts unchanged. This recovers
// jobs orphaned by a crashed worker.
func (q *MemoryQueue) SweepVisibilityTimeout(_ context.Context, timeout time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	recovered := 0
	for _, j := range q.jobs {
		if j.Status != domain.StatusRunning || j.StartedAt == nil {
			continue
		}
		if now.Sub(*j.StartedAt) > timeout {
			j.Status = domain.StatusPending
			j.StartedAt = nil
			recovered++
		}
	}
	return recovered
}
