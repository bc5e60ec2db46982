// Package queue implements the durable, location-partitioned job queue that
// hands execute-plan jobs from the scheduler to agent worker loops.
package queue

import (
	"context"
	"time"

	domain "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
)

// QueueName is the single logical queue this system uses.
const QueueName = "execute-plan"

// MaxBackoff caps the retry backoff the spec assigns to failed jobs.
const MaxBackoff = 60 * time.Minute

// Backoff computes min(2^k seconds, 60 minutes) for the k-th failed attempt.
func Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	d := time.Duration(1) << uint(attempt) * time.Second
	if d > MaxBackoff || d <= 0 {
		return MaxBackoff
	}
	return d
}

// Queue is the durable job queue contract. Implementations must guarantee
// that Dequeue never hands the same eligible job to two concurrent callers.
type Queue interface {
	Enqueue(ctx context.Context, data domain.ExecutePlanPayload, opts domain.EnqueueOptions) (string, error)
	Dequeue(ctx context.Context, location string) (*domain.Job, error)
	Acknowledge(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, cause error, retry bool) error
	GetStatus(ctx context.Context, jobID string) (domain.Status, error)
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	// Depth reports the approximate number of jobs matching location and
	// status, used to publish the queue-depth gauge.
	Depth(ctx context.Context, location string, status domain.Status) (int, error)
}
