// Package queue defines the durable job queue's entity and wire payload
// types. The queue implementations themselves live in internal/app/queue.
package queue

import (
	"time"

	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
)

// Status is a job's position in the PENDING/RUNNING/COMPLETED/FAILED/RETRYING
// lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRetrying  Status = "RETRYING"
)

// ExecutePlanPayload is the sole payload type this system's queue carries.
type ExecutePlanPayload struct {
	Type             string    `json:"type"`
	PlanID           string    `json:"planId"`
	JobRunID         string    `json:"jobRunId"`
	Environment      string    `json:"environment"`
	Location         string    `json:"location"`
	ExecutionGroupID string    `json:"executionGroupId"`
	Plan             plan.Plan `json:"plan"`
	ScheduledAt      time.Time `json:"scheduledAt"`
}

// PayloadTypeExecutePlan is the literal Type value of ExecutePlanPayload.
const PayloadTypeExecutePlan = "execute-plan"

// Job is one durable queue row.
type Job struct {
	ID            string             `json:"id"`
	QueueName     string             `json:"queueName"`
	Data          ExecutePlanPayload `json:"data"`
	Location      string             `json:"location"`
	Status        Status             `json:"status"`
	Attempts      int                `json:"attempts"`
	MaxAttempts   int                `json:"maxAttempts"`
	Priority      int                `json:"priority"`
	ScheduledFor  time.Time          `json:"scheduledFor"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// EnqueueOptions parameterizes Queue.Enqueue.
type EnqueueOptions struct {
	Location    string
	MaxAttempts int
	Priority    int
	RunAt       time.Time
}

// WithDefaults fills zero-valued fields with the spec's defaults
// (maxAttempts=3, priority=0, runAt=now).
func (o EnqueueOptions) WithDefaults(now time.Time) EnqueueOptions {
	if o.MaxAttempts == 0 {
		o.MaxAttempts = 3
	}
	if o.RunAt.IsZero() {
		o.RunAt = now
	}
	return o
}
