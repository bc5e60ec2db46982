package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	domain "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
)

// PostgresQueue is the durable Queue backend. Dequeue relies on
// SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never contend for,
// or double-claim, the same row.
type PostgresQueue struct {
	db *sqlx.DB
}

// NewPostgresQueue wraps an already-open database handle.
func NewPostgresQueue(db *sqlx.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

type jobRow struct {
	ID           string         `db:"id"`
	QueueName    string         `db:"queue_name"`
	Payload      []byte         `db:"payload"`
	Location     string         `db:"location"`
	Status       string         `db:"status"`
	Attempts     int            `db:"attempts"`
	MaxAttempts  int            `db:"max_attempts"`
	Priority     int            `db:"priority"`
	ScheduledFor time.Time      `db:"scheduled_for"`
	StartedAt    sql.NullTime   `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Error        sql.NullString `db:"error"`
}

func (r jobRow) toDomain() (*domain.Job, error) {
	var payload domain.ExecutePlanPayload
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		return nil, apperrors.DatabaseError("decode job payload", err)
	}
	job := &domain.Job{
		ID:           r.ID,
		QueueName:    r.QueueName,
		Data:         payload,
		Location:     r.Location,
		Status:       domain.Status(r.Status),
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		Priority:     r.Priority,
		ScheduledFor: r.ScheduledFor,
		Error:        r.Error.String,
	}
	if r.StartedAt.Valid {
		job.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		job.CompletedAt = &r.CompletedAt.Time
	}
	return job, nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, data domain.ExecutePlanPayload, opts domain.EnqueueOptions) (string, error) {
	opts = opts.WithDefaults(time.Now().UTC())

	payload, err := json.Marshal(data)
	if err != nil {
		return "", apperrors.DatabaseError("encode job payload", err)
	}

	id := uuid.NewString()
	const q1 = `
		INSERT INTO jobs (id, queue_name, payload, location, status, attempts, max_attempts, priority, scheduled_for)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, $5, $6, $7)`
	if _, err := q.db.ExecContext(ctx, q1, id, QueueName, payload, opts.Location, opts.MaxAttempts, opts.Priority, opts.RunAt); err != nil {
		return "", apperrors.DatabaseError("enqueue job", err)
	}
	return id, nil
}

// Dequeue claims the next eligible job for location. The CTE selects the
// candidate row under FOR UPDATE SKIP LOCKED so a concurrently-polling
// worker skips past rows already locked by another transaction instead of
// blocking on them, then the UPDATE flips it to RUNNING within the same
// statement.
func (q *PostgresQueue) Dequeue(ctx context.Context, location string) (*domain.Job, error) {
	const stmt = `
		WITH candidate AS (
			SELECT id FROM jobs
			WHERE queue_name = $1
			  AND location = $2
			  AND status IN ('PENDING', 'RETRYING')
			  AND scheduled_for <= now()
			ORDER BY priority DESC, scheduled_for ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE jobs
		SET status = 'RUNNING', attempts = attempts + 1, started_at = now()
		WHERE id IN (SELECT id FROM candidate)
		RETURNING id, queue_name, payload, location, status, attempts, max_attempts, priority, scheduled_for, started_at, completed_at, error`

	var row jobRow
	if err := sqlx.GetContext(ctx, q.db, &row, stmt, QueueName, location); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apperrors.DatabaseError("dequeue job", err)
	}
	return row.toDomain()
}

func (q *PostgresQueue) Acknowledge(ctx context.Context, jobID string) error {
	const stmt = `UPDATE jobs SET status = 'COMPLETED', completed_at = now() WHERE id = $1`
	res, err := q.db.ExecContext(ctx, stmt, jobID)
	if err != nil {
		return apperrors.DatabaseError("acknowledge job", err)
	}
	return checkAffected(res, jobID)
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID string, cause error, retry bool) error {
	var causeMsg string
	if cause != nil {
		causeMsg = cause.Error()
	}

	var attempts, maxAttempts int
	if err := q.db.QueryRowxContext(ctx, `SELECT attempts, max_attempts FROM jobs WHERE id = $1`, jobID).Scan(&attempts, &maxAttempts); err != nil {
		if err == sql.ErrNoRows {
			return apperrors.NotFound("job", jobID)
		}
		return apperrors.DatabaseError("load job for failure", err)
	}

	if retry && attempts < maxAttempts {
		scheduledFor := time.Now().UTC().Add(Backoff(attempts))
		const stmt = `UPDATE jobs SET status = 'RETRYING', scheduled_for = $2, error = $3 WHERE id = $1`
		_, err := q.db.ExecContext(ctx, stmt, jobID, scheduledFor, causeMsg)
		if err != nil {
			return apperrors.DatabaseError("retry job", err)
		}
		return nil
	}

	const stmt = `UPDATE jobs SET status = 'FAILED', completed_at = now(), error = $2 WHERE id = $1`
	_, err := q.db.ExecContext(ctx, stmt, jobID, causeMsg)
	if err != nil {
		return apperrors.DatabaseError("fail job", err)
	}
	return nil
}

func (q *PostgresQueue) GetStatus(ctx context.Context, jobID string) (domain.Status, error) {
	var status string
	err := q.db.QueryRowxContext(ctx, `SELECT status FROM jobs WHERE id = $1`, jobID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperrors.NotFound("job", jobID)
	}
	if err != nil {
		return "", apperrors.DatabaseError("get job status", err)
	}
	return domain.Status(status), nil
}

func (q *PostgresQueue) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	const stmt = `
		SELECT id, queue_name, payload, location, status, attempts, max_attempts, priority, scheduled_for, started_at, completed_at, error
		FROM jobs WHERE id = $1`
	var row jobRow
	if err := sqlx.GetContext(ctx, q.db, &row, stmt, jobID); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("job", jobID)
		}
		return nil, apperrors.DatabaseError("get job", err)
	}
	return row.toDomain()
}

func (q *PostgresQueue) Depth(ctx context.Context, location string, status domain.Status) (int, error) {
	var count int
	const stmt = `SELECT count(*) FROM jobs WHERE location = $1 AND status = $2`
	if err := q.db.QueryRowxContext(ctx, stmt, location, string(status)).Scan(&count); err != nil {
		return 0, apperrors.DatabaseError("queue depth", err)
	}
	return count, nil
}

// SweepVisibilityTimeout recovers jobs a worker claimed but never
// acknowledged or failed within timeout, returning them to PENDING so
// another worker can retry them.
func (q *PostgresQueue) SweepVisibilityTimeout(ctx context.Context, timeout time.Duration) (int, error) {
	const stmt = `
		UPDATE jobs
		SET status = 'PENDING', started_at = NULL
		WHERE status = 'RUNNING' AND started_at < $1`
	res, err := q.db.ExecContext(ctx, stmt, time.Now().UTC().Add(-timeout))
	if err != nil {
		return 0, apperrors.DatabaseError("sweep visibility timeout", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func checkAffected(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.DatabaseError("check rows affected", err)
	}
	if n == 0 {
		return apperrors.NotFound("job", jobID)
	}
	return nil
}
