package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/run"
)

// RunStore is the durable Run repository.
type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

type runRow struct {
	ID               string         `db:"id"`
	PlanID           string         `db:"plan_id"`
	ExecutionGroupID string         `db:"execution_group_id"`
	Location         string         `db:"location"`
	Environment      string         `db:"environment"`
	TriggeredBy      string         `db:"triggered_by"`
	Status           string         `db:"status"`
	StartedAt        time.Time      `db:"started_at"`
	CompletedAt      sql.NullTime   `db:"completed_at"`
	DurationMs       sql.NullInt64  `db:"duration_ms"`
	Success          sql.NullBool   `db:"success"`
	Errors           []byte         `db:"errors"`
	Results          []byte         `db:"results"`
}

func (r runRow) toDomain() (*run.Run, error) {
	out := &run.Run{
		ID:               r.ID,
		PlanID:           r.PlanID,
		ExecutionGroupID: r.ExecutionGroupID,
		Location:         r.Location,
		Environment:      r.Environment,
		TriggeredBy:      run.TriggeredBy(r.TriggeredBy),
		Status:           run.Status(r.Status),
		StartedAt:        r.StartedAt,
	}
	if r.CompletedAt.Valid {
		out.CompletedAt = &r.CompletedAt.Time
	}
	if r.DurationMs.Valid {
		out.DurationMs = &r.DurationMs.Int64
	}
	if r.Success.Valid {
		out.Success = &r.Success.Bool
	}
	if len(r.Errors) > 0 {
		if err := json.Unmarshal(r.Errors, &out.Errors); err != nil {
			return nil, apperrors.DatabaseError("decode run errors", err)
		}
	}
	if len(r.Results) > 0 {
		if err := json.Unmarshal(r.Results, &out.Results); err != nil {
			return nil, apperrors.DatabaseError("decode run results", err)
		}
	}
	return out, nil
}

const runColumns = `id, plan_id, execution_group_id, location, environment, triggered_by, status, started_at, completed_at, duration_ms, success, errors, results`

func (s *RunStore) Create(ctx context.Context, r run.Run) (*run.Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}

	const stmt = `
		INSERT INTO runs (id, plan_id, execution_group_id, location, environment, triggered_by, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, stmt, r.ID, r.PlanID, r.ExecutionGroupID, r.Location, r.Environment, string(r.TriggeredBy), string(r.Status), r.StartedAt)
	if err != nil {
		return nil, apperrors.DatabaseError("create run", err)
	}
	return &r, nil
}

func (s *RunStore) GetByID(ctx context.Context, id string) (*run.Run, error) {
	const stmt = `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	var row runRow
	if err := sqlx.GetContext(ctx, s.db, &row, stmt, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("run", id)
		}
		return nil, apperrors.DatabaseError("get run", err)
	}
	return row.toDomain()
}

// Transition applies a CanTransition-guarded status update inside a single
// transaction so the read-modify-write is race-free under concurrent
// reporters (e.g. a retried ack arriving after the run already completed).
func (s *RunStore) Transition(ctx context.Context, id string, next run.Status, results []run.NodeResult, errs []string) (*run.Run, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperrors.DatabaseError("begin run transition", err)
	}
	defer tx.Rollback()

	var row runRow
	const selectStmt = `SELECT ` + runColumns + ` FROM runs WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, tx, &row, selectStmt, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("run", id)
		}
		return nil, apperrors.DatabaseError("lock run", err)
	}
	current, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	if !current.CanTransition(next) {
		return nil, apperrors.Conflict("illegal run status transition from " + string(current.Status) + " to " + string(next))
	}

	var completedAt *time.Time
	var durationMs *int64
	var success *bool
	if next == run.StatusCompleted || next == run.StatusFailed {
		now := time.Now().UTC()
		completedAt = &now
		d := now.Sub(current.StartedAt).Milliseconds()
		durationMs = &d
		ok := next == run.StatusCompleted
		success = &ok
	}
	errorsJSON, _ := json.Marshal(errs)
	resultsJSON, _ := json.Marshal(results)

	const updateStmt = `
		UPDATE runs SET status = $2, completed_at = $3, duration_ms = $4, success = $5, errors = $6, results = $7
		WHERE id = $1`
	if _, err := tx.ExecContext(ctx, updateStmt, id, string(next), completedAt, durationMs, success, errorsJSON, resultsJSON); err != nil {
		return nil, apperrors.DatabaseError("update run", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperrors.DatabaseError("commit run transition", err)
	}

	current.Status = next
	current.CompletedAt = completedAt
	current.DurationMs = durationMs
	current.Success = success
	current.Errors = errs
	current.Results = results
	return current, nil
}

func (s *RunStore) ListByPlan(ctx context.Context, planID string, limit int) ([]run.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	const stmt = `SELECT ` + runColumns + ` FROM runs WHERE plan_id = $1 ORDER BY started_at DESC LIMIT $2`
	var rows []runRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, stmt, planID, limit); err != nil {
		return nil, apperrors.DatabaseError("list runs by plan", err)
	}
	out := make([]run.Run, 0, len(rows))
	for _, r := range rows {
		d, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}
