// Package postgres provides durable Plan/Run/Agent/Target stores backed by
// PostgreSQL via jmoiron/sqlx, matching the in-memory stores' contracts.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
)

// PlanStore is the durable Plan repository.
type PlanStore struct {
	db *sqlx.DB
}

func NewPlanStore(db *sqlx.DB) *PlanStore {
	return &PlanStore{db: db}
}

type planRow struct {
	ID            string       `db:"id"`
	Organization  string       `db:"organization"`
	Project       string       `db:"project"`
	Environment   string       `db:"environment"`
	Name          string       `db:"name"`
	Version       string       `db:"version"`
	Frequency     []byte       `db:"frequency"`
	Locations     pq.StringArray `db:"locations"`
	Nodes         []byte       `db:"nodes"`
	Edges         []byte       `db:"edges"`
	LastStartedAt sql.NullTime `db:"last_started_at"`
	CreatedAt     time.Time    `db:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"`
}

func (r planRow) toDomain() (*plan.Plan, error) {
	p := &plan.Plan{
		ID:           r.ID,
		Organization: r.Organization,
		Project:      r.Project,
		Environment:  r.Environment,
		Name:         r.Name,
		Version:      r.Version,
		Locations:    []string(r.Locations),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Frequency, &p.Frequency); err != nil {
		return nil, apperrors.DatabaseError("decode plan frequency", err)
	}
	if err := json.Unmarshal(r.Nodes, &p.Nodes); err != nil {
		return nil, apperrors.DatabaseError("decode plan nodes", err)
	}
	if err := json.Unmarshal(r.Edges, &p.Edges); err != nil {
		return nil, apperrors.DatabaseError("decode plan edges", err)
	}
	if r.LastStartedAt.Valid {
		p.LastStartedAt = &r.LastStartedAt.Time
	}
	return p, nil
}

const planColumns = `id, organization, project, environment, name, version, frequency, locations, nodes, edges, last_started_at, created_at, updated_at`

func (s *PlanStore) Create(ctx context.Context, p plan.Plan) (*plan.Plan, error) {
	frequency, err := json.Marshal(p.Frequency)
	if err != nil {
		return nil, apperrors.DatabaseError("encode plan frequency", err)
	}
	nodes, err := json.Marshal(p.Nodes)
	if err != nil {
		return nil, apperrors.DatabaseError("encode plan nodes", err)
	}
	edges, err := json.Marshal(p.Edges)
	if err != nil {
		return nil, apperrors.DatabaseError("encode plan edges", err)
	}

	p.ID = uuid.NewString()
	const stmt = `
		INSERT INTO plans (id, organization, project, environment, name, version, frequency, locations, nodes, edges)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	row := s.db.QueryRowxContext(ctx, stmt, p.ID, p.Organization, p.Project, p.Environment, p.Name, p.Version, frequency, pq.StringArray(p.Locations), nodes, edges)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.AlreadyExists("plan", p.Name)
		}
		return nil, apperrors.DatabaseError("create plan", err)
	}
	return &p, nil
}

func (s *PlanStore) GetByID(ctx context.Context, id string) (*plan.Plan, error) {
	const stmt = `SELECT ` + planColumns + ` FROM plans WHERE id = $1`
	var row planRow
	if err := sqlx.GetContext(ctx, s.db, &row, stmt, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("plan", id)
		}
		return nil, apperrors.DatabaseError("get plan", err)
	}
	return row.toDomain()
}

func (s *PlanStore) GetByKey(ctx context.Context, key plan.Key) (*plan.Plan, error) {
	const stmt = `SELECT ` + planColumns + ` FROM plans WHERE organization = $1 AND project = $2 AND environment = $3 AND name = $4`
	var row planRow
	err := sqlx.GetContext(ctx, s.db, &row, stmt, key.Organization, key.Project, key.Environment, key.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("plan", key.Name)
		}
		return nil, apperrors.DatabaseError("get plan by key", err)
	}
	return row.toDomain()
}

func (s *PlanStore) Update(ctx context.Context, p plan.Plan) (*plan.Plan, error) {
	frequency, _ := json.Marshal(p.Frequency)
	nodes, _ := json.Marshal(p.Nodes)
	edges, _ := json.Marshal(p.Edges)

	const stmt = `
		UPDATE plans
		SET project = $2, environment = $3, name = $4, version = $5, frequency = $6, locations = $7, nodes = $8, edges = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`
	row := s.db.QueryRowxContext(ctx, stmt, p.ID, p.Project, p.Environment, p.Name, p.Version, frequency, pq.StringArray(p.Locations), nodes, edges)
	if err := row.Scan(&p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("plan", p.ID)
		}
		return nil, apperrors.DatabaseError("update plan", err)
	}
	return &p, nil
}

func (s *PlanStore) MarkStarted(ctx context.Context, id string, startedAt time.Time) error {
	const stmt = `UPDATE plans SET last_started_at = $2 WHERE id = $1`
	res, err := s.db.ExecContext(ctx, stmt, id, startedAt)
	if err != nil {
		return apperrors.DatabaseError("mark plan started", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("plan", id)
	}
	return nil
}

func (s *PlanStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		return apperrors.DatabaseError("delete plan", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("plan", id)
	}
	return nil
}

func (s *PlanStore) List(ctx context.Context) ([]plan.Plan, error) {
	const stmt = `SELECT ` + planColumns + ` FROM plans ORDER BY name`
	var rows []planRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, stmt); err != nil {
		return nil, apperrors.DatabaseError("list plans", err)
	}
	return rowsToPlans(rows)
}

// Due returns every plan whose frequency interval has elapsed, computed in
// Go rather than SQL since Frequency.Interval() depends on the JSON-encoded
// unit, not a column the database can compare directly.
func (s *PlanStore) Due(ctx context.Context, now time.Time) ([]plan.Plan, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var due []plan.Plan
	for _, p := range all {
		if p.IsDue(now) {
			due = append(due, p)
		}
	}
	return due, nil
}

func rowsToPlans(rows []planRow) ([]plan.Plan, error) {
	out := make([]plan.Plan, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}
