package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/agent"
)

// AgentStore is the durable Agent repository.
type AgentStore struct {
	db *sqlx.DB
}

func NewAgentStore(db *sqlx.DB) *AgentStore {
	return &AgentStore{db: db}
}

type agentRow struct {
	ID            string    `db:"id"`
	Location      string    `db:"location"`
	Status        string    `db:"status"`
	LastHeartbeat time.Time `db:"last_heartbeat"`
	RegisteredAt  time.Time `db:"registered_at"`
	Metadata      []byte    `db:"metadata"`
}

func (r agentRow) toDomain() (*agent.Agent, error) {
	out := &agent.Agent{
		ID:            r.ID,
		Location:      r.Location,
		Status:        agent.Status(r.Status),
		LastHeartbeat: r.LastHeartbeat,
		RegisteredAt:  r.RegisteredAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &out.Metadata); err != nil {
			return nil, apperrors.DatabaseError("decode agent metadata", err)
		}
	}
	return out, nil
}

const agentColumns = `id, location, status, last_heartbeat, registered_at, metadata`

func (s *AgentStore) Register(ctx context.Context, location string, metadata map[string]string) (*agent.Agent, error) {
	id := uuid.NewString()
	metadataJSON, _ := json.Marshal(metadata)

	const stmt = `
		INSERT INTO agents (id, location, status, last_heartbeat, registered_at, metadata)
		VALUES ($1, $2, 'ONLINE', now(), now(), $3)
		RETURNING last_heartbeat, registered_at`
	row := s.db.QueryRowxContext(ctx, stmt, id, location, metadataJSON)

	a := &agent.Agent{ID: id, Location: location, Status: agent.StatusOnline, Metadata: metadata}
	if err := row.Scan(&a.LastHeartbeat, &a.RegisteredAt); err != nil {
		return nil, apperrors.DatabaseError("register agent", err)
	}
	return a, nil
}

func (s *AgentStore) Heartbeat(ctx context.Context, id string) (*agent.Agent, error) {
	const stmt = `UPDATE agents SET last_heartbeat = now(), status = 'ONLINE' WHERE id = $1 RETURNING ` + agentColumns
	var row agentRow
	if err := sqlx.GetContext(ctx, s.db, &row, stmt, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("agent", id)
		}
		return nil, apperrors.DatabaseError("heartbeat agent", err)
	}
	return row.toDomain()
}

func (s *AgentStore) Get(ctx context.Context, id string) (*agent.Agent, error) {
	const stmt = `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	var row agentRow
	if err := sqlx.GetContext(ctx, s.db, &row, stmt, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("agent", id)
		}
		return nil, apperrors.DatabaseError("get agent", err)
	}
	return row.toDomain()
}

func (s *AgentStore) Deregister(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return apperrors.DatabaseError("deregister agent", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NotFound("agent", id)
	}
	return nil
}

func (s *AgentStore) List(ctx context.Context) ([]agent.Agent, error) {
	const stmt = `SELECT ` + agentColumns + ` FROM agents ORDER BY registered_at`
	var rows []agentRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, stmt); err != nil {
		return nil, apperrors.DatabaseError("list agents", err)
	}
	out := make([]agent.Agent, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func (s *AgentStore) OnlineLocations(ctx context.Context) ([]string, error) {
	const stmt = `SELECT DISTINCT location FROM agents WHERE status = 'ONLINE' ORDER BY location`
	var out []string
	if err := sqlx.SelectContext(ctx, s.db, &out, stmt); err != nil {
		return nil, apperrors.DatabaseError("list online locations", err)
	}
	return out, nil
}

func (s *AgentStore) SweepStale(ctx context.Context, now time.Time, timeout time.Duration) (int, error) {
	const stmt = `UPDATE agents SET status = 'OFFLINE' WHERE status = 'ONLINE' AND last_heartbeat < $1`
	res, err := s.db.ExecContext(ctx, stmt, now.Add(-timeout))
	if err != nil {
		return 0, apperrors.DatabaseError("sweep stale agents", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
