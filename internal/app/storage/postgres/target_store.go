package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	apperrors "github.com/griffin-open-source/griffin-sub001/infrastructure/errors"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/target"
)

// TargetStore is the durable per-(organization, environment) target map
// repository.
type TargetStore struct {
	db *sqlx.DB
}

func NewTargetStore(db *sqlx.DB) *TargetStore {
	return &TargetStore{db: db}
}

type targetRow struct {
	Organization string `db:"organization"`
	Environment  string `db:"environment"`
	Targets      []byte `db:"targets"`
}

func (r targetRow) toDomain() (*target.Config, error) {
	cfg := &target.Config{Organization: r.Organization, Environment: r.Environment}
	if err := json.Unmarshal(r.Targets, &cfg.Targets); err != nil {
		return nil, apperrors.DatabaseError("decode targets", err)
	}
	return cfg, nil
}

func (s *TargetStore) Put(ctx context.Context, cfg target.Config) error {
	targetsJSON, err := json.Marshal(cfg.Targets)
	if err != nil {
		return apperrors.DatabaseError("encode targets", err)
	}
	const stmt = `
		INSERT INTO target_configs (organization, environment, targets)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization, environment) DO UPDATE SET targets = EXCLUDED.targets`
	if _, err := s.db.ExecContext(ctx, stmt, cfg.Organization, cfg.Environment, targetsJSON); err != nil {
		return apperrors.DatabaseError("put target config", err)
	}
	return nil
}

func (s *TargetStore) Get(ctx context.Context, organization, environment string) (*target.Config, error) {
	const stmt = `SELECT organization, environment, targets FROM target_configs WHERE organization = $1 AND environment = $2`
	var row targetRow
	if err := sqlx.GetContext(ctx, s.db, &row, stmt, organization, environment); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("target-config", organization+"/"+environment)
		}
		return nil, apperrors.DatabaseError("get target config", err)
	}
	return row.toDomain()
}

func (s *TargetStore) Resolve(ctx context.Context, organization, environment, key, template string) (string, error) {
	cfg, err := s.Get(ctx, organization, environment)
	if err != nil {
		return "", err
	}
	value, ok := cfg.Resolve(key, template)
	if !ok {
		return "", apperrors.NotFound("target", key)
	}
	return value, nil
}

// SetKey creates or replaces a single key within organization/environment's
// target map, creating the row itself on first use.
func (s *TargetStore) SetKey(ctx context.Context, organization, environment, key, baseURL string) error {
	cfg, err := s.Get(ctx, organization, environment)
	if err != nil {
		if svcErr := apperrors.GetServiceError(err); svcErr == nil || svcErr.Code != apperrors.ErrCodeNotFound {
			return err
		}
		cfg = &target.Config{Organization: organization, Environment: environment, Targets: map[string]string{}}
	}
	if cfg.Targets == nil {
		cfg.Targets = map[string]string{}
	}
	cfg.Targets[key] = baseURL
	return s.Put(ctx, *cfg)
}

// DeleteKey removes a single key from organization/environment's target map.
func (s *TargetStore) DeleteKey(ctx context.Context, organization, environment, key string) error {
	cfg, err := s.Get(ctx, organization, environment)
	if err != nil {
		return err
	}
	if _, ok := cfg.Targets[key]; !ok {
		return apperrors.NotFound("target", key)
	}
	delete(cfg.Targets, key)
	return s.Put(ctx, *cfg)
}
