package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Dose amounts are stored as NUMERIC for exact decimal precision; the full
// result document is kept as JSONB so it can be returned unchanged.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pools (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	volume_gallons       DOUBLE PRECISION NOT NULL,
	total_alkalinity_ppm DOUBLE PRECISION NOT NULL,
	water_temperature_f  DOUBLE PRECISION NOT NULL,
	surface_material     TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS calculations (
	id              TEXT PRIMARY KEY,
	pool_id         TEXT REFERENCES pools(id),
	current_ph      DOUBLE PRECISION NOT NULL,
	target_ph       DOUBLE PRECISION NOT NULL,
	direction       TEXT NOT NULL,
	chemical_id     TEXT NOT NULL,
	primary_amount  NUMERIC NOT NULL,
	primary_unit    TEXT NOT NULL,
	step_count      INTEGER NOT NULL,
	inputs          JSONB NOT NULL,
	result          JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS calculations_pool_idx ON calculations (pool_id, created_at);
`

// EnsureSchema creates the tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePool(ctx context.Context, p *model.Pool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, name, volume_gallons, total_alkalinity_ppm, water_temperature_f, surface_material, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name,
		p.Profile.VolumeGallons, p.Profile.TotalAlkalinityPpm, p.Profile.WaterTemperatureF,
		string(p.Profile.SurfaceMaterial), p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("pool %s: %w", p.ID, ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	var p model.Pool
	var surface string

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, volume_gallons, total_alkalinity_ppm, water_temperature_f, surface_material, created_at
		 FROM pools WHERE id = $1`, id).
		Scan(&p.ID, &p.Name,
			&p.Profile.VolumeGallons, &p.Profile.TotalAlkalinityPpm, &p.Profile.WaterTemperatureF,
			&surface, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	p.Profile.SurfaceMaterial = model.Surface(surface)
	return &p, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, volume_gallons, total_alkalinity_ppm, water_temperature_f, surface_material, created_at
		 FROM pools ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pools := []model.Pool{}
	for rows.Next() {
		var p model.Pool
		var surface string
		if err := rows.Scan(&p.ID, &p.Name,
			&p.Profile.VolumeGallons, &p.Profile.TotalAlkalinityPpm, &p.Profile.WaterTemperatureF,
			&surface, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Profile.SurfaceMaterial = model.Surface(surface)
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) InsertCalculation(ctx context.Context, c *model.Calculation) error {
	inputs, result, err := encodeCalculation(c)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO calculations (id, pool_id, current_ph, target_ph, direction, chemical_id,
		                           primary_amount, primary_unit, step_count, inputs, result, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7::NUMERIC, $8, $9, $10, $11, $12)`,
		c.ID, c.PoolID, c.Target.CurrentPh, c.Target.TargetPh,
		string(c.Result.Direction), c.Result.ChemicalID,
		c.Result.PrimaryDose.Amount.String(), c.Result.PrimaryDose.Unit,
		c.Result.DosingPlan.StepCount,
		inputs, result, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("calculation %s: %w", c.ID, ErrDuplicate)
	}
	return err
}

func (s *PostgresStore) GetCalculation(ctx context.Context, id string) (*model.Calculation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(pool_id, ''), inputs, result, created_at
		 FROM calculations WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get calculation %s: %w", id, err)
	}
	defer rows.Close()

	calcs, err := scanCalculations(rows)
	if err != nil {
		return nil, err
	}
	if len(calcs) == 0 {
		return nil, fmt.Errorf("calculation %s: %w", id, ErrNotFound)
	}
	return &calcs[0], nil
}

func (s *PostgresStore) ListCalculationsByPool(ctx context.Context, poolID string) ([]model.Calculation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, COALESCE(pool_id, ''), inputs, result, created_at
		 FROM calculations WHERE pool_id = $1 ORDER BY created_at`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanCalculations(rows)
}

// rowScanner is the subset of pgx.Rows used for decoding calculation rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanCalculations reads (id, pool_id, inputs, result, created_at) rows.
func scanCalculations(rows rowScanner) ([]model.Calculation, error) {
	calcs := []model.Calculation{}
	for rows.Next() {
		var c model.Calculation
		var inputs, result []byte

		if err := rows.Scan(&c.ID, &c.PoolID, &inputs, &result, &c.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeCalculation(&c, inputs, result); err != nil {
			return nil, err
		}
		calcs = append(calcs, c)
	}
	return calcs, rows.Err()
}

// calculationInputs is the JSON document stored alongside each result.
type calculationInputs struct {
	Profile    model.PoolProfile        `json:"profile"`
	Target     model.ChemistryTarget    `json:"target"`
	Preference model.ChemicalPreference `json:"preference"`
}

func encodeCalculation(c *model.Calculation) (inputs, result []byte, err error) {
	inputs, err = json.Marshal(calculationInputs{
		Profile:    c.Profile,
		Target:     c.Target,
		Preference: c.Preference,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode calculation inputs: %w", err)
	}
	result, err = json.Marshal(c.Result)
	if err != nil {
		return nil, nil, fmt.Errorf("encode calculation result: %w", err)
	}
	return inputs, result, nil
}

func decodeCalculation(c *model.Calculation, inputs, result []byte) error {
	var in calculationInputs
	if err := json.Unmarshal(inputs, &in); err != nil {
		return fmt.Errorf("decode calculation %s inputs: %w", c.ID, err)
	}
	if err := json.Unmarshal(result, &c.Result); err != nil {
		return fmt.Errorf("decode calculation %s result: %w", c.ID, err)
	}
	c.Profile = in.Profile
	c.Target = in.Target
	c.Preference = in.Preference
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
