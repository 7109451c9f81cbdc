package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// SQLiteStore implements Store on a single SQLite file. It suits embedded
// and single-operator deployments where running PostgreSQL is not worth it.
// Timestamps are stored as Unix nanoseconds.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pools (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	volume_gallons       REAL NOT NULL,
	total_alkalinity_ppm REAL NOT NULL,
	water_temperature_f  REAL NOT NULL,
	surface_material     TEXT NOT NULL,
	created_at           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS calculations (
	id             TEXT PRIMARY KEY,
	pool_id        TEXT NOT NULL DEFAULT '',
	direction      TEXT NOT NULL,
	chemical_id    TEXT NOT NULL,
	primary_amount TEXT NOT NULL,
	primary_unit   TEXT NOT NULL,
	inputs         BLOB NOT NULL,
	result         BLOB NOT NULL,
	created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS calculations_pool_idx ON calculations (pool_id, created_at);
`

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "ph-adjuster.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) CreatePool(ctx context.Context, p *model.Pool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pools (id, name, volume_gallons, total_alkalinity_ppm, water_temperature_f, surface_material, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name,
		p.Profile.VolumeGallons, p.Profile.TotalAlkalinityPpm, p.Profile.WaterTemperatureF,
		string(p.Profile.SurfaceMaterial), p.CreatedAt.UnixNano(),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("pool %s: %w", p.ID, ErrDuplicate)
	}
	return err
}

func (s *SQLiteStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, volume_gallons, total_alkalinity_ppm, water_temperature_f, surface_material, created_at
		 FROM pools WHERE id = ?`, id)
	p, err := scanPool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return p, nil
}

func (s *SQLiteStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, volume_gallons, total_alkalinity_ppm, water_temperature_f, surface_material, created_at
		 FROM pools ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	pools := []model.Pool{}
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (s *SQLiteStore) InsertCalculation(ctx context.Context, c *model.Calculation) error {
	inputs, result, err := encodeCalculation(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calculations (id, pool_id, direction, chemical_id, primary_amount, primary_unit, inputs, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PoolID, string(c.Result.Direction), c.Result.ChemicalID,
		c.Result.PrimaryDose.Amount.String(), c.Result.PrimaryDose.Unit,
		inputs, result, c.CreatedAt.UnixNano(),
	)
	if isConstraintViolation(err) {
		return fmt.Errorf("calculation %s: %w", c.ID, ErrDuplicate)
	}
	return err
}

func (s *SQLiteStore) GetCalculation(ctx context.Context, id string) (*model.Calculation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pool_id, inputs, result, created_at FROM calculations WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get calculation %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	calcs, err := scanSQLiteCalculations(rows)
	if err != nil {
		return nil, err
	}
	if len(calcs) == 0 {
		return nil, fmt.Errorf("calculation %s: %w", id, ErrNotFound)
	}
	return &calcs[0], nil
}

func (s *SQLiteStore) ListCalculationsByPool(ctx context.Context, poolID string) ([]model.Calculation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pool_id, inputs, result, created_at
		 FROM calculations WHERE pool_id = ? ORDER BY created_at, rowid`, poolID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanSQLiteCalculations(rows)
}

type sqlScanner interface {
	Scan(dest ...any) error
}

func scanPool(row sqlScanner) (*model.Pool, error) {
	var p model.Pool
	var surface string
	var created int64
	if err := row.Scan(&p.ID, &p.Name,
		&p.Profile.VolumeGallons, &p.Profile.TotalAlkalinityPpm, &p.Profile.WaterTemperatureF,
		&surface, &created); err != nil {
		return nil, err
	}
	p.Profile.SurfaceMaterial = model.Surface(surface)
	p.CreatedAt = time.Unix(0, created).UTC()
	return &p, nil
}

func scanSQLiteCalculations(rows *sql.Rows) ([]model.Calculation, error) {
	calcs := []model.Calculation{}
	for rows.Next() {
		var c model.Calculation
		var inputs, result []byte
		var created int64
		if err := rows.Scan(&c.ID, &c.PoolID, &inputs, &result, &created); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if err := decodeCalculation(&c, inputs, result); err != nil {
			return nil, err
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		calcs = append(calcs, c)
	}
	return calcs, rows.Err()
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
