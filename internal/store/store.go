// Package store defines the persistence interface for saved pools and the
// calculation log. Implementations include PostgreSQL (source of truth),
// SQLite (single-file deployments), Redis (read-through cache), and
// in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// ErrNotFound is returned when a pool or calculation does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when a record with the same ID already exists.
var ErrDuplicate = errors.New("store: duplicate id")

// Store is the persistence interface. Calculations are an append-only log:
// once inserted they are never updated.
type Store interface {
	// --- Pool operations ---

	// CreatePool persists a new saved pool.
	CreatePool(ctx context.Context, pool *model.Pool) error

	// GetPool retrieves a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// ListPools returns all saved pools, newest first.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// --- Calculation log ---

	// InsertCalculation appends an immutable calculation record.
	InsertCalculation(ctx context.Context, calc *model.Calculation) error

	// GetCalculation retrieves one calculation by its ID.
	GetCalculation(ctx context.Context, id string) (*model.Calculation, error)

	// ListCalculationsByPool returns the calculations recorded for a pool,
	// oldest first.
	ListCalculationsByPool(ctx context.Context, poolID string) ([]model.Calculation, error)
}
