package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu    sync.RWMutex
	pools map[string]*model.Pool
	calcs map[string]*model.Calculation
	log   []string // calculation IDs in insertion order
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools: make(map[string]*model.Pool),
		calcs: make(map[string]*model.Calculation),
	}
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[p.ID]; ok {
		return fmt.Errorf("pool %s: %w", p.ID, ErrDuplicate)
	}

	// Store a copy to avoid external mutation.
	copy := *p
	s.pools[p.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	copy := *p
	return &copy, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p)
	}
	sort.Slice(pools, func(i, j int) bool {
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})
	return pools, nil
}

func (s *MemoryStore) InsertCalculation(_ context.Context, c *model.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calcs[c.ID]; ok {
		return fmt.Errorf("calculation %s: %w", c.ID, ErrDuplicate)
	}
	s.calcs[c.ID] = cloneCalculation(c)
	s.log = append(s.log, c.ID)
	return nil
}

func (s *MemoryStore) GetCalculation(_ context.Context, id string) (*model.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.calcs[id]
	if !ok {
		return nil, fmt.Errorf("calculation %s: %w", id, ErrNotFound)
	}
	return cloneCalculation(c), nil
}

func (s *MemoryStore) ListCalculationsByPool(_ context.Context, poolID string) ([]model.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []model.Calculation{}
	for _, id := range s.log {
		if c := s.calcs[id]; c.PoolID == poolID {
			result = append(result, *cloneCalculation(c))
		}
	}
	return result, nil
}

// cloneCalculation copies c including the slices and pointers inside its
// result, so neither the store nor the caller can see the other's writes.
func cloneCalculation(c *model.Calculation) *model.Calculation {
	out := *c
	r := &out.Result
	r.Warnings = slices.Clone(c.Result.Warnings)
	r.Instructions = slices.Clone(c.Result.Instructions)
	if c.Result.SecondaryDose != nil {
		q := *c.Result.SecondaryDose
		r.SecondaryDose = &q
	}
	if c.Result.SurfaceAdvisory != nil {
		a := *c.Result.SurfaceAdvisory
		r.SurfaceAdvisory = &a
	}
	return &out
}
