package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/aquacalc/ph-adjuster/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL or SQLite) with a Redis
// read-through cache. Writes go to the primary store and then refresh or
// invalidate the cache; reads check Redis first then fall back to the
// primary. Concurrent misses for the same key share one primary read.
// Redis errors are never surfaced: the primary is always authoritative.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	group   singleflight.Group
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then update the cache) ---

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.CreatePool(ctx, p); err != nil {
		return err
	}
	s.cache(ctx, poolKey(p.ID), p)
	return nil
}

func (s *CachedStore) InsertCalculation(ctx context.Context, c *model.Calculation) error {
	if err := s.primary.InsertCalculation(ctx, c); err != nil {
		return err
	}
	s.cache(ctx, calcKey(c.ID), c)
	if c.PoolID != "" {
		// Invalidate the pool history; next read will re-populate.
		s.rdb.Del(ctx, historyKey(c.PoolID))
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	var p model.Pool
	if s.lookup(ctx, poolKey(id), &p) {
		return &p, nil
	}

	// Cache miss: read from primary.
	v, err, _ := s.group.Do(poolKey(id), func() (any, error) {
		pool, err := s.primary.GetPool(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache(ctx, poolKey(id), pool)
		return pool, nil
	})
	if err != nil {
		return nil, err
	}
	p = *v.(*model.Pool)
	return &p, nil
}

func (s *CachedStore) GetCalculation(ctx context.Context, id string) (*model.Calculation, error) {
	var c model.Calculation
	if s.lookup(ctx, calcKey(id), &c) {
		return &c, nil
	}

	v, err, _ := s.group.Do(calcKey(id), func() (any, error) {
		calc, err := s.primary.GetCalculation(ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache(ctx, calcKey(id), calc)
		return calc, nil
	})
	if err != nil {
		return nil, err
	}
	c = *v.(*model.Calculation)
	return &c, nil
}

func (s *CachedStore) ListCalculationsByPool(ctx context.Context, poolID string) ([]model.Calculation, error) {
	var calcs []model.Calculation
	if s.lookup(ctx, historyKey(poolID), &calcs) {
		return calcs, nil
	}

	v, err, _ := s.group.Do(historyKey(poolID), func() (any, error) {
		calcs, err := s.primary.ListCalculationsByPool(ctx, poolID)
		if err != nil {
			return nil, err
		}
		s.cache(ctx, historyKey(poolID), calcs)
		return calcs, nil
	})
	if err != nil {
		return nil, err
	}
	calcs = append([]model.Calculation{}, v.([]model.Calculation)...)
	return calcs, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) lookup(ctx context.Context, key string, dest any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *CachedStore) cache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func poolKey(id string) string        { return fmt.Sprintf("pool:%s", id) }
func calcKey(id string) string        { return fmt.Sprintf("calc:%s", id) }
func historyKey(poolID string) string { return fmt.Sprintf("history:%s", poolID) }
