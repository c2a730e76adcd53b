package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/ports"

	"github.com/redis/go-redis/v9"
)

// CachedFactStore puts a Redis hot layer in front of another FactStore.
// Reads go through the cache first and fall back to the inner store for
// misses; inner hits and successful upserts are cached with a TTL. Cache
// failures are logged and never surfaced: the cache may only make a
// request faster, not fail it.
//
// The staged bulk path bypasses the cache on purpose; the TTL bounds how
// long a backfill-merged value can stay shadowed by an older cached one.
type CachedFactStore struct {
	inner ports.FactStore
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedFactStore(inner ports.FactStore, rdb *redis.Client, ttl time.Duration) *CachedFactStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &CachedFactStore{inner: inner, rdb: rdb, ttl: ttl}
}

// cachedFact is the wire form of a fact in Redis. RequiresSaving is not
// stored: anything read from the cache was persisted already.
type cachedFact struct {
	DistanceMeters      *float64 `json:"m,omitempty"`
	BusinessTransitDays *int     `json:"d,omitempty"`
	SaturdayDelivery    *bool    `json:"s,omitempty"`
}

func factKey(destinationZip, branchNumber string) string {
	return fmt.Sprintf("fact:%s:%s", destinationZip, branchNumber)
}

func (c *CachedFactStore) GetFacts(
	ctx context.Context,
	destinationZip string,
	branchNumbers []string,
) ([]domain.BranchFact, error) {
	uniq := dedupe(branchNumbers)
	if len(uniq) == 0 {
		return []domain.BranchFact{}, nil
	}

	hits := c.readCache(ctx, destinationZip, uniq)

	misses := make([]string, 0, len(uniq))
	for _, b := range uniq {
		if _, ok := hits[b]; !ok {
			misses = append(misses, b)
		}
	}

	out := make([]domain.BranchFact, 0, len(uniq))
	for _, f := range hits {
		out = append(out, f)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fromStore, err := c.inner.GetFacts(ctx, destinationZip, misses)
	if err != nil {
		return nil, err
	}

	c.writeCache(ctx, fromStore)

	return append(out, fromStore...), nil
}

func (c *CachedFactStore) UpsertFact(ctx context.Context, fact domain.BranchFact) error {
	if err := c.inner.UpsertFact(ctx, fact); err != nil {
		return err
	}

	// The upsert may have filled only some columns; drop the key so the
	// next read sees the merged row instead of a partial cached one.
	if err := c.rdb.Del(ctx, factKey(fact.DestinationZip, fact.BranchNumber)).Err(); err != nil {
		log.Printf("fact cache: invalidate branch=%q zip=%q failed: %v", fact.BranchNumber, fact.DestinationZip, err)
	}

	return nil
}

func (c *CachedFactStore) BulkStageInsert(ctx context.Context, facts []domain.BranchFact) error {
	return c.inner.BulkStageInsert(ctx, facts)
}

func (c *CachedFactStore) MergeStaged(ctx context.Context) error {
	return c.inner.MergeStaged(ctx)
}

func (c *CachedFactStore) TruncateStaged(ctx context.Context) error {
	return c.inner.TruncateStaged(ctx)
}

func (c *CachedFactStore) readCache(ctx context.Context, destinationZip string, branches []string) map[string]domain.BranchFact {
	keys := make([]string, len(branches))
	for i, b := range branches {
		keys[i] = factKey(destinationZip, b)
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("fact cache: mget failed: %v", err)
		return map[string]domain.BranchFact{}
	}

	hits := make(map[string]domain.BranchFact, len(branches))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}

		var cf cachedFact
		if err := json.Unmarshal([]byte(raw), &cf); err != nil {
			log.Printf("fact cache: decode key=%q failed: %v", keys[i], err)
			continue
		}

		hits[branches[i]] = domain.BranchFact{
			BranchNumber:        branches[i],
			DestinationZip:      destinationZip,
			DistanceMeters:      cf.DistanceMeters,
			BusinessTransitDays: cf.BusinessTransitDays,
			SaturdayDelivery:    cf.SaturdayDelivery,
		}
	}

	return hits
}

func (c *CachedFactStore) writeCache(ctx context.Context, facts []domain.BranchFact) {
	if len(facts) == 0 {
		return
	}

	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, f := range facts {
			payload, err := json.Marshal(cachedFact{
				DistanceMeters:      f.DistanceMeters,
				BusinessTransitDays: f.BusinessTransitDays,
				SaturdayDelivery:    f.SaturdayDelivery,
			})
			if err != nil {
				return err
			}
			pipe.Set(ctx, factKey(f.DestinationZip, f.BranchNumber), payload, c.ttl)
		}
		return nil
	})
	if err != nil {
		log.Printf("fact cache: populate failed: %v", err)
	}
}
