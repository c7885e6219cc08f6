package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kmaox/auctionhouse/internal/model"
)

const (
	latestAuctionKey = "auction:latest"
	settlementsKey   = "settlements:all"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh or invalidate the cache;
// reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through ---

func (s *CachedStore) SaveAuction(ctx context.Context, a *model.Auction) error {
	if err := s.primary.SaveAuction(ctx, a); err != nil {
		return err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, latestAuctionKey, data, s.ttl)
	}
	return nil
}

func (s *CachedStore) InsertSettlement(ctx context.Context, st *model.Settlement) error {
	if err := s.primary.InsertSettlement(ctx, st); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, settlementsKey)
	return nil
}

func (s *CachedStore) SaveUnit(ctx context.Context, u *model.Unit) error {
	return s.primary.SaveUnit(ctx, u)
}

// --- Read-through ---

func (s *CachedStore) LatestAuction(ctx context.Context) (*model.Auction, error) {
	data, err := s.rdb.Get(ctx, latestAuctionKey).Bytes()
	if err == nil {
		var a model.Auction
		if json.Unmarshal(data, &a) == nil {
			return &a, nil
		}
	}

	a, err := s.primary.LatestAuction(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(a); err == nil {
		s.rdb.Set(ctx, latestAuctionKey, data, s.ttl)
	}
	return a, nil
}

func (s *CachedStore) ListSettlements(ctx context.Context) ([]model.Settlement, error) {
	data, err := s.rdb.Get(ctx, settlementsKey).Bytes()
	if err == nil {
		var out []model.Settlement
		if json.Unmarshal(data, &out) == nil {
			return out, nil
		}
	}

	out, err := s.primary.ListSettlements(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(out); err == nil {
		s.rdb.Set(ctx, settlementsKey, data, s.ttl)
	}
	return out, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListUnits(ctx context.Context) ([]model.Unit, error) {
	return s.primary.ListUnits(ctx)
}

func (s *CachedStore) ListUnitsByOwner(ctx context.Context, owner string) ([]model.Unit, error) {
	return s.primary.ListUnitsByOwner(ctx, owner)
}
