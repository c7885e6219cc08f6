package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kmaox/auctionhouse/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	auctions    []model.Auction // creation order; last entry is the latest
	settlements []model.Settlement
	units       map[uint64]model.Unit
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		units: make(map[uint64]model.Unit),
	}
}

func (s *MemoryStore) SaveAuction(_ context.Context, a *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.auctions {
		if s.auctions[i].UnitID == a.UnitID {
			s.auctions[i] = *a
			return nil
		}
	}
	s.auctions = append(s.auctions, *a)
	return nil
}

func (s *MemoryStore) LatestAuction(_ context.Context) (*model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.auctions) == 0 {
		return nil, ErrNotFound
	}
	a := s.auctions[len(s.auctions)-1]
	return &a, nil
}

func (s *MemoryStore) InsertSettlement(_ context.Context, st *model.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settlements = append(s.settlements, *st)
	return nil
}

func (s *MemoryStore) ListSettlements(_ context.Context) ([]model.Settlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Settlement, len(s.settlements))
	for i, st := range s.settlements {
		out[len(s.settlements)-1-i] = st
	}
	return out, nil
}

func (s *MemoryStore) SaveUnit(_ context.Context, u *model.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.units[u.ID] = *u
	return nil
}

func (s *MemoryStore) ListUnits(_ context.Context) ([]model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListUnitsByOwner(_ context.Context, owner string) ([]model.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Unit
	for _, u := range s.units {
		if u.Owner == owner {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
