// Package minter issues the collectible units sold by the auction house.
// One sale unit is minted per request; every cadence-th identifier (up to
// the bonus cap) is minted to the treasury first as a side-allocation.
package minter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kmaox/auctionhouse/internal/model"
	"github.com/kmaox/auctionhouse/internal/store"
)

// ErrSupplyExhausted signals that no further units can be minted. The
// engine reacts by pausing itself rather than propagating the failure.
var ErrSupplyExhausted = errors.New("minter: supply exhausted")

// ErrNotOwner is returned when a transfer names the wrong current owner.
var ErrNotOwner = errors.New("minter: not unit owner")

// Minter mints units and tracks their ownership. The zero value is not
// usable; construct with New.
type Minter struct {
	mu        sync.Mutex
	nextID    uint64
	cadence   uint64 // bonus every cadence-th id; 0 disables bonuses
	bonusCap  uint64 // last id eligible for a bonus mint
	maxSupply uint64 // highest id ever mintable; 0 = unbounded

	escrow   string // account that holds units while on auction
	treasury string

	owners map[uint64]*model.Unit
	store  store.Store
	now    func() time.Time
}

// Config carries the issuance parameters.
type Config struct {
	Cadence   uint64
	BonusCap  uint64
	MaxSupply uint64
	Escrow    string
	Treasury  string
}

// New creates a minter starting at unit id 1.
func New(cfg Config, st store.Store) *Minter {
	return &Minter{
		nextID:    1,
		cadence:   cfg.Cadence,
		bonusCap:  cfg.BonusCap,
		maxSupply: cfg.MaxSupply,
		escrow:    cfg.Escrow,
		treasury:  cfg.Treasury,
		owners:    make(map[uint64]*model.Unit),
		store:     st,
		now:       time.Now,
	}
}

// Restore reloads persisted units so a restart keeps ownership and resumes
// the identifier sequence instead of re-minting sold ids. Call once at
// boot, before any issuance.
func (m *Minter) Restore(ctx context.Context) error {
	units, err := m.store.ListUnits(ctx)
	if err != nil {
		return fmt.Errorf("restore units: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range units {
		u := units[i]
		m.owners[u.ID] = &u
		if u.ID >= m.nextID {
			m.nextID = u.ID + 1
		}
	}

	if len(units) > 0 {
		slog.Info("units restored", "count", len(units), "next_id", m.nextID)
	}
	return nil
}

// IssueNext mints the next sale unit to the escrow account and returns its
// identifier. When the counter sits on a cadence multiple at or below the
// bonus cap, a bonus unit goes to the treasury first and the counter
// advances past both. Fails only on supply exhaustion.
func (m *Minter) IssueNext(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cadence > 0 && m.nextID <= m.bonusCap && m.nextID%m.cadence == 0 {
		if err := m.mintLocked(ctx, m.treasury, true); err != nil {
			return 0, err
		}
	}

	id := m.nextID
	if err := m.mintLocked(ctx, m.escrow, false); err != nil {
		return 0, err
	}
	return id, nil
}

// mintLocked mints m.nextID to owner and advances the counter. Caller must
// hold the lock.
func (m *Minter) mintLocked(ctx context.Context, owner string, bonus bool) error {
	if m.maxSupply > 0 && m.nextID > m.maxSupply {
		return fmt.Errorf("%w: max supply %d reached", ErrSupplyExhausted, m.maxSupply)
	}

	u := &model.Unit{
		ID:       m.nextID,
		Owner:    owner,
		Bonus:    bonus,
		MintedAt: m.now(),
	}
	m.owners[u.ID] = u
	m.nextID++

	if err := m.store.SaveUnit(ctx, u); err != nil {
		// Ownership in memory stays authoritative; persistence catches up
		// on the next write.
		slog.Warn("persist unit failed", "unit", u.ID, "err", err)
	}

	slog.Info("unit minted", "unit", u.ID, "owner", owner, "bonus", bonus)
	return nil
}

// TransferUnit moves a unit between accounts, checking the current owner.
func (m *Minter) TransferUnit(ctx context.Context, from, to string, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.owners[id]
	if !ok {
		return fmt.Errorf("minter: unit %d does not exist", id)
	}
	if u.Owner != from {
		return fmt.Errorf("%w: unit %d is held by %s, not %s", ErrNotOwner, id, u.Owner, from)
	}

	u.Owner = to
	if err := m.store.SaveUnit(ctx, u); err != nil {
		slog.Warn("persist unit transfer failed", "unit", id, "err", err)
	}
	return nil
}

// OwnerOf returns the current owner of a unit, or empty if never minted.
func (m *Minter) OwnerOf(id uint64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.owners[id]; ok {
		return u.Owner
	}
	return ""
}

// HoldingsOf returns the ids held by an account in ascending order. It is
// the read-only predicate source for the bid-eligibility policies.
func (m *Minter) HoldingsOf(acct string) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uint64
	for id, u := range m.owners {
		if u.Owner == acct {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
