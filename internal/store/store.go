// Package store defines the persistence interface for the auction house.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing). The engine remains authoritative for
// the live auction between writes; the store exists so a restart can resume
// an open auction and so settlement history survives the process.
package store

import (
	"context"
	"errors"

	"github.com/kmaox/auctionhouse/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Auction state ---

	// SaveAuction upserts the auction record keyed by unit id.
	SaveAuction(ctx context.Context, a *model.Auction) error

	// LatestAuction returns the most recently created auction, settled or
	// not, or ErrNotFound when no auction has ever been created.
	LatestAuction(ctx context.Context) (*model.Auction, error)

	// --- Immutable settlement history ---

	// InsertSettlement appends an immutable settlement record.
	InsertSettlement(ctx context.Context, s *model.Settlement) error

	// ListSettlements returns all settlements, newest first.
	ListSettlements(ctx context.Context) ([]model.Settlement, error)

	// --- Units ---

	// SaveUnit upserts a unit record (mint or ownership change).
	SaveUnit(ctx context.Context, u *model.Unit) error

	// ListUnits returns every minted unit, ascending by id. Used to rebuild
	// ownership state on boot.
	ListUnits(ctx context.Context) ([]model.Unit, error)

	// ListUnitsByOwner returns the units held by an account, ascending by id.
	ListUnitsByOwner(ctx context.Context, owner string) ([]model.Unit, error)
}
