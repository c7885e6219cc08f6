// Package model defines the core domain types shared across the auction house.
// All monetary values use shopspring/decimal — never float64 for money.
// Amounts are integer-valued quantities of the native settlement currency's
// smallest denomination; fractional remainders are always truncated.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EligibilityMode selects the bid-admission policy applied before any other
// bid validation. Public bidding, when enabled, bypasses the mode entirely.
type EligibilityMode string

const (
	// EligibilityOpen admits every bidder.
	EligibilityOpen EligibilityMode = "open"
	// EligibilityGenesis admits bidders holding at least one unit with an
	// identifier at or below the configured genesis cutoff.
	EligibilityGenesis EligibilityMode = "genesis"
	// EligibilityHolder admits bidders holding at least one unit of any id.
	EligibilityHolder EligibilityMode = "holder"
)

// Auction is the single live auction record. It is owned exclusively by the
// engine and mutated only through engine operations. TimeBuffer and
// MinIncrementPct are snapshots of the configuration taken at creation:
// admin setters never apply retroactively to a live auction.
type Auction struct {
	UnitID          uint64          `json:"unit_id" db:"unit_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	StartTime       time.Time       `json:"start_time" db:"start_time"`
	EndTime         time.Time       `json:"end_time" db:"end_time"`
	ReservePrice    decimal.Decimal `json:"reserve_price" db:"reserve_price"`
	Bidder          string          `json:"bidder" db:"bidder"` // empty = no bid yet
	Settled         bool            `json:"settled" db:"settled"`
	TimeBuffer      time.Duration   `json:"time_buffer" db:"time_buffer"`
	MinIncrementPct int64           `json:"min_increment_pct" db:"min_increment_pct"`
}

// Expired reports whether the bidding window has closed. "Expired" is a
// derived condition, never a stored flag — only Settled is persisted.
func (a *Auction) Expired(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// Settlement is an immutable record of one completed auction cycle.
// Winner is empty when the auction ended with zero bids and the unit went
// to the treasury.
type Settlement struct {
	ID        string          `json:"id" db:"id"`
	UnitID    uint64          `json:"unit_id" db:"unit_id"`
	Winner    string          `json:"winner" db:"winner"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	SettledAt time.Time       `json:"settled_at" db:"settled_at"`
}

// Unit is one collectible minted by the issuer. Bonus units are the periodic
// treasury side-allocations minted ahead of a regular sale unit.
type Unit struct {
	ID       uint64    `json:"id" db:"id"`
	Owner    string    `json:"owner" db:"owner"`
	Bonus    bool      `json:"bonus" db:"bonus"`
	MintedAt time.Time `json:"minted_at" db:"minted_at"`
}

// AuthContext carries the caller identity into every mutating engine call.
// It is constructed once at the transport boundary; admin-only operations
// check Admin and nothing else.
type AuthContext struct {
	Account string
	Admin   bool
}
