package engine

import (
	"errors"

	"github.com/kmaox/auctionhouse/internal/treasury"
)

// Validation errors: rejected synchronously, no state mutated, the caller
// may retry with corrected input.
var (
	// ErrWrongUnit is returned when a bid names a unit other than the one
	// currently on auction (defends against stale-UI races).
	ErrWrongUnit = errors.New("engine: bid is for the wrong unit")

	// ErrExpired is returned when a bid arrives after the bidding window
	// closed.
	ErrExpired = errors.New("engine: auction expired")

	// ErrBelowReserve is returned when a bid is below the reserve price.
	// The reserve check is independent of the increment check.
	ErrBelowReserve = errors.New("engine: bid below reserve price")

	// ErrInsufficientIncrement is returned when a bid does not clear the
	// previous high bid plus the configured minimum increment.
	ErrInsufficientIncrement = errors.New("engine: bid increment too small")

	// ErrNotEligible is returned when the eligibility policy rejects the
	// bidder and public bidding is disabled.
	ErrNotEligible = errors.New("engine: bidder not eligible")

	// ErrInsufficientFunds is returned when the bidder's account cannot
	// cover the bid escrow.
	ErrInsufficientFunds = treasury.ErrInsufficientFunds
)

// Precondition errors: guards against misordered calls.
var (
	// ErrNoAuction is returned when no auction has been created yet.
	ErrNoAuction = errors.New("engine: no auction exists")

	// ErrNotStarted is returned when settlement is attempted before the
	// auction ever started.
	ErrNotStarted = errors.New("engine: auction has not started")

	// ErrAlreadySettled is returned on a second settlement attempt.
	ErrAlreadySettled = errors.New("engine: auction already settled")

	// ErrNotExpired is returned when settlement is attempted while the
	// bidding window is still open.
	ErrNotExpired = errors.New("engine: auction has not expired")

	// ErrPaused is returned when a bid or rollover arrives while paused.
	ErrPaused = errors.New("engine: paused")

	// ErrNotPaused is returned when the direct settle path is used while
	// running; the rollover path settles unpaused auctions.
	ErrNotPaused = errors.New("engine: not paused")
)

// ErrNotAdmin is returned when a non-admin caller invokes an admin-only
// operation.
var ErrNotAdmin = errors.New("engine: admin only")

// ErrReentrantCall is returned when a state-mutating operation begins while
// another is still in flight, including nested calls made by external code
// invoked during refunds or payouts. The guard always rejects cleanly; the
// outer operation completes with correct state.
var ErrReentrantCall = errors.New("engine: reentrant call rejected")
