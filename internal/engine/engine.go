// Package engine implements the recurring auction lifecycle: one unit on
// sale at a time, bid admission with anti-snipe extension, settlement with
// fallback-safe payouts, and immediate rollover into the next cycle.
//
// All state transitions are strictly serialized. A boolean guard is set
// before any external call and cleared only after the operation fully
// completes; a second mutating call arriving in between — including one
// made by a receive hook calling back in — is rejected with
// ErrReentrantCall rather than interleaved.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmaox/auctionhouse/internal/events"
	"github.com/kmaox/auctionhouse/internal/metrics"
	"github.com/kmaox/auctionhouse/internal/model"
	"github.com/kmaox/auctionhouse/internal/oracle"
	"github.com/kmaox/auctionhouse/internal/policy"
	"github.com/kmaox/auctionhouse/internal/store"
	"github.com/kmaox/auctionhouse/internal/treasury"

	"github.com/google/uuid"
)

var oneHundred = decimal.NewFromInt(100)

// Issuer mints sale units and moves their ownership. The minter satisfies
// this interface.
type Issuer interface {
	IssueNext(ctx context.Context) (uint64, error)
	TransferUnit(ctx context.Context, from, to string, id uint64) error
	HoldingsOf(acct string) []uint64
}

// Broadcaster fans lifecycle events out to observers. May be nil.
type Broadcaster interface {
	Publish(ev events.Event)
}

// Config carries the engine's admin-mutable parameters. TimeBuffer,
// MinIncrementPct, and ReserveUSD are snapshotted into each auction at
// creation; changing them affects the next cycle only.
type Config struct {
	Duration        time.Duration
	TimeBuffer      time.Duration
	MinIncrementPct int64
	ReserveUSD      decimal.Decimal // integer-valued USD target
	EligibilityMode model.EligibilityMode
	GenesisCutoff   uint64
	PublicBidding   bool
	Escrow          string // account holding the unit and funds mid-auction
	Treasury        string
}

// Engine owns the single live auction record and the configuration block.
// Both are mutated only through the operations below.
type Engine struct {
	mu   sync.Mutex
	busy bool

	cfg     Config
	paused  bool
	auction *model.Auction

	ledger *treasury.Ledger
	issuer Issuer
	price  oracle.PriceSource
	store  store.Store
	events Broadcaster

	now func() time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithClock overrides the engine's time source. Tests use this to drive
// expiry and the anti-snipe window deterministically.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine in the paused state. Unpause starts the first
// auction cycle.
func New(cfg Config, ledger *treasury.Ledger, issuer Issuer, price oracle.PriceSource, st store.Store, bc Broadcaster, opts ...Option) *Engine {
	metrics.Paused.Set(1)
	e := &Engine{
		cfg:    cfg,
		paused: true,
		ledger: ledger,
		issuer: issuer,
		price:  price,
		store:  st,
		events: bc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Restore reloads the persisted live auction so a restart resumes an open
// cycle instead of stranding it. Call once at boot, before Unpause.
func (e *Engine) Restore(ctx context.Context) error {
	a, err := e.store.LatestAuction(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore auction: %w", err)
	}

	e.mu.Lock()
	e.auction = a
	e.mu.Unlock()

	slog.Info("auction restored", "unit", a.UnitID, "settled", a.Settled,
		"end_time", a.EndTime)
	return nil
}

// --- Reentrancy guard ---

// enter acquires the operation guard. Every mutating entry point wraps
// itself with enter/exit identically; nothing else may mutate state.
func (e *Engine) enter() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return ErrReentrantCall
	}
	e.busy = true
	return nil
}

func (e *Engine) exit() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

// --- Reads ---

// CurrentAuction returns a snapshot of the live auction.
func (e *Engine) CurrentAuction() (model.Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.auction == nil {
		return model.Auction{}, ErrNoAuction
	}
	return *e.auction, nil
}

// Now exposes the engine's clock so callers derive expiry consistently.
func (e *Engine) Now() time.Time {
	return e.now()
}

// IsPaused reports whether the engine is paused.
func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// --- Bidding ---

// PlaceBid validates and records a bid on the live auction, escrowing the
// bid amount, refunding the previous bidder, and extending the end time
// when the bid lands inside the anti-snipe buffer.
func (e *Engine) PlaceBid(ctx context.Context, auth model.AuthContext, unitID uint64, amount decimal.Decimal) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.mu.Lock()
	paused := e.paused
	a := e.auction
	cfg := e.cfg
	e.mu.Unlock()

	if paused {
		return rejectBid(ErrPaused, "paused")
	}
	if a == nil {
		return rejectBid(ErrNoAuction, "no_auction")
	}

	if !cfg.PublicBidding && cfg.EligibilityMode != model.EligibilityOpen {
		pol := policy.ForMode(cfg.EligibilityMode, e.issuer, cfg.GenesisCutoff)
		if !pol.Eligible(auth.Account) {
			return rejectBid(ErrNotEligible, "not_eligible")
		}
	}

	if unitID != a.UnitID {
		return rejectBid(fmt.Errorf("%w: unit %d is on auction, got %d", ErrWrongUnit, a.UnitID, unitID), "wrong_unit")
	}

	now := e.now()
	if a.Expired(now) {
		return rejectBid(ErrExpired, "expired")
	}
	if amount.LessThan(a.ReservePrice) {
		return rejectBid(fmt.Errorf("%w: reserve is %s, got %s", ErrBelowReserve, a.ReservePrice, amount), "below_reserve")
	}

	// Minimum increment applies to the previous high bid, not the reserve.
	// Integer arithmetic with truncation.
	minNext := a.Amount.Add(a.Amount.Mul(decimal.NewFromInt(a.MinIncrementPct)).Div(oneHundred).Truncate(0))
	if amount.LessThan(minNext) {
		return rejectBid(fmt.Errorf("%w: need at least %s, got %s", ErrInsufficientIncrement, minNext, amount), "insufficient_increment")
	}

	// Escrow the new bid before touching auction state. The escrow account
	// holds every live bid, so its balance is externally auditable.
	if err := e.ledger.Transfer(auth.Account, cfg.Escrow, amount); err != nil {
		return rejectBid(err, "insufficient_funds")
	}

	// Refund the outbid party. The safe-transfer fallback means a hostile
	// refund recipient can never block the new bid.
	prevBidder, prevAmount := a.Bidder, a.Amount
	if prevBidder != "" {
		if wrapped := e.ledger.SafeTransfer(cfg.Escrow, prevBidder, prevAmount); wrapped {
			metrics.RefundFallbacks.Inc()
		}
	}

	e.mu.Lock()
	a.Amount = amount
	a.Bidder = auth.Account
	extended := a.EndTime.Sub(now) < a.TimeBuffer
	if extended {
		a.EndTime = now.Add(a.TimeBuffer)
	}
	saved := *a
	e.mu.Unlock()

	e.persistAuction(ctx, &saved)

	metrics.BidsAccepted.Inc()
	metrics.HighBid.Set(amount.InexactFloat64())
	if extended {
		metrics.AuctionExtensions.Inc()
	}

	slog.Info("bid placed",
		"unit", saved.UnitID,
		"bidder", auth.Account,
		"amount", amount.String(),
		"extended", extended,
		"end_time", saved.EndTime,
	)

	e.publish(events.Event{
		Type:     events.TypeBidPlaced,
		UnitID:   saved.UnitID,
		Bidder:   auth.Account,
		Amount:   amount.String(),
		Extended: extended,
		EndTime:  &saved.EndTime,
	})
	if extended {
		e.publish(events.Event{
			Type:    events.TypeAuctionExtended,
			UnitID:  saved.UnitID,
			EndTime: &saved.EndTime,
		})
	}
	return nil
}

func rejectBid(err error, reason string) error {
	metrics.BidsRejected.WithLabelValues(reason).Inc()
	return err
}

// --- Settlement and rollover ---

// SettleAuction settles the expired auction while the engine is paused.
// This path guarantees funds and units are never stuck behind a pause.
func (e *Engine) SettleAuction(ctx context.Context) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if !e.IsPaused() {
		return ErrNotPaused
	}
	return e.settle(ctx)
}

// SettleCurrentAndCreateNew settles the expired auction and immediately
// starts the next cycle. This is the normal unpaused operating mode; the
// guard makes the composition indivisible.
func (e *Engine) SettleCurrentAndCreateNew(ctx context.Context) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	if e.IsPaused() {
		return ErrPaused
	}
	if err := e.settle(ctx); err != nil {
		return err
	}
	return e.create(ctx)
}

// settle finalizes the current auction: unit to the winner (or to the
// treasury when no bid was placed), proceeds to the treasury. Caller must
// hold the operation guard.
func (e *Engine) settle(ctx context.Context) error {
	e.mu.Lock()
	a := e.auction
	cfg := e.cfg
	e.mu.Unlock()

	if a == nil || a.StartTime.IsZero() {
		return ErrNotStarted
	}
	if a.Settled {
		return ErrAlreadySettled
	}
	now := e.now()
	if !a.Expired(now) {
		return fmt.Errorf("%w: ends at %s", ErrNotExpired, a.EndTime)
	}

	e.mu.Lock()
	a.Settled = true
	saved := *a
	e.mu.Unlock()

	// Bid admission never accepts below reserve, so this branch fires only
	// when the auction closed with zero bids.
	outcome := "sold"
	recipient := saved.Bidder
	if saved.Amount.LessThan(saved.ReservePrice) {
		outcome = "unsold"
		recipient = cfg.Treasury
	}
	if err := e.issuer.TransferUnit(ctx, cfg.Escrow, recipient, saved.UnitID); err != nil {
		// The record stays settled; a stuck unit is an operator problem,
		// not a reason to allow double settlement.
		slog.Error("unit transfer failed at settlement",
			"unit", saved.UnitID, "to", recipient, "err", err)
	}

	if saved.Amount.IsPositive() {
		if wrapped := e.ledger.SafeTransfer(cfg.Escrow, cfg.Treasury, saved.Amount); wrapped {
			metrics.RefundFallbacks.Inc()
		}
	}

	e.persistAuction(ctx, &saved)

	winner := saved.Bidder
	if outcome == "unsold" {
		winner = ""
	}
	settlement := &model.Settlement{
		ID:        uuid.New().String(),
		UnitID:    saved.UnitID,
		Winner:    winner,
		Amount:    saved.Amount,
		SettledAt: now,
	}
	if err := e.store.InsertSettlement(ctx, settlement); err != nil {
		slog.Warn("persist settlement failed", "unit", saved.UnitID, "err", err)
	}

	metrics.AuctionsSettled.WithLabelValues(outcome).Inc()

	slog.Info("auction settled",
		"unit", saved.UnitID,
		"winner", winner,
		"amount", saved.Amount.String(),
		"outcome", outcome,
	)

	e.publish(events.Event{
		Type:   events.TypeAuctionSettled,
		UnitID: saved.UnitID,
		Winner: winner,
		Amount: saved.Amount.String(),
	})
	return nil
}

// create starts the next auction cycle. Collaborator failures pause the
// engine instead of propagating: availability over liveness, resumed by an
// admin once the collaborator recovers. Caller must hold the operation
// guard.
func (e *Engine) create(ctx context.Context) error {
	e.mu.Lock()
	cfg := e.cfg
	e.mu.Unlock()

	price, err := e.price.LatestPrice(ctx)
	if err != nil {
		slog.Error("price feed unavailable, pausing", "err", err)
		e.setPaused(true)
		return nil
	}

	unitID, err := e.issuer.IssueNext(ctx)
	if err != nil {
		slog.Error("unit issuance failed, pausing", "err", err)
		e.setPaused(true)
		return nil
	}

	// Reserve is snapshotted once, at creation. Truncation toward zero,
	// never rounding to nearest.
	reserve := cfg.ReserveUSD.Div(price).Truncate(0)
	now := e.now()

	a := &model.Auction{
		UnitID:          unitID,
		Amount:          decimal.Zero,
		StartTime:       now,
		EndTime:         now.Add(cfg.Duration),
		ReservePrice:    reserve,
		TimeBuffer:      cfg.TimeBuffer,
		MinIncrementPct: cfg.MinIncrementPct,
	}

	e.mu.Lock()
	e.auction = a
	saved := *a
	e.mu.Unlock()

	e.persistAuction(ctx, &saved)

	metrics.AuctionsCreated.Inc()
	metrics.HighBid.Set(0)

	slog.Info("auction created",
		"unit", unitID,
		"reserve", reserve.String(),
		"price", price.String(),
		"end_time", saved.EndTime,
	)

	e.publish(events.Event{
		Type:      events.TypeAuctionCreated,
		UnitID:    unitID,
		Amount:    reserve.String(),
		StartTime: &saved.StartTime,
		EndTime:   &saved.EndTime,
	})
	return nil
}

// --- Pause control ---

// Pause halts new bids and auction creation. Settlement of an expired
// auction stays available through SettleAuction.
func (e *Engine) Pause(_ context.Context, auth model.AuthContext) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.setPaused(true)
	e.publish(events.Event{Type: events.TypePaused})
	return nil
}

// Unpause resumes operation and, when no live auction exists (none yet, or
// the last one settled), immediately starts a new cycle.
func (e *Engine) Unpause(ctx context.Context, auth model.AuthContext) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.setPaused(false)
	e.publish(events.Event{Type: events.TypeUnpaused})

	e.mu.Lock()
	needsAuction := e.auction == nil || e.auction.Settled
	e.mu.Unlock()

	if needsAuction {
		return e.create(ctx)
	}
	return nil
}

func (e *Engine) setPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()

	if paused {
		metrics.Paused.Set(1)
		slog.Info("engine paused")
	} else {
		metrics.Paused.Set(0)
		slog.Info("engine unpaused")
	}
}

// --- Configuration setters (admin-only, next auction onward) ---

// SetTimeBuffer updates the anti-snipe buffer for subsequent auctions.
func (e *Engine) SetTimeBuffer(_ context.Context, auth model.AuthContext, d time.Duration) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	if d < 0 {
		return fmt.Errorf("engine: time buffer must not be negative, got %s", d)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.mu.Lock()
	e.cfg.TimeBuffer = d
	e.mu.Unlock()

	slog.Info("time buffer updated", "value", d)
	e.publish(events.Event{Type: events.TypeConfigUpdated, Setting: "time_buffer", Value: d.String()})
	return nil
}

// SetReserveUSD updates the USD reserve target for subsequent auctions.
func (e *Engine) SetReserveUSD(_ context.Context, auth model.AuthContext, usd decimal.Decimal) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	if !usd.IsPositive() {
		return fmt.Errorf("engine: reserve must be positive, got %s", usd)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.mu.Lock()
	e.cfg.ReserveUSD = usd
	e.mu.Unlock()

	slog.Info("reserve updated", "usd", usd.String())
	e.publish(events.Event{Type: events.TypeConfigUpdated, Setting: "reserve_usd", Value: usd.String()})
	return nil
}

// SetMinIncrementPct updates the minimum bid increment for subsequent
// auctions.
func (e *Engine) SetMinIncrementPct(_ context.Context, auth model.AuthContext, pct int64) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	if pct < 0 {
		return fmt.Errorf("engine: increment percentage must not be negative, got %d", pct)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.mu.Lock()
	e.cfg.MinIncrementPct = pct
	e.mu.Unlock()

	slog.Info("min increment updated", "pct", pct)
	e.publish(events.Event{Type: events.TypeConfigUpdated, Setting: "min_increment_pct", Value: fmt.Sprintf("%d", pct)})
	return nil
}

// SetEligibilityMode switches the bid-admission policy.
func (e *Engine) SetEligibilityMode(_ context.Context, auth model.AuthContext, mode model.EligibilityMode) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	switch mode {
	case model.EligibilityOpen, model.EligibilityGenesis, model.EligibilityHolder:
	default:
		return fmt.Errorf("engine: unknown eligibility mode %q", mode)
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.mu.Lock()
	e.cfg.EligibilityMode = mode
	e.mu.Unlock()

	slog.Info("eligibility mode updated", "mode", mode)
	e.publish(events.Event{Type: events.TypeConfigUpdated, Setting: "eligibility_mode", Value: string(mode)})
	return nil
}

// SetPublicBidding toggles the bypass of the eligibility policy.
func (e *Engine) SetPublicBidding(_ context.Context, auth model.AuthContext, public bool) error {
	if !auth.Admin {
		return ErrNotAdmin
	}
	if err := e.enter(); err != nil {
		return err
	}
	defer e.exit()

	e.mu.Lock()
	e.cfg.PublicBidding = public
	e.mu.Unlock()

	slog.Info("public bidding updated", "enabled", public)
	e.publish(events.Event{Type: events.TypeConfigUpdated, Setting: "public_bidding", Value: fmt.Sprintf("%t", public)})
	return nil
}

// --- Helpers ---

func (e *Engine) persistAuction(ctx context.Context, a *model.Auction) {
	if err := e.store.SaveAuction(ctx, a); err != nil {
		// In-memory state stays authoritative; the next write catches up.
		slog.Warn("persist auction failed", "unit", a.UnitID, "err", err)
	}
}

func (e *Engine) publish(ev events.Event) {
	if e.events != nil {
		e.events.Publish(ev)
	}
}
