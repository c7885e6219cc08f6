// Package treasury tracks native and wrapped balances for every account and
// provides the safe-transfer helper used on every refund and payout path.
//
// SafeTransfer never fails because of recipient behavior: a direct credit is
// attempted first under a small fixed time stipend, and any refusal, panic,
// or overrun falls back to crediting the recipient's wrapped balance. The
// payer's forward progress is never blocked by a hostile payee.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a debit exceeds the account's
// native balance.
var ErrInsufficientFunds = errors.New("treasury: insufficient funds")

// DefaultStipend bounds how long a receive hook may run before the transfer
// falls back to the wrapped path. Sized for a trivial acknowledgement only.
const DefaultStipend = 50 * time.Millisecond

// Receiver is an optional hook an account can register to observe direct
// credits. The context carries the stipend deadline; hooks must return
// before it expires or the credit is delivered wrapped instead.
type Receiver interface {
	ReceiveFunds(ctx context.Context, from string, amount decimal.Decimal) error
}

// Balance is a point-in-time snapshot of one account.
type Balance struct {
	Native  decimal.Decimal `json:"native"`
	Wrapped decimal.Decimal `json:"wrapped"`
}

type account struct {
	native  decimal.Decimal
	wrapped decimal.Decimal
}

// Ledger holds all account balances. It is safe for concurrent use; receive
// hooks run outside the ledger lock so they may call back into other
// components (those components guard themselves).
type Ledger struct {
	mu        sync.Mutex
	accounts  map[string]*account
	receivers map[string]Receiver
	stipend   time.Duration
}

// NewLedger creates an empty ledger with the default receive stipend.
func NewLedger() *Ledger {
	return &Ledger{
		accounts:  make(map[string]*account),
		receivers: make(map[string]Receiver),
		stipend:   DefaultStipend,
	}
}

// RegisterReceiver attaches a receive hook to an account. Passing nil
// removes any existing hook.
func (l *Ledger) RegisterReceiver(acct string, r Receiver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r == nil {
		delete(l.receivers, acct)
		return
	}
	l.receivers[acct] = r
}

// Deposit credits an account's native balance.
func (l *Ledger) Deposit(acct string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("treasury: deposit amount must be positive, got %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.get(acct).native = l.get(acct).native.Add(amount)
	return nil
}

// Transfer moves native balance between accounts with no receive hook.
// Used by the engine to escrow an incoming bid, so the escrow account's
// balance always reflects the funds it holds.
func (l *Ledger) Transfer(from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("treasury: transfer amount must be positive, got %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(from)
	if a.native.LessThan(amount) {
		return fmt.Errorf("%w: account %s has %s, need %s", ErrInsufficientFunds, from, a.native, amount)
	}
	a.native = a.native.Sub(amount)
	l.get(to).native = l.get(to).native.Add(amount)
	return nil
}

// BalanceOf returns the account's current balances.
func (l *Ledger) BalanceOf(acct string) Balance {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := l.get(acct)
	return Balance{Native: a.native, Wrapped: a.wrapped}
}

// SafeTransfer debits the payer and credits the recipient, trying the
// direct path first and falling back to the wrapped balance when the
// recipient's hook refuses, panics, or outlives the stipend. The returned
// flag reports whether the wrapped fallback was used. SafeTransfer itself
// never fails: callers escrow funds up front, so the payer always covers
// the amount, and recipient behavior only selects the delivery path.
func (l *Ledger) SafeTransfer(from, to string, amount decimal.Decimal) (wrapped bool) {
	if !amount.IsPositive() {
		return false
	}

	l.mu.Lock()
	payer := l.get(from)
	payer.native = payer.native.Sub(amount)
	l.mu.Unlock()

	if err := l.directTransfer(from, to, amount); err != nil {
		slog.Warn("direct transfer refused, delivering wrapped",
			"to", to, "amount", amount.String(), "err", err)
		l.wrappedTransfer(to, amount)
		return true
	}
	return false
}

// directTransfer runs the recipient's hook (if any) under the stipend and
// credits the native balance on acceptance. The hook executes outside the
// ledger lock.
func (l *Ledger) directTransfer(from, to string, amount decimal.Decimal) error {
	l.mu.Lock()
	r := l.receivers[to]
	stipend := l.stipend
	l.mu.Unlock()

	if r != nil {
		if err := runHook(r, from, amount, stipend); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.get(to).native = l.get(to).native.Add(amount)
	l.mu.Unlock()
	return nil
}

// wrappedTransfer credits the recipient's wrapped balance unconditionally.
func (l *Ledger) wrappedTransfer(to string, amount decimal.Decimal) {
	l.mu.Lock()
	l.get(to).wrapped = l.get(to).wrapped.Add(amount)
	l.mu.Unlock()
}

// runHook invokes the receive hook with a deadline. A hook that does not
// return within the stipend is abandoned and the transfer falls back; the
// stipend exists precisely so recipients cannot run expensive logic inside
// a payout.
func runHook(r Receiver, from string, amount decimal.Decimal, stipend time.Duration) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), stipend)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("treasury: receive hook panicked: %v", rec)
			}
		}()
		done <- r.ReceiveFunds(ctx, from, amount)
	}()

	select {
	case err = <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("treasury: receive hook exceeded stipend of %s", stipend)
	}
}

// get returns the account record, creating it on first touch. Caller must
// hold the lock.
func (l *Ledger) get(acct string) *account {
	a, ok := l.accounts[acct]
	if !ok {
		a = &account{native: decimal.Zero, wrapped: decimal.Zero}
		l.accounts[acct] = a
	}
	return a
}
