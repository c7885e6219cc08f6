// Package policy implements the pluggable bid-eligibility gate.
//
// The gate is a pure read-only predicate consulted before any other bid
// validation. The shipped default admits everyone — the holdings-based
// restriction exists as an optional mode, never silently enabled. When the
// public-bidding toggle is on, the configured policy is bypassed entirely.
package policy

import (
	"github.com/kmaox/auctionhouse/internal/model"
)

// HoldingsSource exposes the units an account currently holds, ascending
// by identifier. The minter satisfies this interface.
type HoldingsSource interface {
	HoldingsOf(acct string) []uint64
}

// BidPolicy decides whether a bidder may participate. Implementations must
// be side-effect free.
type BidPolicy interface {
	// Eligible reports whether the account may place a bid.
	Eligible(acct string) bool
	// Mode names the policy for logging and events.
	Mode() model.EligibilityMode
}

// AllowAll admits every bidder. This is the default policy.
type AllowAll struct{}

func (AllowAll) Eligible(string) bool        { return true }
func (AllowAll) Mode() model.EligibilityMode { return model.EligibilityOpen }

// GenesisOnly admits bidders holding at least one unit with an identifier
// at or below the cutoff.
type GenesisOnly struct {
	Holdings HoldingsSource
	Cutoff   uint64
}

func (p GenesisOnly) Eligible(acct string) bool {
	for _, id := range p.Holdings.HoldingsOf(acct) {
		if id <= p.Cutoff {
			return true
		}
		// Holdings are ascending; nothing later can qualify.
		break
	}
	return false
}

func (GenesisOnly) Mode() model.EligibilityMode { return model.EligibilityGenesis }

// HolderOnly admits bidders holding at least one unit of any identifier.
type HolderOnly struct {
	Holdings HoldingsSource
}

func (p HolderOnly) Eligible(acct string) bool {
	return len(p.Holdings.HoldingsOf(acct)) > 0
}

func (HolderOnly) Mode() model.EligibilityMode { return model.EligibilityHolder }

// ForMode returns the policy implementing the given mode. Unknown modes
// fall back to AllowAll.
func ForMode(mode model.EligibilityMode, holdings HoldingsSource, genesisCutoff uint64) BidPolicy {
	switch mode {
	case model.EligibilityGenesis:
		return GenesisOnly{Holdings: holdings, Cutoff: genesisCutoff}
	case model.EligibilityHolder:
		return HolderOnly{Holdings: holdings}
	default:
		return AllowAll{}
	}
}
