package policy_test

import (
	"testing"

	"github.com/kmaox/auctionhouse/internal/model"
	"github.com/kmaox/auctionhouse/internal/policy"
)

// fakeHoldings maps account → owned unit ids (ascending).
type fakeHoldings map[string][]uint64

func (f fakeHoldings) HoldingsOf(acct string) []uint64 { return f[acct] }

func TestAllowAll(t *testing.T) {
	p := policy.AllowAll{}
	if !p.Eligible("anyone") {
		t.Error("AllowAll must admit everyone")
	}
	if p.Mode() != model.EligibilityOpen {
		t.Errorf("unexpected mode %q", p.Mode())
	}
}

func TestGenesisOnly(t *testing.T) {
	holdings := fakeHoldings{
		"early":  {3, 150},
		"late":   {151, 900},
		"nobody": nil,
	}
	p := policy.GenesisOnly{Holdings: holdings, Cutoff: 150}

	if !p.Eligible("early") {
		t.Error("holder of unit 3 should be eligible with cutoff 150")
	}
	if p.Eligible("late") {
		t.Error("holder of only post-cutoff units should not be eligible")
	}
	if p.Eligible("nobody") {
		t.Error("empty holdings should not be eligible")
	}
}

func TestGenesisOnly_CutoffBoundary(t *testing.T) {
	holdings := fakeHoldings{"edge": {150}}
	p := policy.GenesisOnly{Holdings: holdings, Cutoff: 150}
	if !p.Eligible("edge") {
		t.Error("cutoff is inclusive; unit 150 qualifies at cutoff 150")
	}
}

func TestHolderOnly(t *testing.T) {
	holdings := fakeHoldings{"holder": {42}}
	p := policy.HolderOnly{Holdings: holdings}

	if !p.Eligible("holder") {
		t.Error("holder of any unit should be eligible")
	}
	if p.Eligible("stranger") {
		t.Error("account with no units should not be eligible")
	}
}

func TestForMode(t *testing.T) {
	holdings := fakeHoldings{}

	cases := []struct {
		mode model.EligibilityMode
		want model.EligibilityMode
	}{
		{model.EligibilityOpen, model.EligibilityOpen},
		{model.EligibilityGenesis, model.EligibilityGenesis},
		{model.EligibilityHolder, model.EligibilityHolder},
		{"bogus", model.EligibilityOpen}, // unknown falls back to open
	}

	for _, tc := range cases {
		p := policy.ForMode(tc.mode, holdings, 100)
		if p.Mode() != tc.want {
			t.Errorf("ForMode(%q) = %q, want %q", tc.mode, p.Mode(), tc.want)
		}
	}
}
