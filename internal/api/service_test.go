package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kmaox/auctionhouse/internal/api"
	"github.com/kmaox/auctionhouse/internal/engine"
	"github.com/kmaox/auctionhouse/internal/minter"
	"github.com/kmaox/auctionhouse/internal/model"
	"github.com/kmaox/auctionhouse/internal/oracle"
	"github.com/kmaox/auctionhouse/internal/store"
	"github.com/kmaox/auctionhouse/internal/treasury"
)

const adminToken = "test-admin-token"

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(dur)
}

type env struct {
	router chi.Router
	ledger *treasury.Ledger
	clock  *clock
}

// newTestEnv wires a running auction house over in-memory collaborators:
// a live auction on unit 1 with reserve 25 (50000 USD at a static 2000).
func newTestEnv(t *testing.T) *env {
	t.Helper()

	st := store.NewMemoryStore()
	ledger := treasury.NewLedger()
	mint := minter.New(minter.Config{
		Cadence: 10, BonusCap: 100, MaxSupply: 1000,
		Escrow: "auctionhouse", Treasury: "treasury",
	}, st)
	clk := &clock{t: time.Now()}

	eng := engine.New(engine.Config{
		Duration:        24 * time.Hour,
		TimeBuffer:      15 * time.Minute,
		MinIncrementPct: 0,
		ReserveUSD:      d(50000),
		EligibilityMode: model.EligibilityOpen,
		Escrow:          "auctionhouse",
		Treasury:        "treasury",
	}, ledger, mint, oracle.StaticSource{Price: d(2000)}, st, nil,
		engine.WithClock(clk.Now))

	admin := model.AuthContext{Account: "admin", Admin: true}
	if err := eng.Unpause(context.Background(), admin); err != nil {
		t.Fatal(err)
	}

	svc := api.NewService(eng, ledger, mint, st, nil, adminToken)
	r := chi.NewRouter()
	r.Mount("/api/v1", svc.Routes())

	return &env{router: r, ledger: ledger, clock: clk}
}

func (e *env) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) fund(t *testing.T, acct string, amount int64) {
	t.Helper()
	if err := e.ledger.Deposit(acct, d(amount)); err != nil {
		t.Fatal(err)
	}
}

func (e *env) bid(t *testing.T, acct string, unitID uint64, amount int64) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, "POST", "/api/v1/bids", api.BidRequest{
		Bidder: acct, UnitID: unitID, Amount: d(amount),
	}, "")
}

// --- Auction queries ---

func TestGetAuction(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "GET", "/api/v1/auction", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.AuctionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)

	if resp.UnitID != 1 {
		t.Errorf("expected unit 1, got %d", resp.UnitID)
	}
	if !resp.ReservePrice.Equal(d(25)) {
		t.Errorf("expected reserve 25, got %s", resp.ReservePrice)
	}
	if resp.Status != "active" {
		t.Errorf("expected active, got %q", resp.Status)
	}
	if resp.Paused {
		t.Error("running house should not report paused")
	}
}

func TestGetAuction_ExpiredStatusIsDerived(t *testing.T) {
	e := newTestEnv(t)
	e.clock.Advance(25 * time.Hour)

	w := e.do(t, "GET", "/api/v1/auction", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp api.AuctionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "expired" {
		t.Errorf("past-end auction should read expired, got %q", resp.Status)
	}
}

// --- Bidding ---

func TestPlaceBid(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "alice", 100)

	w := e.bid(t, "alice", 1, 30)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.AuctionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Bidder != "alice" || !resp.Amount.Equal(d(30)) {
		t.Errorf("expected alice@30, got %s@%s", resp.Bidder, resp.Amount)
	}
}

func TestPlaceBid_BelowReserveConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "alice", 100)

	w := e.bid(t, "alice", 1, 24)
	if w.Code != http.StatusConflict {
		t.Errorf("below-reserve bid should 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPlaceBid_WrongUnitConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "alice", 100)

	w := e.bid(t, "alice", 99, 30)
	if w.Code != http.StatusConflict {
		t.Errorf("wrong-unit bid should 409, got %d", w.Code)
	}
}

func TestPlaceBid_MalformedBody(t *testing.T) {
	e := newTestEnv(t)

	req := httptest.NewRequest("POST", "/api/v1/bids", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body should 400, got %d", w.Code)
	}
}

func TestPlaceBid_MissingBidder(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/v1/bids", api.BidRequest{UnitID: 1, Amount: d(30)}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing bidder should 400, got %d", w.Code)
	}
}

func TestPlaceBid_InsufficientFundsConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "alice", 10)

	w := e.bid(t, "alice", 1, 30)
	if w.Code != http.StatusConflict {
		t.Errorf("underfunded bid should 409, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Settlement and rollover ---

func TestRollover(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "alice", 100)
	if w := e.bid(t, "alice", 1, 30); w.Code != http.StatusCreated {
		t.Fatalf("bid: %d", w.Code)
	}

	e.clock.Advance(25 * time.Hour)
	w := e.do(t, "POST", "/api/v1/auction/rollover", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.AuctionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.UnitID != 2 {
		t.Errorf("expected next auction on unit 2, got %d", resp.UnitID)
	}
}

func TestRollover_NotExpiredConflicts(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/v1/auction/rollover", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("premature rollover should 409, got %d", w.Code)
	}
}

func TestSettleWhilePaused(t *testing.T) {
	e := newTestEnv(t)
	e.clock.Advance(25 * time.Hour)

	if w := e.do(t, "POST", "/api/v1/admin/pause", nil, adminToken); w.Code != http.StatusOK {
		t.Fatalf("pause: %d", w.Code)
	}

	w := e.do(t, "POST", "/api/v1/auction/settle", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.AuctionResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "settled" {
		t.Errorf("expected settled, got %q", resp.Status)
	}

	// Settlement list now has one record.
	lw := e.do(t, "GET", "/api/v1/settlements", nil, "")
	var settlements []model.Settlement
	json.Unmarshal(lw.Body.Bytes(), &settlements)
	if len(settlements) != 1 {
		t.Errorf("expected 1 settlement, got %d", len(settlements))
	}
}

func TestSettle_UnpausedConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.clock.Advance(25 * time.Hour)

	w := e.do(t, "POST", "/api/v1/auction/settle", nil, "")
	if w.Code != http.StatusConflict {
		t.Errorf("unpaused settle should 409, got %d", w.Code)
	}
}

// --- Accounts ---

func TestDepositAndGetAccount(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/v1/accounts/alice/deposit", api.DepositRequest{Amount: d(500)}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: %d: %s", w.Code, w.Body.String())
	}

	gw := e.do(t, "GET", "/api/v1/accounts/alice", nil, "")
	var resp api.AccountResponse
	json.Unmarshal(gw.Body.Bytes(), &resp)
	if !resp.Native.Equal(d(500)) {
		t.Errorf("expected native 500, got %s", resp.Native)
	}
	if len(resp.Units) != 0 {
		t.Errorf("expected no units, got %v", resp.Units)
	}
}

func TestDeposit_NonPositiveRejected(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/v1/accounts/alice/deposit", api.DepositRequest{Amount: d(-5)}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("negative deposit should 400, got %d", w.Code)
	}
}

// --- Admin ---

func TestAdmin_RequiresToken(t *testing.T) {
	e := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{"POST", "/api/v1/admin/pause"},
		{"POST", "/api/v1/admin/unpause"},
		{"PUT", "/api/v1/admin/settings"},
	} {
		if w := e.do(t, tc.method, tc.path, nil, ""); w.Code != http.StatusForbidden {
			t.Errorf("%s %s without token should 403, got %d", tc.method, tc.path, w.Code)
		}
		if w := e.do(t, tc.method, tc.path, nil, "wrong-token"); w.Code != http.StatusForbidden {
			t.Errorf("%s %s with bad token should 403, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestAdmin_PauseBlocksBids(t *testing.T) {
	e := newTestEnv(t)
	e.fund(t, "alice", 100)

	if w := e.do(t, "POST", "/api/v1/admin/pause", nil, adminToken); w.Code != http.StatusOK {
		t.Fatalf("pause: %d", w.Code)
	}
	if w := e.bid(t, "alice", 1, 30); w.Code != http.StatusConflict {
		t.Errorf("bid while paused should 409, got %d", w.Code)
	}

	if w := e.do(t, "POST", "/api/v1/admin/unpause", nil, adminToken); w.Code != http.StatusOK {
		t.Fatalf("unpause: %d", w.Code)
	}
	if w := e.bid(t, "alice", 1, 30); w.Code != http.StatusCreated {
		t.Errorf("bid after unpause should 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAdmin_UpdateSettings(t *testing.T) {
	e := newTestEnv(t)

	buffer := int64(1800)
	reserve := "100000"
	pct := int64(10)
	w := e.do(t, "PUT", "/api/v1/admin/settings", api.SettingsRequest{
		TimeBufferSeconds: &buffer,
		ReserveUSD:        &reserve,
		MinIncrementPct:   &pct,
	}, adminToken)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	// New values surface on the next auction.
	e.clock.Advance(25 * time.Hour)
	rw := e.do(t, "POST", "/api/v1/auction/rollover", nil, "")
	if rw.Code != http.StatusOK {
		t.Fatalf("rollover: %d: %s", rw.Code, rw.Body.String())
	}
	var resp api.AuctionResponse
	json.Unmarshal(rw.Body.Bytes(), &resp)
	if resp.TimeBufferSeconds != 1800 || resp.MinIncrementPct != 10 {
		t.Errorf("settings not applied: buffer=%d pct=%d", resp.TimeBufferSeconds, resp.MinIncrementPct)
	}
	// 100000 / 2000 = 50.
	if !resp.ReservePrice.Equal(d(50)) {
		t.Errorf("expected reserve 50, got %s", resp.ReservePrice)
	}
}

func TestAdmin_UpdateSettings_Invalid(t *testing.T) {
	e := newTestEnv(t)

	bad := "not-a-number"
	w := e.do(t, "PUT", "/api/v1/admin/settings", api.SettingsRequest{ReserveUSD: &bad}, adminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("garbage reserve should 400, got %d", w.Code)
	}

	mode := "bogus"
	w = e.do(t, "PUT", "/api/v1/admin/settings", api.SettingsRequest{EligibilityMode: &mode}, adminToken)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown eligibility mode should 400, got %d", w.Code)
	}
}
