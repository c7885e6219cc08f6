// Package api provides the HTTP surface of the auction house: auction
// queries, bid submission, settlement, account funding, and the
// admin-gated configuration endpoints.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kmaox/auctionhouse/internal/engine"
	"github.com/kmaox/auctionhouse/internal/events"
	"github.com/kmaox/auctionhouse/internal/model"
	"github.com/kmaox/auctionhouse/internal/store"
	"github.com/kmaox/auctionhouse/internal/treasury"
)

// Service handles auction house HTTP operations. All mutating calls are
// serialized inside the engine; handlers stay thin.
type Service struct {
	engine     *engine.Engine
	ledger     *treasury.Ledger
	issuer     engine.Issuer
	store      store.Store
	hub        *events.Hub // optional WebSocket hub for real-time broadcasts
	adminToken string
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(eng *engine.Engine, ledger *treasury.Ledger, issuer engine.Issuer, st store.Store, hub *events.Hub, adminToken string) *Service {
	return &Service{
		engine:     eng,
		ledger:     ledger,
		issuer:     issuer,
		store:      st,
		hub:        hub,
		adminToken: adminToken,
	}
}

// Routes mounts every endpoint on a fresh router.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}

	r.Get("/auction", s.GetAuction)
	r.Post("/auction/settle", s.Settle)
	r.Post("/auction/rollover", s.Rollover)
	r.Post("/bids", s.PlaceBid)
	r.Get("/settlements", s.ListSettlements)

	r.Get("/accounts/{account}", s.GetAccount)
	r.Post("/accounts/{account}/deposit", s.Deposit)

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/pause", s.Pause)
		r.Post("/unpause", s.Unpause)
		r.Put("/settings", s.UpdateSettings)
	})

	return r
}

// --- Request/Response types ---

// BidRequest is the JSON body for POST /bids.
type BidRequest struct {
	Bidder string          `json:"bidder"`
	UnitID uint64          `json:"unit_id"`
	Amount decimal.Decimal `json:"amount"`
}

// DepositRequest is the JSON body for POST /accounts/{account}/deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// SettingsRequest carries the admin-mutable parameters; only the fields
// present in the body are applied. Changes take effect from the next
// auction onward.
type SettingsRequest struct {
	TimeBufferSeconds *int64  `json:"time_buffer_seconds,omitempty"`
	ReserveUSD        *string `json:"reserve_usd,omitempty"`
	MinIncrementPct   *int64  `json:"min_increment_pct,omitempty"`
	EligibilityMode   *string `json:"eligibility_mode,omitempty"`
	PublicBidding     *bool   `json:"public_bidding,omitempty"`
}

// AuctionResponse is the auction snapshot returned to clients. Status is
// derived: a record past its end time reads "expired" even though only
// the settled flag is stored.
type AuctionResponse struct {
	UnitID            uint64          `json:"unit_id"`
	Amount            decimal.Decimal `json:"amount"`
	Bidder            string          `json:"bidder,omitempty"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	ReservePrice      decimal.Decimal `json:"reserve_price"`
	MinIncrementPct   int64           `json:"min_increment_pct"`
	TimeBufferSeconds int64           `json:"time_buffer_seconds"`
	Status            string          `json:"status"`
	Paused            bool            `json:"paused"`
}

// AccountResponse is the JSON body returned from GET /accounts/{account}.
type AccountResponse struct {
	Account string          `json:"account"`
	Native  decimal.Decimal `json:"native"`
	Wrapped decimal.Decimal `json:"wrapped"`
	Units   []uint64        `json:"units"`
}

func (s *Service) auctionResponse(a model.Auction) AuctionResponse {
	status := "active"
	switch {
	case a.Settled:
		status = "settled"
	case a.Expired(s.engine.Now()):
		status = "expired"
	}
	return AuctionResponse{
		UnitID:            a.UnitID,
		Amount:            a.Amount,
		Bidder:            a.Bidder,
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		ReservePrice:      a.ReservePrice,
		MinIncrementPct:   a.MinIncrementPct,
		TimeBufferSeconds: int64(a.TimeBuffer / time.Second),
		Status:            status,
		Paused:            s.engine.IsPaused(),
	}
}

// --- HTTP Handlers ---

// GetAuction handles GET /api/v1/auction
func (s *Service) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.CurrentAuction()
	if err != nil {
		writeError(w, "no auction", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, s.auctionResponse(a))
}

// PlaceBid handles POST /api/v1/bids
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Bidder == "" {
		writeError(w, "bidder is required", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	auth := model.AuthContext{Account: req.Bidder}
	if err := s.engine.PlaceBid(r.Context(), auth, req.UnitID, req.Amount); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	a, err := s.engine.CurrentAuction()
	if err != nil {
		writeError(w, "no auction", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusCreated, s.auctionResponse(a))
}

// Settle handles POST /api/v1/auction/settle
// Settlement of an expired auction while paused; callable by anyone so
// funds are never stuck behind a pause.
func (s *Service) Settle(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SettleAuction(r.Context()); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	a, err := s.engine.CurrentAuction()
	if err != nil {
		writeError(w, "no auction", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.auctionResponse(a))
}

// Rollover handles POST /api/v1/auction/rollover
// Settles the expired auction and starts the next cycle; callable by
// anyone while unpaused.
func (s *Service) Rollover(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.SettleCurrentAndCreateNew(r.Context()); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	// A collaborator failure pauses the engine instead of erroring; the
	// absent auction tells the client the house is down for repair.
	a, err := s.engine.CurrentAuction()
	if err != nil || a.Settled {
		writeError(w, "auction house paused pending operator attention", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.auctionResponse(a))
}

// ListSettlements handles GET /api/v1/settlements
func (s *Service) ListSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.store.ListSettlements(r.Context())
	if err != nil {
		writeError(w, "failed to list settlements", http.StatusInternalServerError)
		return
	}
	if settlements == nil {
		settlements = []model.Settlement{}
	}

	writeJSON(w, http.StatusOK, settlements)
}

// GetAccount handles GET /api/v1/accounts/{account}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct := chi.URLParam(r, "account")

	bal := s.ledger.BalanceOf(acct)
	units := s.issuer.HoldingsOf(acct)
	if units == nil {
		units = []uint64{}
	}

	writeJSON(w, http.StatusOK, AccountResponse{
		Account: acct,
		Native:  bal.Native,
		Wrapped: bal.Wrapped,
		Units:   units,
	})
}

// Deposit handles POST /api/v1/accounts/{account}/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	acct := chi.URLParam(r, "account")

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ledger.Deposit(acct, req.Amount); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	slog.Info("deposit", "account", acct, "amount", req.Amount.String())

	bal := s.ledger.BalanceOf(acct)
	writeJSON(w, http.StatusOK, AccountResponse{
		Account: acct,
		Native:  bal.Native,
		Wrapped: bal.Wrapped,
		Units:   []uint64{},
	})
}

// Pause handles POST /api/v1/admin/pause
func (s *Service) Pause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Pause(r.Context(), adminAuth(r)); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// Unpause handles POST /api/v1/admin/unpause
func (s *Service) Unpause(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Unpause(r.Context(), adminAuth(r)); err != nil {
		writeError(w, err.Error(), statusFor(err))
		return
	}

	if s.engine.IsPaused() {
		// A collaborator failure during auction creation re-paused us.
		writeError(w, "auction creation failed, engine re-paused", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// UpdateSettings handles PUT /api/v1/admin/settings
// Applies each parameter present in the body; later auctions pick the new
// values up at creation.
func (s *Service) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	auth := adminAuth(r)

	if req.TimeBufferSeconds != nil {
		d := time.Duration(*req.TimeBufferSeconds) * time.Second
		if err := s.engine.SetTimeBuffer(ctx, auth, d); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}
	if req.ReserveUSD != nil {
		usd, err := decimal.NewFromString(*req.ReserveUSD)
		if err != nil {
			writeError(w, "invalid reserve_usd", http.StatusBadRequest)
			return
		}
		if err := s.engine.SetReserveUSD(ctx, auth, usd); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}
	if req.MinIncrementPct != nil {
		if err := s.engine.SetMinIncrementPct(ctx, auth, *req.MinIncrementPct); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}
	if req.EligibilityMode != nil {
		mode := model.EligibilityMode(*req.EligibilityMode)
		switch mode {
		case model.EligibilityOpen, model.EligibilityGenesis, model.EligibilityHolder:
		default:
			writeError(w, "invalid eligibility_mode", http.StatusBadRequest)
			return
		}
		if err := s.engine.SetEligibilityMode(ctx, auth, mode); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}
	if req.PublicBidding != nil {
		if err := s.engine.SetPublicBidding(ctx, auth, *req.PublicBidding); err != nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- Auth ---

// requireAdmin gates the admin subtree on the bearer token.
func (s *Service) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if s.adminToken == "" || token != s.adminToken {
			writeError(w, "admin token required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// adminAuth builds the auth context for a request that already passed
// requireAdmin.
func adminAuth(*http.Request) model.AuthContext {
	return model.AuthContext{Account: "admin", Admin: true}
}

// --- Helpers ---

// statusFor maps engine errors to HTTP status codes. Validation and
// precondition failures are conflicts with current auction state, not
// malformed requests.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrNoAuction), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrWrongUnit),
		errors.Is(err, engine.ErrExpired),
		errors.Is(err, engine.ErrBelowReserve),
		errors.Is(err, engine.ErrInsufficientIncrement),
		errors.Is(err, engine.ErrNotEligible),
		errors.Is(err, engine.ErrInsufficientFunds),
		errors.Is(err, engine.ErrNotStarted),
		errors.Is(err, engine.ErrAlreadySettled),
		errors.Is(err, engine.ErrNotExpired),
		errors.Is(err, engine.ErrPaused),
		errors.Is(err, engine.ErrNotPaused),
		errors.Is(err, engine.ErrReentrantCall):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
