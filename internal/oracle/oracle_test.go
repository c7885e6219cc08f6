package oracle_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmaox/auctionhouse/internal/oracle"
)

func feedServer(t *testing.T, answer string, decimals int32, updatedAt time.Time) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"answer":%q,"decimals":%d,"updated_at":%d}`,
			answer, decimals, updatedAt.Unix())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedClient_NormalizesScaling(t *testing.T) {
	// 2000 USD-per-native scaled by 8 decimals.
	srv := feedServer(t, "200000000000", 8, time.Now())
	c := oracle.NewFeedClient(srv.URL, time.Hour)

	price, err := c.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected 2000, got %s", price)
	}
}

func TestFeedClient_TruncatesFraction(t *testing.T) {
	// 1999.99999999 scaled by 8 → 1999, never rounded up.
	srv := feedServer(t, "199999999999", 8, time.Now())
	c := oracle.NewFeedClient(srv.URL, time.Hour)

	price, err := c.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("latest price: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1999)) {
		t.Errorf("expected 1999 (truncated), got %s", price)
	}
}

func TestFeedClient_RejectsStale(t *testing.T) {
	srv := feedServer(t, "200000000000", 8, time.Now().Add(-2*time.Hour))
	c := oracle.NewFeedClient(srv.URL, time.Hour)

	_, err := c.LatestPrice(context.Background())
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("expected ErrStalePrice, got %v", err)
	}
}

func TestFeedClient_RejectsNonPositive(t *testing.T) {
	srv := feedServer(t, "0", 8, time.Now())
	c := oracle.NewFeedClient(srv.URL, time.Hour)

	_, err := c.LatestPrice(context.Background())
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("expected ErrStalePrice for zero answer, got %v", err)
	}
}

func TestFeedClient_RejectsGarbage(t *testing.T) {
	srv := feedServer(t, "not-a-number", 8, time.Now())
	c := oracle.NewFeedClient(srv.URL, time.Hour)

	_, err := c.LatestPrice(context.Background())
	if !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("expected ErrStalePrice for garbage answer, got %v", err)
	}
}

func TestFeedClient_FeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := oracle.NewFeedClient(srv.URL, time.Hour)
	if _, err := c.LatestPrice(context.Background()); err == nil {
		t.Error("expected error for 502 from feed")
	}
}

func TestStaticSource(t *testing.T) {
	s := oracle.StaticSource{Price: decimal.NewFromInt(2000)}
	price, err := s.LatestPrice(context.Background())
	if err != nil {
		t.Fatalf("static source: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected 2000, got %s", price)
	}

	bad := oracle.StaticSource{}
	if _, err := bad.LatestPrice(context.Background()); !errors.Is(err, oracle.ErrStalePrice) {
		t.Errorf("expected ErrStalePrice for zero static price, got %v", err)
	}
}
