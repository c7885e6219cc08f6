// Package oracle adapts an external price feed into the single question the
// engine asks: the latest native-per-USD price as an integer-valued decimal.
// The adapter never caches — the engine snapshots the price exactly once,
// at auction creation.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ErrStalePrice is returned when the feed's answer is older than the
// configured freshness bound or otherwise unusable.
var ErrStalePrice = errors.New("oracle: stale or invalid price")

// PriceSource supplies the latest native-per-USD price. Implementations
// must not cache; each call may observe a newer answer.
type PriceSource interface {
	LatestPrice(ctx context.Context) (decimal.Decimal, error)
}

// StaticSource returns a fixed price. Used in tests and as a bootstrap
// source when no feed is configured.
type StaticSource struct {
	Price decimal.Decimal
}

func (s StaticSource) LatestPrice(context.Context) (decimal.Decimal, error) {
	if !s.Price.IsPositive() {
		return decimal.Zero, ErrStalePrice
	}
	return s.Price, nil
}

// feedResponse is the upstream feed's answer envelope: a scaled integer
// price plus its own decimal scaling, chainlink-style.
type feedResponse struct {
	Answer    string `json:"answer"`
	Decimals  int32  `json:"decimals"`
	UpdatedAt int64  `json:"updated_at"` // unix seconds
}

// FeedClient fetches the latest price from an HTTP JSON feed and divides
// out the feed's decimal scaling, truncating to a whole number of native
// base units per USD.
type FeedClient struct {
	url        string
	freshness  time.Duration
	httpClient *http.Client
	now        func() time.Time
}

// NewFeedClient creates a feed client. Answers older than freshness are
// rejected as stale.
func NewFeedClient(url string, freshness time.Duration) *FeedClient {
	return &FeedClient{
		url:       url,
		freshness: freshness,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

func (c *FeedClient) LatestPrice(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("oracle: feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return decimal.Zero, fmt.Errorf("oracle: read response: %w", err)
	}

	var fr feedResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return decimal.Zero, fmt.Errorf("oracle: parse response: %w", err)
	}

	return c.normalize(fr)
}

// normalize divides the feed's own scaling out of the raw answer and
// enforces freshness. The result is truncated toward zero.
func (c *FeedClient) normalize(fr feedResponse) (decimal.Decimal, error) {
	raw, err := decimal.NewFromString(fr.Answer)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: unparseable answer %q", ErrStalePrice, fr.Answer)
	}
	if !raw.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: non-positive answer %s", ErrStalePrice, raw)
	}

	if c.freshness > 0 {
		age := c.now().Sub(time.Unix(fr.UpdatedAt, 0))
		if age > c.freshness {
			return decimal.Zero, fmt.Errorf("%w: answer is %s old", ErrStalePrice, age.Round(time.Second))
		}
	}

	price := raw.Shift(-fr.Decimals).Truncate(0)
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: normalized price %s", ErrStalePrice, price)
	}
	return price, nil
}
