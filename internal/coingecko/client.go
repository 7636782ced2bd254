// Package coingecko wraps the CoinGecko market data API. It is the only place
// upstream network failure surfaces; callers receive typed errors and never
// deal with transport details.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "cryptofolio/internal/errors"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// PriceInfo holds the current USD price and 24h change percent for a coin.
type PriceInfo struct {
	PriceUSD         decimal.Decimal `json:"price_usd"`
	Change24hPercent decimal.Decimal `json:"change_24h_percent"`
}

// Coin is an entry of the upstream coin catalog.
type Coin struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// NormalizeID canonicalizes a coin identifier: trimmed and lower-cased.
// Callers may pass any casing/whitespace variant of a coin's id.
func NormalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Client fetches prices and the coin catalog from CoinGecko.
type Client struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	cache      PriceCache
}

// NewClient creates a CoinGecko client. baseURL falls back to the public API
// when empty. cache may be nil, in which case every lookup hits the upstream.
func NewClient(httpClient *http.Client, baseURL string, cache PriceCache) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cache:      cache,
	}
}

// priceEntry mirrors one value of the upstream simple/price response:
// {"bitcoin": {"usd": 20000.5, "usd_24h_change": -1.2}}
type priceEntry struct {
	USD          decimal.Decimal `json:"usd"`
	USD24hChange decimal.Decimal `json:"usd_24h_change"`
}

// GetPrice returns the current price info for a single coin id.
// The id is normalized before lookup.
func (c *Client) GetPrice(ctx context.Context, id string) (PriceInfo, error) {
	id = NormalizeID(id)
	prices, err := c.GetPrices(ctx, []string{id})
	if err != nil {
		return PriceInfo{}, err
	}
	return prices[id], nil
}

// GetPrices returns price info for a set of coin ids in a single upstream
// request. Ids are normalized and deduplicated. Every requested id must
// resolve; an id unknown to the upstream fails the whole call with
// COIN_NOT_FOUND.
func (c *Client) GetPrices(ctx context.Context, ids []string) (map[string]PriceInfo, error) {
	result := make(map[string]PriceInfo, len(ids))

	var missing []string
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := NormalizeID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		if c.cache != nil {
			if info, ok := c.cache.Get(ctx, id); ok {
				result[id] = info
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(missing, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_24hr_change", "true")

	var entries map[string]priceEntry
	if err := c.getJSON(ctx, "/simple/price?"+q.Encode(), &entries); err != nil {
		return nil, err
	}

	for _, id := range missing {
		entry, ok := entries[id]
		if !ok {
			return nil, apperrors.WithMessage(apperrors.ErrCoinNotFound, fmt.Sprintf("Unknown coin identifier: %s", id))
		}
		info := PriceInfo{PriceUSD: entry.USD, Change24hPercent: entry.USD24hChange}
		result[id] = info
		if c.cache != nil {
			c.cache.Set(ctx, id, info)
		}
	}

	return result, nil
}

// ListCoins returns the upstream's full coin catalog. It is an uncached
// pass-through, used to populate a UI suggestion list.
func (c *Client) ListCoins(ctx context.Context) ([]Coin, error) {
	var coins []Coin
	if err := c.getJSON(ctx, "/coins/list", &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// getJSON performs a GET against the upstream and decodes the JSON body.
// Transport failures and non-2xx responses become UPSTREAM_UNAVAILABLE.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperrors.Wrap(apperrors.ErrUpstreamUnavailable,
			fmt.Errorf("coingecko returned status %d for %s", resp.StatusCode, path))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.ErrUpstreamUnavailable, err)
	}
	return nil
}
