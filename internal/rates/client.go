// Package rates fetches currency exchange rates from the external rate
// provider. It is a single outbound call with no retry policy: the caller
// treats a failure or an empty payload as "rates unavailable" and replies
// accordingly.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoData is returned when the provider answers successfully but has no
// branch data for the requested city.
var ErrNoData = errors.New("no rate data for city")

// branch is the provider's wire format for one bank branch. Numeric fields
// arrive as strings.
type branch struct {
	USDIn  string `json:"USD_in"`
	USDOut string `json:"USD_out"`
	RUBIn  string `json:"RUB_in"`
	RUBOut string `json:"RUB_out"`
	CNYIn  string `json:"CNY_in"`
	CNYOut string `json:"CNY_out"`
}

// Rates holds buy/sell pairs for the three quoted currencies, normalized to
// a per-unit price (the provider quotes RUB per 100 and CNY per 10).
type Rates struct {
	USDBuy, USDSell float64
	RUBBuy, RUBSell float64
	CNYBuy, CNYSell float64
}

// Format renders the rates the way the bot presents them in chat.
func (r Rates) Format(city string) string {
	return fmt.Sprintf(
		"Exchange rates in %s:\nUSD: %.4f/%.4f\nRUB: %.4f/%.4f\nCNY: %.4f/%.4f",
		city, r.USDBuy, r.USDSell, r.RUBBuy, r.RUBSell, r.CNYBuy, r.CNYSell,
	)
}

// Client queries the rate provider over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the provider at baseURL. timeout bounds
// the whole call; the zero value falls back to 10 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch returns the rates of the first branch the provider lists for city.
// It returns ErrNoData when the provider has nothing for the city, and the
// transport or decoding error otherwise.
func (c *Client) Fetch(ctx context.Context, city string) (*Rates, error) {
	u := c.baseURL + "?city=" + url.QueryEscape(city)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate provider returned %s", resp.Status)
	}

	var branches []branch
	if err := json.NewDecoder(resp.Body).Decode(&branches); err != nil {
		return nil, err
	}
	if len(branches) == 0 {
		return nil, ErrNoData
	}

	return parseBranch(branches[0])
}

// parseBranch converts the provider's string fields, scaling RUB (per 100)
// and CNY (per 10) down to per-unit prices.
func parseBranch(b branch) (*Rates, error) {
	vals := [6]string{b.USDIn, b.USDOut, b.RUBIn, b.RUBOut, b.CNYIn, b.CNYOut}
	var fs [6]float64
	for i, s := range vals {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("bad rate value %q: %w", s, err)
		}
		fs[i] = f
	}
	return &Rates{
		USDBuy:  fs[0],
		USDSell: fs[1],
		RUBBuy:  fs[2] / 100,
		RUBSell: fs[3] / 100,
		CNYBuy:  fs[4] / 10,
		CNYSell: fs[5] / 10,
	}, nil
}
