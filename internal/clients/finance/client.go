// Package finance is the client for the external reference-price provider.
package finance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a reference-price API client
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new reference-price client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: defaultBaseURL,
		log:     log.With().Str("client", "finance").Logger(),
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint (tests)
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	return c
}

type chartPeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string  `json:"currency"`
				Symbol               string  `json:"symbol"`
				MarketState          string  `json:"marketState"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				RegularMarketTime    int64   `json:"regularMarketTime"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				PreviousClose        float64 `json:"previousClose"`
				CurrentTradingPeriod struct {
					Pre     chartPeriod `json:"pre"`
					Regular chartPeriod `json:"regular"`
					Post    chartPeriod `json:"post"`
				} `json:"currentTradingPeriod"`
			} `json:"meta"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"chart"`
}

// GetQuote fetches the latest reference quote for a symbol
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	reqURL := c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol) + "?interval=1d&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("price provider returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if result.Chart.Error != nil {
		return nil, fmt.Errorf("price provider error: %v", result.Chart.Error)
	}

	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("no quote data returned for symbol %s", symbol)
	}

	meta := result.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return nil, fmt.Errorf("invalid price for symbol %s", symbol)
	}

	previousClose := meta.PreviousClose
	if previousClose == 0 {
		previousClose = meta.ChartPreviousClose
	}

	quote := &Quote{
		Symbol:        symbol,
		LastPrice:     meta.RegularMarketPrice,
		PreviousClose: previousClose,
		Currency:      meta.Currency,
		MarketState:   meta.MarketState,
		Time:          meta.RegularMarketTime,
		Pre:           SessionPeriod(meta.CurrentTradingPeriod.Pre),
		Regular:       SessionPeriod(meta.CurrentTradingPeriod.Regular),
		Post:          SessionPeriod(meta.CurrentTradingPeriod.Post),
	}

	c.log.Debug().
		Str("symbol", symbol).
		Float64("price", quote.LastPrice).
		Str("currency", quote.Currency).
		Msg("Fetched quote")

	return quote, nil
}
