// Package exchange is the client for the external exchange-rate provider.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://open.er-api.com"

// Client is an exchange-rate API client
type Client struct {
	client  *http.Client
	baseURL string
	log     zerolog.Logger
}

// NewClient creates a new exchange-rate client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: defaultBaseURL,
		log:     log.With().Str("client", "exchange").Logger(),
	}
}

// NewClientWithBaseURL creates a client against a custom endpoint (tests)
func NewClientWithBaseURL(baseURL string, log zerolog.Logger) *Client {
	c := NewClient(log)
	c.baseURL = baseURL
	return c
}

type rateTableResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// GetRate fetches the base->target rate from the provider's rate table.
// Only the requested pair is extracted; the rest of the table is discarded.
func (c *Client) GetRate(ctx context.Context, base, target string) (float64, error) {
	reqURL := fmt.Sprintf("%s/v6/latest/%s", c.baseURL, base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch rate table: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("rate provider returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	var result rateTableResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse rate table: %w", err)
	}

	if result.Result != "" && result.Result != "success" {
		return 0, fmt.Errorf("rate provider reported %q", result.Result)
	}

	rate, ok := result.Rates[target]
	if !ok {
		return 0, fmt.Errorf("rate table has no entry for %s", target)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("rate provider returned non-positive rate %f for %s", rate, target)
	}

	c.log.Debug().
		Str("base", base).
		Str("target", target).
		Float64("rate", rate).
		Msg("Fetched exchange rate")

	return rate, nil
}
