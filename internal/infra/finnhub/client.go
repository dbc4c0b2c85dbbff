package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production REST endpoint.
const DefaultBaseURL = "https://finnhub.io/api/v1"

// APIError is a non-2xx upstream response.
type APIError struct {
	StatusCode int
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finnhub %s returned status %d", e.Endpoint, e.StatusCode)
}

// Transient reports whether the response is worth retrying.
// 429 (rate limited) and 5xx count as transient; other 4xx do not.
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsTransient classifies an error from any client method as retryable.
// Network/timeout failures and transient API statuses qualify; malformed
// payloads, permanent 4xx responses and caller cancellation do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Client is the REST client for the upstream market-data provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Finnhub REST client. The timeout bounds every request;
// callers can still cancel earlier through the context.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Quote fetches the latest price snapshot for a symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (QuoteResponse, error) {
	var out QuoteResponse
	err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &out)
	return out, err
}

// Profile fetches company metadata (exchange, market cap) for a symbol.
func (c *Client) Profile(ctx context.Context, symbol string) (ProfileResponse, error) {
	var out ProfileResponse
	err := c.get(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &out)
	return out, err
}

// MarketStatus fetches the open/closed state of an exchange (e.g. "US").
func (c *Client) MarketStatus(ctx context.Context, exchange string) (MarketStatusResponse, error) {
	var out MarketStatusResponse
	err := c.get(ctx, "/stock/market-status", url.Values{"exchange": {exchange}}, &out)
	return out, err
}

// Search looks up symbols matching a free-text query.
func (c *Client) Search(ctx context.Context, query string) (SearchResponse, error) {
	var out SearchResponse
	err := c.get(ctx, "/search", url.Values{"q": {query}}, &out)
	return out, err
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, v any) error {
	params.Set("token", c.apiKey)
	reqURL := c.baseURL + endpoint + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("finnhub %s: malformed payload: %w", endpoint, err)
	}

	return nil
}
