// Package tradier is a read-only client for the Tradier market data API.
// It covers option expirations, option chains and the market calendar.
package tradier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	productionBaseURL = "https://api.tradier.com/v1"
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"
	defaultTimeout    = 10 * time.Second
	maxErrorBody      = 64 << 10
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradier API error %d: %s", e.Status, e.Body)
}

// HTTPStatus exposes the status code to retry classification.
func (e *APIError) HTTPStatus() int { return e.Status }

// Client talks to the Tradier REST API.
type Client struct {
	client  *http.Client
	logger  *logrus.Logger
	apiKey  string
	baseURL string
	sandbox bool
}

// NewClient creates a client. An empty baseURL selects the sandbox or
// production endpoint; a nil httpClient gets a 10s timeout.
func NewClient(apiKey string, sandbox bool, baseURL string, httpClient *http.Client, logger *logrus.Logger) *Client {
	if baseURL == "" {
		if sandbox {
			baseURL = sandboxBaseURL
		} else {
			baseURL = productionBaseURL
		}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		client:  httpClient,
		logger:  logger,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		sandbox: sandbox,
	}
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// OptionChainResponse represents the API response for option chain requests.
type OptionChainResponse struct {
	Options struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// Option is one contract of a chain. Only the fields the analytics read are
// decoded.
type Option struct {
	Symbol         string  `json:"symbol"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Underlying     string  `json:"underlying"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	Strike         float64 `json:"strike"`
}

// ExpirationsResponse represents the expirations response from the Tradier API.
type ExpirationsResponse struct {
	Expirations struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

// MarketCalendarResponse represents the market calendar response from the Tradier API.
type MarketCalendarResponse struct {
	Calendar struct {
		Month int `json:"month"`
		Year  int `json:"year"`
		Days  struct {
			Day singleOrArray[MarketDay] `json:"day"`
		} `json:"days"`
	} `json:"calendar"`
}

// MarketDay represents a single day in the market calendar.
type MarketDay struct {
	Date        string `json:"date"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// MarketDayOpen is the status Tradier reports for a trading session.
const MarketDayOpen = "open"

// GetExpirationsCtx lists the option expirations of symbol, ascending.
func (c *Client) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := c.baseURL + "/markets/options/expirations?" + params.Encode()

	var response ExpirationsResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	return []string(response.Expirations.Date), nil
}

// GetOptionChainCtx retrieves the chain of symbol for one expiration.
func (c *Client) GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]Option, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "false")
	endpoint := c.baseURL + "/markets/options/chains?" + params.Encode()

	var response OptionChainResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	return []Option(response.Options.Option), nil
}

// GetMarketCalendarCtx retrieves the market calendar for a month.
// If month/year are 0, uses current month/year.
func (c *Client) GetMarketCalendarCtx(ctx context.Context, month, year int) (*MarketCalendarResponse, error) {
	endpoint := c.baseURL + "/markets/calendar"

	params := url.Values{}
	if month > 0 {
		params.Add("month", fmt.Sprintf("%02d", month))
	}
	if year > 0 {
		params.Add("year", fmt.Sprintf("%04d", year))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var response MarketCalendarResponse
	if err := c.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *Client) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+c.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "open-interest/1.0 (+tradier)")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Warn("Failed to close response body")
		}
	}()

	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" && c.sandbox {
		c.logger.WithField("remaining", remaining).Debug("Tradier rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, redact(endpoint))}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s (retry-after: %s)", method, redact(endpoint), string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, redact(endpoint), string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s: %w", redact(endpoint), err)
	}
	return nil
}

// redact drops the query string so error messages stay short.
func redact(endpoint string) string {
	if i := strings.IndexByte(endpoint, '?'); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}
