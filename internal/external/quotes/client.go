package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/pkg/httputil"
	"github.com/wonny/pickem/backend/pkg/logger"
)

// ErrNoQuote is returned when the provider has no close for the ticker and date
var ErrNoQuote = errors.New("no quote available")

// Client fetches daily closes from a JSON quote endpoint
// ⭐ SSOT: 외부 시세 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a quote client against baseURL
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    baseURL,
	}
}

type closeResponse struct {
	Symbol string   `json:"symbol"`
	Date   string   `json:"date"`
	Close  *float64 `json:"close"`
}

// Close returns the closing price of ticker on date.
// GET {base}/v1/close?symbol=AAPL&date=2024-01-15
func (c *Client) Close(ctx context.Context, ticker string, date time.Time) (float64, error) {
	params := url.Values{}
	params.Set("symbol", contracts.NormalizeTicker(ticker))
	params.Set("date", contracts.DateKey(date))
	fullURL := fmt.Sprintf("%s/v1/close?%s", c.baseURL, params.Encode())

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, fmt.Errorf("%s on %s: %w", ticker, contracts.DateKey(date), ErrNoQuote)
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed closeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("failed to decode quote: %w", err)
	}
	if parsed.Close == nil || *parsed.Close <= 0 {
		return 0, fmt.Errorf("%s on %s: %w", ticker, contracts.DateKey(date), ErrNoQuote)
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"date":   parsed.Date,
		"close":  *parsed.Close,
	}).Debug("Fetched closing quote")

	return *parsed.Close, nil
}
