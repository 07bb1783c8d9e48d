// Package yahoo provides a Yahoo Finance market data client.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ledgerview/ledgerview/internal/domain"
	"github.com/ledgerview/ledgerview/internal/modules/pricing"
)

const (
	defaultQuoteURL = "https://query1.finance.yahoo.com/v7/finance/quote"
	defaultChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	userAgent       = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// validRanges are the chart API ranges Yahoo accepts
var validRanges = map[string]bool{
	"1d": true, "5d": true, "1mo": true, "3mo": true, "6mo": true,
	"1y": true, "2y": true, "5y": true, "10y": true, "ytd": true, "max": true,
}

// Config holds client configuration
type Config struct {
	QuoteURL          string
	ChartURL          string
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // Provider-side rate limit budget
}

// Client is a Yahoo Finance API client. Every request passes through a rate
// limiter so bursts of concurrent lookups stay inside the provider's budget.
type Client struct {
	client   *http.Client
	limiter  *rate.Limiter
	quoteURL string
	chartURL string
	log      zerolog.Logger
}

// Ensure the oracle can consume this client directly.
var _ pricing.Provider = (*Client)(nil)

// NewClient creates a new Yahoo Finance client
func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.QuoteURL == "" {
		cfg.QuoteURL = defaultQuoteURL
	}
	if cfg.ChartURL == "" {
		cfg.ChartURL = defaultChartURL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	return &Client{
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1),
		quoteURL: cfg.QuoteURL,
		chartURL: cfg.ChartURL,
		log:      log.With().Str("client", "yahoo").Logger(),
	}
}

// FetchQuote fetches the current market price for a symbol.
// An unknown symbol is reported as domain.ErrSymbolNotFound.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (pricing.ProviderQuote, error) {
	params := url.Values{}
	params.Add("symbols", symbol)
	params.Add("fields", "symbol,currency,regularMarketPrice,regularMarketTime")

	body, err := c.get(ctx, c.quoteURL+"?"+params.Encode())
	if err != nil {
		return pricing.ProviderQuote{}, err
	}

	var result quoteResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return pricing.ProviderQuote{}, fmt.Errorf("failed to parse quote response: %w", err)
	}

	if result.QuoteResponse.Error != nil {
		return pricing.ProviderQuote{}, fmt.Errorf("quote API error: %s", result.QuoteResponse.Error.Description)
	}
	if len(result.QuoteResponse.Result) == 0 {
		return pricing.ProviderQuote{}, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	}

	quote := result.QuoteResponse.Result[0]
	if quote.RegularMarketPrice == nil || *quote.RegularMarketPrice <= 0 {
		return pricing.ProviderQuote{}, fmt.Errorf("no valid price returned for %s", symbol)
	}

	currency := quote.Currency
	if currency == "" {
		currency = "USD"
	}

	return pricing.ProviderQuote{Price: *quote.RegularMarketPrice, Currency: currency}, nil
}

// FetchHistory fetches a daily close-price series for the symbol over one of
// Yahoo's chart ranges (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max).
func (c *Client) FetchHistory(ctx context.Context, symbol, historyRange string) ([]domain.PricePoint, error) {
	if !validRanges[historyRange] {
		return nil, fmt.Errorf("unsupported history range %q", historyRange)
	}

	params := url.Values{}
	params.Add("interval", "1d")
	params.Add("range", historyRange)

	reqURL := c.chartURL + "/" + url.PathEscape(symbol) + "?" + params.Encode()

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var result chartResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse chart response: %w", err)
	}

	if result.Chart.Error != nil {
		if strings.EqualFold(result.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
		}
		return nil, fmt.Errorf("chart API error: %s", result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrSymbolNotFound, symbol)
	}

	chart := result.Chart.Result[0]
	if len(chart.Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No quote data in chart response")
		return []domain.PricePoint{}, nil
	}

	closes := chart.Indicators.Quote[0].Close
	points := make([]domain.PricePoint, 0, len(chart.Timestamp))
	for i, ts := range chart.Timestamp {
		// Yahoo pads with nulls for days without trading
		if i >= len(closes) || closes[i] == nil || *closes[i] <= 0 {
			continue
		}
		points = append(points, domain.PricePoint{
			At:    time.Unix(ts, 0).UTC(),
			Price: *closes[i],
		})
	}

	c.log.Debug().
		Str("symbol", symbol).
		Str("range", historyRange).
		Int("points", len(points)).
		Msg("Fetched price history")

	return points, nil
}

// get performs a rate-limited GET and returns the response body
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrSymbolNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, nil
}
