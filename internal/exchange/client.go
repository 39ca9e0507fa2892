package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpClient "github.com/quantfusion/hybrid-engine/internal/platform/http"
	"github.com/quantfusion/hybrid-engine/models"
)

// timeSeriesResponse represents the exchange history API response
type timeSeriesResponse struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
	} `json:"meta"`
	Values []struct {
		Datetime string  `json:"datetime"`
		Open     float64 `json:"open,string"`
		High     float64 `json:"high,string"`
		Low      float64 `json:"low,string"`
		Close    float64 `json:"close,string"`
		Volume   float64 `json:"volume,string,omitempty"`
	} `json:"values"`
	Status string `json:"status"`
}

// Client fetches historical candles from the market-data API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new exchange client
type ClientOptions struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
	RequestsPerSec int
}

// NewClient creates a new exchange history client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.Options{
		Timeout:        options.RequestTimeout,
		RequestsPerSec: options.RequestsPerSec,
	}
	if httpOpts.Timeout == 0 {
		httpOpts.Timeout = 30 * time.Second
	}
	if httpOpts.RequestsPerSec == 0 {
		httpOpts.RequestsPerSec = 5
	}

	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = "https://api.twelvedata.com"
	}

	return &Client{
		apiKey:     options.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient.NewClient(httpOpts),
		logger:     log.With().Str("component", "exchange_client").Logger(),
	}
}

// GetHistoricalCandles fetches candle data ending at endTime. A zero start or
// end time is omitted from the query. Candles are returned oldest first.
func (c *Client) GetHistoricalCandles(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("outputsize", fmt.Sprintf("%d", limit))
	params.Set("apikey", c.apiKey)
	if !start.IsZero() {
		params.Set("start_date", start.UTC().Format("2006-01-02 15:04:05"))
	}
	if !end.IsZero() {
		params.Set("end_date", end.UTC().Format("2006-01-02 15:04:05"))
	}

	reqURL := fmt.Sprintf("%s/time_series?%s", c.baseURL, params.Encode())
	c.logger.Debug().Str("symbol", symbol).Str("interval", interval).Int("limit", limit).Msg("Fetching candles")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if strings.Contains(string(body), `"status":"error"`) {
		c.logger.Error().Str("response", string(body)).Msg("Exchange API error")
		return nil, fmt.Errorf("exchange API error: %s", string(body))
	}

	var data timeSeriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		c.logger.Error().Err(err).Msg("Error parsing JSON")
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	if len(data.Values) == 0 {
		c.logger.Warn().Str("symbol", symbol).Msg("No candles in response")
		return nil, fmt.Errorf("empty data returned")
	}

	// Sort candles by datetime (oldest first for proper calculations)
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	candles := make([]models.Candle, 0, len(data.Values))
	for _, v := range data.Values {
		ts, err := parseDatetime(v.Datetime)
		if err != nil {
			c.logger.Warn().Str("datetime", v.Datetime).Msg("Skipping candle with unparseable datetime")
			continue
		}
		candles = append(candles, models.Candle{
			Time:   ts,
			Open:   v.Open,
			High:   v.High,
			Low:    v.Low,
			Close:  v.Close,
			Volume: v.Volume,
		})
	}

	c.logger.Debug().Int("count", len(candles)).Msg("Fetched candles")
	return candles, nil
}

// parseDatetime handles both date-only and datetime formats returned by the API
func parseDatetime(s string) (time.Time, error) {
	if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return ts, nil
	}
	return time.Parse("2006-01-02", s)
}
