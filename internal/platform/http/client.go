// Package http wraps the standard client with the rate limiting and retry
// policy outbound exchange calls share.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Client is an HTTP client with rate limiting and transient-failure retries
type Client struct {
	httpClient    *http.Client
	limiter       *rate.Limiter
	retryInterval time.Duration
	maxRetry      time.Duration
	logger        zerolog.Logger
}

// Options holds options for creating a new Client
type Options struct {
	Timeout         time.Duration
	RequestsPerSec  int
	RetryInterval   time.Duration // initial backoff interval, 0 uses the backoff default
	MaxRetryElapsed time.Duration
}

// NewClient creates a rate-limited retrying HTTP client
func NewClient(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetryElapsed == 0 {
		opts.MaxRetryElapsed = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:       rate.NewLimiter(rate.Every(time.Second), opts.RequestsPerSec),
		retryInterval: opts.RetryInterval,
		maxRetry:      opts.MaxRetryElapsed,
		logger:        log.With().Str("component", "http_client").Logger(),
	}
}

// Do performs the request with rate limiting. Network errors, 429 and 5xx
// responses retry with exponential backoff; other non-200 statuses fail
// immediately.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var resp *http.Response
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		resp, err = c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Request failed, will retry")
			return err
		}
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		resp.Body.Close()
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if !retryableStatus(resp.StatusCode) {
			return backoff.Permanent(statusErr)
		}
		c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("Retryable status, backing off")
		return statusErr
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = c.maxRetry
	if c.retryInterval > 0 {
		strategy.InitialInterval = c.retryInterval
	}

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}

	return resp, nil
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// StatusError represents a non-200 HTTP status code
type StatusError struct {
	StatusCode int
}

// Error implements the error interface
func (e *StatusError) Error() string {
	return "non-200 status code: " + http.StatusText(e.StatusCode)
}
