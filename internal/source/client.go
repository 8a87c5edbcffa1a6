// Package source implements the HTTP client for the search-interest provider.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trendsync/internal/trends"
)

const interestPath = "/v1/interest"

// Config captures the parameters required to talk to the provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client fetches interest time series over HTTP and classifies failures
// into the error taxonomy of the trends package.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a provider client.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("source.base_url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		apiKey:     cfg.APIKey,
	}, nil
}

// FetchInterest requests the daily interest series for one keyword/market
// pair over the given date window.
func (c *Client) FetchInterest(ctx context.Context, key trends.FetchKey, window trends.DateRange) (trends.RawObservation, error) {
	q := url.Values{}
	q.Set("keyword", key.Keyword)
	q.Set("geo", key.Market)
	q.Set("from", window.From.UTC().Format(trends.DateLayout))
	q.Set("to", window.To.UTC().Format(trends.DateLayout))
	endpoint := c.baseURL + interestPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return trends.RawObservation{}, fmt.Errorf("build request for %s: %w", key, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return trends.RawObservation{}, fmt.Errorf("request for %s: %w", key, ctx.Err())
		}
		return trends.RawObservation{}, fmt.Errorf("request for %s: %v: %w", key, err, trends.ErrTransient)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return trends.RawObservation{}, fmt.Errorf("request for %s: %w", key, &trends.ThrottledError{RetryAfter: retryAfter(resp)})
	case resp.StatusCode >= http.StatusInternalServerError:
		return trends.RawObservation{}, fmt.Errorf("request for %s: status %d: %w", key, resp.StatusCode, trends.ErrTransient)
	case resp.StatusCode != http.StatusOK:
		return trends.RawObservation{}, fmt.Errorf("request for %s: status %d: %w", key, resp.StatusCode, trends.ErrPermanent)
	}

	var obs trends.RawObservation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		return trends.RawObservation{}, fmt.Errorf("decode response for %s: %v: %w", key, err, trends.ErrMalformedResponse)
	}
	return obs, nil
}

// retryAfter parses the Retry-After header, seconds form only. Zero means
// the provider gave no usable hint.
func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
