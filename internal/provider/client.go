// ABOUTME: HTTP client for the wearable aggregation API with rate limiting.
// ABOUTME: Each category fetch yields inline items, a deferral, or an error.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const dateParamLayout = "2006-01-02"

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider API error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the wearable aggregation API.
type Client struct {
	client      *http.Client
	rateLimiter *rate.Limiter
	apiKey      string
	baseURL     string
}

// NewClient creates a provider client with a conservative rate limit
// (100 requests per minute).
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key is required")
	}
	return &Client{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/100), 10),
		apiKey:      apiKey,
		baseURL:     baseURL,
	}, nil
}

// Daily fetches daily summary items for the user and date range.
func (c *Client) Daily(ctx context.Context, userID string, from, to time.Time) (*Result[DailyItem], error) {
	return fetch[DailyItem](ctx, c, "/v1/daily", userID, from, to)
}

// Sleep fetches sleep session items for the user and date range.
func (c *Client) Sleep(ctx context.Context, userID string, from, to time.Time) (*Result[SleepItem], error) {
	return fetch[SleepItem](ctx, c, "/v1/sleep", userID, from, to)
}

// Activity fetches activity session items for the user and date range.
func (c *Client) Activity(ctx context.Context, userID string, from, to time.Time) (*Result[ActivityItem], error) {
	return fetch[ActivityItem](ctx, c, "/v1/activity", userID, from, to)
}

func fetch[T any](ctx context.Context, c *Client, endpoint, userID string, from, to time.Time) (*Result[T], error) {
	body, status, err := c.makeRequest(ctx, endpoint, url.Values{
		"user_id": {userID},
		"start":   {from.UTC().Format(dateParamLayout)},
		"end":     {to.UTC().Format(dateParamLayout)},
	})
	if err != nil {
		return nil, err
	}

	// 202 means the range was too wide to answer inline; the provider
	// will deliver chunks via webhook tagged with the reference token.
	if status == http.StatusAccepted {
		var deferral Deferral
		if err := json.Unmarshal(body, &deferral); err != nil {
			return nil, fmt.Errorf("parse deferral: %w", err)
		}
		if deferral.Reference == "" {
			return nil, fmt.Errorf("deferral response missing reference token")
		}
		return &Result[T]{Deferred: &deferral}, nil
	}

	var response struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", endpoint, err)
	}
	return &Result[T]{Items: response.Data}, nil
}

// makeRequest performs an authenticated request, returning the body
// and status for 200/202 and an APIError otherwise.
func (c *Client) makeRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, int, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, 0, fmt.Errorf("rate limiter: %w", err)
	}

	requestURL := c.baseURL + endpoint
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, resp.StatusCode, apiError(resp.StatusCode, body)
	}
	return body, resp.StatusCode, nil
}

// apiError maps a non-2xx response into an APIError, preferring the
// provider's structured error payload when present.
func apiError(statusCode int, body []byte) error {
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return &APIError{StatusCode: statusCode, Code: payload.Error.Code, Message: payload.Error.Message}
	}

	message := http.StatusText(statusCode)
	switch statusCode {
	case http.StatusUnauthorized:
		message = "authentication failed: invalid API key"
	case http.StatusTooManyRequests:
		message = "rate limit exceeded"
	case http.StatusServiceUnavailable:
		message = "provider temporarily unavailable"
	}
	return &APIError{StatusCode: statusCode, Message: message}
}
