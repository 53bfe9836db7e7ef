// Package client is the HTTP client for the account API: roles, teams and
// members. Reads retry with backoff and honor Retry-After on throttled
// responses; mutations additionally run behind a circuit breaker so a
// misbehaving API does not get hammered with writes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultAttempts = 3
)

// Client is the HTTP client for the account API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// New returns a client with default timeout, rate limit and breaker
// settings.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "account-api",
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}
}

func (c *Client) endpoint(path string) string {
	base := strings.TrimRight(c.BaseURL, "/")
	if strings.HasPrefix(path, base) {
		return path
	}
	return base + path
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		payload = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), payload)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// classifyStatus decides retryability. 429 carries the server's Retry-After
// hint; 5xx retries with backoff; every other 4xx is final.
func classifyStatus(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = resp.Status
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: msg}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ThrottleError{RetryAfter: retryAfter(resp), Cause: apiErr}
	case resp.StatusCode >= 500:
		return apiErr
	default:
		return retry.Unrecoverable(apiErr)
	}
}

func retryAfter(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return time.Second
}

// withRetry runs fn under the rate limiter and the retry policy.
func (c *Client) withRetry(ctx context.Context, fn func(context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(defaultAttempts),
		retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
			var tErr *ThrottleError
			if errors.As(err, &tErr) {
				return tErr.RetryAfter
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)
	return r.Do(func() error {
		return fn(ctx)
	})
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *Client) mutate(ctx context.Context, method, path string, body, out any) error {
	if c.breaker == nil {
		return c.withRetry(ctx, func(ctx context.Context) error {
			return c.doJSON(ctx, method, path, body, out)
		})
	}
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.withRetry(ctx, func(ctx context.Context) error {
			return c.doJSON(ctx, method, path, body, out)
		})
	})
	return err
}

// pageLinks is the hypermedia pagination envelope.
type pageLinks struct {
	Next *struct {
		Href string `json:"href"`
	} `json:"next"`
}

// listPages walks a paginated collection, decoding each page's items into
// raw messages handed to collect.
func (c *Client) listPages(ctx context.Context, path string, collect func(json.RawMessage) error) error {
	next := path
	for next != "" {
		var page struct {
			Items []json.RawMessage `json:"items"`
			Links pageLinks         `json:"_links"`
		}
		if err := c.get(ctx, next, &page); err != nil {
			return err
		}
		for _, item := range page.Items {
			if err := collect(item); err != nil {
				return err
			}
		}
		next = ""
		if page.Links.Next != nil {
			next = page.Links.Next.Href
		}
	}
	return nil
}
