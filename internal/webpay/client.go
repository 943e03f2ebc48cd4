package webpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const transactionsPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

// max body read from the gateway
const maxBody = 1 << 20

// Client signs and sends Webpay Plus transaction calls for a single profile.
type Client struct {
	profile Profile
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(p Profile, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		profile: p,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "webpay-" + p.Environment,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (c *Client) Environment() string { return c.profile.Environment }

// CreateTransaction opens a transaction and returns the token plus the payment form URL.
func (c *Client) CreateTransaction(ctx context.Context, req CreateRequest) (CreateResponse, error) {
	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, "", req, &out); err != nil {
		return CreateResponse{}, err
	}
	if out.Token == "" || out.URL == "" {
		return CreateResponse{}, fmt.Errorf("%w: create response without token", ErrUnavailable)
	}
	return out, nil
}

// CommitTransaction confirms the transaction identified by token.
func (c *Client) CommitTransaction(ctx context.Context, token string) (TransactionResult, error) {
	var out TransactionResult
	if err := c.do(ctx, http.MethodPut, "/"+url.PathEscape(token), struct{}{}, &out); err != nil {
		return TransactionResult{}, err
	}
	return out, nil
}

// TransactionStatus reads the current state of a transaction without changing it.
func (c *Client) TransactionStatus(ctx context.Context, token string) (TransactionResult, error) {
	var out TransactionResult
	if err := c.do(ctx, http.MethodGet, "/"+url.PathEscape(token), nil, &out); err != nil {
		return TransactionResult{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("webpay: encode request: %w", err)
		}
		payload = b
	}

	raw, err := c.breaker.Execute(func() ([]byte, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.profile.Host+transactionsPath+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Tbk-Api-Key-Id", c.profile.CommerceCode)
		req.Header.Set("Tbk-Api-Key-Secret", c.profile.APIKey)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, newAPIError(resp.StatusCode, b)
		}
		return b, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
		}
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status, Body: body}
	var msg struct {
		ErrorMessage string `json:"error_message"`
	}
	if json.Unmarshal(body, &msg) == nil {
		e.Message = msg.ErrorMessage
	}
	return e
}

// 4xx answers mean the gateway is up and rejected the call; they must not open the breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < http.StatusInternalServerError
	}
	return false
}
