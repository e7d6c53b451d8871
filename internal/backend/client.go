// Package backend is the HTTP client for the coins ledger service
package backend

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

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"caosbot/internal/models"
)

const (
	apiKeyHeader    = "x-bot-api-key"
	requestIDHeader = "X-Request-ID"
)

// Client talks to the coins backend
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the coins API at baseURL
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type reportRequest struct {
	User   models.User `json:"user"`
	Amount int         `json:"amount"`
}

type reportResponse struct {
	NewBalance int `json:"newBalance"`
}

type balanceResponse struct {
	Balance int `json:"balance"`
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend responded %d: %s", e.Code, e.Body)
}

// ReportCoins posts a coin delta for user and returns the new balance
func (c *Client) ReportCoins(ctx context.Context, user models.User, amount int) (int, error) {
	body, err := json.Marshal(reportRequest{User: user, Amount: amount})
	if err != nil {
		return 0, fmt.Errorf("failed to encode report: %w", err)
	}

	var out reportResponse
	if err := c.do(ctx, http.MethodPost, "/discord/coins/report", bytes.NewReader(body), &out); err != nil {
		return 0, err
	}
	return out.NewBalance, nil
}

// GetCoins returns the current balance of a user
func (c *Client) GetCoins(ctx context.Context, userID string) (int, error) {
	var out balanceResponse
	if err := c.do(ctx, http.MethodGet, "/discord/coins/"+url.PathEscape(userID), nil, &out); err != nil {
		return 0, err
	}
	return out.Balance, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set(requestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	log.Debug().Str("request_id", requestID).Str("method", method).Str("path", path).Int("status", res.StatusCode).Msg("backend call")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}
