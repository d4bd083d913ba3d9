package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stockgame/internal/game"
	"stockgame/internal/quotes"
)

// StatusError is returned for any non-2xx answer from the game API.
type StatusError struct {
	Status  int
	Message string
	Reason  string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("api status %d (%s): %s", e.Status, e.Reason, e.Message)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// Retryable reports whether the request could succeed later without change.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusServiceUnavailable || e.Status == http.StatusBadGateway || e.Status == http.StatusGatewayTimeout
}

// IsRetryable reports whether err is a transport failure or a retryable
// status, which is what the offline order queue keeps for later.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type Registration struct {
	ID              string `json:"id"`
	DisplayName     string `json:"display_name"`
	RiskTolerance   string `json:"risk_tolerance,omitempty"`
	PreferredSector string `json:"preferred_sector,omitempty"`
	ReturnGoal      string `json:"return_goal,omitempty"`
}

type Dashboard struct {
	Snapshot game.Snapshot `json:"snapshot"`
	Rank     int64         `json:"rank,omitempty"`
}

type Rankings struct {
	Rankings []game.RankingEntry `json:"rankings"`
	Advisory string              `json:"advisory,omitempty"`
}

func (c *Client) Register(ctx context.Context, in Registration) (game.Snapshot, error) {
	var out game.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, "/v1/players", in, &out, "")
	return out, err
}

func (c *Client) Dashboard(ctx context.Context, playerID string) (Dashboard, error) {
	var out Dashboard
	err := c.jsonRequest(ctx, http.MethodGet, playerPath(playerID, ""), nil, &out, "")
	return out, err
}

func (c *Client) PlaceOrder(ctx context.Context, playerID, symbol, side string, quantity int64, idem string) (game.OrderResult, error) {
	var out game.OrderResult
	err := c.jsonRequest(ctx, http.MethodPost, playerPath(playerID, "/orders"), map[string]any{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
	}, &out, idem)
	return out, err
}

func (c *Client) SellAll(ctx context.Context, playerID, symbol string) (game.OrderResult, error) {
	var out game.OrderResult
	err := c.jsonRequest(ctx, http.MethodDelete, playerPath(playerID, "/holdings/"+url.PathEscape(symbol)), nil, &out, "")
	return out, err
}

func (c *Client) Start(ctx context.Context, playerID string) (game.Snapshot, error) {
	return c.lifecycle(ctx, playerID, "/start")
}

func (c *Client) Reset(ctx context.Context, playerID string) (game.Snapshot, error) {
	return c.lifecycle(ctx, playerID, "/reset")
}

func (c *Client) Refresh(ctx context.Context, playerID string) (game.Snapshot, error) {
	return c.lifecycle(ctx, playerID, "/refresh")
}

func (c *Client) lifecycle(ctx context.Context, playerID, action string) (game.Snapshot, error) {
	var out game.Snapshot
	err := c.jsonRequest(ctx, http.MethodPost, playerPath(playerID, action), nil, &out, "")
	return out, err
}

func (c *Client) Rankings(ctx context.Context, playerID, sector string, refresh, buyableOnly bool) (Rankings, error) {
	q := url.Values{}
	if sector != "" {
		q.Set("sector", sector)
	}
	if refresh {
		q.Set("refresh", "1")
	}
	if buyableOnly {
		q.Set("buyable", "1")
	}
	path := playerPath(playerID, "/rankings")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out Rankings
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out, err
}

func (c *Client) Leaderboard(ctx context.Context, limit int) ([]game.LeaderboardEntry, error) {
	path := "/v1/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Rows []game.LeaderboardEntry `json:"rows"`
	}
	err := c.jsonRequest(ctx, http.MethodGet, path, nil, &out, "")
	return out.Rows, err
}

func (c *Client) StockDetail(ctx context.Context, symbol string) (quotes.StockDetail, error) {
	var out quotes.StockDetail
	err := c.jsonRequest(ctx, http.MethodGet, "/v1/stocks/"+url.PathEscape(symbol), nil, &out, "")
	return out, err
}

func playerPath(playerID, suffix string) string {
	return "/v1/players/" + url.PathEscape(playerID) + suffix
}

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any, out any, idem string) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if idem != "" {
		req.Header.Set("Idempotency-Key", idem)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		se := &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var payload struct {
			Error  string `json:"error"`
			Reason string `json:"reason"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			se.Message = payload.Error
			se.Reason = payload.Reason
		}
		return se
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
