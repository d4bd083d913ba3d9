package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stockgame/internal/game"
)

var errStatus = errors.New("gateway status")

// Client calls a quote gateway over HTTP. It satisfies game.QuoteGateway.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Retries is the number of extra attempts after a transport failure.
	Retries int
	Backoff time.Duration
	log     *slog.Logger
}

var _ game.QuoteGateway = (*Client)(nil)

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
		},
		Retries: 2,
		Backoff: 250 * time.Millisecond,
		log:     logger,
	}
}

// Quotes fetches the batch in one request. Rows the gateway could not price
// come back with a nil Price. Any non-2xx answer fails the whole batch and
// is not retried.
func (c *Client) Quotes(ctx context.Context, symbols []string) ([]game.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	endpoint := c.BaseURL + "/api/stocks?symbols=" + url.QueryEscape(strings.Join(symbols, ","))

	backoff := c.Backoff
	var lastErr error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
		}
		out, err := c.fetch(ctx, endpoint)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, errStatus) || errors.Is(err, ErrNoPrice) || ctx.Err() != nil {
			break
		}
		c.log.Debug("quote fetch retry", "attempt", attempt+1, "err", err)
	}
	return nil, lastErr
}

// Detail fetches the single-symbol detail view. A 404 from the gateway is
// reported as ErrNoPrice.
func (c *Client) Detail(ctx context.Context, symbol string) (StockDetail, error) {
	var out StockDetail
	err := c.getJSON(ctx, c.BaseURL+"/api/stock/"+url.PathEscape(strings.ToUpper(strings.TrimSpace(symbol))), &out)
	return out, err
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]game.Quote, error) {
	var body struct {
		Stocks []game.Quote `json:"stocks"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	return body.Stocks, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNoPrice
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w %d: %s", errStatus, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
