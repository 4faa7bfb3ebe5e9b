package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantfold/signal-engine/internal/config"
)

// RESTClient implements Client over the exchange's HTTP API. Request signing
// is delegated to the upstream gateway configured at BaseURL; this client
// only paces requests and maps responses.
type RESTClient struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	apiKey      string
}

func NewRESTClient(cfg config.Exchange) *RESTClient {
	return &RESTClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RateBurst),
		apiKey:      cfg.APIKey,
	}
}

func (c *RESTClient) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *RESTClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	var resp struct {
		Price float64 `json:"price"`
	}
	path := "/v1/price?symbol=" + url.QueryEscape(symbol)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Price <= 0 {
		return 0, ErrNoPrice
	}
	return resp.Price, nil
}

func (c *RESTClient) GetOpenPositions(ctx context.Context) ([]RemotePosition, error) {
	var resp struct {
		Positions []struct {
			Symbol     string  `json:"symbol"`
			Side       string  `json:"side"`
			Size       float64 `json:"size"`
			EntryPrice float64 `json:"entry_price"`
		} `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/positions", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]RemotePosition, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		out = append(out, RemotePosition{
			Symbol:     p.Symbol,
			Side:       Side(p.Side),
			Size:       p.Size,
			EntryPrice: p.EntryPrice,
		})
	}
	return out, nil
}

type orderResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
}

func (c *RESTClient) PlaceEntry(ctx context.Context, symbol string, side Side, amountUSD float64, leverage int) (Result, error) {
	body := map[string]any{
		"symbol":   symbol,
		"side":     string(side),
		"amount":   amountUSD,
		"leverage": leverage,
	}
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders/entry", body, &resp); err != nil {
		return Result{}, err
	}
	return Result{Success: resp.Success, Detail: resp.Detail}, nil
}

func (c *RESTClient) PlaceReduce(ctx context.Context, symbol string, side Side, size float64) (Result, error) {
	body := map[string]any{
		"symbol": symbol,
		"side":   string(side),
		"size":   size,
	}
	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/orders/reduce", body, &resp); err != nil {
		return Result{}, err
	}
	return Result{Success: resp.Success, Detail: resp.Detail}, nil
}
