// Package valr is the REST gateway to the VALR exchange API. It owns
// request signing, rate limiting, retries, endpoint fallback, and
// normalization of the exchange's inconsistent response shapes.
package valr

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// Config holds gateway connection and resilience settings.
type Config struct {
	BaseURL           string
	APIVersion        string // path prefix, e.g. "/v1"
	Key               string
	Secret            string
	Timeout           time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	RequestsPerMinute int
}

// Client is the signed REST client for the VALR exchange API.
type Client struct {
	baseURL     string
	version     string
	key         string
	secret      []byte
	httpClient  *http.Client
	limiter     *slidingLimiter
	maxRetries  int
	backoffBase time.Duration
	logger      *slog.Logger
}

// New creates a new VALR REST client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase == 0 {
		backoffBase = time.Second
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 600
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		version:     cfg.APIVersion,
		key:         cfg.Key,
		secret:      []byte(cfg.Secret),
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     newSlidingLimiter(rpm, time.Minute),
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		logger:      logger.With(slog.String("component", "valr")),
	}
}

// ServerTime returns the exchange's clock, useful for diagnosing signature
// timestamp rejections.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, []string{"/public/time", "/time"}, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("valr: server time: %w", err)
	}

	var resp struct {
		EpochTime int64  `json:"epochTime"`
		Time      string `json:"time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("valr: decode server time: %w", err)
	}
	if resp.EpochTime > 0 {
		return time.Unix(resp.EpochTime, 0).UTC(), nil
	}
	return parseTimestamp(resp.Time), nil
}

// Balances returns available balances per currency. Zero balances are
// omitted.
func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, []string{"/account/balances"}, nil)
	if err != nil {
		return nil, fmt.Errorf("valr: get balances: %w", err)
	}

	var resp []balanceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("valr: decode balances: %w", err)
	}

	balances := make(map[string]decimal.Decimal, len(resp))
	for _, b := range resp {
		available := parseDecimal(b.Available)
		if available.IsZero() {
			continue
		}
		balances[strings.ToUpper(b.Currency)] = available
	}
	return balances, nil
}

// OrderBook returns the current book for the given pair.
func (c *Client) OrderBook(ctx context.Context, pair string) (domain.OrderBook, error) {
	paths := []string{
		"/marketdata/" + pair + "/orderbook",
		"/public/" + pair + "/orderbook",
	}
	body, err := c.doSignedRequest(ctx, http.MethodGet, paths, nil)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("valr: get orderbook %s: %w", pair, err)
	}

	var resp orderBookResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("valr: decode orderbook: %w", err)
	}
	return resp.normalize(pair), nil
}

// PairSummary returns the market summary for a single pair.
func (c *Client) PairSummary(ctx context.Context, pair string) (domain.PairSummary, error) {
	paths := []string{
		"/public/" + pair + "/marketsummary",
		"/marketsummary/pair/" + pair,
	}
	body, err := c.doSignedRequest(ctx, http.MethodGet, paths, nil)
	if err != nil {
		return domain.PairSummary{}, fmt.Errorf("valr: get market summary %s: %w", pair, err)
	}

	var resp pairSummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PairSummary{}, fmt.Errorf("valr: decode market summary: %w", err)
	}
	return domain.PairSummary{
		Pair:            pair,
		LastTradedPrice: parseDecimal(firstNonEmpty(resp.LastTradedPrice, resp.MarkPrice)),
		BidPrice:        parseDecimal(resp.BidPrice),
		AskPrice:        parseDecimal(resp.AskPrice),
	}, nil
}

// PlaceLimitOrder submits a limit order and returns the exchange order ID.
// With postOnly set the order is rejected instead of crossing the spread.
func (c *Client) PlaceLimitOrder(ctx context.Context, pair string, side domain.OrderSide, quantity, price decimal.Decimal, postOnly bool) (string, error) {
	if quantity.Sign() <= 0 || price.Sign() <= 0 {
		return "", domain.ErrInvalidOrder
	}

	req := map[string]any{
		"pair":        pair,
		"side":        string(side),
		"quantity":    quantity.String(),
		"price":       price.String(),
		"postOnly":    postOnly,
		"timeInForce": "GTC",
	}
	body, err := c.doSignedRequest(ctx, http.MethodPost, []string{"/orders/limit"}, req)
	if err != nil {
		return "", fmt.Errorf("valr: place limit order: %w", err)
	}

	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("valr: decode place order response: %w", err)
	}
	id := firstNonEmpty(resp.ID, resp.OrderID)
	if id == "" {
		return "", fmt.Errorf("valr: place limit order: no order id in response")
	}

	c.logger.Info("limit order placed",
		slog.String("order_id", id),
		slog.String("pair", pair),
		slog.String("side", string(side)),
		slog.String("quantity", quantity.String()),
		slog.String("price", price.String()),
		slog.Bool("post_only", postOnly),
	)
	return id, nil
}

// PlaceMarketOrder submits a market order for the given base quantity.
func (c *Client) PlaceMarketOrder(ctx context.Context, pair string, side domain.OrderSide, quantity decimal.Decimal) (string, error) {
	if quantity.Sign() <= 0 {
		return "", domain.ErrInvalidOrder
	}

	req := map[string]any{
		"pair":       pair,
		"side":       string(side),
		"baseAmount": quantity.String(),
	}
	body, err := c.doSignedRequest(ctx, http.MethodPost, []string{"/orders/market"}, req)
	if err != nil {
		return "", fmt.Errorf("valr: place market order: %w", err)
	}

	var resp placeOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("valr: decode place order response: %w", err)
	}
	id := firstNonEmpty(resp.ID, resp.OrderID)

	c.logger.Info("market order placed",
		slog.String("order_id", id),
		slog.String("pair", pair),
		slog.String("side", string(side)),
		slog.String("quantity", quantity.String()),
	)
	return id, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, pair, orderID string) error {
	req := map[string]any{
		"orderId": orderID,
		"pair":    pair,
	}
	if _, err := c.doSignedRequest(ctx, http.MethodDelete, []string{"/orders/order"}, req); err != nil {
		return fmt.Errorf("valr: cancel order %s: %w", orderID, err)
	}

	c.logger.Info("order cancelled",
		slog.String("order_id", orderID),
		slog.String("pair", pair),
	)
	return nil
}

// OrderStatus returns the normalized state of an order. Recently settled
// orders fall off the primary endpoint, so the history summary is queried
// as a fallback.
func (c *Client) OrderStatus(ctx context.Context, pair, orderID string) (domain.OrderState, error) {
	paths := []string{
		"/orders/" + pair + "/orderid/" + orderID,
		"/orders/history/summary/orderid/" + orderID,
	}
	body, err := c.doSignedRequest(ctx, http.MethodGet, paths, nil)
	if err != nil {
		return domain.OrderState{}, fmt.Errorf("valr: get order status %s: %w", orderID, err)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderState{}, fmt.Errorf("valr: decode order status: %w", err)
	}
	state := resp.normalize()
	if state.ID == "" {
		state.ID = orderID
	}
	return state, nil
}

// OpenOrders lists all orders currently resting on the exchange.
func (c *Client) OpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	body, err := c.doSignedRequest(ctx, http.MethodGet, []string{"/orders/open"}, nil)
	if err != nil {
		return nil, fmt.Errorf("valr: list open orders: %w", err)
	}

	var resp []openOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("valr: decode open orders: %w", err)
	}

	orders := make([]domain.OpenOrder, 0, len(resp))
	for _, o := range resp {
		orders = append(orders, o.normalize())
	}
	return orders, nil
}

// OrderFills lists the executions recorded against an order.
func (c *Client) OrderFills(ctx context.Context, pair, orderID string) ([]domain.Fill, error) {
	path := "/orders/" + pair + "/orderid/" + orderID + "/fills"
	body, err := c.doSignedRequest(ctx, http.MethodGet, []string{path}, nil)
	if err != nil {
		return nil, fmt.Errorf("valr: get order fills %s: %w", orderID, err)
	}

	var resp []fillResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("valr: decode order fills: %w", err)
	}

	fills := make([]domain.Fill, 0, len(resp))
	for _, f := range resp {
		fills = append(fills, domain.Fill{
			Price:    parseDecimal(f.Price),
			Quantity: parseDecimal(f.Quantity),
			FilledAt: parseTimestamp(f.TradedAt),
		})
	}
	return fills, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doSignedRequest signs and sends a request, walking the candidate paths in
// order. A 404 on any path but the last means "try the next one"; the
// exchange has moved endpoints between API revisions before.
func (c *Client) doSignedRequest(ctx context.Context, method string, paths []string, reqBody any) ([]byte, error) {
	var bodyBytes []byte
	if reqBody != nil {
		var err error
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var lastErr error
	for i, path := range paths {
		respBody, err := c.doWithRetry(ctx, method, path, bodyBytes)
		if err == nil {
			return respBody, nil
		}

		var apiErr *APIError
		if i < len(paths)-1 && errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			c.logger.Debug("endpoint not found, trying fallback",
				slog.String("path", path),
				slog.String("next", paths[i+1]),
			)
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// doWithRetry sends one request with exponential backoff on transport
// failures and HTTP 429/5xx. The request is rebuilt and re-signed each
// attempt so timestamps stay fresh.
func (c *Client) doWithRetry(ctx context.Context, method, path string, bodyBytes []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		respBody, status, err := c.doOnce(ctx, method, path, bodyBytes)
		if err != nil {
			lastErr = err
			c.logger.Warn("request failed, retrying",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			continue
		}

		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = c.statusError(status, respBody)
			c.logger.Warn("retryable status, retrying",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("status", status),
				slog.Int("attempt", attempt+1),
			)
			continue
		}

		if status < 200 || status >= 300 {
			return nil, c.statusError(status, respBody)
		}
		return respBody, nil
	}

	var apiErr *APIError
	if errors.As(lastErr, &apiErr) {
		if apiErr.Status == http.StatusTooManyRequests {
			return nil, &RateLimitError{Message: apiErr.Message}
		}
		return nil, apiErr
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no attempts made")
	}
	return nil, &ConnectionError{Err: lastErr}
}

func (c *Client) doOnce(ctx context.Context, method, path string, bodyBytes []byte) ([]byte, int, error) {
	versionedPath := c.version + path

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+versionedPath, bodyReader)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("X-VALR-API-KEY", c.key)
	req.Header.Set("X-VALR-API-SIGNATURE", sign(c.secret, ts, method, versionedPath, bodyBytes))
	req.Header.Set("X-VALR-API-TIMESTAMP", ts)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("request completed",
		slog.String("method", method),
		slog.String("path", versionedPath),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)
	return respBody, resp.StatusCode, nil
}

// sign produces the hex HMAC-SHA512 of timestamp + METHOD + path + body.
// The path must include the API version prefix.
func sign(secret []byte, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(strings.ToUpper(method)))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.backoffBase * (1 << (attempt - 1))
	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) statusError(status int, body []byte) *APIError {
	var resp errorResponse
	_ = json.Unmarshal(body, &resp)

	message := firstNonEmpty(resp.Message, resp.Error)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	code := ""
	if resp.Code != nil {
		code = fmt.Sprint(resp.Code)
	}
	return &APIError{Status: status, Code: code, Message: message}
}
