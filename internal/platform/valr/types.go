package valr

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"valrbot/internal/domain"
)

// The exchange is not consistent about response shapes across endpoints or
// API revisions. Each wire struct below carries every field spelling
// observed in practice; normalization picks the first one present.

type balanceResponse struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
	Total     string `json:"total"`
}

type bookLevelResponse struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type orderBookResponse struct {
	Asks []bookLevelResponse `json:"Asks"`
	Bids []bookLevelResponse `json:"Bids"`
}

type pairSummaryResponse struct {
	CurrencyPair    string `json:"currencyPair"`
	LastTradedPrice string `json:"lastTradedPrice"`
	BidPrice        string `json:"bidPrice"`
	AskPrice        string `json:"askPrice"`
	MarkPrice       string `json:"markPrice"`
}

type orderStatusResponse struct {
	OrderID           string `json:"orderId"`
	OrderStatusType   string `json:"orderStatusType"`
	Status            string `json:"status"`
	OriginalQuantity  string `json:"originalQuantity"`
	Quantity          string `json:"quantity"`
	BaseAmount        string `json:"baseAmount"`
	RemainingQuantity string `json:"remainingQuantity"`
	ExecutedQuantity  string `json:"executedQuantity"`
	Price             string `json:"price"`
	LimitPrice        string `json:"limitPrice"`
	OrderPrice        string `json:"orderPrice"`
	AveragePrice      string `json:"averagePrice"`
	AvgPrice          string `json:"avgPrice"`
}

type openOrderResponse struct {
	OrderID           string `json:"orderId"`
	CurrencyPair      string `json:"currencyPair"`
	Side              string `json:"side"`
	Price             string `json:"price"`
	LimitPrice        string `json:"limitPrice"`
	OriginalQuantity  string `json:"originalQuantity"`
	Quantity          string `json:"quantity"`
	RemainingQuantity string `json:"remainingQuantity"`
	CreatedAt         string `json:"createdAt"`
	OrderCreatedAt    string `json:"orderCreatedAt"`
}

type fillResponse struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	TradedAt string `json:"tradedAt"`
}

type placeOrderResponse struct {
	ID      string `json:"id"`
	OrderID string `json:"orderId"`
}

type errorResponse struct {
	Code    any    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// normalizeStatus collapses the raw exchange status string onto the four
// canonical states. Unknown strings map to PENDING so a new exchange-side
// status never makes the engine treat an order as terminal.
func normalizeStatus(raw string) domain.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "filled":
		return domain.OrderStatusFilled
	case "partially filled", "partially_filled", "partiallyfilled":
		return domain.OrderStatusPartiallyFilled
	case "cancelled", "canceled", "failed", "expired", "instant order completed cancelled":
		return domain.OrderStatusCancelled
	default:
		return domain.OrderStatusPending
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDecimal is lenient: empty or malformed wire values become zero so a
// missing optional field never fails the whole response.
func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseTimestamp(vals ...string) time.Time {
	raw := firstNonEmpty(vals...)
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}

func (r orderStatusResponse) normalize() domain.OrderState {
	status := normalizeStatus(firstNonEmpty(r.OrderStatusType, r.Status))
	original := parseDecimal(firstNonEmpty(r.OriginalQuantity, r.Quantity, r.BaseAmount))

	filled := parseDecimal(r.ExecutedQuantity)
	if filled.IsZero() {
		if remaining := strings.TrimSpace(r.RemainingQuantity); remaining != "" {
			filled = original.Sub(parseDecimal(remaining))
		} else if status == domain.OrderStatusFilled {
			filled = original
		}
	}
	if filled.IsNegative() {
		filled = decimal.Zero
	}

	return domain.OrderState{
		ID:               r.OrderID,
		Status:           status,
		OriginalQuantity: original,
		FilledQuantity:   filled,
		AveragePrice:     parseDecimal(firstNonEmpty(r.AveragePrice, r.AvgPrice)),
	}
}

func (r openOrderResponse) normalize() domain.OpenOrder {
	side := domain.OrderSideBuy
	if strings.EqualFold(r.Side, "sell") {
		side = domain.OrderSideSell
	}
	return domain.OpenOrder{
		ID:        r.OrderID,
		Pair:      r.CurrencyPair,
		Side:      side,
		Price:     parseDecimal(firstNonEmpty(r.Price, r.LimitPrice)),
		Quantity:  parseDecimal(firstNonEmpty(r.OriginalQuantity, r.Quantity, r.RemainingQuantity)),
		CreatedAt: parseTimestamp(r.CreatedAt, r.OrderCreatedAt),
	}
}

func (r orderBookResponse) normalize(pair string) domain.OrderBook {
	book := domain.OrderBook{Pair: pair}
	for _, lvl := range r.Bids {
		book.Bids = append(book.Bids, domain.BookLevel{
			Price:    parseDecimal(lvl.Price),
			Quantity: parseDecimal(lvl.Quantity),
		})
	}
	for _, lvl := range r.Asks {
		book.Asks = append(book.Asks, domain.BookLevel{
			Price:    parseDecimal(lvl.Price),
			Quantity: parseDecimal(lvl.Quantity),
		})
	}
	return book
}
