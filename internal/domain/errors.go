package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrDailyLimitReached   = errors.New("daily trade limit reached")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoMarketData        = errors.New("no market data")
	ErrEntryNotFilled      = errors.New("entry order not filled")
	ErrInvalidOrder        = errors.New("invalid order parameters")
)
