package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Raw Types (append-only)
// -----------------------------------------------------------------------------

// Ticker is one observed price sample for a product.
type Ticker struct {
	ProductID string          `json:"product_id"`
	Time      time.Time       `json:"time"`
	Price     decimal.Decimal `json:"price"`
}

// RawTicker is a stored ticker whose time is still in the textual form the
// store rendered it in. The query engine normalizes it before binning.
type RawTicker struct {
	Time  string
	Price decimal.Decimal
}

// Trade is one executed trade as reported by the market_trades channel.
type Trade struct {
	ProductID string          `json:"product_id"`
	Time      time.Time       `json:"time"`
	TradeID   string          `json:"trade_id"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"` // Always >= 0
	Side      Side            `json:"side"`
}

// Validate checks the invariants a trade must satisfy before it is stored.
func (t Trade) Validate() error {
	if t.ProductID == "" {
		return fmt.Errorf("missing product_id")
	}
	if t.TradeID == "" {
		return fmt.Errorf("missing trade_id")
	}
	if t.Size.IsNegative() {
		return fmt.Errorf("negative size %s", t.Size)
	}
	if !t.Side.Valid() {
		return fmt.Errorf("invalid side %q", t.Side)
	}
	return nil
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "BUY"/"SELL" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// -----------------------------------------------------------------------------
// Derived Types
// -----------------------------------------------------------------------------

// Granularity selects a rollup table.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
)

// ParseGranularity accepts "hour"/"hourly" and "day"/"daily".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(s) {
	case "hour", "hourly", "1h":
		return GranularityHour, nil
	case "day", "daily", "1d":
		return GranularityDay, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// Rollup is one row of an hourly or daily summary.
type Rollup struct {
	ProductID string          `json:"product_id"`
	BinStart  time.Time       `json:"bin_start"`
	AvgPrice  decimal.Decimal `json:"avg_price"`
	MinPrice  decimal.Decimal `json:"min_price"`
	MaxPrice  decimal.Decimal `json:"max_price"`
}

// -----------------------------------------------------------------------------
// Query-time Types (never persisted)
// -----------------------------------------------------------------------------

// Bin is the average price over one fixed-width interval.
type Bin struct {
	Start    time.Time
	AvgPrice decimal.Decimal
}

// SideSummary summarizes the trades on one side.
type SideSummary struct {
	TotalSize decimal.Decimal `json:"total_size"`
	AvgPrice  decimal.Decimal `json:"avg_price"` // Size-weighted
	Count     int             `json:"count"`
}

// TradeAggregate splits a trade window by side.
type TradeAggregate struct {
	Buys  SideSummary `json:"buys"`
	Sells SideSummary `json:"sells"`
}
