package api

import (
	"github.com/shopspring/decimal"
)

// Product from GET /products/{product_id}. Numeric fields arrive as strings
// and may be empty.
type Product struct {
	ProductID       string `json:"product_id"`
	Price           string `json:"price"`
	BaseCurrencyID  string `json:"base_currency_id"`
	QuoteCurrencyID string `json:"quote_currency_id"`
	BaseIncrement   string `json:"base_increment"`
	QuoteIncrement  string `json:"quote_increment"`
	Status          string `json:"status"`
	ProductType     string `json:"product_type"`
	TradingDisabled bool   `json:"trading_disabled"`
	IsDisabled      bool   `json:"is_disabled"`
}

// LastPrice parses Price. ok is false when it is empty or malformed.
func (p Product) LastPrice() (price decimal.Decimal, ok bool) {
	d, err := decimal.NewFromString(p.Price)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Tradable reports whether the product currently accepts orders.
func (p Product) Tradable() bool {
	return !p.TradingDisabled && !p.IsDisabled && (p.Status == "" || p.Status == "online")
}

// ProductsResponse from GET /products
type ProductsResponse struct {
	Products    []Product `json:"products"`
	NumProducts int       `json:"num_products"`
}
