// Package model defines shared data types used across the Coinbase data platform.
//
// All types mirror the database schema created by internal/database.
//
// Conventions:
//   - Prices and sizes: shopspring decimal.Decimal (NUMERIC in Postgres)
//   - Timestamps: time.Time, always UTC
//   - IDs: product IDs like "BTC-USD"; trade IDs are exchange-assigned strings
package model
