// Package model defines shared data types used across the data service.
//
// Conventions:
//   - Prices and volumes: decimal.Decimal (exact values as quoted by the exchange)
//   - Timestamps: time.Time in UTC, aligned to the configured grid interval
//   - Keys: a stored entry is uniquely addressed by (exchange, coin, timestamp)
package model
