package store

import "strings"

// NormalizeExchange lowercases an exchange name and replaces spaces so that
// "Binance" and "binance" address the same series.
func NormalizeExchange(exchange string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(exchange)), " ", "_")
}

// NormalizeCoin uppercases a coin symbol and replaces the pair separator,
// e.g. "btc/usdt" becomes "BTC_USDT".
func NormalizeCoin(coin string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(coin)), "/", "_")
}

// Key builds the canonical series key for (exchange, coin).
func Key(exchange, coin string) string {
	return NormalizeExchange(exchange) + "/" + NormalizeCoin(coin)
}
