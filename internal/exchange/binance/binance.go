// Package binance implements the exchange connector for Binance spot markets
// using the go-binance SDK.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

const (
	exchangeName = "binance"
	pageLimit    = 1000

	// Binance error codes surfaced through common.APIError.
	codeInvalidSymbol  = -1121
	codeTooManyRequest = -1003
	codeDisconnected   = -1001
	codeInternalError  = -1000
)

// intervalStrings maps grid intervals to Binance kline interval parameters.
var intervalStrings = map[time.Duration]string{
	time.Minute:        "1m",
	3 * time.Minute:    "3m",
	5 * time.Minute:    "5m",
	15 * time.Minute:   "15m",
	30 * time.Minute:   "30m",
	time.Hour:          "1h",
	2 * time.Hour:      "2h",
	4 * time.Hour:      "4h",
	6 * time.Hour:      "6h",
	8 * time.Hour:      "8h",
	12 * time.Hour:     "12h",
	24 * time.Hour:     "1d",
	72 * time.Hour:     "3d",
	7 * 24 * time.Hour: "1w",
}

// Connector fetches candles from Binance.
type Connector struct {
	client   *gobinance.Client
	interval time.Duration
	throttle *exchange.Throttle
	logger   *slog.Logger
}

// New creates a Binance connector for the given grid interval.
func New(cfg config.BinanceConfig, interval time.Duration, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := intervalStrings[interval]; !ok {
		return nil, fmt.Errorf("unsupported binance interval %s", interval)
	}

	return &Connector{
		client:   gobinance.NewClient(cfg.APIKey, cfg.APISecret),
		interval: interval,
		throttle: exchange.NewThrottle(cfg.RateLimit, cfg.Burst),
		logger:   logger,
	}, nil
}

// SetBaseURL overrides the REST endpoint. Used in tests.
func (c *Connector) SetBaseURL(u string) {
	c.client.BaseURL = u
}

// Name returns the registry name of the exchange.
func (c *Connector) Name() string { return exchangeName }

// symbol converts a coin pair like "BTC/USDT" to Binance's "BTCUSDT" form.
func symbol(coin string) string {
	s := strings.ToUpper(strings.TrimSpace(coin))
	s = strings.ReplaceAll(s, "/", "")
	return strings.ReplaceAll(s, "_", "")
}

// CheckAvailability reports whether the coin is listed on Binance.
func (c *Connector) CheckAvailability(ctx context.Context, coin string) (bool, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return false, err
	}

	info, err := c.client.NewExchangeInfoService().Symbol(symbol(coin)).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
			return false, nil
		}
		return false, c.classify("check_availability", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol == symbol(coin) && s.Status == "TRADING" {
			return true, nil
		}
	}
	return false, nil
}

// FetchRange pages through klines until [start, end) is covered or the
// upstream runs out of data.
func (c *Connector) FetchRange(ctx context.Context, coin string, start, end time.Time) ([]model.Entry, error) {
	sym := symbol(coin)
	intervalStr := intervalStrings[c.interval]

	var out []model.Entry
	since := start

	for since.Before(end) {
		if err := c.throttle.Wait(ctx); err != nil {
			return out, err
		}

		klines, err := c.client.NewKlinesService().
			Symbol(sym).
			Interval(intervalStr).
			StartTime(since.UnixMilli()).
			EndTime(end.UnixMilli() - 1).
			Limit(pageLimit).
			Do(ctx)
		if err != nil {
			return out, c.classify("fetch_range", err)
		}
		if len(klines) == 0 {
			break
		}

		var last time.Time
		for _, kl := range klines {
			if kl == nil {
				continue
			}
			ts := time.UnixMilli(kl.OpenTime).UTC()
			last = ts
			if ts.Before(start) || !ts.Before(end) {
				continue
			}
			entry, err := toEntry(coin, ts, kl)
			if err != nil {
				return out, &exchange.UpstreamError{
					Exchange: exchangeName, Op: "fetch_range", Err: err,
				}
			}
			out = append(out, entry)
		}

		if last.IsZero() {
			break
		}
		next := last.Add(c.interval)
		if !next.After(since) {
			break
		}
		since = next

		if len(klines) < pageLimit {
			break
		}
	}

	c.logger.Debug("fetched range",
		"exchange", exchangeName, "coin", coin,
		"start", start, "end", end, "count", len(out),
	)
	return out, nil
}

func toEntry(coin string, ts time.Time, kl *gobinance.Kline) (model.Entry, error) {
	open, err := decimal.NewFromString(kl.Open)
	if err != nil {
		return model.Entry{}, fmt.Errorf("parse open %q: %w", kl.Open, err)
	}
	high, err := decimal.NewFromString(kl.High)
	if err != nil {
		return model.Entry{}, fmt.Errorf("parse high %q: %w", kl.High, err)
	}
	low, err := decimal.NewFromString(kl.Low)
	if err != nil {
		return model.Entry{}, fmt.Errorf("parse low %q: %w", kl.Low, err)
	}
	closeP, err := decimal.NewFromString(kl.Close)
	if err != nil {
		return model.Entry{}, fmt.Errorf("parse close %q: %w", kl.Close, err)
	}
	volume, err := decimal.NewFromString(kl.Volume)
	if err != nil {
		return model.Entry{}, fmt.Errorf("parse volume %q: %w", kl.Volume, err)
	}

	return model.Entry{
		Exchange:  exchangeName,
		Coin:      strings.ToUpper(strings.ReplaceAll(coin, "/", "_")),
		Timestamp: ts,
		Candle: model.Candle{
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
			Trades: kl.TradeNum,
		},
	}, nil
}

// classify wraps an SDK error as an UpstreamError with a retryability hint.
func (c *Connector) classify(op string, err error) error {
	retryable := true
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// Rate limiting and Binance-internal failures are retryable;
		// other API errors are request problems and are not.
		retryable = apiErr.Code == codeTooManyRequest ||
			apiErr.Code == codeInternalError ||
			apiErr.Code == codeDisconnected
	}
	return &exchange.UpstreamError{
		Exchange:  exchangeName,
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}
