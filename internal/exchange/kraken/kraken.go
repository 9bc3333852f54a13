// Package kraken implements the exchange connector for Kraken using its
// public REST API.
package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cyberbuild/cb-trade-data-service/internal/config"
	"github.com/cyberbuild/cb-trade-data-service/internal/exchange"
	"github.com/cyberbuild/cb-trade-data-service/internal/model"
)

const exchangeName = "kraken"

// intervalMinutes maps grid intervals to Kraken's OHLC interval parameter.
var intervalMinutes = map[time.Duration]int{
	time.Minute:        1,
	5 * time.Minute:    5,
	15 * time.Minute:   15,
	30 * time.Minute:   30,
	time.Hour:          60,
	4 * time.Hour:      240,
	24 * time.Hour:     1440,
	7 * 24 * time.Hour: 10080,
}

// Connector fetches candles from Kraken's public endpoints.
type Connector struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	interval     time.Duration
	maxRetries   int
	retryBackoff time.Duration
	throttle     *exchange.Throttle
}

// New creates a Kraken connector for the given grid interval.
func New(cfg config.KrakenConfig, interval time.Duration, logger *slog.Logger) (*Connector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := intervalMinutes[interval]; !ok {
		return nil, fmt.Errorf("unsupported kraken interval %s", interval)
	}

	return &Connector{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:       logger,
		interval:     interval,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: time.Second,
		throttle:     exchange.NewThrottle(cfg.RateLimit, cfg.Burst),
	}, nil
}

// Name returns the registry name of the exchange.
func (c *Connector) Name() string { return exchangeName }

// pair converts a coin symbol like "BTC/USD" to Kraken's pair form.
// Kraken names bitcoin XBT.
func pair(coin string) string {
	s := strings.ToUpper(strings.TrimSpace(coin))
	s = strings.NewReplacer("/", "", "_", "").Replace(s)
	if strings.HasPrefix(s, "BTC") {
		s = "XBT" + s[3:]
	}
	return s
}

// httpError is an HTTP-level failure from the Kraken API.
type httpError struct {
	StatusCode int
	Body       []byte
}

func (e *httpError) Error() string {
	return fmt.Sprintf("kraken http %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// isRetryable returns true if the error should trigger a retry.
func (e *httpError) isRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// apiError is an application-level error reported in the response envelope.
type apiError struct {
	Messages []string
}

func (e *apiError) Error() string {
	return "kraken api error: " + strings.Join(e.Messages, "; ")
}

// isRetryable: Kraken prefixes throttling and service failures with
// "EAPI:Rate limit" / "EService:".
func (e *apiError) isRetryable() bool {
	for _, m := range e.Messages {
		if strings.HasPrefix(m, "EAPI:Rate limit") || strings.HasPrefix(m, "EService:") {
			return true
		}
	}
	return false
}

func (e *apiError) unknownPair() bool {
	for _, m := range e.Messages {
		if strings.Contains(m, "Unknown asset pair") {
			return true
		}
	}
	return false
}

// envelope is the common Kraken response wrapper.
type envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// doRequest performs one GET against a public endpoint.
func (c *Connector) doRequest(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &httpError{StatusCode: resp.StatusCode, Body: body}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(env.Error) > 0 {
		return nil, &apiError{Messages: env.Error}
	}
	return env.Result, nil
}

// doWithRetry performs a request with exponential backoff retry.
func (c *Connector) doWithRetry(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}

		result, err := c.doRequest(ctx, path, query)
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch e := err.(type) {
		case *httpError:
			if !e.isRetryable() {
				return nil, err
			}
		case *apiError:
			if !e.isRetryable() {
				return nil, err
			}
		default:
			// Network-level failures are retried.
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// CheckAvailability reports whether the pair is listed on Kraken.
func (c *Connector) CheckAvailability(ctx context.Context, coin string) (bool, error) {
	query := url.Values{}
	query.Set("pair", pair(coin))

	_, err := c.doWithRetry(ctx, "/0/public/AssetPairs", query)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.unknownPair() {
			return false, nil
		}
		return false, c.classify("check_availability", err)
	}
	return true, nil
}

// FetchRange pages through OHLC results until [start, end) is covered or the
// upstream runs out of data. Kraken's `since` parameter is exclusive.
func (c *Connector) FetchRange(ctx context.Context, coin string, start, end time.Time) ([]model.Entry, error) {
	p := pair(coin)
	minutes := intervalMinutes[c.interval]

	var out []model.Entry
	since := start.Unix() - 1

	for {
		query := url.Values{}
		query.Set("pair", p)
		query.Set("interval", strconv.Itoa(minutes))
		query.Set("since", strconv.FormatInt(since, 10))

		result, err := c.doWithRetry(ctx, "/0/public/OHLC", query)
		if err != nil {
			return out, c.classify("fetch_range", err)
		}

		rows, last, err := parseOHLC(result)
		if err != nil {
			return out, &exchange.UpstreamError{Exchange: exchangeName, Op: "fetch_range", Err: err}
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			// The since cursor is exclusive; skip anything at or before it.
			if row.ts.Unix() <= since {
				continue
			}
			if row.ts.Before(start) || !row.ts.Before(end) {
				continue
			}
			out = append(out, model.Entry{
				Exchange:  exchangeName,
				Coin:      strings.ToUpper(strings.ReplaceAll(coin, "/", "_")),
				Timestamp: row.ts,
				Candle:    row.candle,
			})
		}

		if last <= since || time.Unix(last, 0).After(end) {
			break
		}
		since = last
	}

	c.logger.Debug("fetched range",
		"exchange", exchangeName, "coin", coin,
		"start", start, "end", end, "count", len(out),
	)
	return out, nil
}

type ohlcRow struct {
	ts     time.Time
	candle model.Candle
}

// parseOHLC decodes the OHLC result: a map holding one pair key with rows of
// [time, open, high, low, close, vwap, volume, count], plus a "last" cursor.
func parseOHLC(result json.RawMessage) ([]ohlcRow, int64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(result, &fields); err != nil {
		return nil, 0, fmt.Errorf("decode ohlc result: %w", err)
	}

	var last int64
	if raw, ok := fields["last"]; ok {
		if err := json.Unmarshal(raw, &last); err != nil {
			return nil, 0, fmt.Errorf("decode last cursor: %w", err)
		}
	}

	var rows []ohlcRow
	for key, raw := range fields {
		if key == "last" {
			continue
		}
		var tuples [][]any
		if err := json.Unmarshal(raw, &tuples); err != nil {
			return nil, 0, fmt.Errorf("decode ohlc rows for %s: %w", key, err)
		}
		for _, t := range tuples {
			if len(t) < 8 {
				continue
			}
			row, err := parseRow(t)
			if err != nil {
				return nil, 0, err
			}
			rows = append(rows, row)
		}
	}
	return rows, last, nil
}

func parseRow(t []any) (ohlcRow, error) {
	sec, ok := toInt64(t[0])
	if !ok {
		return ohlcRow{}, fmt.Errorf("bad ohlc timestamp %v", t[0])
	}

	prices := make([]decimal.Decimal, 4)
	for i, idx := range []int{1, 2, 3, 4} {
		d, err := toDecimal(t[idx])
		if err != nil {
			return ohlcRow{}, fmt.Errorf("bad ohlc price at %d: %w", idx, err)
		}
		prices[i] = d
	}
	volume, err := toDecimal(t[6])
	if err != nil {
		return ohlcRow{}, fmt.Errorf("bad ohlc volume: %w", err)
	}
	trades, _ := toInt64(t[7])

	return ohlcRow{
		ts: time.Unix(sec, 0).UTC(),
		candle: model.Candle{
			Open:   prices[0],
			High:   prices[1],
			Low:    prices[2],
			Close:  prices[3],
			Volume: volume,
			Trades: trades,
		},
	}, nil
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unsupported value %T", v)
	}
}

// classify wraps a transport or API error as an UpstreamError with a
// retryability hint.
func (c *Connector) classify(op string, err error) error {
	retryable := true
	var (
		he *httpError
		ae *apiError
	)
	switch {
	case errors.As(err, &he):
		retryable = he.isRetryable()
	case errors.As(err, &ae):
		retryable = ae.isRetryable()
	}
	return &exchange.UpstreamError{
		Exchange:  exchangeName,
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}
