package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	drepo "MarketPulse/internal/domain/repository"

	"github.com/adshao/go-binance/v2"
	"github.com/jpillora/backoff"
)

// ErrNoCandle is returned when the exchange has no candle at the requested time.
var ErrNoCandle = errors.New("binance: no candle at window start")

// maxKlines is the exchange's per-request cap.
const maxKlines = 1000

// Client implements a PriceSource backed by Binance spot klines.
type Client struct {
	api      *binance.Client
	symbol   string
	interval string
	retries  int
}

var _ drepo.PriceSource = (*Client)(nil)

// New creates a new Binance PriceSource. baseURL may point at a mirror or test server.
func New(baseURL, symbol, interval string, timeout time.Duration, retries int) *Client {
	api := binance.NewClient("", "")
	if baseURL != "" {
		api.BaseURL = baseURL
	}
	api.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:      api,
		symbol:   symbol,
		interval: interval,
		retries:  retries,
	}
}

// Closes returns closes of candles opened in [from, to), oldest first.
func (c *Client) Closes(ctx context.Context, from, to time.Time) ([]float64, error) {
	if !to.After(from) {
		return nil, nil
	}

	var klines []*binance.Kline
	err := c.retry(ctx, func() error {
		var err error
		klines, err = c.api.NewKlinesService().
			Symbol(c.symbol).
			Interval(c.interval).
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli() - 1).
			Limit(maxKlines).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}

	closes := make([]float64, 0, len(klines))
	for _, k := range klines {
		v, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, fmt.Errorf("parse close %q: %w", k.Close, err)
		}
		closes = append(closes, v)
	}
	return closes, nil
}

// OpenPrice returns the open of the candle starting exactly at start.
func (c *Client) OpenPrice(ctx context.Context, start time.Time) (float64, error) {
	var klines []*binance.Kline
	err := c.retry(ctx, func() error {
		var err error
		klines, err = c.api.NewKlinesService().
			Symbol(c.symbol).
			Interval(c.interval).
			StartTime(start.UnixMilli()).
			Limit(1).
			Do(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("binance open: %w", err)
	}
	if len(klines) == 0 || klines[0].OpenTime != start.UnixMilli() {
		return 0, ErrNoCandle
	}

	v, err := strconv.ParseFloat(klines[0].Open, 64)
	if err != nil {
		return 0, fmt.Errorf("parse open %q: %w", klines[0].Open, err)
	}
	return v, nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	b := &backoff.Backoff{Min: 250 * time.Millisecond, Max: 2 * time.Second, Factor: 2, Jitter: true}
	for {
		err := fn()
		if err == nil || int(b.Attempt()) >= c.retries || ctx.Err() != nil {
			return err
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}
