package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/ratelimit"
	"MarketPulse/pkg/cache"
	xhttp "MarketPulse/pkg/http"

	"github.com/shopspring/decimal"
)

// ErrMarketNotFound is returned when no market exists for a window slug.
var ErrMarketNotFound = errors.New("polymarket: market not found")

const (
	gammaKey = "gamma"
	dataKey  = "data"
)

// Config holds Polymarket endpoints and request limits.
type Config struct {
	GammaURL   string
	DataURL    string
	TradeLimit int
}

// Client talks to the Gamma (market metadata) and Data (trades, positions) APIs.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	limiter *ratelimit.Limiter
	markets cache.Store
}

// New creates a Polymarket client. markets memoizes slug to condition id lookups.
func New(cfg Config, httpClient *xhttp.Client, limiter *ratelimit.Limiter, markets cache.Store) *Client {
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 500
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		markets: markets,
	}
}

type gammaMarket struct {
	ConditionID   string `json:"conditionId"`
	Slug          string `json:"slug"`
	Closed        bool   `json:"closed"`
	Outcomes      string `json:"outcomes"`
	OutcomePrices string `json:"outcomePrices"`
}

type gammaEvent struct {
	Slug    string        `json:"slug"`
	Closed  bool          `json:"closed"`
	Markets []gammaMarket `json:"markets"`
}

type dataTrade struct {
	ProxyWallet  string          `json:"proxyWallet"`
	Side         string          `json:"side"`
	Size         decimal.Decimal `json:"size"`
	Price        decimal.Decimal `json:"price"`
	Outcome      string          `json:"outcome"`
	OutcomeIndex *int            `json:"outcomeIndex"`
	Name         string          `json:"name"`
	Pseudonym    string          `json:"pseudonym"`
	Timestamp    int64           `json:"timestamp"`
}

func (t dataTrade) position(defaultSide models.Side) (models.Position, bool) {
	outcome, ok := parseOutcome(t.Outcome, t.OutcomeIndex)
	if !ok || t.ProxyWallet == "" {
		return models.Position{}, false
	}
	side := defaultSide
	switch strings.ToUpper(t.Side) {
	case "BUY":
		side = models.SideBuy
	case "SELL":
		side = models.SideSell
	}
	name := t.Name
	if name == "" {
		name = t.Pseudonym
	}
	return models.Position{
		TraderID:    strings.ToLower(t.ProxyWallet),
		DisplayName: name,
		Side:        side,
		Outcome:     outcome,
		Size:        t.Size.Abs().InexactFloat64(),
	}, true
}

// parseOutcome maps a market outcome label onto YES/NO. The first listed
// outcome ("Up" or "Yes") is YES.
func parseOutcome(label string, index *int) (models.Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "up", "yes":
		return models.OutcomeYes, true
	case "down", "no":
		return models.OutcomeNo, true
	}
	if index != nil {
		switch *index {
		case 0:
			return models.OutcomeYes, true
		case 1:
			return models.OutcomeNo, true
		}
	}
	return "", false
}

func (c *Client) event(ctx context.Context, slug string) (*gammaEvent, error) {
	if err := c.limiter.Wait(ctx, gammaKey); err != nil {
		return nil, err
	}
	var events []gammaEvent
	err := c.http.SendAndParseWithRetry(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.GammaURL + "/events",
		QueryParams: map[string][]string{"slug": {slug}},
	}, &events)
	if err != nil {
		return nil, fmt.Errorf("gamma event %s: %w", slug, err)
	}
	if len(events) == 0 || len(events[0].Markets) == 0 {
		return nil, ErrMarketNotFound
	}
	return &events[0], nil
}

// conditionID resolves a window slug to its market condition id, memoized.
func (c *Client) conditionID(ctx context.Context, slug string) (string, error) {
	key := cache.Key("condition", slug)
	if b, err := c.markets.GetBytes(ctx, key); err == nil {
		return string(b), nil
	}

	ev, err := c.event(ctx, slug)
	if err != nil {
		return "", err
	}
	id := ev.Markets[0].ConditionID
	if id == "" {
		return "", ErrMarketNotFound
	}
	_ = c.markets.SetBytes(ctx, key, []byte(id), 24*time.Hour)
	return id, nil
}

func (c *Client) data(ctx context.Context, path string, query map[string][]string) ([]dataTrade, error) {
	if err := c.limiter.Wait(ctx, dataKey); err != nil {
		return nil, err
	}
	var rows []dataTrade
	err := c.http.SendAndParseWithRetry(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.DataURL + path,
		QueryParams: query,
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("data api %s: %w", path, err)
	}
	return rows, nil
}

// settlement decodes the stringified outcome and price arrays Gamma returns.
func settlement(m gammaMarket) (map[models.Outcome]float64, error) {
	var labels, prices []string
	if m.Outcomes != "" {
		if err := json.Unmarshal([]byte(m.Outcomes), &labels); err != nil {
			return nil, fmt.Errorf("decode outcomes: %w", err)
		}
	}
	if m.OutcomePrices == "" {
		return map[models.Outcome]float64{}, nil
	}
	if err := json.Unmarshal([]byte(m.OutcomePrices), &prices); err != nil {
		return nil, fmt.Errorf("decode outcome prices: %w", err)
	}

	out := make(map[models.Outcome]float64, len(prices))
	for i, p := range prices {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		idx := i
		o, ok := parseOutcome(label, &idx)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", p, err)
		}
		out[o] = d.InexactFloat64()
	}
	return out, nil
}
