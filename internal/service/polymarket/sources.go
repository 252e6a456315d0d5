package polymarket

import (
	"context"
	"fmt"
	"strconv"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
)

// Resolution implements ResolutionSource: settlement from Gamma, participants from Data trades.
func (c *Client) Resolution(ctx context.Context, windowID string) (*models.WindowResolution, error) {
	ev, err := c.event(ctx, windowID)
	if err != nil {
		return nil, err
	}
	m := ev.Markets[0]

	res := &models.WindowResolution{
		WindowID: windowID,
		Closed:   ev.Closed || m.Closed,
	}
	if res.Settlement, err = settlement(m); err != nil {
		return nil, err
	}
	if !res.Closed {
		return res, nil
	}

	trades, err := c.data(ctx, "/trades", map[string][]string{
		"market": {m.ConditionID},
		"limit":  {strconv.Itoa(c.cfg.TradeLimit)},
	})
	if err != nil {
		return nil, err
	}
	for _, t := range trades {
		if p, ok := t.position(models.SideBuy); ok {
			res.Participants = append(res.Participants, p)
		}
	}
	return res, nil
}

var _ drepo.ResolutionSource = (*Client)(nil)

// PositionsSource reads current holdings. Holdings are always long an outcome.
type PositionsSource struct{ c *Client }

// ActivitySource reads the trader's trades in the window.
type ActivitySource struct{ c *Client }

var (
	_ drepo.PositionSource = (*PositionsSource)(nil)
	_ drepo.PositionSource = (*ActivitySource)(nil)
)

func NewPositionsSource(c *Client) *PositionsSource { return &PositionsSource{c: c} }

func NewActivitySource(c *Client) *ActivitySource { return &ActivitySource{c: c} }

func (s *PositionsSource) Name() string { return "positions" }

func (s *PositionsSource) Positions(ctx context.Context, traderID, windowID string) ([]models.Position, error) {
	return s.c.traderRecords(ctx, "/positions", traderID, windowID, nil)
}

func (s *ActivitySource) Name() string { return "activity" }

func (s *ActivitySource) Positions(ctx context.Context, traderID, windowID string) ([]models.Position, error) {
	return s.c.traderRecords(ctx, "/activity", traderID, windowID, map[string][]string{"type": {"TRADE"}})
}

func (c *Client) traderRecords(ctx context.Context, path, traderID, windowID string, extra map[string][]string) ([]models.Position, error) {
	market, err := c.conditionID(ctx, windowID)
	if err != nil {
		return nil, err
	}

	query := map[string][]string{
		"user":   {traderID},
		"market": {market},
	}
	for k, v := range extra {
		query[k] = v
	}
	rows, err := c.data(ctx, path, query)
	if err != nil {
		return nil, fmt.Errorf("%s for %s: %w", path, traderID, err)
	}

	out := make([]models.Position, 0, len(rows))
	for _, r := range rows {
		if r.ProxyWallet == "" {
			r.ProxyWallet = traderID
		}
		if p, ok := r.position(models.SideBuy); ok && p.Size > 0 {
			out = append(out, p)
		}
	}
	return out, nil
}
