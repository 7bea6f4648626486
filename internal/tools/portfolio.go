package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Position is one holding in a portfolio book.
type Position struct {
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Quantity    float64 `json:"quantity"`
	MarketValue float64 `json:"market_value"`
	CostBasis   float64 `json:"cost_basis"`
	Weight      float64 `json:"weight"`
}

// Book is an in-memory portfolio used to back the analytical tools. The real
// analytics engine lives behind the same tool contract; the book gives the
// server something deterministic to answer from.
type Book struct {
	positions map[string]Position
	cash      float64
	mu        sync.RWMutex
}

// NewDemoBook creates a book with a small set of holdings.
func NewDemoBook() *Book {
	b := &Book{
		positions: make(map[string]Position),
		cash:      25000,
	}
	for _, p := range []Position{
		{Symbol: "AAPL", Name: "Apple Inc.", Quantity: 420, MarketValue: 98700, CostBasis: 61000},
		{Symbol: "MSFT", Name: "Microsoft Corp.", Quantity: 150, MarketValue: 63450, CostBasis: 48000},
		{Symbol: "VTI", Name: "Vanguard Total Market ETF", Quantity: 210, MarketValue: 55640, CostBasis: 43000},
		{Symbol: "BND", Name: "Vanguard Total Bond ETF", Quantity: 380, MarketValue: 27950, CostBasis: 29500},
	} {
		b.positions[p.Symbol] = p
	}
	b.reweigh()
	return b
}

func (b *Book) reweigh() {
	total := b.cash
	for _, p := range b.positions {
		total += p.MarketValue
	}
	for symbol, p := range b.positions {
		p.Weight = p.MarketValue / total
		b.positions[symbol] = p
	}
}

// Positions returns all positions sorted by market value, largest first.
func (b *Book) Positions() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MarketValue > out[j].MarketValue
	})
	return out
}

// Position returns one position by symbol.
func (b *Book) Position(symbol string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[symbol]
	return p, ok
}

// Cash returns the uninvested cash balance.
func (b *Book) Cash() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cash
}

// RegisterPortfolioTools registers the analytical tools over the book.
func RegisterPortfolioTools(registry *Registry, book *Book) error {
	for _, tool := range []Tool{
		&portfolioCompleteTool{book: book},
		&positionDetailTool{book: book},
		&riskSummaryTool{book: book},
	} {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

type portfolioCompleteTool struct {
	book *Book
}

func (t *portfolioCompleteTool) Name() string { return "get_portfolio_complete" }

func (t *portfolioCompleteTool) Description() string {
	return "Returns the complete portfolio: every position with market value, cost basis and weight, plus the cash balance."
}

func (t *portfolioCompleteTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *portfolioCompleteTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	payload := map[string]any{
		"positions": t.book.Positions(),
		"cash":      t.book.Cash(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal portfolio: %w", err)
	}
	return NewResult(string(data)), nil
}

type positionDetailTool struct {
	book *Book
}

func (t *positionDetailTool) Name() string { return "get_position_detail" }

func (t *positionDetailTool) Description() string {
	return "Returns detail for a single position by ticker symbol."
}

func (t *positionDetailTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{
				"type":        "string",
				"description": "Ticker symbol, e.g. AAPL",
			},
		},
		"required": []string{"symbol"},
	}
}

func (t *positionDetailTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	symbol, ok := GetString(args, "symbol")
	if !ok || symbol == "" {
		return NewErrorResult(false, "missing required argument: symbol"), nil
	}
	position, ok := t.book.Position(symbol)
	if !ok {
		return NewErrorResult(false, "no position held in %s", symbol), nil
	}
	data, err := json.Marshal(position)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal position: %w", err)
	}
	return NewResult(string(data)), nil
}

type riskSummaryTool struct {
	book *Book
}

func (t *riskSummaryTool) Name() string { return "get_risk_summary" }

func (t *riskSummaryTool) Description() string {
	return "Returns a concentration and allocation risk summary for the portfolio."
}

func (t *riskSummaryTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *riskSummaryTool) Execute(ctx context.Context, args map[string]any) (Result, error) {
	positions := t.book.Positions()
	if len(positions) == 0 {
		return NewResult(`{"note":"portfolio is empty"}`), nil
	}

	var equity, topWeight float64
	top := positions[0]
	for _, p := range positions {
		equity += p.MarketValue
		if p.Weight > topWeight {
			topWeight = p.Weight
			top = p
		}
	}

	payload := map[string]any{
		"largest_position":   top.Symbol,
		"largest_weight":     topWeight,
		"position_count":     len(positions),
		"equity_value":       equity,
		"cash_value":         t.book.Cash(),
		"concentration_flag": topWeight > 0.35,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal risk summary: %w", err)
	}
	return NewResult(string(data)), nil
}
