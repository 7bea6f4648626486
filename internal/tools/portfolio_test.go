package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portfolioRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, RegisterPortfolioTools(registry, NewDemoBook()))
	return registry
}

func TestPortfolioComplete(t *testing.T) {
	tool, ok := portfolioRegistry(t).Get("get_portfolio_complete")
	require.True(t, ok)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, result.Failed())

	var payload struct {
		Positions []Position `json:"positions"`
		Cash      float64    `json:"cash"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	require.Len(t, payload.Positions, 4)
	assert.Equal(t, "AAPL", payload.Positions[0].Symbol, "positions sorted by market value")
	assert.Greater(t, payload.Cash, 0.0)

	var total float64
	for _, p := range payload.Positions {
		total += p.Weight
	}
	assert.InDelta(t, (total*(payload.Cash+positionsValue(payload.Positions))),
		positionsValue(payload.Positions), 1.0, "weights cover the invested share")
}

func positionsValue(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.MarketValue
	}
	return total
}

func TestPositionDetail(t *testing.T) {
	tool, ok := portfolioRegistry(t).Get("get_position_detail")
	require.True(t, ok)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr string
	}{
		{name: "held symbol", args: map[string]any{"symbol": "MSFT"}},
		{name: "missing symbol", args: map[string]any{}, wantErr: "missing required argument"},
		{name: "unheld symbol", args: map[string]any{"symbol": "TSLA"}, wantErr: "no position held"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Execute(context.Background(), tt.args)
			require.NoError(t, err)
			if tt.wantErr != "" {
				require.True(t, result.Failed())
				assert.Contains(t, result.Error, tt.wantErr)
				assert.False(t, result.Retryable)
				return
			}
			require.False(t, result.Failed())
			var p Position
			require.NoError(t, json.Unmarshal([]byte(result.Content), &p))
			assert.Equal(t, "MSFT", p.Symbol)
		})
	}
}

func TestRiskSummary(t *testing.T) {
	tool, ok := portfolioRegistry(t).Get("get_risk_summary")
	require.True(t, ok)

	result, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, result.Failed())

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(result.Content), &payload))
	assert.Equal(t, "AAPL", payload["largest_position"])
	assert.Equal(t, float64(4), payload["position_count"])
}
