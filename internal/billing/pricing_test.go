package billing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeModelID(t *testing.T) {
	tests := map[string]string{
		"us.anthropic.claude-sonnet-4-20250514-v1:0":   "claude-sonnet-4-20250514",
		"anthropic.claude-3-5-sonnet-20241022-v2:0":    "claude-3-5-sonnet-20241022",
		"eu.anthropic.claude-3-haiku-20240307-v1:0":    "claude-3-haiku-20240307",
		"apac.anthropic.claude-3-7-sonnet-20250219-v1": "claude-3-7-sonnet-20250219",
		"models/gemini-2.0-flash":                      "gemini-2.0-flash",
		"GPT-4o":                                       "gpt-4o",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeModelID(in), in)
	}
}

func TestPriceTable_Lookup(t *testing.T) {
	table := NewPriceTable(nil)

	tests := []struct {
		model string
		input string
	}{
		{"claude-sonnet-4-20250514", "3"},
		{"us.anthropic.claude-sonnet-4-20250514-v1:0", "3"},
		{"claude-3-5-haiku-latest", "0.8"},
		{"gpt-4o-2024-08-06", "2.5"},
		{"gpt-4o-mini-2024-07-18", "0.15"},
		{"gemini-2.0-flash-exp", "0.1"},
		{"grok-2-vision-1212", "2"},
		{"my-custom-sonnet-finetune", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, ok := table.Lookup(tt.model)
			require.True(t, ok)
			assert.True(t, decimal.RequireFromString(tt.input).Equal(p.InputPerMillion), p.InputPerMillion.String())
		})
	}

	_, ok := table.Lookup("llama-3-70b")
	assert.False(t, ok)
	_, ok = table.Lookup("")
	assert.False(t, ok)
}

func TestPriceTable_Overrides(t *testing.T) {
	table := NewPriceTable(map[string]Price{"Trail-Model": price("1", "2")})
	cost, ok := table.Cost("trail-model", 1_000_000, 1_000_000)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(3).Equal(cost))
}

func TestCostIsLinear(t *testing.T) {
	table := NewPriceTable(nil)
	for model := range defaultPrices {
		for _, tokens := range [][2]int64{{0, 0}, {1, 1}, {1234, 567}, {999_999, 3}} {
			single, ok := table.Cost(model, tokens[0], tokens[1])
			require.True(t, ok, model)
			double, _ := table.Cost(model, 2*tokens[0], 2*tokens[1])
			assert.True(t, single.Mul(decimal.NewFromInt(2)).Equal(double), "%s %v", model, tokens)
			assert.False(t, single.IsNegative())
		}
	}
}

func TestCost_KnownValue(t *testing.T) {
	// 1000 in at $3/M + 500 out at $15/M = 0.003 + 0.0075
	cost, ok := NewPriceTable(nil).Cost("claude-sonnet-4-20250514", 1000, 500)
	require.True(t, ok)
	assert.Equal(t, "0.0105", cost.String())
}

func TestCost_UnknownModelIsZero(t *testing.T) {
	cost, ok := NewPriceTable(nil).Cost("mystery-model", 1000, 1000)
	assert.False(t, ok)
	assert.True(t, cost.IsZero())
}
