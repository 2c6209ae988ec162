package billing

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var million = decimal.NewFromInt(1_000_000)

// Price is the USD cost per one million tokens.
type Price struct {
	InputPerMillion  decimal.Decimal
	OutputPerMillion decimal.Decimal
}

// Cost returns the cost of a call. Linear in both token counts.
func (p Price) Cost(inputTokens, outputTokens int64) decimal.Decimal {
	in := decimal.NewFromInt(inputTokens).Mul(p.InputPerMillion)
	out := decimal.NewFromInt(outputTokens).Mul(p.OutputPerMillion)
	return in.Add(out).Div(million)
}

func price(in, out string) Price {
	return Price{InputPerMillion: decimal.RequireFromString(in), OutputPerMillion: decimal.RequireFromString(out)}
}

// defaultPrices are the vendors' published list prices.
var defaultPrices = map[string]Price{
	// Anthropic (also served through Bedrock)
	"claude-opus-4":     price("15", "75"),
	"claude-opus-4-1":   price("15", "75"),
	"claude-sonnet-4":   price("3", "15"),
	"claude-sonnet-4-5": price("3", "15"),
	"claude-3-7-sonnet": price("3", "15"),
	"claude-3-5-sonnet": price("3", "15"),
	"claude-3-5-haiku":  price("0.80", "4"),
	"claude-haiku-4-5":  price("1", "5"),
	"claude-3-opus":     price("15", "75"),
	"claude-3-haiku":    price("0.25", "1.25"),

	// OpenAI
	"gpt-4o":       price("2.50", "10"),
	"gpt-4o-mini":  price("0.15", "0.60"),
	"gpt-4-turbo":  price("10", "30"),
	"gpt-4.1":      price("2", "8"),
	"gpt-4.1-mini": price("0.40", "1.60"),
	"gpt-4.1-nano": price("0.10", "0.40"),
	"o4-mini":      price("1.10", "4.40"),

	// Google
	"gemini-2.5-pro":   price("1.25", "10"),
	"gemini-2.5-flash": price("0.30", "2.50"),
	"gemini-2.0-flash": price("0.10", "0.40"),
	"gemini-1.5-pro":   price("1.25", "5"),
	"gemini-1.5-flash": price("0.075", "0.30"),

	// xAI
	"grok-4":             price("3", "15"),
	"grok-2-vision":      price("2", "10"),
	"grok-2-vision-1212": price("2", "10"),
	"grok-vision-beta":   price("5", "15"),
}

var (
	bedrockRegionPrefix = regexp.MustCompile(`^(us|eu|apac|us-gov|global)\.`)
	bedrockVersion      = regexp.MustCompile(`-v\d+(:\d+)?$`)
	datedSuffix         = regexp.MustCompile(`-(\d{8}|\d{4}-\d{2}-\d{2}|latest|preview(-[\w-]+)?)$`)
)

// family patterns for ids that share no prefix with a table entry
var familyPatterns = []struct {
	pattern *regexp.Regexp
	model   string
}{
	{regexp.MustCompile(`opus`), "claude-opus-4"},
	{regexp.MustCompile(`sonnet`), "claude-sonnet-4"},
	{regexp.MustCompile(`haiku`), "claude-3-5-haiku"},
	{regexp.MustCompile(`gpt-4o.*mini|4o-mini`), "gpt-4o-mini"},
	{regexp.MustCompile(`gpt-4o`), "gpt-4o"},
	{regexp.MustCompile(`gemini.*flash`), "gemini-2.0-flash"},
	{regexp.MustCompile(`gemini.*pro`), "gemini-1.5-pro"},
	{regexp.MustCompile(`grok.*vision`), "grok-2-vision"},
}

// PriceTable maps model ids to prices with fallbacks for hosted and dated variants.
type PriceTable struct {
	prices map[string]Price
	keys   []string // longest first for prefix matching
}

// NewPriceTable builds a table from the defaults plus overrides.
func NewPriceTable(overrides map[string]Price) *PriceTable {
	prices := make(map[string]Price, len(defaultPrices)+len(overrides))
	for k, v := range defaultPrices {
		prices[k] = v
	}
	for k, v := range overrides {
		prices[strings.ToLower(k)] = v
	}

	keys := make([]string, 0, len(prices))
	for k := range prices {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	return &PriceTable{prices: prices, keys: keys}
}

// NormalizeModelID strips hosting decorations:
// "us.anthropic.claude-sonnet-4-20250514-v1:0" -> "claude-sonnet-4-20250514".
func NormalizeModelID(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndexByte(m, '/'); i >= 0 {
		m = m[i+1:] // models/gemini-2.0-flash, openrouter style vendor/model
	}
	m = bedrockRegionPrefix.ReplaceAllString(m, "")
	m = strings.TrimPrefix(m, "anthropic.")
	m = bedrockVersion.ReplaceAllString(m, "")
	return m
}

// Lookup finds the price for a model id. The second result is false for unknown models.
func (t *PriceTable) Lookup(model string) (Price, bool) {
	raw := strings.ToLower(strings.TrimSpace(model))
	if p, ok := t.prices[raw]; ok {
		return p, true
	}

	norm := NormalizeModelID(model)
	if norm == "" {
		return Price{}, false
	}
	if p, ok := t.prices[norm]; ok {
		return p, true
	}
	if undated := datedSuffix.ReplaceAllString(norm, ""); undated != norm {
		if p, ok := t.prices[undated]; ok {
			return p, true
		}
	}

	for _, k := range t.keys {
		if strings.HasPrefix(norm, k) {
			return t.prices[k], true
		}
	}

	for _, f := range familyPatterns {
		if f.pattern.MatchString(norm) {
			if p, ok := t.prices[f.model]; ok {
				return p, true
			}
		}
	}

	return Price{}, false
}

// Cost prices a call; unknown models cost zero and report known=false.
func (t *PriceTable) Cost(model string, inputTokens, outputTokens int64) (cost decimal.Decimal, known bool) {
	p, ok := t.Lookup(model)
	if !ok {
		return decimal.Zero, false
	}
	return p.Cost(inputTokens, outputTokens), true
}
