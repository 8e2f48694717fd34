package cost

import "github.com/sells-group/place-enrich/internal/config"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Places    PlacesRate           `yaml:"places" mapstructure:"places"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PlacesRate holds the quota units and USD price of each Places call.
type PlacesRate struct {
	TextSearchUnits int64   `yaml:"text_search_units" mapstructure:"text_search_units"`
	DetailsUnits    int64   `yaml:"details_units" mapstructure:"details_units"`
	TextSearchUSD   float64 `yaml:"text_search_usd" mapstructure:"text_search_usd"`
	DetailsUSD      float64 `yaml:"details_usd" mapstructure:"details_usd"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call.
func (c *Calculator) Claude(model string, input, output int) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost
}

// TextSearchUnits returns the quota units charged per text-search page.
func (c *Calculator) TextSearchUnits() int64 {
	return c.rates.Places.TextSearchUnits
}

// DetailsUnits returns the quota units charged per details call.
func (c *Calculator) DetailsUnits() int64 {
	return c.rates.Places.DetailsUnits
}

// Places computes the USD cost for a number of search pages and detail calls.
func (c *Calculator) Places(searches, details int) float64 {
	return float64(searches)*c.rates.Places.TextSearchUSD + float64(details)*c.rates.Places.DetailsUSD
}

// Units computes the quota units for a number of search pages and detail calls.
func (c *Calculator) Units(searches, details int) int64 {
	return int64(searches)*c.rates.Places.TextSearchUnits + int64(details)*c.rates.Places.DetailsUnits
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Places: PlacesRate{
			TextSearchUnits: 32,
			DetailsUnits:    17,
			TextSearchUSD:   0.032,
			DetailsUSD:      0.017,
		},
	}
}

// RatesFromConfig overlays configured pricing onto the defaults.
func RatesFromConfig(p config.PricingConfig) Rates {
	rates := DefaultRates()
	for model, mp := range p.Anthropic {
		rates.Anthropic[model] = ModelRate{Input: mp.Input, Output: mp.Output}
	}
	if p.Google.TextSearchUnits > 0 {
		rates.Places.TextSearchUnits = p.Google.TextSearchUnits
	}
	if p.Google.DetailsUnits > 0 {
		rates.Places.DetailsUnits = p.Google.DetailsUnits
	}
	if p.Google.TextSearchUSD > 0 {
		rates.Places.TextSearchUSD = p.Google.TextSearchUSD
	}
	if p.Google.DetailsUSD > 0 {
		rates.Places.DetailsUSD = p.Google.DetailsUSD
	}
	return rates
}
