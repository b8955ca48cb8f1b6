// Package cost turns token counts into money using an injected price table.
package cost

import (
	"fmt"
	"strings"

	"github.com/tuxqa/tuxqa/internal/profile"
)

// Pricing holds per-token prices in dollars.
type Pricing struct {
	InputPerToken  float64
	OutputPerToken float64
}

// PriceTable maps model IDs to pricing. It is configuration data: each
// deployment supplies its own.
type PriceTable map[string]Pricing

// PriceTableFromProfiles collects the prices configured on each profile,
// keyed by model ID.
func PriceTableFromProfiles(profiles []profile.Profile) PriceTable {
	t := make(PriceTable, len(profiles))
	for _, p := range profiles {
		if p.InputPrice == 0 && p.OutputPrice == 0 {
			continue
		}
		t[p.Model] = Pricing{InputPerToken: p.InputPrice, OutputPerToken: p.OutputPrice}
	}
	return t
}

// Lookup finds the pricing for model. Versioned IDs such as "gpt-4-0613"
// fall back to the longest registered prefix.
func (t PriceTable) Lookup(model string) (Pricing, bool) {
	if p, ok := t[model]; ok {
		return p, true
	}
	best := ""
	for name := range t {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return Pricing{}, false
	}
	return t[best], true
}

// Summary is the per-turn cost result.
type Summary struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalCost    float64
}

// Markdown renders the cost block appended to an answer.
func (s Summary) Markdown() string {
	return fmt.Sprintf("**Cost Statistics:**\n- Input tokens: %d\n- Output tokens: %d\n- Total cost: %s",
		s.InputTokens, s.OutputTokens, FormatDollars(s.TotalCost))
}

func (s Summary) String() string {
	return fmt.Sprintf("Input tokens: %d, Output tokens: %d, Total cost: %s",
		s.InputTokens, s.OutputTokens, FormatDollars(s.TotalCost))
}

// FormatDollars formats an amount with seven decimal places, enough to show
// the cost of a single short turn.
func FormatDollars(v float64) string {
	return fmt.Sprintf("$%.7f", v)
}

// Compute returns in*input + out*output.
func Compute(inputTokens, outputTokens int, p Pricing) float64 {
	return float64(inputTokens)*p.InputPerToken + float64(outputTokens)*p.OutputPerToken
}

// Estimator prices turns against a price table.
type Estimator struct {
	prices PriceTable
}

// NewEstimator returns an Estimator backed by prices.
func NewEstimator(prices PriceTable) *Estimator {
	if prices == nil {
		prices = PriceTable{}
	}
	return &Estimator{prices: prices}
}

// Estimate prices one turn for p. It fails with *profile.UnknownModelError
// when the table has no entry for p.Model.
func (e *Estimator) Estimate(inputTokens, outputTokens int, p profile.Profile) (Summary, error) {
	if inputTokens < 0 || outputTokens < 0 {
		return Summary{}, fmt.Errorf("negative token count: input=%d output=%d", inputTokens, outputTokens)
	}
	pricing, ok := e.prices.Lookup(p.Model)
	if !ok {
		return Summary{}, &profile.UnknownModelError{Model: p.Model, Reason: "no price entry"}
	}
	return Summary{
		Model:        p.Model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		TotalCost:    Compute(inputTokens, outputTokens, pricing),
	}, nil
}
