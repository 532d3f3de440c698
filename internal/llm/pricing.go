package llm

import (
	"math"

	"github.com/zulandar/bullpen/internal/config"
)

type price struct {
	inputPerMil  float64
	outputPerMil float64
}

// Pricing estimates call cost from a per-model price table.
type Pricing struct {
	prices map[string]price
}

// NewPricing builds a Pricing from configuration.
func NewPricing(entries []config.PriceConfig) *Pricing {
	p := &Pricing{prices: make(map[string]price, len(entries))}
	for _, e := range entries {
		p.prices[e.Model] = price{inputPerMil: e.InputCentsPerMil, outputPerMil: e.OutputCentsPerMil}
	}
	return p
}

// CostCents returns the cost of a call in whole cents, rounded up. Unknown
// models cost nothing.
func (p *Pricing) CostCents(modelName string, inputTokens, outputTokens int) int {
	pr, ok := p.prices[modelName]
	if !ok {
		return 0
	}
	cents := (float64(inputTokens)*pr.inputPerMil + float64(outputTokens)*pr.outputPerMil) / 1_000_000
	return int(math.Ceil(cents))
}
