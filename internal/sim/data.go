// Package sim drives a synthetic peer-to-peer energy market against a
// gridledger node: agents publish demand and supply, a single-sided auction
// sets the clearing price, deficit agents are matched to surplus agents, and
// every match becomes a payment transaction mined once per step.
package sim

import (
	"fmt"
	"math/rand/v2"
)

// Synthetic data ranges, per agent and step.
const (
	DemandLow  = 30.0
	DemandHigh = 35.0
	PriceLow   = 12.0
	PriceHigh  = 15.0
	SupplyLow  = 66.0
	SupplyHigh = 70.0
)

// Dataset holds per-agent time series indexed [agent][step].
type Dataset struct {
	Demand [][]float64
	Price  [][]float64
	Supply [][]float64
}

// Agents returns the number of agents in the dataset.
func (d Dataset) Agents() int { return len(d.Demand) }

// Steps returns the number of steps in the dataset.
func (d Dataset) Steps() int {
	if len(d.Demand) == 0 {
		return 0
	}
	return len(d.Demand[0])
}

// Synthesize draws uniform demand, price and supply series for agents over
// steps. nonGenerators agents, chosen at random, get zero supply and price
// for every step; they are the market's buyers.
func Synthesize(rng *rand.Rand, steps, agents, nonGenerators int) (Dataset, error) {
	if steps <= 0 || agents <= 0 {
		return Dataset{}, fmt.Errorf("steps and agents must be positive, got %d and %d", steps, agents)
	}
	if nonGenerators < 0 || nonGenerators > agents {
		return Dataset{}, fmt.Errorf("non-generators %d out of range [0, %d]", nonGenerators, agents)
	}

	d := Dataset{
		Demand: make([][]float64, agents),
		Price:  make([][]float64, agents),
		Supply: make([][]float64, agents),
	}
	for a := 0; a < agents; a++ {
		d.Demand[a] = uniform(rng, steps, DemandLow, DemandHigh)
		d.Price[a] = uniform(rng, steps, PriceLow, PriceHigh)
		d.Supply[a] = uniform(rng, steps, SupplyLow, SupplyHigh)
	}
	for _, a := range rng.Perm(agents)[:nonGenerators] {
		d.Price[a] = make([]float64, steps)
		d.Supply[a] = make([]float64, steps)
	}
	return d, nil
}

func uniform(rng *rand.Rand, n int, low, high float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = low + rng.Float64()*(high-low)
	}
	return out
}
