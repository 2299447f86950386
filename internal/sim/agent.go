package sim

import "fmt"

// Agent is a market participant bound to a grid node.
type Agent struct {
	Node   int
	Wallet *Wallet

	demand []float64
	supply []float64
	price  []float64
}

// NewAgent creates the agent for node from a dataset.
func NewAgent(node int, w *Wallet, d Dataset) *Agent {
	return &Agent{
		Node:   node,
		Wallet: w,
		demand: d.Demand[node],
		supply: d.Supply[node],
		price:  d.Price[node],
	}
}

// Address returns the agent's wallet address.
func (a *Agent) Address() string { return a.Wallet.Address }

// Generator reports whether the agent supplies power at any step.
func (a *Agent) Generator() bool {
	for _, s := range a.supply {
		if s != 0 {
			return true
		}
	}
	return false
}

// Publish returns the agent's energy information for step.
func (a *Agent) Publish(step int) EnergyInfo {
	return EnergyInfo{
		Node:        a.Node,
		Demand:      a.demand[step],
		Supply:      a.supply[step],
		Consumption: a.demand[step] - a.supply[step],
		Price:       a.price[step],
	}
}

// Payment is a transaction an agent submits to settle a purchase.
type Payment struct {
	Author  string
	Content map[string]any
}

// Payments turns the agent's settlements into payment transactions at the
// clearing price. Each payment names its own seller.
func (a *Agent) Payments(step int, price float64, settlements []Settlement, agents []*Agent) ([]Payment, error) {
	var out []Payment
	for _, s := range settlements {
		if s.Payer != a.Node {
			continue
		}
		if s.Payee < 0 || s.Payee >= len(agents) {
			return nil, fmt.Errorf("settlement payee %d out of range", s.Payee)
		}
		out = append(out, Payment{
			Author: a.Address(),
			Content: map[string]any{
				"payment": price * s.Power,
				"seller":  agents[s.Payee].Address(),
				"power":   s.Power,
				"price":   price,
				"step":    float64(step),
			},
		})
	}
	return out, nil
}
