package sim

import "math"

// netTolerance treats tiny imbalances as zero.
const netTolerance = 1e-5

// Settlement is power bought by Payer from Payee.
type Settlement struct {
	Payer int
	Payee int
	Power float64
}

// NetPositions returns supply minus demand per agent. Positive values are
// surplus to sell, negative values deficit to buy.
func NetPositions(infos []EnergyInfo) []float64 {
	out := make([]float64, len(infos))
	for i, in := range infos {
		net := in.Supply - in.Demand
		if math.Abs(net) < netTolerance {
			net = 0
		}
		out[i] = net
	}
	return out
}

// MatchPayments pairs every deficit agent with surplus agents in index
// order until the deficit is covered or the surplus runs out. Each payee's
// remaining surplus is shared across payers, so no power is sold twice.
func MatchPayments(net []float64) []Settlement {
	surplus := make([]float64, len(net))
	for i, n := range net {
		if n > 0 {
			surplus[i] = n
		}
	}

	var out []Settlement
	for payer, n := range net {
		if n >= 0 {
			continue
		}
		owed := -n
		for payee := range surplus {
			if owed < netTolerance {
				break
			}
			if surplus[payee] < netTolerance {
				continue
			}
			power := math.Min(owed, surplus[payee])
			out = append(out, Settlement{Payer: payer, Payee: payee, Power: power})
			owed -= power
			surplus[payee] -= power
		}
	}
	return out
}
