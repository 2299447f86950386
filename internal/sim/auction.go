package sim

import "sort"

// EnergyInfo is what an agent publishes for one step.
type EnergyInfo struct {
	Node        int     `json:"node"`
	Demand      float64 `json:"demand"`
	Supply      float64 `json:"supply"`
	Consumption float64 `json:"consumption"` // demand - supply
	Price       float64 `json:"price"`
}

// Offer is one row of the auction's merit order.
type Offer struct {
	Node             int
	Supply           float64
	Price            float64
	Demand           float64
	CumulativeSupply float64
}

// AuctionResult is the outcome of a single-sided auction.
type AuctionResult struct {
	Offers        []Offer // sorted by ascending price
	TotalDemand   float64
	ClearingPrice float64
	// Cleared is false when total supply never covers total demand; the
	// clearing price is then the most expensive offer.
	Cleared bool
}

// SingleSidedAuction orders offers by price and clears at the first offer
// whose cumulative supply covers the total demand.
func SingleSidedAuction(infos []EnergyInfo) AuctionResult {
	res := AuctionResult{Offers: make([]Offer, 0, len(infos))}
	for _, in := range infos {
		res.TotalDemand += in.Demand
		res.Offers = append(res.Offers, Offer{
			Node:   in.Node,
			Supply: in.Supply,
			Price:  in.Price,
			Demand: in.Demand,
		})
	}
	if len(res.Offers) == 0 {
		return res
	}

	sort.SliceStable(res.Offers, func(i, j int) bool {
		return res.Offers[i].Price < res.Offers[j].Price
	})

	var cum float64
	for i := range res.Offers {
		cum += res.Offers[i].Supply
		res.Offers[i].CumulativeSupply = cum
	}
	for _, o := range res.Offers {
		if o.CumulativeSupply >= res.TotalDemand {
			res.ClearingPrice = o.Price
			res.Cleared = true
			return res
		}
	}
	res.ClearingPrice = res.Offers[len(res.Offers)-1].Price
	return res
}
