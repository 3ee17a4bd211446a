package discovery

import (
	statex "github.com/tanpawarit/chative-order-relay/agent/state"
)

var fallbackRestaurants = []statex.Candidate{
	{Name: "Sabor da Casa Delivery", ContactID: "5521990010001", EstimatedTime: "30-45 min", PriceRange: "$$", Rating: 4.6},
	{Name: "Cantinho Express", ContactID: "5521990010002", EstimatedTime: "35-50 min", PriceRange: "$", Rating: 4.4},
	{Name: "Central do Delivery", ContactID: "5521990010003", EstimatedTime: "40-55 min", PriceRange: "$$", Rating: 4.3},
}

// FallbackCandidates is the fixed list offered when discovery finds nothing.
func FallbackCandidates(food string) []statex.Candidate {
	out := make([]statex.Candidate, len(fallbackRestaurants))
	for i, c := range fallbackRestaurants {
		c.Specialty = specialtyFor(food)
		c.Provenance = statex.ProvenanceFallback
		out[i] = c
	}
	return out
}
