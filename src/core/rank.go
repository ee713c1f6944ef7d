package main

import (
	"math"
	"sort"
)

// reputationSoftening pulls reputation toward the neutral 0.5 so sparse trust
// data cannot reorder results too aggressively.
const reputationSoftening = 0.8

// ReputationFunc resolves a raw reputation signal for a seller. Implementations
// may fail; the ranker degrades to neutral instead of failing the search.
type ReputationFunc func(seller string) (float64, error)

// Ranker orders search results by a price/reputation blend. Higher seller
// reputation lowers the effective price-weighted rank, a soft boost rather
// than a hard trust filter.
type Ranker struct {
	reputationOf ReputationFunc
}

// NewRanker builds a ranker backed by the trust graph. Absent a designated
// neutral evaluator, seller reputation is approximated by the seller's
// self-reachable trust score.
func NewRanker(trust *TrustStore) *Ranker {
	return &Ranker{
		reputationOf: func(seller string) (float64, error) {
			return trust.TrustScore(seller, seller, DefaultTrustMaxDepth), nil
		},
	}
}

// NewRankerWithSource builds a ranker over an arbitrary reputation source.
func NewRankerWithSource(source ReputationFunc) *Ranker {
	return &Ranker{reputationOf: source}
}

// SellerReputation returns the softened reputation in [0.1, 0.9] for a seller,
// neutral 0.5 when the reputation source is missing or errors. Ranking must
// never fail the primary search on trust-lookup problems.
func (r *Ranker) SellerReputation(seller string) float64 {
	if r.reputationOf == nil {
		return 0.5
	}
	score, err := r.reputationOf(seller)
	if err != nil {
		logger.Warn("Reputation lookup failed, using neutral score", "seller", seller, "error", err)
		return 0.5
	}
	score = math.Max(0.0, math.Min(1.0, score))
	return 0.5 + (score-0.5)*reputationSoftening
}

// RankOffers annotates each offer with its reputation and rank score and
// returns the slice sorted best-first (ascending rank score, where
// rankScore = price * (1.5 - reputation)).
func (r *Ranker) RankOffers(offers []Offer) []Offer {
	for i := range offers {
		reputation := r.SellerReputation(offers[i].Seller)
		offers[i].ReputationScore = reputation
		offers[i].RankScore = offers[i].Price * (1.5 - reputation)
	}
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].RankScore < offers[j].RankScore
	})
	return offers
}
