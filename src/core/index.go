package main

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// DefaultSearchLimit bounds search results when the caller does not ask for a
// specific limit.
const DefaultSearchLimit = 20

// DefaultCurrency is assumed when an offer omits its price currency.
const DefaultCurrency = "TON"

// OfferIndex is the idempotent store of normalized offers, keyed by activity
// id. Replication has no deduplication, so re-delivery of the same activity
// must upsert in place. Reservation state is mutated only through the atomic
// Reserve/Release/MarkSold operations used by the escrow state machine.
type OfferIndex struct {
	mu     sync.RWMutex
	offers map[string]*Offer
}

// NewOfferIndex creates an empty offer index.
func NewOfferIndex() *OfferIndex {
	return &OfferIndex{
		offers: make(map[string]*Offer),
	}
}

// IndexOffer extracts the normalized offer fields from an Offer activity and
// upserts by id. The offer id falls back to the activity id when the embedded
// object carries none. Escrow fields survive re-indexing so a repeated
// delivery cannot clear a live reservation.
func (idx *OfferIndex) IndexOffer(activity Activity, raw json.RawMessage) (Offer, error) {
	if activity.Actor == "" {
		return Offer{}, invalidArgf("offer activity has no actor")
	}

	obj := activity.Object
	if obj == nil {
		obj = &ActivityObject{}
	}

	id := obj.ID
	if id == "" {
		id = activity.ID
	}
	if id == "" {
		return Offer{}, invalidArgf("offer activity has no id")
	}

	price := 0.0
	currency := DefaultCurrency
	if obj.Offers != nil {
		price = float64(obj.Offers.Price)
		if obj.Offers.Currency != "" {
			currency = obj.Offers.Currency
		}
	}

	tags := make([]string, 0, len(activity.Tag))
	for _, t := range activity.Tag {
		if name := strings.TrimLeft(t.Name, "#"); name != "" {
			tags = append(tags, name)
		}
	}

	offer := Offer{
		ID:             id,
		Name:           obj.Name,
		Description:    obj.Description,
		Image:          obj.Image,
		Price:          price,
		Currency:       currency,
		Seller:         activity.Actor,
		OriginInstance: originInstance(activity.Actor),
		Tags:           tags,
		Published:      activity.Published,
		RawActivity:    raw,
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if existing, exists := idx.offers[id]; exists {
		offer.Reserved = existing.Reserved
		offer.ReservedDealID = existing.ReservedDealID
		offer.ReservedBy = existing.ReservedBy
		offer.ReservedUntil = existing.ReservedUntil
		offer.Sold = existing.Sold
		offer.SoldDealID = existing.SoldDealID
	}
	stored := offer
	idx.offers[id] = &stored

	RecordOfferIndexed()
	logger.Debug("Indexed offer", "id", id, "seller", offer.Seller, "price", offer.Price)
	return offer, nil
}

// originInstance derives the host component from an actor URL.
func originInstance(actor string) string {
	if u, err := url.Parse(actor); err == nil && u.Host != "" {
		return u.Host
	}
	// actor ids are URL-like; take the host segment of scheme://host/...
	parts := strings.Split(actor, "/")
	if len(parts) > 2 {
		return parts[2]
	}
	return actor
}

// SearchFilter holds the optional search parameters.
type SearchFilter struct {
	Query    string
	Tag      string
	MinPrice *float64
	MaxPrice *float64
	Limit    int
}

// Search applies the filter and returns up to Limit offers ordered by price
// ascending. Text matching is a case-insensitive substring test over name and
// description; tag matching is exact membership with any leading '#' stripped;
// price bounds are inclusive.
func (idx *OfferIndex) Search(filter SearchFilter) []Offer {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := strings.ToLower(filter.Query)
	tag := strings.TrimLeft(filter.Tag, "#")

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var results []Offer
	for _, offer := range idx.offers {
		if q != "" &&
			!strings.Contains(strings.ToLower(offer.Name), q) &&
			!strings.Contains(strings.ToLower(offer.Description), q) {
			continue
		}
		if tag != "" && !containsTag(offer.Tags, tag) {
			continue
		}
		if filter.MinPrice != nil && offer.Price < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && offer.Price > *filter.MaxPrice {
			continue
		}
		results = append(results, *offer)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Price < results[j].Price
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Get returns a copy of the offer with the given id.
func (idx *OfferIndex) Get(id string) (Offer, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	offer, exists := idx.offers[id]
	if !exists {
		return Offer{}, false
	}
	return *offer, true
}

// Reserve places the exclusive escrow reservation on an offer. The check and
// the update run under one lock, so two concurrent deals against the same
// offer cannot both succeed.
func (idx *OfferIndex) Reserve(id, dealID, buyer string, until int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	offer, exists := idx.offers[id]
	if !exists {
		return notFoundf("offer %s", id)
	}
	if offer.Sold {
		return conflictf("offer %s already sold", id)
	}
	if offer.Reserved {
		return conflictf("offer %s already reserved by deal %s", id, offer.ReservedDealID)
	}

	offer.Reserved = true
	offer.ReservedDealID = dealID
	offer.ReservedBy = buyer
	offer.ReservedUntil = until
	return nil
}

// Release clears the reservation held by dealID, leaving the offer for sale.
func (idx *OfferIndex) Release(id, dealID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	offer, exists := idx.offers[id]
	if !exists {
		return notFoundf("offer %s", id)
	}
	if !offer.Reserved || offer.ReservedDealID != dealID {
		return conflictf("offer %s not reserved by deal %s", id, dealID)
	}

	offer.Reserved = false
	offer.ReservedDealID = ""
	offer.ReservedBy = ""
	offer.ReservedUntil = 0
	return nil
}

// MarkSold settles the reservation held by dealID and marks the offer sold.
func (idx *OfferIndex) MarkSold(id, dealID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	offer, exists := idx.offers[id]
	if !exists {
		return notFoundf("offer %s", id)
	}
	if !offer.Reserved || offer.ReservedDealID != dealID {
		return conflictf("offer %s not reserved by deal %s", id, dealID)
	}

	offer.Reserved = false
	offer.ReservedDealID = ""
	offer.ReservedBy = ""
	offer.ReservedUntil = 0
	offer.Sold = true
	offer.SoldDealID = dealID
	return nil
}

// Latest returns up to limit offers ordered by published timestamp, newest
// first.
func (idx *OfferIndex) Latest(limit int) []Offer {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]Offer, 0, len(idx.offers))
	for _, offer := range idx.offers {
		results = append(results, *offer)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Published > results[j].Published
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// BySeller returns up to limit offers from one seller, newest first.
func (idx *OfferIndex) BySeller(seller string, limit int) []Offer {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var results []Offer
	for _, offer := range idx.offers {
		if offer.Seller == seller {
			results = append(results, *offer)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Published > results[j].Published
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// TagCount is one entry of the tag frequency listing.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagCounts returns the most frequent tags across all offers.
func (idx *OfferIndex) TagCounts(limit int) []TagCount {
	idx.mu.RLock()
	counts := make(map[string]int)
	for _, offer := range idx.offers {
		for _, tag := range offer.Tags {
			counts[tag]++
		}
	}
	idx.mu.RUnlock()

	results := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		results = append(results, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Count != results[j].Count {
			return results[i].Count > results[j].Count
		}
		return results[i].Tag < results[j].Tag
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Count returns the number of indexed offers.
func (idx *OfferIndex) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.offers)
}

// Snapshot returns a copy of all offers for persistence.
func (idx *OfferIndex) Snapshot() []Offer {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	offers := make([]Offer, 0, len(idx.offers))
	for _, offer := range idx.offers {
		offers = append(offers, *offer)
	}
	return offers
}

// Restore replaces the index contents with a persisted offer set.
func (idx *OfferIndex) Restore(offers []Offer) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.offers = make(map[string]*Offer, len(offers))
	for i := range offers {
		offer := offers[i]
		idx.offers[offer.ID] = &offer
	}
}
