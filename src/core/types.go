package main

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Activity types handled by the hub
const (
	ActivityTypeOffer = "Offer"
	ActivityTypeTrust = "fedmarket:Trust"
	ActivityTypeFlag  = "Flag"
)

// Activity represents an inbound federated activity. Only the fields the hub
// cares about are modeled; the full payload is retained alongside the
// normalized record for traceability.
type Activity struct {
	Context   interface{}     `json:"@context,omitempty"`
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Actor     string          `json:"actor"`
	Published string          `json:"published,omitempty"`
	To        []string        `json:"to,omitempty"`
	Object    *ActivityObject `json:"object,omitempty"`
	Tag       []Hashtag       `json:"tag,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// ActivityObject is the embedded object of an activity. Offer activities carry
// the schema.org product fields; Trust activities carry target/weight/issued;
// Flag activities carry the reported actor in target.
type ActivityObject struct {
	ID          string      `json:"id,omitempty"`
	Type        string      `json:"type,omitempty"`
	Name        string      `json:"schema:name,omitempty"`
	Description string      `json:"schema:description,omitempty"`
	Image       string      `json:"schema:image,omitempty"`
	Offers      *OfferTerms `json:"schema:offers,omitempty"`
	Target      string      `json:"target,omitempty"`
	Weight      float64     `json:"weight,omitempty"`
	Issued      string      `json:"issued,omitempty"`
}

// OfferTerms is the nested pricing sub-object of an Offer activity.
type OfferTerms struct {
	Type         string     `json:"type,omitempty"`
	Price        PriceValue `json:"schema:price"`
	Currency     string     `json:"schema:priceCurrency,omitempty"`
	Availability string     `json:"schema:availability,omitempty"`
}

// PriceValue accepts a JSON number or a numeric string; remote instances emit
// both shapes.
type PriceValue float64

func (p *PriceValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*p = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		s = strings.TrimSpace(raw)
		if s == "" {
			*p = 0
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*p = PriceValue(v)
	return nil
}

// Hashtag is a tag entry on an activity; name carries a leading '#'.
type Hashtag struct {
	Type string `json:"type,omitempty"`
	Name string `json:"name"`
}

// Offer is a normalized, searchable product listing derived from an Offer
// activity. Identity is ID; re-indexing the same activity upserts in place.
// The reserved*/sold* fields are owned by the escrow state machine.
type Offer struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Image          string   `json:"image,omitempty"`
	Price          float64  `json:"price"`
	Currency       string   `json:"currency"`
	Seller         string   `json:"seller"`
	OriginInstance string   `json:"origin_instance"`
	Tags           []string `json:"tags"`
	Published      string   `json:"published,omitempty"`

	Reserved       bool   `json:"reserved"`
	ReservedDealID string `json:"reserved_deal_id,omitempty"`
	ReservedBy     string `json:"reserved_by,omitempty"`
	ReservedUntil  int64  `json:"reserved_until,omitempty"`
	Sold           bool   `json:"sold"`
	SoldDealID     string `json:"sold_deal_id,omitempty"`

	RawActivity json.RawMessage `json:"source_activity,omitempty"`

	// Filled by the ranker on search results only.
	ReputationScore float64 `json:"reputation_score,omitempty"`
	RankScore       float64 `json:"rank_score,omitempty"`
}

// TrustEdge is a directed, weighted trust statement. Unique per
// (source, target); re-issuing overwrites weight and timestamp.
type TrustEdge struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Weight    float64 `json:"weight"`
	Timestamp int64   `json:"timestamp"`
}

// DealStatus is the escrow state machine state.
type DealStatus string

const (
	DealFrozen          DealStatus = "frozen"
	DealReleased        DealStatus = "released"
	DealRefundRequested DealStatus = "refund_requested"
)

// Deal binds a buyer, a reserved offer, and frozen funds. Frozen is the only
// non-terminal state.
type Deal struct {
	DealID          string     `json:"deal_id"`
	Status          DealStatus `json:"status"`
	ProductID       string     `json:"product_id"`
	Seller          string     `json:"seller"`
	BuyerAddress    string     `json:"buyer_address"`
	AmountTon       float64    `json:"amount_ton"`
	AmountNano      int64      `json:"amount_nano"`
	TimeoutDays     int        `json:"timeout_days"`
	ReservedAt      int64      `json:"reserved_at"`
	ReservedUntil   int64      `json:"reserved_until"`
	ContractAddress string     `json:"contract_address"`
}

// Hub describes a peer node in the static replication registry.
type Hub struct {
	Domain string `json:"domain" yaml:"domain"`
	Active bool   `json:"active" yaml:"active"`
}

// DeliveryResult is the per-peer outcome of one replication fan-out.
type DeliveryResult struct {
	Domain     string `json:"domain"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// OK reports whether the delivery reached the peer with a 2xx response.
func (r DeliveryResult) OK() bool {
	return r.Error == "" && r.StatusCode >= 200 && r.StatusCode < 300
}

// Report is a moderation flag accepted from a sufficiently trusted reporter.
type Report struct {
	ID       string `json:"id"`
	Reporter string `json:"reporter"`
	Target   string `json:"target"`
	Reason   string `json:"reason,omitempty"`
	Received int64  `json:"received"`
}

// TrustSummary aggregates incoming trust for an actor.
type TrustSummary struct {
	Actor string  `json:"actor"`
	Score float64 `json:"score"`
	Votes int     `json:"votes"`
}
