package main

import "time"

// activityContext returns the @context for outbound activities: standard
// ActivityStreams plus the schema.org and federated-market vocabularies.
func activityContext() []interface{} {
	return []interface{}{
		"https://www.w3.org/ns/activitystreams",
		map[string]string{
			"schema":    "https://schema.org/",
			"sec":       "https://w3id.org/security#",
			"ldp":       "http://www.w3.org/ns/ldp#",
			"fedmarket": "https://vocab.fedmarket.example#",
		},
	}
}

// ProductInput describes a product for which an Offer activity is built.
type ProductInput struct {
	ID          string
	Name        string
	Description string
	Image       string
	Price       float64
	Currency    string
	Tags        []string
}

// MakeOffer constructs an Offer activity for a product. A default "market"
// tag is always attached to aid discovery.
func MakeOffer(actor string, product ProductInput) Activity {
	currency := product.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	tags := []Hashtag{{Type: "Hashtag", Name: "#market"}}
	for _, tag := range product.Tags {
		tags = append(tags, Hashtag{Type: "Hashtag", Name: "#" + tag})
	}

	return Activity{
		Context:   activityContext(),
		Type:      ActivityTypeOffer,
		Actor:     actor,
		Published: time.Now().UTC().Format(time.RFC3339),
		To:        []string{"https://www.w3.org/ns/activitystreams#Public"},
		Object: &ActivityObject{
			ID:          product.ID,
			Type:        "schema:Product",
			Name:        product.Name,
			Description: product.Description,
			Image:       product.Image,
			Offers: &OfferTerms{
				Type:         "schema:Offer",
				Price:        PriceValue(product.Price),
				Currency:     currency,
				Availability: "https://schema.org/InStock",
			},
		},
		Tag: tags,
	}
}

// MakeTrust constructs a federated-market Trust activity from actor toward
// target with the given weight.
func MakeTrust(actor, target string, weight float64) Activity {
	now := time.Now().UTC().Format(time.RFC3339)
	return Activity{
		Context:   activityContext(),
		Type:      ActivityTypeTrust,
		Actor:     actor,
		Published: now,
		Object: &ActivityObject{
			Type:   "fedmarket:TrustRelationship",
			Target: target,
			Weight: weight,
			Issued: now,
		},
	}
}
