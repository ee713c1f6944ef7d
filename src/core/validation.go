package main

import (
	"math"
)

// ValidateOfferActivity checks the shape of an inbound Offer activity before
// indexing.
func ValidateOfferActivity(activity Activity) error {
	if !IsValidActorID(activity.Actor) {
		logger.Warn("Offer activity with invalid actor", "actor", activity.Actor)
		return invalidArgf("actor must be a URL-like identifier")
	}

	obj := activity.Object
	if obj == nil {
		if activity.ID == "" {
			return invalidArgf("offer activity has no object and no id")
		}
		return nil
	}

	if !ValidateStringField(obj.Name, MaxNameLength) {
		logger.Warn("Offer activity with invalid name", "id", activity.ID)
		return invalidArgf("name too long or contains control characters")
	}
	if !ValidateStringField(obj.Description, MaxDescriptionLength) {
		logger.Warn("Offer activity with invalid description", "id", activity.ID)
		return invalidArgf("description too long or contains control characters")
	}

	if obj.Offers != nil {
		price := float64(obj.Offers.Price)
		if math.IsNaN(price) || math.IsInf(price, 0) {
			return invalidArgf("price is not a finite number")
		}
		if price < 0 {
			return invalidArgf("price must be non-negative, got %v", price)
		}
	}

	return nil
}

// ValidateTrustActivity checks the shape of an inbound Trust activity before
// it reaches the trust store. Weight range is not rejected here: the store
// clamps it into [0.1, 1.0] regardless of input.
func ValidateTrustActivity(activity Activity) error {
	if !IsValidActorID(activity.Actor) {
		logger.Warn("Trust activity with invalid actor", "actor", activity.Actor)
		return invalidArgf("actor must be a URL-like identifier")
	}
	if activity.Object == nil || activity.Object.Target == "" {
		return invalidArgf("trust activity has no target")
	}
	if activity.Object.Target == activity.Actor {
		return invalidArgf("trust statements toward oneself are not accepted")
	}
	if math.IsNaN(activity.Object.Weight) || math.IsInf(activity.Object.Weight, 0) {
		return invalidArgf("trust weight is not a finite number")
	}
	return nil
}

// ValidateFlagActivity checks the shape of an inbound moderation flag.
func ValidateFlagActivity(activity Activity) error {
	if !IsValidActorID(activity.Actor) {
		logger.Warn("Flag activity with invalid actor", "actor", activity.Actor)
		return invalidArgf("actor must be a URL-like identifier")
	}
	if activity.Object == nil || activity.Object.Target == "" {
		return invalidArgf("flag activity has no target")
	}
	if !ValidateStringField(activity.Content, MaxReasonLength) {
		return invalidArgf("reason too long or contains control characters")
	}
	return nil
}
