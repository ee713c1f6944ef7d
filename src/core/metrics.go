package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound activity metrics
	activitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ozodon_activities_total",
		Help: "Total number of inbound activities processed",
	}, []string{"type", "status"})

	offersIndexedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ozodon_offers_indexed_total",
		Help: "Total number of offer index upserts",
	})

	// Trust computation metrics
	trustComputationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ozodon_trust_computation_duration_seconds",
		Help:    "Duration of trust score computations",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	// Replication metrics
	replicationDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ozodon_replication_deliveries_total",
		Help: "Total number of per-peer replication deliveries",
	}, []string{"status"})

	// Escrow metrics
	dealTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ozodon_deal_transitions_total",
		Help: "Total number of escrow deal state transitions",
	}, []string{"status"})

	// Moderation metrics
	reportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ozodon_reports_total",
		Help: "Total number of moderation reports by gating outcome",
	}, []string{"status"})

	// Gauge metrics
	offersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ozodon_offers",
		Help: "Current number of indexed offers",
	})

	trustEdgesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ozodon_trust_edges",
		Help: "Current number of trust edges",
	})

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ozodon_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ozodon_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordActivity records an inbound activity processing event
func RecordActivity(activityType string, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	activitiesTotal.WithLabelValues(activityType, status).Inc()
}

// RecordOfferIndexed records an offer index upsert
func RecordOfferIndexed() {
	offersIndexedTotal.Inc()
}

// RecordReplicationDelivery records a per-peer replication delivery outcome
func RecordReplicationDelivery(status string) {
	replicationDeliveriesTotal.WithLabelValues(status).Inc()
}

// RecordDealTransition records an escrow deal state transition
func RecordDealTransition(status string) {
	dealTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordReport records a moderation report gating outcome
func RecordReport(accepted bool) {
	status := "accepted"
	if !accepted {
		status = "dropped"
	}
	reportsTotal.WithLabelValues(status).Inc()
}

// UpdateStoreGauges updates the offer and trust edge gauges
func UpdateStoreGauges(offers, trustEdges int) {
	offersGauge.Set(float64(offers))
	trustEdgesGauge.Set(float64(trustEdges))
}
