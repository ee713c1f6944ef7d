package main

import (
	"math"
	"sync"
	"time"
)

// Trust walk parameters
const (
	DefaultTrustMaxDepth = 3
	trustDamping         = 0.8
	SpamReportThreshold  = 0.30

	// Cap on relay expansions per score call. The depth bound alone keeps the
	// recursion finite, but a dense graph can re-visit nodes at shallow depth;
	// the budget bounds worst-case latency. Exhausting it stops exploration
	// and returns the best score found so far.
	maxTrustVisitsPerCall = 10000
)

// TrustStore holds the directed, weighted trust edges of the local reputation
// graph. Edges are unique per (source, target); re-adding overwrites weight
// and timestamp. Edges are never deleted.
type TrustStore struct {
	mu    sync.RWMutex
	edges map[string]map[string]TrustEdge
}

// NewTrustStore creates an empty trust store.
func NewTrustStore() *TrustStore {
	return &TrustStore{
		edges: make(map[string]map[string]TrustEdge),
	}
}

// AddTrust clamps weight into [0.1, 1.0] and upserts the directed edge.
func (s *TrustStore) AddTrust(source, target string, weight float64) TrustEdge {
	if math.IsNaN(weight) {
		weight = 0.1
	}
	edge := TrustEdge{
		Source:    source,
		Target:    target,
		Weight:    math.Max(0.1, math.Min(1.0, weight)),
		Timestamp: time.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.edges[source]; !exists {
		s.edges[source] = make(map[string]TrustEdge)
	}
	s.edges[source][target] = edge

	logger.Debug("Upserted trust edge",
		"source", source,
		"target", target,
		"weight", edge.Weight)
	return edge
}

// DirectTrust returns the direct edge weight from source to target, 0.0 when
// no edge exists. Missing data is never an error.
func (s *TrustStore) DirectTrust(source, target string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if targets, exists := s.edges[source]; exists {
		if edge, found := targets[target]; found {
			return edge.Weight
		}
	}
	return 0.0
}

// OutgoingEdges returns a copy of all edges issued by source.
func (s *TrustStore) OutgoingEdges(source string) []TrustEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targets, exists := s.edges[source]
	if !exists {
		return nil
	}
	result := make([]TrustEdge, 0, len(targets))
	for _, edge := range targets {
		result = append(result, edge)
	}
	return result
}

// TrustScore computes a damped multi-hop trust score from source to target,
// in [0, 1]. The depth bound is checked before the self case, so a zero depth
// always scores 0.0, even for source == target. A direct edge short-circuits
// any indirect path. Otherwise the score is the maximum over outgoing relays
// of edgeWeight * relayScore * damping.
//
// The walk carries no visited set: cycles terminate through the depth bound
// but can re-expand nodes at shallow depth. Acceptable at small depths; the
// per-call visit budget bounds the cost on dense graphs.
func (s *TrustStore) TrustScore(source, target string, maxDepth int) float64 {
	start := time.Now()
	defer func() {
		trustComputationDuration.Observe(time.Since(start).Seconds())
	}()

	budget := maxTrustVisitsPerCall
	return s.trustScore(source, target, maxDepth, &budget)
}

func (s *TrustStore) trustScore(source, target string, depth int, budget *int) float64 {
	if depth == 0 {
		return 0.0
	}
	if source == target {
		return 1.0
	}

	if direct := s.DirectTrust(source, target); direct > 0 {
		return direct
	}

	best := 0.0
	for _, edge := range s.OutgoingEdges(source) {
		if *budget <= 0 {
			break
		}
		*budget--

		pathScore := s.trustScore(edge.Target, target, depth-1, budget)
		if pathScore > 0 {
			if score := edge.Weight * pathScore * trustDamping; score > best {
				best = score
			}
		}
	}
	return best
}

// IsSpamReport reports whether the reporter carries enough trust toward the
// target for a moderation flag to be accepted. Low-trust reports are dropped
// silently by the caller, not rejected with an error.
func (s *TrustStore) IsSpamReport(reporter, target string) bool {
	return s.TrustScore(reporter, target, DefaultTrustMaxDepth) >= SpamReportThreshold
}

// IncomingSummary aggregates incoming edges toward an actor into an average
// weight and a vote count. Actors with no incoming edges score a neutral 0.5.
func (s *TrustStore) IncomingSummary(actor string) TrustSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := 0.0
	votes := 0
	for _, targets := range s.edges {
		if edge, found := targets[actor]; found {
			sum += edge.Weight
			votes++
		}
	}

	if votes == 0 {
		return TrustSummary{Actor: actor, Score: 0.5, Votes: 0}
	}
	return TrustSummary{Actor: actor, Score: sum / float64(votes), Votes: votes}
}

// EdgeCount returns the number of stored trust edges.
func (s *TrustStore) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, targets := range s.edges {
		count += len(targets)
	}
	return count
}

// Snapshot returns a copy of all edges for persistence.
func (s *TrustStore) Snapshot() []TrustEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var edges []TrustEdge
	for _, targets := range s.edges {
		for _, edge := range targets {
			edges = append(edges, edge)
		}
	}
	return edges
}

// Restore replaces the store contents with a persisted edge set.
func (s *TrustStore) Restore(edges []TrustEdge) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.edges = make(map[string]map[string]TrustEdge)
	for _, edge := range edges {
		if _, exists := s.edges[edge.Source]; !exists {
			s.edges[edge.Source] = make(map[string]TrustEdge)
		}
		s.edges[edge.Source][edge.Target] = edge
	}
}
