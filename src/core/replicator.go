package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"
)

// Replicator fans accepted activities out to the static registry of peer
// hubs. Fan-out is best-effort and at-most-once per peer per call: a failed
// delivery is logged and recorded but never aborts the remaining peers or the
// originating request. Downstream indexing is idempotent, so duplicate or
// out-of-order delivery across repeated fan-outs is safe.
type Replicator struct {
	hubsFile   string
	selfDomain string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewReplicator creates a replicator reading the hub registry from hubsFile
// and skipping selfDomain during fan-out.
func NewReplicator(hubsFile, selfDomain string, timeout time.Duration) *Replicator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Replicator{
		hubsFile:   hubsFile,
		selfDomain: selfDomain,
		timeout:    timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		tracer: otel.Tracer("ozodon/replicator"),
	}
}

// LoadHubs reads the static hub registry. The registry is reloaded on every
// replication call so edits take effect without a restart. YAML and JSON
// registries are both accepted.
func (r *Replicator) LoadHubs() ([]Hub, error) {
	data, err := os.ReadFile(r.hubsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read hub registry: %w", err)
	}

	var hubs []Hub
	if strings.HasSuffix(r.hubsFile, ".json") {
		if err := json.Unmarshal(data, &hubs); err != nil {
			return nil, fmt.Errorf("failed to parse hub registry: %w", err)
		}
		return hubs, nil
	}
	if err := yaml.Unmarshal(data, &hubs); err != nil {
		return nil, fmt.Errorf("failed to parse hub registry: %w", err)
	}
	return hubs, nil
}

// Replicate delivers the activity to every active peer's inbox concurrently.
// The returned per-peer outcomes exist for observability; callers must not
// treat delivery failures as request failures.
func (r *Replicator) Replicate(ctx context.Context, activity Activity) []DeliveryResult {
	ctx, span := r.tracer.Start(ctx, "hub.replicate",
		trace.WithAttributes(attribute.String("activity.type", activity.Type)))
	defer span.End()

	hubs, err := r.LoadHubs()
	if err != nil {
		logger.Warn("Skipping replication, hub registry unavailable", "error", err)
		span.SetAttributes(attribute.Bool("registry.unavailable", true))
		return nil
	}

	payload, err := json.Marshal(activity)
	if err != nil {
		logger.Error("Failed to marshal activity for replication", "error", err)
		return nil
	}

	var peers []Hub
	for _, hub := range hubs {
		if hub.Active && hub.Domain != r.selfDomain {
			peers = append(peers, hub)
		}
	}
	span.SetAttributes(attribute.Int("peers.total", len(peers)))

	results := make([]DeliveryResult, len(peers))
	var wg sync.WaitGroup
	for i, hub := range peers {
		wg.Add(1)
		go func(i int, hub Hub) {
			defer wg.Done()
			results[i] = r.deliver(ctx, hub, payload)
		}(i, hub)
	}
	wg.Wait()

	failures := 0
	for _, result := range results {
		if result.OK() {
			RecordReplicationDelivery("ok")
		} else {
			failures++
			RecordReplicationDelivery("error")
			logger.Warn("Replication delivery failed",
				"peer", result.Domain,
				"status", result.StatusCode,
				"error", result.Error)
		}
	}
	span.SetAttributes(attribute.Int("peers.failed", failures))

	logger.Debug("Replicated activity to peers",
		"activityType", activity.Type,
		"peers", len(peers),
		"failures", failures)
	return results
}

// deliver posts the activity to one peer's inbox.
func (r *Replicator) deliver(ctx context.Context, hub Hub, payload []byte) DeliveryResult {
	result := DeliveryResult{Domain: hub.Domain}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	endpoint := strings.TrimSuffix(hub.Domain, "/") + "/hub/inbox"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		result.Error = err.Error()
		return result
	}
	req.Header.Set("Content-Type", "application/activity+json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Sprintf("peer returned status %d", resp.StatusCode)
	}
	return result
}
