package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Package-level logger
var logger *slog.Logger

// initLogger initializes the structured logger based on the log level
func initLogger(logLevel string) {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger = slog.New(handler)
}

// HubNode is the main server structure. It owns the persistent stores and the
// components built over them; store handles are constructed once at startup
// and injected by reference.
type HubNode struct {
	Config     *Config
	Trust      *TrustStore
	Offers     *OfferIndex
	Ranker     *Ranker
	Escrow     *EscrowManager
	Replicator *Replicator
	Provider   PaymentProvider

	ReportsMutex sync.RWMutex
	Reports      []Report
}

func main() {
	cfg := LoadConfig()

	initLogger(cfg.LogLevel)

	node := NewHubNode(cfg)

	if err := node.LoadState(cfg.DataDir); err != nil {
		logger.Error("Failed to load persisted state", "error", err)
		os.Exit(1)
	}

	if err := node.Serve(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// NewHubNode wires up the stores and components for one hub node.
func NewHubNode(cfg *Config) *HubNode {
	trust := NewTrustStore()
	offers := NewOfferIndex()
	provider := NewSimulatedTONProvider(cfg.WalletAddress)

	node := &HubNode{
		Config:     cfg,
		Trust:      trust,
		Offers:     offers,
		Ranker:     NewRanker(trust),
		Escrow:     NewEscrowManager(offers, provider),
		Replicator: NewReplicator(cfg.HubsFile, cfg.HubDomain, cfg.ReplicationTimeout),
		Provider:   provider,
	}

	if logger != nil {
		logger.Info("Initialized hub node", "name", cfg.HubName, "domain", cfg.HubDomain)
	}
	return node
}

// ProcessActivity classifies an inbound activity, updates the relevant store,
// and fans replication out to peers. Unknown activity types are acknowledged
// and ignored. The raw payload is retained for offer traceability.
func (node *HubNode) ProcessActivity(ctx context.Context, activity Activity, raw json.RawMessage) error {
	switch activity.Type {
	case ActivityTypeOffer:
		if err := ValidateOfferActivity(activity); err != nil {
			RecordActivity(activity.Type, false)
			return err
		}
		if _, err := node.Offers.IndexOffer(activity, raw); err != nil {
			RecordActivity(activity.Type, false)
			return err
		}
		node.replicateAsync(activity)

	case ActivityTypeTrust:
		if err := ValidateTrustActivity(activity); err != nil {
			RecordActivity(activity.Type, false)
			return err
		}
		node.Trust.AddTrust(activity.Actor, activity.Object.Target, activity.Object.Weight)
		node.replicateAsync(activity)

	case ActivityTypeFlag:
		if err := ValidateFlagActivity(activity); err != nil {
			RecordActivity(activity.Type, false)
			return err
		}
		node.handleReport(activity)

	default:
		logger.Debug("Ignoring activity of unhandled type", "type", activity.Type)
	}

	RecordActivity(activity.Type, true)
	UpdateStoreGauges(node.Offers.Count(), node.Trust.EdgeCount())
	return nil
}

// replicateAsync fans the activity out to peers without blocking or failing
// the originating request.
func (node *HubNode) replicateAsync(activity Activity) {
	go node.Replicator.Replicate(context.Background(), activity)
}

// handleReport gates a moderation flag on the reporter's trust toward the
// target. A low-trust report is dropped silently, not rejected.
func (node *HubNode) handleReport(activity Activity) {
	reporter := activity.Actor
	target := activity.Object.Target

	if !node.Trust.IsSpamReport(reporter, target) {
		RecordReport(false)
		logger.Debug("Dropped report from low-trust reporter",
			"reporter", reporter,
			"target", target)
		return
	}

	report := Report{
		ID:       uuid.New().String(),
		Reporter: reporter,
		Target:   target,
		Reason:   activity.Content,
		Received: time.Now().Unix(),
	}

	node.ReportsMutex.Lock()
	node.Reports = append(node.Reports, report)
	node.ReportsMutex.Unlock()

	RecordReport(true)
	logger.Info("Accepted moderation report",
		"reportId", report.ID,
		"reporter", reporter,
		"target", target)
}

// AcceptedReports returns a copy of the accepted moderation reports.
func (node *HubNode) AcceptedReports() []Report {
	node.ReportsMutex.RLock()
	defer node.ReportsMutex.RUnlock()

	reports := make([]Report, len(node.Reports))
	copy(reports, node.Reports)
	return reports
}

// Serve runs the HTTP server until SIGINT/SIGTERM, then drains connections
// within the configured shutdown timeout and persists store state.
func (node *HubNode) Serve() error {
	server := &http.Server{
		Addr:    ":" + node.Config.Port,
		Handler: node.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting hub node server", "port", node.Config.Port, "name", node.Config.HubName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down hub node server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), node.Config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to drain connections", "error", err)
	}

	if err := node.SaveState(node.Config.DataDir); err != nil {
		logger.Error("Failed to persist state", "error", err)
		return err
	}
	return nil
}
