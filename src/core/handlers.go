package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var startTime = time.Now()

// Handler builds the full HTTP surface: routes plus the middleware chain.
func (node *HubNode) Handler() http.Handler {
	router := node.Router()

	limiter := NewIPRateLimiter(node.Config.RateLimitPerMinute)

	var handler http.Handler = router
	handler = MetricsMiddleware(handler)
	handler = BodySizeLimitMiddleware(node.Config.MaxBodySizeBytes)(handler)
	handler = RateLimitMiddleware(limiter)(handler)
	handler = RequestIDMiddleware(handler)
	return otelhttp.NewHandler(handler, "ozodon")
}

// Router wires the API endpoints.
func (node *HubNode) Router() *mux.Router {
	router := mux.NewRouter()

	// Federation inbox
	router.HandleFunc("/inbox", node.InboxHandler).Methods("POST")
	router.HandleFunc("/hub/inbox", node.InboxHandler).Methods("POST")

	// Search and feeds
	router.HandleFunc("/hub/search", node.SearchHandler).Methods("GET")
	router.HandleFunc("/api/v1/products", node.SearchHandler).Methods("GET")
	router.HandleFunc("/hub/feeds/latest", node.LatestFeedHandler).Methods("GET")
	router.HandleFunc("/hub/tags", node.TagsHandler).Methods("GET")
	router.HandleFunc("/hub/categories", node.CategoriesHandler).Methods("GET")
	router.HandleFunc("/hub/seller", node.SellerHandler).Methods("GET")

	// Trust API
	router.HandleFunc("/hub/trust", node.AddTrustHandler).Methods("POST")
	router.HandleFunc("/hub/trust", node.TrustScoreHandler).Methods("GET")
	router.HandleFunc("/hub/trust/score", node.TrustSummaryHandler).Methods("GET")

	// Moderation
	router.HandleFunc("/hub/reports", node.CreateReportHandler).Methods("POST")
	router.HandleFunc("/hub/reports", node.GetReportsHandler).Methods("GET")

	// Escrow deals
	router.HandleFunc("/hub/deals", node.CreateDealHandler).Methods("POST")
	router.HandleFunc("/hub/deals/{dealId}", node.GetDealHandler).Methods("GET")
	router.HandleFunc("/hub/deals/{dealId}/confirm", node.ConfirmDealHandler).Methods("POST")
	router.HandleFunc("/hub/deals/{dealId}/refund", node.RefundDealHandler).Methods("POST")

	// Hub metadata
	router.HandleFunc("/hub/hubs", node.GetHubsHandler).Methods("GET")
	router.HandleFunc("/hub/info", node.InfoHandler).Methods("GET")
	router.HandleFunc("/api/health", node.HealthCheckHandler).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps a core error onto an HTTP status and a JSON error body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatusFor(err), map[string]interface{}{
		"error": err.Error(),
	})
}

// InboxHandler accepts federated activities and indexes the relevant ones.
func (node *HubNode) InboxHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var activity Activity
	if err := json.Unmarshal(raw, &activity); err != nil {
		http.Error(w, "Invalid activity data", http.StatusBadRequest)
		return
	}

	if err := node.ProcessActivity(r.Context(), activity, raw); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "received",
	})
}

// parseSearchFilter reads the search query parameters.
func parseSearchFilter(r *http.Request) SearchFilter {
	filter := SearchFilter{
		Query: r.URL.Query().Get("q"),
		Tag:   r.URL.Query().Get("tag"),
		Limit: DefaultSearchLimit,
	}
	if v := r.URL.Query().Get("min_price"); v != "" {
		if minPrice, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinPrice = &minPrice
		}
	}
	if v := r.URL.Query().Get("max_price"); v != "" {
		if maxPrice, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxPrice = &maxPrice
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	return filter
}

// SearchHandler searches indexed offers and ranks the results.
func (node *HubNode) SearchHandler(w http.ResponseWriter, r *http.Request) {
	results := node.Ranker.RankOffers(node.Offers.Search(parseSearchFilter(r)))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
	})
}

// LatestFeedHandler returns the newest offers.
func (node *HubNode) LatestFeedHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", DefaultSearchLimit)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": node.Offers.Latest(limit),
		"limit": limit,
	})
}

// TagsHandler returns top tags with counts.
func (node *HubNode) TagsHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tags": node.Offers.TagCounts(limit),
	})
}

// CategoriesHandler returns a simplified category list based on top tags.
func (node *HubNode) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	counts := node.Offers.TagCounts(20)
	categories := make([]string, 0, len(counts))
	for _, c := range counts {
		categories = append(categories, c.Tag)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
	})
}

// SellerHandler returns a seller's offers with a trust summary.
func (node *HubNode) SellerHandler(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		writeError(w, invalidArgf("actor query parameter is required"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"seller": actor,
		"trust":  node.Trust.IncomingSummary(actor),
		"offers": node.Offers.BySeller(actor, 100),
	})
}

// AddTrustHandler records a direct trust statement.
func (node *HubNode) AddTrustHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source string  `json:"source"`
		Target string  `json:"target"`
		Weight float64 `json:"weight"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	if !IsValidActorID(req.Source) || !IsValidActorID(req.Target) {
		writeError(w, invalidArgf("source and target must be URL-like identifiers"))
		return
	}
	if req.Source == req.Target {
		writeError(w, invalidArgf("trust statements toward oneself are not accepted"))
		return
	}

	edge := node.Trust.AddTrust(req.Source, req.Target, req.Weight)
	UpdateStoreGauges(node.Offers.Count(), node.Trust.EdgeCount())
	writeJSON(w, http.StatusOK, edge)
}

// TrustScoreHandler computes the multi-hop trust score between two actors.
func (node *HubNode) TrustScoreHandler(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	target := r.URL.Query().Get("target")
	if source == "" || target == "" {
		writeError(w, invalidArgf("source and target query parameters are required"))
		return
	}
	depth := queryInt(r, "depth", DefaultTrustMaxDepth)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"source": source,
		"target": target,
		"depth":  depth,
		"score":  node.Trust.TrustScore(source, target, depth),
	})
}

// TrustSummaryHandler aggregates incoming trust for an actor.
func (node *HubNode) TrustSummaryHandler(w http.ResponseWriter, r *http.Request) {
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		writeError(w, invalidArgf("actor query parameter is required"))
		return
	}
	writeJSON(w, http.StatusOK, node.Trust.IncomingSummary(actor))
}

// CreateReportHandler accepts a moderation report, dropping it silently when
// the reporter lacks trust toward the target.
func (node *HubNode) CreateReportHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reporter string `json:"reporter"`
		Target   string `json:"target"`
		Reason   string `json:"reason"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}

	activity := Activity{
		Type:    ActivityTypeFlag,
		Actor:   req.Reporter,
		Object:  &ActivityObject{Target: req.Target},
		Content: req.Reason,
	}
	if err := ValidateFlagActivity(activity); err != nil {
		writeError(w, err)
		return
	}

	node.handleReport(activity)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "received",
	})
}

// GetReportsHandler lists accepted moderation reports.
func (node *HubNode) GetReportsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": node.AcceptedReports(),
	})
}

// CreateDealHandler opens an escrow deal against an indexed offer.
func (node *HubNode) CreateDealHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID    string  `json:"product_id"`
		BuyerAddress string  `json:"buyer_address"`
		AmountTon    float64 `json:"amount_ton"`
		TimeoutDays  int     `json:"timeout_days"`
	}
	if err := DecodeJSONBody(w, r, &req); err != nil {
		return
	}
	if req.TimeoutDays == 0 {
		req.TimeoutDays = 7
	}

	deal, err := node.Escrow.CreateDeal(r.Context(), req.ProductID, req.BuyerAddress, req.AmountTon, req.TimeoutDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// GetDealHandler returns a deal by id.
func (node *HubNode) GetDealHandler(w http.ResponseWriter, r *http.Request) {
	deal, err := node.Escrow.GetDeal(mux.Vars(r)["dealId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// ConfirmDealHandler settles a frozen deal.
func (node *HubNode) ConfirmDealHandler(w http.ResponseWriter, r *http.Request) {
	deal, err := node.Escrow.ConfirmDeal(r.Context(), mux.Vars(r)["dealId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// RefundDealHandler refunds a frozen deal.
func (node *HubNode) RefundDealHandler(w http.ResponseWriter, r *http.Request) {
	deal, err := node.Escrow.RefundDeal(r.Context(), mux.Vars(r)["dealId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// GetHubsHandler returns the static replication registry.
func (node *HubNode) GetHubsHandler(w http.ResponseWriter, r *http.Request) {
	hubs, err := node.Replicator.LoadHubs()
	if err != nil {
		writeError(w, unavailablef("hub registry unavailable: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hubs": hubs,
	})
}

// InfoHandler returns basic hub information and counters.
func (node *HubNode) InfoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":        node.Config.HubName,
		"domain":      node.Config.HubDomain,
		"description": node.Config.HubDescription,
		"mode":        "hub",
		"offers":      node.Offers.Count(),
		"trust_links": node.Trust.EdgeCount(),
		"deals":       node.Escrow.DealCount(),
	})
}

// HealthCheckHandler handles health check requests
func (node *HubNode) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"name":    node.Config.HubName,
		"uptime":  int64(time.Since(startTime).Seconds()),
		"version": "1.0.0",
	})
}

// queryInt reads an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
