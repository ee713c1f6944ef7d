package main

import (
	"context"
	"sync"
	"time"
)

// EscrowManager runs the per-deal state machine coordinating offer
// reservation, fund freeze, and release/refund. Frozen deals transition to
// Released or RefundRequested exactly once; both are terminal.
type EscrowManager struct {
	mu       sync.Mutex
	deals    map[string]*Deal
	index    *OfferIndex
	provider PaymentProvider
}

// NewEscrowManager wires the escrow state machine to the offer index and the
// payment provider.
func NewEscrowManager(index *OfferIndex, provider PaymentProvider) *EscrowManager {
	return &EscrowManager{
		deals:    make(map[string]*Deal),
		index:    index,
		provider: provider,
	}
}

// CreateDeal freezes the buyer's funds and places the exclusive reservation on
// the offer. Two concurrent creates against the same offer resolve to exactly
// one success and one Conflict through the index's atomic reservation.
func (m *EscrowManager) CreateDeal(ctx context.Context, productID, buyerAddress string, amountTon float64, timeoutDays int) (Deal, error) {
	if buyerAddress == "" {
		return Deal{}, invalidArgf("buyer address must be non-empty")
	}
	if amountTon <= 0 {
		return Deal{}, invalidArgf("amount must be positive, got %v", amountTon)
	}
	if timeoutDays <= 0 {
		return Deal{}, invalidArgf("timeout days must be positive, got %d", timeoutDays)
	}

	offer, exists := m.index.Get(productID)
	if !exists {
		return Deal{}, notFoundf("offer %s", productID)
	}
	// Advisory fast path; the Reserve below is the authoritative check.
	if offer.Sold {
		return Deal{}, conflictf("offer %s already sold", productID)
	}
	if offer.Reserved {
		return Deal{}, conflictf("offer %s already reserved by deal %s", productID, offer.ReservedDealID)
	}

	frozen, err := m.provider.Freeze(ctx, buyerAddress, amountTon, timeoutDays)
	if err != nil {
		return Deal{}, err
	}

	now := time.Now()
	until := now.Add(time.Duration(timeoutDays) * 24 * time.Hour).Unix()

	if err := m.index.Reserve(productID, frozen.DealID, buyerAddress, until); err != nil {
		// Lost the reservation race after freezing; unwind the frozen funds.
		if _, refundErr := m.provider.Refund(ctx, frozen.DealID); refundErr != nil {
			logger.Error("Failed to unwind freeze after reservation conflict",
				"dealId", frozen.DealID,
				"productId", productID,
				"error", refundErr)
		}
		return Deal{}, err
	}

	deal := Deal{
		DealID:          frozen.DealID,
		Status:          DealFrozen,
		ProductID:       productID,
		Seller:          offer.Seller,
		BuyerAddress:    buyerAddress,
		AmountTon:       amountTon,
		AmountNano:      frozen.AmountNano,
		TimeoutDays:     timeoutDays,
		ReservedAt:      now.Unix(),
		ReservedUntil:   until,
		ContractAddress: frozen.ContractAddress,
	}

	m.mu.Lock()
	stored := deal
	m.deals[deal.DealID] = &stored
	m.mu.Unlock()

	RecordDealTransition(string(DealFrozen))
	logger.Info("Created escrow deal",
		"dealId", deal.DealID,
		"productId", productID,
		"buyer", buyerAddress,
		"amountTon", amountTon)
	return deal, nil
}

// ConfirmDeal settles the funds to the seller and marks the offer sold.
func (m *EscrowManager) ConfirmDeal(ctx context.Context, dealID string) (Deal, error) {
	deal, err := m.transition(dealID, DealReleased)
	if err != nil {
		return Deal{}, err
	}

	if _, err := m.provider.Settle(ctx, dealID); err != nil {
		m.revert(dealID, DealFrozen)
		return Deal{}, err
	}

	if err := m.index.MarkSold(deal.ProductID, dealID); err != nil {
		// Funds already moved; the offer record is out of step.
		logger.Error("Failed to mark offer sold after settlement",
			"dealId", dealID,
			"productId", deal.ProductID,
			"error", err)
	}

	RecordDealTransition(string(DealReleased))
	logger.Info("Confirmed escrow deal", "dealId", dealID, "productId", deal.ProductID)
	return deal, nil
}

// RefundDeal requests a refund to the buyer and releases the reservation. The
// offer stays unsold and available.
func (m *EscrowManager) RefundDeal(ctx context.Context, dealID string) (Deal, error) {
	deal, err := m.transition(dealID, DealRefundRequested)
	if err != nil {
		return Deal{}, err
	}

	if _, err := m.provider.Refund(ctx, dealID); err != nil {
		m.revert(dealID, DealFrozen)
		return Deal{}, err
	}

	if err := m.index.Release(deal.ProductID, dealID); err != nil {
		logger.Error("Failed to release offer reservation after refund",
			"dealId", dealID,
			"productId", deal.ProductID,
			"error", err)
	}

	RecordDealTransition(string(DealRefundRequested))
	logger.Info("Refunded escrow deal", "dealId", dealID, "productId", deal.ProductID)
	return deal, nil
}

// GetDeal returns the deal with the given id.
func (m *EscrowManager) GetDeal(dealID string) (Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deal, exists := m.deals[dealID]
	if !exists {
		return Deal{}, notFoundf("deal %s", dealID)
	}
	return *deal, nil
}

// transition atomically moves a Frozen deal into a terminal state, so a
// second confirm or refund observes Conflict rather than racing the first.
// The provider call happens after the transition and rolls back on failure;
// the lock is never held across provider I/O.
func (m *EscrowManager) transition(dealID string, to DealStatus) (Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deal, exists := m.deals[dealID]
	if !exists {
		return Deal{}, notFoundf("deal %s", dealID)
	}
	if deal.Status != DealFrozen {
		return Deal{}, conflictf("deal %s is %s, expected %s", dealID, deal.Status, DealFrozen)
	}
	deal.Status = to
	result := *deal
	return result, nil
}

// revert restores a deal's status after a failed provider call.
func (m *EscrowManager) revert(dealID string, to DealStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if deal, exists := m.deals[dealID]; exists {
		deal.Status = to
	}
}

// DealCount returns the number of tracked deals.
func (m *EscrowManager) DealCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deals)
}

// Snapshot returns a copy of all deals for persistence.
func (m *EscrowManager) Snapshot() []Deal {
	m.mu.Lock()
	defer m.mu.Unlock()

	deals := make([]Deal, 0, len(m.deals))
	for _, deal := range m.deals {
		deals = append(deals, *deal)
	}
	return deals
}

// Restore replaces the deal set with persisted state.
func (m *EscrowManager) Restore(deals []Deal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deals = make(map[string]*Deal, len(deals))
	for i := range deals {
		deal := deals[i]
		m.deals[deal.DealID] = &deal
	}
}
