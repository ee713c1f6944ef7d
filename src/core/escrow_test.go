package main

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// flakyProvider wraps SimulatedTONProvider and fails selected operations.
type flakyProvider struct {
	*SimulatedTONProvider
	failSettle bool
	failRefund bool

	mu      sync.Mutex
	refunds []string
}

func (p *flakyProvider) Settle(ctx context.Context, dealID string) (Receipt, error) {
	if p.failSettle {
		return Receipt{}, unavailablef("settlement backend down")
	}
	return p.SimulatedTONProvider.Settle(ctx, dealID)
}

func (p *flakyProvider) Refund(ctx context.Context, dealID string) (Receipt, error) {
	p.mu.Lock()
	p.refunds = append(p.refunds, dealID)
	p.mu.Unlock()
	if p.failRefund {
		return Receipt{}, unavailablef("refund backend down")
	}
	return p.SimulatedTONProvider.Refund(ctx, dealID)
}

func newTestEscrow(t *testing.T) (*EscrowManager, *OfferIndex) {
	t.Helper()
	idx := NewOfferIndex()
	indexTestOffer(t, idx, testOfferActivity("https://m.example/products/1", "Teapot", 25))
	return NewEscrowManager(idx, NewSimulatedTONProvider("")), idx
}

func TestCreateDeal_FreezesAndReserves(t *testing.T) {
	escrow, idx := newTestEscrow(t)

	deal, err := escrow.CreateDeal(context.Background(), "https://m.example/products/1", "UQ_BUYER", 25, 7)
	if err != nil {
		t.Fatalf("Unexpected create error: %v", err)
	}

	if deal.Status != DealFrozen {
		t.Errorf("Expected status %s, got %s", DealFrozen, deal.Status)
	}
	if deal.AmountNano != 25*nanoPerTon {
		t.Errorf("Expected %d nanoTON, got %d", int64(25*nanoPerTon), deal.AmountNano)
	}
	if deal.Seller != "https://market.example/users/alice" {
		t.Errorf("Unexpected seller %s", deal.Seller)
	}

	offer, _ := idx.Get("https://m.example/products/1")
	if !offer.Reserved || offer.ReservedDealID != deal.DealID {
		t.Errorf("Expected offer reserved by %s, got %+v", deal.DealID, offer)
	}

	got, err := escrow.GetDeal(deal.DealID)
	if err != nil {
		t.Fatalf("Unexpected lookup error: %v", err)
	}
	if got.DealID != deal.DealID {
		t.Errorf("Lookup returned wrong deal %s", got.DealID)
	}
}

func TestCreateDeal_Validation(t *testing.T) {
	escrow, _ := newTestEscrow(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID string
		buyer     string
		amount    float64
		days      int
		wantErr   error
	}{
		{"empty buyer", "https://m.example/products/1", "", 25, 7, ErrInvalidArgument},
		{"zero amount", "https://m.example/products/1", "UQ_B", 0, 7, ErrInvalidArgument},
		{"negative amount", "https://m.example/products/1", "UQ_B", -5, 7, ErrInvalidArgument},
		{"zero timeout", "https://m.example/products/1", "UQ_B", 25, 0, ErrInvalidArgument},
		{"unknown product", "https://m.example/products/nope", "UQ_B", 25, 7, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := escrow.CreateDeal(ctx, tt.productID, tt.buyer, tt.amount, tt.days)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	if escrow.DealCount() != 0 {
		t.Errorf("Rejected creates must not leave deals behind, have %d", escrow.DealCount())
	}
}

func TestCreateDeal_ConcurrentSingleWinner(t *testing.T) {
	escrow, _ := newTestEscrow(t)
	ctx := context.Background()

	const attempts = 20
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = escrow.CreateDeal(ctx, "https://m.example/products/1", "UQ_BUYER", 25, 7)
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Errorf("Unexpected error kind: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("Expected exactly one successful deal, got %d", successes)
	}
	if conflicts != attempts-1 {
		t.Errorf("Expected %d conflicts, got %d", attempts-1, conflicts)
	}
	if escrow.DealCount() != 1 {
		t.Errorf("Expected 1 stored deal, got %d", escrow.DealCount())
	}
}

// hookedProvider runs a callback after a successful freeze, which lets tests
// interleave a competing reservation between the freeze and the reserve step.
type hookedProvider struct {
	*flakyProvider
	afterFreeze func(frozen FreezeResult)
}

func (p *hookedProvider) Freeze(ctx context.Context, buyer string, amountTon float64, timeoutDays int) (FreezeResult, error) {
	frozen, err := p.flakyProvider.Freeze(ctx, buyer, amountTon, timeoutDays)
	if err == nil && p.afterFreeze != nil {
		p.afterFreeze(frozen)
	}
	return frozen, err
}

func TestCreateDeal_ReservationLossUnwindsFreeze(t *testing.T) {
	idx := NewOfferIndex()
	indexTestOffer(t, idx, testOfferActivity("p1", "Teapot", 25))
	ctx := context.Background()

	flaky := &flakyProvider{SimulatedTONProvider: NewSimulatedTONProvider("")}
	provider := &hookedProvider{
		flakyProvider: flaky,
		afterFreeze: func(FreezeResult) {
			// A competing deal wins the reservation while funds freeze.
			if err := idx.Reserve("p1", "deal_rival", "UQ_RIVAL", 100); err != nil {
				t.Errorf("Rival reservation failed: %v", err)
			}
		},
	}
	escrow := NewEscrowManager(idx, provider)

	_, err := escrow.CreateDeal(ctx, "p1", "UQ_BUYER", 25, 7)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected conflict after losing the reservation, got %v", err)
	}

	flaky.mu.Lock()
	refunds := len(flaky.refunds)
	flaky.mu.Unlock()
	if refunds != 1 {
		t.Errorf("Expected the frozen funds refunded once, got %d refunds", refunds)
	}

	offer, _ := idx.Get("p1")
	if offer.ReservedDealID != "deal_rival" {
		t.Errorf("Rival reservation must survive, got %s", offer.ReservedDealID)
	}
	if escrow.DealCount() != 0 {
		t.Errorf("Losing create must not store a deal, have %d", escrow.DealCount())
	}
}

func TestConfirmDeal_ReleasesAndMarksSold(t *testing.T) {
	escrow, idx := newTestEscrow(t)
	ctx := context.Background()

	deal, err := escrow.CreateDeal(ctx, "https://m.example/products/1", "UQ_BUYER", 25, 7)
	if err != nil {
		t.Fatalf("Unexpected create error: %v", err)
	}

	confirmed, err := escrow.ConfirmDeal(ctx, deal.DealID)
	if err != nil {
		t.Fatalf("Unexpected confirm error: %v", err)
	}
	if confirmed.Status != DealReleased {
		t.Errorf("Expected status %s, got %s", DealReleased, confirmed.Status)
	}

	offer, _ := idx.Get("https://m.example/products/1")
	if !offer.Sold || offer.SoldDealID != deal.DealID {
		t.Errorf("Expected offer sold by %s, got %+v", deal.DealID, offer)
	}

	stored, _ := escrow.GetDeal(deal.DealID)
	if stored.Status != DealReleased {
		t.Errorf("Expected stored status %s, got %s", DealReleased, stored.Status)
	}
}

func TestRefundDeal_ReleasesReservation(t *testing.T) {
	escrow, idx := newTestEscrow(t)
	ctx := context.Background()

	deal, err := escrow.CreateDeal(ctx, "https://m.example/products/1", "UQ_BUYER", 25, 7)
	if err != nil {
		t.Fatalf("Unexpected create error: %v", err)
	}

	refunded, err := escrow.RefundDeal(ctx, deal.DealID)
	if err != nil {
		t.Fatalf("Unexpected refund error: %v", err)
	}
	if refunded.Status != DealRefundRequested {
		t.Errorf("Expected status %s, got %s", DealRefundRequested, refunded.Status)
	}

	offer, _ := idx.Get("https://m.example/products/1")
	if offer.Reserved || offer.Sold {
		t.Errorf("Expected offer available after refund, got %+v", offer)
	}
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		settle func(m *EscrowManager, dealID string) error
	}{
		{
			name: "released is terminal",
			settle: func(m *EscrowManager, id string) error {
				_, err := m.ConfirmDeal(ctx, id)
				return err
			},
		},
		{
			name: "refund_requested is terminal",
			settle: func(m *EscrowManager, id string) error {
				_, err := m.RefundDeal(ctx, id)
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			escrow, _ := newTestEscrow(t)
			deal, err := escrow.CreateDeal(ctx, "https://m.example/products/1", "UQ_BUYER", 25, 7)
			if err != nil {
				t.Fatalf("Unexpected create error: %v", err)
			}
			if err := tt.settle(escrow, deal.DealID); err != nil {
				t.Fatalf("First transition failed: %v", err)
			}

			if _, err := escrow.ConfirmDeal(ctx, deal.DealID); !errors.Is(err, ErrConflict) {
				t.Errorf("Expected conflict on confirm after terminal state, got %v", err)
			}
			if _, err := escrow.RefundDeal(ctx, deal.DealID); !errors.Is(err, ErrConflict) {
				t.Errorf("Expected conflict on refund after terminal state, got %v", err)
			}
		})
	}
}

func TestConfirmDeal_ProviderFailureRollsBack(t *testing.T) {
	idx := NewOfferIndex()
	indexTestOffer(t, idx, testOfferActivity("p1", "Teapot", 25))
	provider := &flakyProvider{SimulatedTONProvider: NewSimulatedTONProvider(""), failSettle: true}
	escrow := NewEscrowManager(idx, provider)
	ctx := context.Background()

	deal, err := escrow.CreateDeal(ctx, "p1", "UQ_BUYER", 25, 7)
	if err != nil {
		t.Fatalf("Unexpected create error: %v", err)
	}

	if _, err := escrow.ConfirmDeal(ctx, deal.DealID); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Expected unavailable from settle failure, got %v", err)
	}

	// The deal reverted to Frozen; the buyer can still be refunded.
	stored, _ := escrow.GetDeal(deal.DealID)
	if stored.Status != DealFrozen {
		t.Errorf("Expected rollback to %s, got %s", DealFrozen, stored.Status)
	}
	if _, err := escrow.RefundDeal(ctx, deal.DealID); err != nil {
		t.Errorf("Refund after failed settle must succeed: %v", err)
	}

	offer, _ := idx.Get("p1")
	if offer.Sold {
		t.Error("Offer must not be sold after a failed settlement")
	}
}

func TestGetDeal_NotFound(t *testing.T) {
	escrow, _ := newTestEscrow(t)
	if _, err := escrow.GetDeal("deal_missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected not-found, got %v", err)
	}
}

func TestEscrow_SnapshotRestore(t *testing.T) {
	escrow, idx := newTestEscrow(t)
	ctx := context.Background()

	deal, err := escrow.CreateDeal(ctx, "https://m.example/products/1", "UQ_BUYER", 25, 7)
	if err != nil {
		t.Fatalf("Unexpected create error: %v", err)
	}

	restored := NewEscrowManager(idx, NewSimulatedTONProvider(""))
	restored.Restore(escrow.Snapshot())

	got, err := restored.GetDeal(deal.DealID)
	if err != nil {
		t.Fatalf("Expected deal after restore: %v", err)
	}
	if got.Status != DealFrozen || got.ProductID != "https://m.example/products/1" {
		t.Errorf("Unexpected restored deal %+v", got)
	}

	// The restored manager keeps driving the same state machine.
	if _, err := restored.ConfirmDeal(ctx, deal.DealID); err != nil {
		t.Errorf("Confirm on restored manager failed: %v", err)
	}
}
