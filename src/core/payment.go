package main

import (
	"context"

	"github.com/google/uuid"
)

// nanoPerTon is the TON to nanoTON conversion factor.
const nanoPerTon = 1_000_000_000

// FreezeResult is returned by the payment provider when escrow funds are
// frozen for a new deal.
type FreezeResult struct {
	DealID          string `json:"deal_id"`
	AmountNano      int64  `json:"amount_nano"`
	ContractAddress string `json:"contract_address"`
}

// Receipt acknowledges a settle or refund operation.
type Receipt struct {
	Status string `json:"status"`
	DealID string `json:"deal_id"`
}

// PaymentProvider is the escrow fund-movement boundary. The wallet and
// contract machinery behind it is a black box to the hub core: funds are
// frozen when a deal is created and either settled to the seller or refunded
// to the buyer exactly once.
type PaymentProvider interface {
	// Freeze locks amountTon from the buyer for timeoutDays and returns the
	// provider-assigned deal id.
	Freeze(ctx context.Context, buyerAddress string, amountTon float64, timeoutDays int) (FreezeResult, error)
	// Settle releases frozen funds to the seller.
	Settle(ctx context.Context, dealID string) (Receipt, error)
	// Refund returns frozen funds to the buyer.
	Refund(ctx context.Context, dealID string) (Receipt, error)
}

// SimulatedTONProvider implements PaymentProvider without a blockchain
// connection. It validates inputs the way the real contract wrapper does and
// fabricates deal ids, keeping a clear upgrade path to a live TON client.
type SimulatedTONProvider struct {
	WalletAddress string
}

// NewSimulatedTONProvider creates a provider with the given escrow wallet
// address.
func NewSimulatedTONProvider(walletAddress string) *SimulatedTONProvider {
	if walletAddress == "" {
		walletAddress = "UQ_SIMULATED_WALLET"
	}
	return &SimulatedTONProvider{WalletAddress: walletAddress}
}

// Freeze validates the escrow inputs and simulates locking the funds.
func (p *SimulatedTONProvider) Freeze(ctx context.Context, buyerAddress string, amountTon float64, timeoutDays int) (FreezeResult, error) {
	if buyerAddress == "" {
		return FreezeResult{}, invalidArgf("buyer address must be non-empty")
	}
	if amountTon <= 0 {
		return FreezeResult{}, invalidArgf("amount must be positive, got %v", amountTon)
	}
	if timeoutDays <= 0 {
		return FreezeResult{}, invalidArgf("timeout days must be positive, got %d", timeoutDays)
	}

	result := FreezeResult{
		DealID:          "deal_" + uuid.New().String(),
		AmountNano:      int64(amountTon * nanoPerTon),
		ContractAddress: p.WalletAddress,
	}
	logger.Info("Froze escrow funds",
		"dealId", result.DealID,
		"buyer", buyerAddress,
		"amountNano", result.AmountNano,
		"timeoutDays", timeoutDays)
	return result, nil
}

// Settle simulates releasing frozen funds to the seller.
func (p *SimulatedTONProvider) Settle(ctx context.Context, dealID string) (Receipt, error) {
	if dealID == "" {
		return Receipt{}, invalidArgf("deal id must be provided")
	}
	logger.Info("Released escrow funds", "dealId", dealID)
	return Receipt{Status: "funds_released", DealID: dealID}, nil
}

// Refund simulates returning frozen funds to the buyer.
func (p *SimulatedTONProvider) Refund(ctx context.Context, dealID string) (Receipt, error) {
	if dealID == "" {
		return Receipt{}, invalidArgf("deal id must be provided")
	}
	logger.Info("Requested escrow refund", "dealId", dealID)
	return Receipt{Status: "refund_requested", DealID: dealID}, nil
}
