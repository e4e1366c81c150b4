package services

import (
	"context"

	"solana-ledger-gateway/internal/address"
	"solana-ledger-gateway/internal/models"

	"github.com/gagliardetto/solana-go"
)

// LedgerClientInterface defines the upstream Solana RPC operations the gateway relies on
type LedgerClientInterface interface {
	GetBalance(ctx context.Context, key solana.PublicKey) (uint64, error)
	GetSignatureHistory(ctx context.Context, key solana.PublicKey) ([]SignatureInfo, error)
}

// HealthReporter is anything that can report upstream reachability
type HealthReporter interface {
	IsHealthy(ctx context.Context) error
}

// LedgerServiceInterface defines the account queries served over HTTP
type LedgerServiceInterface interface {
	GetBalance(ctx context.Context, addr address.Address) (*models.BalanceRecord, error)
	GetTxHistory(ctx context.Context, addr address.Address) ([]models.SignatureRecord, error)
}
