package services

import (
	"context"
	"errors"
	"time"

	"solana-ledger-gateway/internal/address"
	"solana-ledger-gateway/internal/models"
	"solana-ledger-gateway/pkg/logger"
	"solana-ledger-gateway/pkg/metrics"

	"go.uber.org/zap"
)

// LedgerService answers account queries with exactly one upstream call each.
// Nothing is cached or retried; every request reflects the node's state at call time.
type LedgerService struct {
	client  LedgerClientInterface
	metrics *metrics.MetricsCollector
}

// NewLedgerService creates a new LedgerService. collector may be nil.
func NewLedgerService(client LedgerClientInterface, collector *metrics.MetricsCollector) *LedgerService {
	return &LedgerService{
		client:  client,
		metrics: collector,
	}
}

// GetBalance fetches the lamport balance of addr. The record echoes the address as the caller sent it.
func (ls *LedgerService) GetBalance(ctx context.Context, addr address.Address) (*models.BalanceRecord, error) {
	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"wallet_address": addr.String(),
		"component":      "ledger_service",
	})

	start := time.Now()
	lamports, err := ls.client.GetBalance(ctx, addr.Key)
	ls.observe(MethodGetBalance, time.Since(start), err)

	if err != nil {
		log.Error("Failed to fetch balance from RPC",
			zap.Error(err),
			zap.Duration("rpc_duration", time.Since(start)),
		)
		return nil, toAppError(err)
	}

	log.Debug("Fetched balance from RPC",
		zap.Uint64("lamports", lamports),
		zap.Duration("rpc_duration", time.Since(start)),
	)

	return &models.BalanceRecord{
		Address:  addr.String(),
		Lamports: lamports,
	}, nil
}

// GetTxHistory fetches the signature history of addr in upstream order. An empty history is an empty, non-nil slice.
func (ls *LedgerService) GetTxHistory(ctx context.Context, addr address.Address) ([]models.SignatureRecord, error) {
	log := logger.GetLogger().WithContext(ctx).WithFields(map[string]interface{}{
		"wallet_address": addr.String(),
		"component":      "ledger_service",
	})

	start := time.Now()
	history, err := ls.client.GetSignatureHistory(ctx, addr.Key)
	ls.observe(MethodGetSignaturesForAddress, time.Since(start), err)

	if err != nil {
		log.Error("Failed to fetch signature history from RPC",
			zap.Error(err),
			zap.Duration("rpc_duration", time.Since(start)),
		)
		return nil, toAppError(err)
	}

	records := make([]models.SignatureRecord, 0, len(history))
	for _, entry := range history {
		records = append(records, models.SignatureRecord{Signature: entry.Signature})
	}

	log.Debug("Fetched signature history from RPC",
		zap.Int("signature_count", len(records)),
		zap.Duration("rpc_duration", time.Since(start)),
	)

	return records, nil
}

func (ls *LedgerService) observe(method string, duration time.Duration, err error) {
	if ls.metrics == nil {
		return
	}

	outcome := metrics.RPCOutcomeOK
	if err != nil {
		outcome = metrics.RPCOutcomeError
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Timeout {
			outcome = metrics.RPCOutcomeTimeout
		}
	}
	ls.metrics.RecordRPCCall(method, duration, outcome)
}

// toAppError maps any upstream failure to a 500 whose message is the upstream error text
func toAppError(err error) *models.AppError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return models.NewRPCError(rpcErr, rpcErr.Timeout).WithContext("rpc_method", rpcErr.Op)
	}
	return models.NewRPCError(err, errors.Is(err, context.DeadlineExceeded))
}
