package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-ledger-gateway/internal/config"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPC method names, used as log fields and metric labels
const (
	MethodGetBalance              = "getBalance"
	MethodGetSignaturesForAddress = "getSignaturesForAddress"
	MethodGetHealth               = "getHealth"
)

// RPCError reports a failed upstream call. Its text is the upstream error text.
type RPCError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *RPCError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Err.Error()
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// SignatureInfo is one entry of an address's signature history, in upstream order
type SignatureInfo struct {
	Signature string
	Slot      uint64
	Failed    bool
}

// SolanaClient wraps the Solana RPC client with configuration.
// It holds no per-call state and is shared by all request goroutines.
type SolanaClient struct {
	client     *rpc.Client
	config     *config.RPCConfig
	commitment rpc.CommitmentType
}

// NewSolanaClient creates a client for the configured endpoint. No network I/O happens here.
func NewSolanaClient(cfg *config.RPCConfig) *SolanaClient {
	commitment := rpc.CommitmentType(cfg.Commitment)
	if commitment == "" {
		commitment = rpc.CommitmentFinalized
	}

	return &SolanaClient{
		client:     rpc.New(cfg.Endpoint),
		config:     cfg,
		commitment: commitment,
	}
}

// Endpoint returns the upstream URL
func (s *SolanaClient) Endpoint() string {
	return s.config.Endpoint
}

// GetBalance fetches the lamport balance of key with a single getBalance call
func (s *SolanaClient) GetBalance(ctx context.Context, key solana.PublicKey) (uint64, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	result, err := s.client.GetBalance(ctx, key, s.commitment)
	if err != nil {
		return 0, s.wrap(ctx, MethodGetBalance, err)
	}
	if result == nil {
		return 0, &RPCError{Op: MethodGetBalance, Err: errors.New("empty getBalance result")}
	}

	return result.Value, nil
}

// GetSignatureHistory fetches the default page of signatures for key, newest first as returned upstream
func (s *SolanaClient) GetSignatureHistory(ctx context.Context, key solana.PublicKey) ([]SignatureInfo, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	// getSignaturesForAddress rejects "processed"
	commitment := s.commitment
	if commitment == rpc.CommitmentProcessed {
		commitment = rpc.CommitmentConfirmed
	}

	entries, err := s.client.GetSignaturesForAddressWithOpts(ctx, key, &rpc.GetSignaturesForAddressOpts{
		Commitment: commitment,
	})
	if err != nil {
		return nil, s.wrap(ctx, MethodGetSignaturesForAddress, err)
	}

	history := make([]SignatureInfo, 0, len(entries))
	for i, entry := range entries {
		if entry == nil {
			return nil, &RPCError{
				Op:  MethodGetSignaturesForAddress,
				Err: fmt.Errorf("malformed signature entry at index %d", i),
			}
		}
		history = append(history, SignatureInfo{
			Signature: entry.Signature.String(),
			Slot:      entry.Slot,
			Failed:    entry.Err != nil,
		})
	}

	return history, nil
}

// IsHealthy checks if the RPC endpoint reports itself healthy
func (s *SolanaClient) IsHealthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	status, err := s.client.GetHealth(ctx)
	if err != nil {
		return s.wrap(ctx, MethodGetHealth, err)
	}
	if status != rpc.HealthOk {
		return &RPCError{Op: MethodGetHealth, Err: fmt.Errorf("node reported %q", status)}
	}

	return nil
}

// Close releases idle upstream connections
func (s *SolanaClient) Close() error {
	return s.client.Close()
}

func (s *SolanaClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

func (s *SolanaClient) wrap(ctx context.Context, op string, err error) *RPCError {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &RPCError{Op: op, Timeout: timeout, Err: err}
}
