package rpctest

import (
	"encoding/json"
	"strings"
)

// Well-formed 64-byte transaction signatures for fixtures
const (
	SignatureA = "4gXrHw1dqafC4Vo2RTmHpRK3d3x8aYXLg81BtsMBWrWgQu9n45JWDMTM5yGhR1Ug1Reo4sFi4apJe9Zmoexx9Tc9"
	SignatureB = "3U1tFA9PdfkqMUAM3bDBW7stNbRSUFmxuc4LBu2chsgaGHSafbB1i3oLREKrtbGRTRH9YeDrV2GnbhYLofE6rW3S"
	SignatureC = "61jhZxXCPK6r56ysBwpUmMQojRHD23BKBa7cNzaP3YGxEEHzAX3ba7QTuJv7ZvvJjfRUfFsTTbZvUxo6ENKdfqbf"
)

// Balance answers getBalance with lamports for every address
func Balance(lamports uint64) HandlerFunc {
	return func([]json.RawMessage) (interface{}, *Error) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   lamports,
		}, nil
	}
}

// BalanceByAddress answers getBalance from a table keyed by base58 address; unknown addresses hold 0
func BalanceByAddress(table map[string]uint64) HandlerFunc {
	return func(params []json.RawMessage) (interface{}, *Error) {
		lamports := table[FirstParam(params)]
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   lamports,
		}, nil
	}
}

// Signatures answers getSignaturesForAddress with the given signatures in order
func Signatures(signatures ...string) HandlerFunc {
	return func([]json.RawMessage) (interface{}, *Error) {
		return signatureEntries(signatures), nil
	}
}

// SignaturesByAddress answers getSignaturesForAddress from a table keyed by base58 address
func SignaturesByAddress(table map[string][]string) HandlerFunc {
	return func(params []json.RawMessage) (interface{}, *Error) {
		return signatureEntries(table[FirstParam(params)]), nil
	}
}

// Fail answers every call with a JSON-RPC error
func Fail(code int, message string) HandlerFunc {
	return func([]json.RawMessage) (interface{}, *Error) {
		return nil, &Error{Code: code, Message: message}
	}
}

// FirstParam decodes the leading string param, which is the account for both ledger queries
func FirstParam(params []json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(params[0], &s); err != nil {
		return strings.Trim(string(params[0]), `"`)
	}
	return s
}

func signatureEntries(signatures []string) []map[string]interface{} {
	entries := make([]map[string]interface{}, 0, len(signatures))
	for i, sig := range signatures {
		entries = append(entries, map[string]interface{}{
			"signature":          sig,
			"slot":               1000 - i,
			"err":                nil,
			"memo":               nil,
			"blockTime":          1700000000 - i,
			"confirmationStatus": "finalized",
		})
	}
	return entries
}
