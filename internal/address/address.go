package address

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidAddress is returned for any input that is not a base58 encoded 32 byte public key.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a validated account address. Raw is the caller's input, kept verbatim for echoing back.
type Address struct {
	Raw string
	Key solana.PublicKey
}

// Parse decodes raw into a public key. The input is not trimmed or normalized.
func Parse(raw string) (Address, error) {
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	return Address{Raw: raw, Key: key}, nil
}

func (a Address) String() string {
	return a.Raw
}
