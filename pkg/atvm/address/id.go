package address

import (
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address identifies an AT (or any payee it pays to) by a 32-byte account
// identifier, the same width as the host chain's public keys: a fixed-size
// byte array with base58 String() (the host chain's native text encoding)
// and a Hex() escape hatch for logs/debugging.
type Address [32]byte

// ZeroAddress is the all-zero address, standing in for "no creator"/"no
// payee" in tests and default-constructed machines.
var ZeroAddress Address

// AddressFromBytes builds an Address from a 32-byte slice.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 32 {
		return Address{}, fmt.Errorf("address: want 32 bytes, got %d", len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// AddressFromBase58 decodes a base58 string into an Address.
func AddressFromBase58(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("address: invalid base58: %w", err)
	}
	return AddressFromBytes(b)
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// String returns the base58 representation, the host chain's native text
// encoding for account identifiers.
func (a Address) String() string { return base58.Encode(a[:]) }

// Hex returns the hex representation, used in logs and RPC error messages
// where base58's variable width is inconvenient to eyeball.
func (a Address) Hex() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }
