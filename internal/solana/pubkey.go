package solana

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the byte length of an ed25519 public key.
const PublicKeyLength = 32

// ErrInvalidPubkey is returned for strings that do not decode to a 32-byte key.
var ErrInvalidPubkey = errors.New("invalid public key")

// PublicKey is a decoded Solana account address.
type PublicKey [PublicKeyLength]byte

// ParsePubkey decodes a base58 account address.
func ParsePubkey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	if len(raw) != PublicKeyLength {
		return pk, fmt.Errorf("%w: got %d bytes", ErrInvalidPubkey, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point.
// Wallet addresses are on the curve; program-derived addresses are not.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// ValidateWalletAddress checks that s is a base58 key that can sign transactions.
func ValidateWalletAddress(s string) error {
	pk, err := ParsePubkey(s)
	if err != nil {
		return err
	}
	if !pk.IsOnCurve() {
		return fmt.Errorf("%w: %s is off curve and cannot sign", ErrInvalidPubkey, s)
	}
	return nil
}
