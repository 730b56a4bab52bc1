package solana

import (
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-whale-tracker/internal/domain"
)

// PublicKeyLength is the size of a decoded Solana public key.
const PublicKeyLength = 32

// ValidateAddress checks that s is a base58-encoded 32-byte public key.
// Failures wrap domain.ErrInvalidAddress.
func ValidateAddress(s string) error {
	if s == "" || strings.TrimSpace(s) != s {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, s)
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", domain.ErrInvalidAddress, s, err)
	}
	if len(raw) != PublicKeyLength {
		return fmt.Errorf("%w: %q decodes to %d bytes", domain.ErrInvalidAddress, s, len(raw))
	}
	return nil
}

// IsOnCurve reports whether a valid address is a point on the ed25519 curve.
// Program-derived addresses are off-curve and cannot sign, so they never send on their own.
func IsOnCurve(s string) (bool, error) {
	if err := ValidateAddress(s); err != nil {
		return false, err
	}
	raw, _ := base58.Decode(s)

	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return false, nil
	}
	return true, nil
}
