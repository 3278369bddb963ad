package waveledger

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the size in bytes of an account address.
const AddressLength = 20

// Address identifies the account that submitted a wave or owns the ledger.
type Address [AddressLength]byte

// ZeroAddress is the unset address. It is never a valid owner.
var ZeroAddress Address

// ParseAddress decodes a hex address with or without the 0x prefix.
// Letter case is ignored.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != AddressLength*2 {
		return a, fmt.Errorf("address %q: want %d hex characters, got %d", s, AddressLength*2, len(raw))
	}
	if _, err := hex.Decode(a[:], []byte(raw)); err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}
	return a, nil
}

// MustParseAddress is ParseAddress for constants and tests. It panics on error.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the lower-case 0x-prefixed hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
