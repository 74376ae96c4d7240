// Package relay holds the wire data model shared by every worker: the
// AMBMessage/AMBProof/RelayState records that flow through the Store.
package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// BigInt marshals as a base-10 decimal string instead of a JSON number, so
// values larger than 2^53 survive a round trip through any JSON consumer.
type BigInt struct {
	big.Int
}

// NewBigInt wraps an int64 as a BigInt.
func NewBigInt(v int64) *BigInt {
	return &BigInt{Int: *big.NewInt(v)}
}

// BigIntFromBig wraps an existing *big.Int.
func BigIntFromBig(v *big.Int) *BigInt {
	if v == nil {
		return nil
	}
	return &BigInt{Int: *v}
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Int.String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decimal-string bigint: %w", err)
	}
	if s == "" {
		b.Int = big.Int{}
		return nil
	}
	if _, ok := b.Int.SetString(s, 10); !ok {
		return fmt.Errorf("decimal-string bigint: invalid value %q", s)
	}
	return nil
}

// HexBytes marshals as a 0x-prefixed hex string, matching the Store's
// "bytes -> 0x-hex" convention (spec.md Section 4.1).
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("0x-hex bytes: %w", err)
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		*h = nil
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("0x-hex bytes: %w", err)
	}
	*h = decoded
	return nil
}

func (h HexBytes) String() string {
	return "0x" + hex.EncodeToString(h)
}
