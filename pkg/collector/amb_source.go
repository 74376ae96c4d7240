package collector

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xrelay/relayer/pkg/collector/amb"
	"github.com/xrelay/relayer/pkg/store"
)

// AMBSource adapts an amb.Provider into a collector Source: it decodes
// matched logs into AMBMessage records, attempts to build the matching
// proof immediately, and writes both to the Store (spec.md Section 4.3 —
// "AMB collectors only write AMBMessage/AMBProof").
type AMBSource struct {
	address  common.Address
	provider amb.Provider
	store    *store.Store
}

// NewAMBSource builds a Source over provider, scanning address.
func NewAMBSource(address common.Address, provider amb.Provider, st *store.Store) *AMBSource {
	return &AMBSource{address: address, provider: provider, store: st}
}

func (s *AMBSource) Address() common.Address {
	return s.address
}

func (s *AMBSource) Topics() []common.Hash {
	return s.provider.Topics()
}

func (s *AMBSource) Handle(ctx context.Context, lg types.Log) error {
	msg, err := s.provider.Decode(lg)
	if err != nil {
		return fmt.Errorf("decoding amb message: %w", err)
	}

	if err := s.store.SetAMBMessage(ctx, msg); err != nil {
		return fmt.Errorf("storing amb message: %w", err)
	}

	proof, ok, err := s.provider.BuildProof(ctx, msg)
	if err != nil {
		return fmt.Errorf("building amb proof: %w", err)
	}
	if !ok {
		return nil
	}

	if err := s.store.SetAMBProof(ctx, proof); err != nil {
		return fmt.Errorf("storing amb proof: %w", err)
	}
	return nil
}
