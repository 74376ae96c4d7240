// Package amb defines the pluggable AMB provider interface named by
// spec.md Section 4.3 and a compile-time registry selecting among them,
// grounded on the validator's ChainPlatform/strategy registry
// (pkg/chain/strategy/interface.go) generalised from "chain platform" to
// "AMB provider". Providers are resolved by configuration string at
// startup, never loaded dynamically (spec.md Section 9).
package amb

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/xrelay/relayer/pkg/relay"
)

// Config is the provider-specific configuration block named
// amb.<name>.{...} in spec.md Section 6.
type Config struct {
	Name   string
	Params map[string]string
}

// Provider decodes raw on-chain logs into AMBMessage records and,
// optionally, builds the AMBProof that authorises delivery or ack.
type Provider interface {
	// Name is the provider's registry key.
	Name() string

	// Topics are the log topics (event signatures) this provider scans
	// for; a collector built over this provider filters on them.
	Topics() []common.Hash

	// Decode turns a matched log into an AMBMessage.
	Decode(log types.Log) (relay.AMBMessage, error)

	// BuildProof attempts to construct the proof for msg. ok is false
	// when the proof is not yet available (e.g. awaiting an off-chain
	// signing round) rather than an error.
	BuildProof(ctx context.Context, msg relay.AMBMessage) (proof relay.AMBProof, ok bool, err error)
}

// Factory constructs a Provider from its configuration block.
type Factory func(cfg Config) (Provider, error)

var factories = make(map[string]Factory)

// Register adds a provider factory to the registry. Called from
// package-level init() functions, never at runtime after startup.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Resolve builds the provider named by cfg.Name.
func Resolve(cfg Config) (Provider, error) {
	factory, ok := factories[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("amb: unknown provider %q", cfg.Name)
	}
	return factory(cfg)
}
