// Package pricing implements the fiat price lookup service named by
// spec.md Section 4.4: per-chain, cached, retrying, served over a typed
// request/response channel. Grounded on the validator's CostTracker
// (pkg/batch/cost_tracker.go) — a cached {price, timestamp} pair behind a
// pluggable priceFetcher func — generalised from one hardcoded ETH/USD
// value to a per-(chain, tokenId) cache with a registry of provider
// kinds (spec.md Section 9: providers are chosen by configuration
// string, resolved at startup).
package pricing

import (
	"context"
	"fmt"
)

// Provider queries the current fiat price of one unit of a token.
type Provider interface {
	Name() string
	QueryPrice(ctx context.Context, tokenID string) (float64, error)
}

// Config parameterises a Provider. Its fields are a subset of
// internal/config.PricingConfig; cmd/relayer copies them across from a
// chain's Pricing block when calling Resolve.
type Config struct {
	Provider            string
	PricingDenomination string
	FixedPrice          float64
	CoinGeckoAPIURL     string
}

// Factory constructs a Provider from Config.
type Factory func(cfg Config) (Provider, error)

var factories = make(map[string]Factory)

// Register adds a provider factory to the registry, called from
// package-level init() functions only.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Resolve builds the provider named by cfg.Provider.
func Resolve(cfg Config) (Provider, error) {
	factory, ok := factories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("pricing: unknown provider %q", cfg.Provider)
	}
	return factory(cfg)
}
