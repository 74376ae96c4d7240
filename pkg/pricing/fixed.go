package pricing

import (
	"context"
	"fmt"
)

func init() {
	Register("fixed", newFixedProvider)
}

// fixedProvider returns a constant price regardless of tokenID, for
// local development and tests where no live price feed is available.
type fixedProvider struct {
	price float64
}

func newFixedProvider(cfg Config) (Provider, error) {
	if cfg.FixedPrice <= 0 {
		return nil, fmt.Errorf("pricing/fixed: FixedPrice must be positive, got %v", cfg.FixedPrice)
	}
	return &fixedProvider{price: cfg.FixedPrice}, nil
}

func (p *fixedProvider) Name() string { return "fixed" }

func (p *fixedProvider) QueryPrice(_ context.Context, _ string) (float64, error) {
	return p.price, nil
}
