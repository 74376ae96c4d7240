package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

func init() {
	Register("coin-gecko", newCoinGeckoProvider)
}

const coinGeckoTimeout = 10 * time.Second

// coinGeckoProvider queries the public CoinGecko "simple price" endpoint.
// Grounded on the validator's use of a bounded-timeout http.Client for
// outbound calls to services it does not control (pkg/p2p HTTP peer
// transport): a provider that cannot answer within coinGeckoTimeout is
// treated as failed, not hung.
type coinGeckoProvider struct {
	apiURL       string
	denomination string
	client       *http.Client
}

func newCoinGeckoProvider(cfg Config) (Provider, error) {
	if cfg.CoinGeckoAPIURL == "" {
		return nil, fmt.Errorf("pricing/coin-gecko: CoinGeckoAPIURL is required")
	}
	denomination := cfg.PricingDenomination
	if denomination == "" {
		denomination = "usd"
	}
	return &coinGeckoProvider{
		apiURL:       cfg.CoinGeckoAPIURL,
		denomination: denomination,
		client:       &http.Client{Timeout: coinGeckoTimeout},
	}, nil
}

func (p *coinGeckoProvider) Name() string { return "coin-gecko" }

type coinGeckoSimplePriceResponse map[string]map[string]float64

func (p *coinGeckoProvider) QueryPrice(ctx context.Context, tokenID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		p.apiURL, url.QueryEscape(tokenID), url.QueryEscape(p.denomination))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("pricing/coin-gecko: building request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pricing/coin-gecko: querying %s: %w", tokenID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricing/coin-gecko: unexpected status %d for %s", resp.StatusCode, tokenID)
	}

	var body coinGeckoSimplePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("pricing/coin-gecko: decoding response: %w", err)
	}

	byDenomination, ok := body[tokenID]
	if !ok {
		return 0, fmt.Errorf("pricing/coin-gecko: no price entry for token %q", tokenID)
	}
	price, ok := byDenomination[p.denomination]
	if !ok {
		return 0, fmt.Errorf("pricing/coin-gecko: no %q price for token %q", p.denomination, tokenID)
	}
	return price, nil
}
