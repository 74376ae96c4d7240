// Package config loads the relayer's configuration from environment
// variables, following the validator's pkg/config.Load()/getEnv* pattern
// (no config-file parser is implemented; that's an explicit Non-goal).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the per-process configuration: global settings plus the
// table of per-chain configurations named in spec.md Section 6.
type Config struct {
	LogLevel    string
	RedisAddr   string
	RedisDB     int
	RedisPasswd string

	Chains []ChainConfig
}

// ChainConfig is one entry of the per-chain table in spec.md Section 6.
type ChainConfig struct {
	ChainID       string
	Name          string
	RPC           string
	StartingBlock uint64
	StoppingBlock uint64 // loaded but not read by any collector; scanning never stops at it
	BlockDelay    uint64
	MaxBlocks     uint64
	Interval      time.Duration
	Confirmations uint64

	PrivateKey        string
	IncentivesAddress string

	AMBProvider string

	Evaluator EvaluatorConfig
	Pricing   PricingConfig

	SubmitterConcurrency int
}

// EvaluatorConfig carries the gas/reward thresholds consumed by
// pkg/evaluator, named in spec.md Section 6.
type EvaluatorConfig struct {
	UnrewardedDeliveryGas   uint64
	VerificationDeliveryGas uint64
	UnrewardedAckGas        uint64
	VerificationAckGas      uint64

	MinDeliveryReward         float64
	RelativeMinDeliveryReward float64
	MinAckReward              float64
	RelativeMinAckReward      float64

	ProfitabilityFactor float64
}

// PricingConfig selects and parameterises a pkg/pricing provider.
type PricingConfig struct {
	Provider            string
	TokenID              string
	CoinDecimals        uint8
	PricingDenomination string
	CacheDuration       time.Duration
	RetryInterval       time.Duration
	MaxTries            int

	// FixedPrice is consumed only by the "fixed" provider.
	FixedPrice float64
	// CoinGeckoAPIURL is consumed only by the "coin-gecko" provider.
	CoinGeckoAPIURL string
}

const maxCacheDuration = time.Hour

// Load reads global configuration and the comma-separated list of chain
// ids in RELAYER_CHAINS, then loads one ChainConfig per id from
// CHAIN_<id>_* variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     getEnvInt("REDIS_DB", 0),
		RedisPasswd: getEnv("REDIS_PASSWORD", ""),
	}

	ids := splitNonEmpty(getEnv("RELAYER_CHAINS", ""))
	for _, id := range ids {
		chain, err := loadChain(id)
		if err != nil {
			return nil, fmt.Errorf("loading chain %s: %w", id, err)
		}
		cfg.Chains = append(cfg.Chains, chain)
	}

	return cfg, nil
}

func loadChain(id string) (ChainConfig, error) {
	prefix := "CHAIN_" + id + "_"

	cacheDuration := getEnvDuration(prefix+"PRICING_CACHE_DURATION", 5*time.Minute)
	if cacheDuration > maxCacheDuration {
		cacheDuration = maxCacheDuration
	}

	chain := ChainConfig{
		ChainID:       id,
		Name:          getEnv(prefix+"NAME", id),
		RPC:           getEnv(prefix+"RPC", ""),
		StartingBlock: getEnvUint64(prefix+"STARTING_BLOCK", 0),
		StoppingBlock: getEnvUint64(prefix+"STOPPING_BLOCK", 0),
		BlockDelay:    getEnvUint64(prefix+"BLOCK_DELAY", 1),
		MaxBlocks:     getEnvUint64(prefix+"MAX_BLOCKS", 1000),
		Interval:      getEnvDuration(prefix+"INTERVAL", 5*time.Second),
		Confirmations: getEnvUint64(prefix+"CONFIRMATIONS", 3),

		PrivateKey:        getEnv(prefix+"PRIVATE_KEY", ""),
		IncentivesAddress: getEnv(prefix+"INCENTIVES_ADDRESS", ""),

		AMBProvider: getEnv(prefix+"AMB_PROVIDER", "mock"),

		Evaluator: EvaluatorConfig{
			UnrewardedDeliveryGas:     getEnvUint64(prefix+"EVAL_UNREWARDED_DELIVERY_GAS", 0),
			VerificationDeliveryGas:   getEnvUint64(prefix+"EVAL_VERIFICATION_DELIVERY_GAS", 0),
			UnrewardedAckGas:          getEnvUint64(prefix+"EVAL_UNREWARDED_ACK_GAS", 0),
			VerificationAckGas:        getEnvUint64(prefix+"EVAL_VERIFICATION_ACK_GAS", 0),
			MinDeliveryReward:         getEnvFloat(prefix+"EVAL_MIN_DELIVERY_REWARD", 0),
			RelativeMinDeliveryReward: getEnvFloat(prefix+"EVAL_RELATIVE_MIN_DELIVERY_REWARD", 0),
			MinAckReward:              getEnvFloat(prefix+"EVAL_MIN_ACK_REWARD", 0),
			RelativeMinAckReward:      getEnvFloat(prefix+"EVAL_RELATIVE_MIN_ACK_REWARD", 0),
			ProfitabilityFactor:       getEnvFloat(prefix+"EVAL_PROFITABILITY_FACTOR", 1.0),
		},

		Pricing: PricingConfig{
			Provider:            getEnv(prefix+"PRICING_PROVIDER", "fixed"),
			TokenID:             getEnv(prefix+"PRICING_TOKEN_ID", "native"),
			CoinDecimals:        uint8(getEnvInt(prefix+"PRICING_COIN_DECIMALS", 18)),
			PricingDenomination: getEnv(prefix+"PRICING_DENOMINATION", "usd"),
			CacheDuration:       cacheDuration,
			RetryInterval:       getEnvDuration(prefix+"PRICING_RETRY_INTERVAL", 2*time.Second),
			MaxTries:            getEnvInt(prefix+"PRICING_MAX_TRIES", 3),
			FixedPrice:          getEnvFloat(prefix+"PRICING_FIXED_PRICE", 1.0),
			CoinGeckoAPIURL:     getEnv(prefix+"PRICING_COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		},

		SubmitterConcurrency: getEnvInt(prefix+"SUBMITTER_CONCURRENCY", 1),
	}

	return chain, nil
}

// Validate checks that every configured chain carries the minimum
// required fields to dial and sign, mirroring the validator's
// Config.Validate() "fail fast, no weak defaults" posture.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("config: RELAYER_CHAINS is empty, no chains configured")
	}

	var errs []string
	for _, chain := range c.Chains {
		if chain.RPC == "" {
			errs = append(errs, fmt.Sprintf("chain %s: RPC is required", chain.ChainID))
		}
		if chain.PrivateKey == "" {
			errs = append(errs, fmt.Sprintf("chain %s: PRIVATE_KEY is required", chain.ChainID))
		}
		if chain.IncentivesAddress == "" {
			errs = append(errs, fmt.Sprintf("chain %s: INCENTIVES_ADDRESS is required", chain.ChainID))
		}
		if chain.MaxBlocks == 0 {
			errs = append(errs, fmt.Sprintf("chain %s: MAX_BLOCKS must be positive", chain.ChainID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitNonEmpty(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
