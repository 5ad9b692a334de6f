// Package config loads the operator's static configuration from a TOML
// file, with environment variables overriding individual fields for
// deployment-time secrets (the signing key, RPC URL) that shouldn't
// live in a checked-in file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Service describes one blueprint service this operator serves jobs
// for.
type Service struct {
	ServiceID       uint64 `toml:"service_id"`
	StartBlock      uint64 `toml:"start_block"`
	PollIntervalSec int    `toml:"poll_interval_seconds"`
}

// TokenEntry configures one accepted (network, label, address) triple
// for the x402 gateway's price tags.
type TokenEntry struct {
	Network string `toml:"network"`
	Label   string `toml:"label"`
	Address string `toml:"address"`
}

// JobPolicy is the per-(service_id, job_index) x402 invocation policy:
// whether the job accepts paid HTTP invocation, how a request proves
// its caller, the job's price, and, for RestrictedPaid jobs, which
// on-chain contract the caller-permission check is made against.
type JobPolicy struct {
	ServiceID      uint64 `toml:"service_id"`
	JobIndex       uint8  `toml:"job_index"`
	PriceWei       string `toml:"price_wei"`
	InvocationMode string `toml:"invocation_mode"` // "disabled" | "public_paid" | "restricted_paid"
	AuthMode       string `toml:"auth_mode"`        // "payment_only" | "payer_is_caller" | "delegated_caller_signature"
	TangleRPCURL   string `toml:"tangle_rpc_url"`
	TangleContract string `toml:"tangle_contract"`
}

// Config is the operator's full static configuration.
type Config struct {
	RPCURL        string       `toml:"rpc_url"`
	ChainAddresses struct {
		Router                 string `toml:"router"`
		MultiAssetDelegation   string `toml:"multi_asset_delegation"`
		OperatorStatusRegistry string `toml:"operator_status_registry"`
	} `toml:"chain_addresses"`
	SigningKeyHex string `toml:"signing_key_hex"`

	Services []Service `toml:"services"`

	Gateway struct {
		ListenAddr            string       `toml:"listen_addr"`
		PayToAddr             string       `toml:"pay_to_addr"`
		QuoteTTLSec           int          `toml:"quote_ttl_seconds"`
		Tokens                []TokenEntry `toml:"tokens"`
		DefaultInvocationMode string       `toml:"default_invocation_mode"` // applied when no [[job_policies]] entry matches
		JobPolicies           []JobPolicy  `toml:"job_policies"`
	} `toml:"gateway"`

	CheckpointDir string `toml:"checkpoint_dir"`

	Log struct {
		Level      string `toml:"level"`
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
}

// QuoteTTL returns the configured quote lifetime, defaulting to 60s.
func (c Config) QuoteTTL() time.Duration {
	if c.Gateway.QuoteTTLSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Gateway.QuoteTTLSec) * time.Second
}

// Load reads and parses a TOML config file at path, then applies
// environment variable overrides for secrets.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment-time secrets override file-based
// config without being written to disk: AVS_RPC_URL and
// AVS_SIGNING_KEY_HEX take precedence over their TOML counterparts.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AVS_RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("AVS_SIGNING_KEY_HEX"); v != "" {
		cfg.SigningKeyHex = v
	}
}

func validate(cfg Config) error {
	if cfg.RPCURL == "" {
		return fmt.Errorf("config: rpc_url is required")
	}
	if cfg.ChainAddresses.Router == "" {
		return fmt.Errorf("config: chain_addresses.router is required")
	}
	if len(cfg.Services) == 0 {
		return fmt.Errorf("config: at least one [[services]] entry is required")
	}
	return nil
}
