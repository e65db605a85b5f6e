package config

import (
	"fmt"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config is the daemon's environment-driven configuration. Listener
// address and database path stay on flags; credentials and backend
// wiring come from the environment so they stay out of process lists.
type Config struct {
	// CashuMintURL points the Cashu backend at a specific mint. The
	// backend itself is always present.
	CashuMintURL string `env:"CASHU_MINT_URL"`

	// NWCConnectionURI enables the NWC backend when set.
	NWCConnectionURI string `env:"NWC_CONNECTION_URI"`

	// BreezAPIKey enables the Breez backend when set.
	BreezAPIKey string `env:"BREEZ_API_KEY"`

	// PreferredWallet pins a backend id, or "auto".
	PreferredWallet string `env:"PREFERRED_WALLET" envDefault:"auto"`

	// MockBalanceSats seeds the mock backends in dev mode.
	MockBalanceSats int64 `env:"MOCK_BALANCE_SATS" envDefault:"100000"`
}

// Load reads an optional .env file and parses the environment. A
// missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
