package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "LEDGER_API_URL", "")
	setEnv(t, "CHAIN_ID", "")
	setEnv(t, "SIGNING_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLedgerAPIURL, cfg.LedgerAPIURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultOnrampBaseURL, cfg.OnrampBaseURL)
	assert.Equal(t, DefaultOnrampCurrency, cfg.OnrampCurrency)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "LEDGER_API_URL", "http://localhost:3000")
	setEnv(t, "CHAIN_ID", "1")
	setEnv(t, "SIGNING_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.LedgerAPIURL)
	assert.Equal(t, int64(1), cfg.ChainID)
}

func TestLoad_InvalidSigningKey(t *testing.T) {
	setEnv(t, "SIGNING_KEY", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "valid minimal",
			config: Config{LedgerAPIURL: "http://localhost:3000", ChainID: 1},
		},
		{
			name:   "valid with prefixed key",
			config: Config{LedgerAPIURL: "http://localhost:3000", ChainID: 1, SigningKey: "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"},
		},
		{
			name:    "missing ledger url",
			config:  Config{ChainID: 1},
			wantErr: "LEDGER_API_URL",
		},
		{
			name:    "missing chain id",
			config:  Config{LedgerAPIURL: "http://localhost:3000"},
			wantErr: "CHAIN_ID",
		},
		{
			name:    "bad signing key",
			config:  Config{LedgerAPIURL: "http://localhost:3000", ChainID: 1, SigningKey: "abc"},
			wantErr: "64 hex characters",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	cfg := Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.True(t, cfg.IsProduction())
}
