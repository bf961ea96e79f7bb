package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
markets:
  - market_id: btc-above-101500-aug26
    yes_token_id: "123"
    no_token_id: "456"
    instrument: BTC
    k1: 100000
    k2: 104000
    k_poly: 101500
    expiry: 29AUG25
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Engine.RiskFreeRate)
	assert.Equal(t, 100.0, cfg.Engine.StakeUSD)
	assert.Equal(t, 0.0003, cfg.Fees.FeeCapRate)
	assert.NotEmpty(t, cfg.Margin.PriceShocks, "shock grid must never end up empty")
	assert.Equal(t, time.Minute, cfg.Interval.Std())
	assert.Equal(t, "https://www.deribit.com", cfg.Deribit.BaseURL)
	assert.Equal(t, 200.0, cfg.Trade.MaxStakeUSD)
	assert.Equal(t, 8, cfg.EarlyExit.WindowStartUTC)
}

func TestLoadOverrides(t *testing.T) {
	yaml := minimalYAML + `
engine:
  risk_free_rate: 0.03
  stake_usd: 440
interval: 2m
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, 0.03, cfg.Engine.RiskFreeRate)
	assert.Equal(t, 440.0, cfg.Engine.StakeUSD)
	assert.Equal(t, 2*time.Minute, cfg.Interval.Std())
}

func TestLoadEnvOverridesToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	yaml := minimalYAML + `
telegram:
  token: file-token
  chat_id: 42
`
	cfg, err := Load(writeConfig(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
}

func TestValidateRejectsBadMarkets(t *testing.T) {
	_, err := Load(writeConfig(t, "log_level: info\n"))
	require.Error(t, err, "empty market list must fail")

	bad := `
markets:
  - market_id: broken
    k1: 104000
    k2: 100000
    k_poly: 101500
`
	_, err = Load(writeConfig(t, bad))
	require.Error(t, err, "inverted strikes must fail")
}

func TestValidateTelegramPair(t *testing.T) {
	yaml := minimalYAML + `
telegram:
  token: some-token
`
	_, err := Load(writeConfig(t, yaml))
	require.Error(t, err, "token without chat_id must fail")
}
