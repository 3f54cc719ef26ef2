package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")
	t.Setenv(databaseDSNEnv, "")

	cfg := Load()
	require.Equal(t, "bolt", cfg.Storage.Driver)
	require.Equal(t, "0.08", cfg.Payout.WeeklyAmount)
	require.Equal(t, "0 9 * * 1", cfg.Scheduler.CronExpression)
	require.Equal(t, 1, cfg.Attestation.Retry.MaxRetries)
	require.Equal(t, time.UTC.String(), cfg.Scheduler.Location().String())
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	raw := `
storage:
  driver: sqlite
  dsn: file.sqlite
attestation:
  mode: eas
  relayerUrl: https://relayer.example.org
  retry:
    maxRetries: 3
    initialDelay: 250ms
payout:
  defaultChain: celo
scheduler:
  timezone: Europe/Berlin
roster:
  - id: 7
    address: "0x1111111111111111111111111111111111111111"
    handle: dana
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://override")
	t.Setenv(telegramChatIDEnv, "99")

	cfg := Load()
	require.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Equal(t, "postgres://override", cfg.Storage.DSN)
	require.Equal(t, "collective-ledger.db", cfg.Storage.Path)
	require.Equal(t, "eas", cfg.Attestation.Mode)
	require.Equal(t, 3, cfg.Attestation.Retry.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.Attestation.Retry.InitialDelay)
	require.Equal(t, "celo", cfg.Payout.DefaultChain)
	require.Equal(t, "0.08", cfg.Payout.WeeklyAmount)
	require.Equal(t, "99", cfg.Notifications.Telegram.ChatID)
	require.Len(t, cfg.Roster, 1)
	require.Equal(t, "dana", cfg.Roster[0].Handle)
	require.NoError(t, cfg.Validate())
}

func TestLoadFallsBackOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: ["), 0o600))
	t.Setenv(configPathEnv, path)

	cfg := Load()
	require.Equal(t, "bolt", cfg.Storage.Driver)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := defaultConfig()
	cfg.Payout.DefaultChain = "solana"
	cfg.Payout.WeeklyAmount = "lots"
	cfg.Attestation.Mode = "carrier-pigeon"

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorContains(t, err, "payout.defaultChain")
	require.ErrorContains(t, err, "payout.weeklyAmount")
	require.ErrorContains(t, err, "attestation.mode")
}

func TestValidateRejectsNonPositiveAmounts(t *testing.T) {
	for _, amount := range []string{"0", "-0.08", "0.0000"} {
		cfg := defaultConfig()
		cfg.Payout.WeeklyAmount = amount
		require.ErrorContains(t, cfg.Validate(), "payout.weeklyAmount", amount)
	}

	cfg := defaultConfig()
	cfg.Metrics.USDRate = "0"
	cfg.Metrics.WeeklyTargetUSD = "-150"
	err := cfg.Validate()
	require.ErrorContains(t, err, "metrics.usdRate")
	require.ErrorContains(t, err, "metrics.weeklyTargetUsd")

	cfg = defaultConfig()
	cfg.Payout.WeeklyAmount = "0.05"
	require.NoError(t, cfg.Validate())
}
