package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const contract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8545", cfg.Ledger.RPCURL)
	assert.Equal(t, uint64(2_000_000), cfg.Ledger.GasLimit)
	assert.Equal(t, "50000000000", cfg.Ledger.GasPriceWei().String())
	assert.Equal(t, "https://gateway.pinata.cloud/ipfs/", cfg.ContentStore.GatewayURL)
	assert.Equal(t, "log", cfg.Notifications.Channel)
	assert.Empty(t, cfg.Ledger.CustodialKeys)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LEDGER_CONFIRM_TIMEOUT", "45s")
	t.Setenv("GAS_PRICE", "7")
	t.Setenv("LEDGER_CUSTODIAL_KEYS", "0xAbC0000000000000000000000000000000000001=0xdead, 0x00000000000000000000000000000000000000b2=beef")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Ledger.ConfirmTimeout)
	assert.Equal(t, "7000000000", cfg.Ledger.GasPriceWei().String())
	assert.Equal(t, map[string]string{
		"0xabc0000000000000000000000000000000000001": "dead",
		"0x00000000000000000000000000000000000000b2": "beef",
	}, cfg.Ledger.CustodialKeys)
}

func TestFromEnv_ReportsMalformedValues(t *testing.T) {
	t.Setenv("LEDGER_CONFIRM_TIMEOUT", "soon")
	t.Setenv("JOB_WORKERS", "many")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_CONFIRM_TIMEOUT")
	assert.Contains(t, err.Error(), "JOB_WORKERS")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := FromEnv()
		require.NoError(t, err)
		cfg.ContentStore.Backend = "memory"
		cfg.Ledger.Backend = "memory"
		return cfg
	}

	t.Run("memory backends need nothing else", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("ethereum needs a contract address", func(t *testing.T) {
		cfg := base()
		cfg.Ledger.Backend = "ethereum"
		assert.ErrorContains(t, cfg.Validate(), "CONTRACT_ADDRESS")

		cfg.Ledger.ContractAddress = contract
		assert.NoError(t, cfg.Validate())
	})

	t.Run("pinata needs credentials", func(t *testing.T) {
		cfg := base()
		cfg.ContentStore.Backend = "pinata"
		assert.Error(t, cfg.Validate())

		cfg.ContentStore.JWT = "token"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("kafka channel needs brokers", func(t *testing.T) {
		cfg := base()
		cfg.Notifications.Channel = "kafka"
		assert.ErrorContains(t, cfg.Validate(), "KAFKA_BROKERS")
	})
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CONTENT_STORE=memory\nLEDGER=memory\nEKYC_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("CONTENT_STORE")
		os.Unsetenv("LEDGER")
		os.Unsetenv("EKYC_ADDR")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Load(filepath.Join(dir, "missing.env"))
	assert.NoError(t, err, "missing dotenv file is ignored")
}
