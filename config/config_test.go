package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
rpc_url = "https://rpc.example.com"

[chain_addresses]
router = "0x0000000000000000000000000000000000000001"

[[services]]
service_id = 1
`

func TestLoadMinimalConfig(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://rpc.example.com", cfg.RPCURL)
	require.Len(t, cfg.Services, 1)
	require.Equal(t, uint64(1), cfg.Services[0].ServiceID)
}

func TestLoadMissingRequiredField(t *testing.T) {
	path := writeTempConfig(t, `rpc_url = "https://rpc.example.com"`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverridesSigningKey(t *testing.T) {
	path := writeTempConfig(t, minimalConfig)
	t.Setenv("AVS_SIGNING_KEY_HEX", "deadbeef")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", cfg.SigningKeyHex)
}

func TestQuoteTTLDefault(t *testing.T) {
	var cfg Config
	require.Equal(t, 60.0, cfg.QuoteTTL().Seconds())
}
