package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
name: trading-core-test
host: 127.0.0.1
port: 8000
log_level: DEBUG
storage:
  db_type: sqlite
  db_path: ":memory:"
stream:
  endpoint: sim://local
  symbols: [AAPL]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	conf, err := NewConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "trading-core-test", conf.Name)
	assert.Equal(t, 2.0, conf.Stream.BackoffMultiplier)
	assert.Equal(t, 300, conf.Stream.SessionTTLSec)
	assert.Equal(t, 60, conf.Stream.RenewMarginSec)
	assert.Equal(t, 24, conf.Execution.ResultTTLHours)
	assert.Equal(t, "margin", conf.Compliance.AccountType)
	assert.Equal(t, 5, conf.Compliance.WindowDays)
	assert.Equal(t, 4, conf.Compliance.FlagThreshold)
	assert.Equal(t, 4096, conf.FanOut.ReplayBufferSize)
	assert.Equal(t, 15, conf.FanOut.HeartbeatIntervalSec)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadPort(t *testing.T) {
	bad := `
name: x
host: 127.0.0.1
port: 80
storage:
  db_type: sqlite
  db_path: ":memory:"
stream:
  endpoint: sim://local
`
	_, err := NewConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}

func TestValidateRejectsRenewMarginAboveTTL(t *testing.T) {
	bad := minimalYAML + `
  session_ttl_seconds: 60
  renew_margin_seconds: 60
`
	_, err := NewConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renew margin")
}

func TestValidateRejectsUnknownAccountType(t *testing.T) {
	bad := minimalYAML + `
compliance:
  account_type: hedge-fund
`
	_, err := NewConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account type")
}

func TestValidateRequiresPostgresConnectionString(t *testing.T) {
	bad := `
name: x
host: 127.0.0.1
port: 8000
storage:
  db_type: postgres
stream:
  endpoint: sim://local
`
	_, err := NewConfig(writeConfig(t, bad))
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	conf, err := NewConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, conf.Save(out))

	reloaded, err := NewConfig(out)
	require.NoError(t, err)
	assert.Equal(t, conf.MConfig, reloaded.MConfig)
}
