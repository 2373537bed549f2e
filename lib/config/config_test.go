package config

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "connect.yaml")
	require.Nil(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
device:
  probe_timeout: 300ms
scan:
  workers: 16
relay:
  origin_domain: relay.example.com
router:
  force_relay: true
store:
  driver: redis
  redis_addr: redis:6379
`)
	cfg, err := Load(path)
	require.Nil(t, err)
	assert.Equal(t, 300*time.Millisecond, cfg.Device.ProbeTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.Device.PreflightTimeout.Duration)
	assert.Equal(t, 8080, cfg.Device.Port)
	assert.Equal(t, 16, cfg.Scan.Workers)
	assert.Equal(t, "relay.example.com", cfg.Relay.OriginDomain)
	assert.Equal(t, "proxy-cpt.cyclopcam.org", cfg.Relay.ProxyHost)
	assert.True(t, cfg.Router.ForceRelay)
	assert.Equal(t, StoreRedis, cfg.Store.Driver)
	assert.Equal(t, "redis:6379", cfg.Store.RedisAddr)

	assert.Equal(t, 300*time.Millisecond, cfg.Probe().ProbeTimeout)
	assert.Equal(t, "relay.example.com", cfg.RelayConfig().OriginDomain)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeConfig(t, "device:\n  probe_timeout: soon\n"))
	assert.NotNil(t, err)
	_, err = Load(writeConfig(t, "store:\n  driver: mongo\n"))
	assert.NotNil(t, err)
	_, err = Load(writeConfig(t, "scan:\n  workers: 0\n"))
	assert.NotNil(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NotNil(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	cfg := Default()
	data, err := cfg.Marshal()
	require.Nil(t, err)
	assert.Contains(t, string(data), "probe_timeout: 200ms")

	loaded, err := Load(writeConfig(t, string(data)))
	require.Nil(t, err)
	assert.Equal(t, cfg, *loaded)
}
