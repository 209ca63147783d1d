package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pushrelay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "sandbox", cfg.Gateway.Environment)
	assert.Equal(t, 10*time.Second, cfg.Gateway.DialTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Feedback.Interval)
	assert.True(t, cfg.Feedback.Enabled)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)

	gw, fb, err := cfg.Gateway.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, "gateway.sandbox.push.apple.com:2195", gw)
	assert.Equal(t, "feedback.sandbox.push.apple.com:2196", fb)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
gateway:
  environment: production
  gateway_addr: 127.0.0.1:12195
feedback:
  interval: 30s
tls:
  cert_file: /tmp/cert.pem
  key_file: /tmp/key.pem
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Feedback.Interval)
	assert.Equal(t, "/tmp/cert.pem", cfg.TLS.CertFile)
	assert.Equal(t, "debug", cfg.Logging.Level)

	gw, fb, err := cfg.Gateway.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:12195", gw)
	assert.Equal(t, "feedback.push.apple.com:2196", fb)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PUSHRELAY_FEEDBACK_INTERVAL", "1m")
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.Feedback.Interval)
}

func TestValidate(t *testing.T) {
	_, err := Load(writeConfig(t, "gateway:\n  environment: staging\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "feedback:\n  interval: 0s\n"))
	assert.Error(t, err)

	cfg, err := Load(writeConfig(t, `
gateway:
  environment: local
  gateway_addr: 127.0.0.1:1
  feedback_addr: 127.0.0.1:2
`))
	require.NoError(t, err)
	gw, fb, err := cfg.Gateway.Endpoints()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", gw)
	assert.Equal(t, "127.0.0.1:2", fb)
}
