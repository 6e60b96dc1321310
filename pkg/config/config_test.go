package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader map[string][]byte

func (f fakeReader) ReadFile(path string) ([]byte, error) {
	data, ok := f[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func TestLoadWith(t *testing.T) {
	fr := fakeReader{"app.yaml": []byte(`
openai_key: sk-test
default_model: gpt-4o
retry:
  enabled: true
  max_retries: 4
  initial_delay_ms: 250
redis:
  enabled: true
  addr: localhost:6379
  ttl_hours: 12
server:
  port: 9000
  heartbeat_interval_ms: 2000
agents:
  svggen:
    model: gpt-4o
    prompt: "draw boldly"
`)}

	cfg, err := LoadWith(fr, "app.yaml")
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.OpenAIKey)
	assert.Equal(t, 4, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay())
	assert.Equal(t, 12*time.Hour, cfg.Redis.TTL())
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.HeartbeatInterval())
	assert.Equal(t, "draw boldly", cfg.Agents["svggen"].Prompt)

	// Unset fields got defaults.
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	require.NoError(t, cfg.Validate())
}

func TestLoadWithMissingFile(t *testing.T) {
	_, err := LoadWith(fakeReader{}, "ghost.yaml")
	assert.Error(t, err)
}

func TestLoadWithBadYAML(t *testing.T) {
	_, err := LoadWith(fakeReader{"x": []byte(":\n\t- broken")}, "x")
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay())
}

func TestValidateRejections(t *testing.T) {
	cfg := Default()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.MetricsPort = cfg.Server.Port
	assert.Error(t, cfg.Validate())
}
