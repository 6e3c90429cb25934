package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `http:
  addr: ":9000"
upstream:
  transport: mqtt
  mqtt:
    broker: "tcp://localhost:1883"
    topic_prefix: "fleet"
    qos: 1
dashboard:
  success_display_ms: 1500
  dispatch_rate_per_sec: 0.5
  dispatch_burst: 2
redis:
  url: "redis://localhost:6379/0"
webhooks:
  targets:
    - url: "http://hooks.local/baecha"
      secret: "s3cret"
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, TransportMQTT, cfg.Upstream.Transport)
	assert.Equal(t, "tcp://localhost:1883", cfg.Upstream.MQTT.Broker)
	assert.Equal(t, "fleet", cfg.Upstream.MQTT.TopicPrefix)
	assert.Equal(t, 1, cfg.Upstream.MQTT.QoS)
	assert.Equal(t, "baechamap", cfg.Upstream.MQTT.ClientID)
	assert.Equal(t, 1500*time.Millisecond, cfg.Dashboard.SuccessDisplay())
	assert.Equal(t, 0.5, cfg.Dashboard.DispatchRatePerSec)
	assert.Equal(t, 2, cfg.Dashboard.DispatchBurst)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	require.Len(t, cfg.Webhooks.Targets, 1)
	assert.Equal(t, "s3cret", cfg.Webhooks.Targets[0].Secret)
	assert.Equal(t, 10, cfg.Webhooks.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	t.Setenv("BAECHA_UPSTREAM__URL", "ws://localhost:5000/events")
	t.Setenv("BAECHA_UPSTREAM__BACKOFF_MAX_MS", "4000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, TransportWebsocket, cfg.Upstream.Transport)
	assert.Equal(t, "ws://localhost:5000/events", cfg.Upstream.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Upstream.BackoffMin())
	assert.Equal(t, 4*time.Second, cfg.Upstream.BackoffMax())
	assert.Equal(t, 36.33135064483598, cfg.Map.CenterLat)
	assert.Equal(t, 127.43289957845893, cfg.Map.CenterLng)
	assert.Equal(t, 17, cfg.Map.Zoom)
	assert.Equal(t, 3*time.Second, cfg.Dashboard.SuccessDisplay())
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "config.json", `{"upstream":{"url":"ws://file/events"},"map":{"zoom":12}}`)
	t.Setenv("BAECHA_MAP__ZOOM", "15")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://file/events", cfg.Upstream.URL)
	assert.Equal(t, 15, cfg.Map.Zoom)
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	path := writeFile(t, "config.toml", `x = 1`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{Upstream: UpstreamConfig{URL: "ws://x"}}
		c.SetDefaults()
		return c
	}
	require.NoError(t, base().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing url", func(c *Config) { c.Upstream.URL = "" }, "url is required"},
		{"unknown transport", func(c *Config) { c.Upstream.Transport = "carrier-pigeon" }, "unknown transport"},
		{"mqtt without broker", func(c *Config) { c.Upstream.Transport = TransportMQTT }, "mqtt.broker"},
		{"bad qos", func(c *Config) {
			c.Upstream.Transport = TransportMQTT
			c.Upstream.MQTT.Broker = "tcp://b"
			c.Upstream.MQTT.QoS = 3
		}, "qos"},
		{"backoff order", func(c *Config) { c.Upstream.BackoffMaxMS = 10 }, "backoff_max_ms"},
		{"zoom", func(c *Config) { c.Map.Zoom = 40 }, "zoom"},
		{"negative display", func(c *Config) { c.Dashboard.SuccessDisplayMS = -1 }, "success_display_ms"},
		{"negative rate", func(c *Config) { c.Dashboard.DispatchRatePerSec = -1 }, "dispatch_rate_per_sec"},
		{"webhook url", func(c *Config) { c.Webhooks.Targets = []WebhookTarget{{Secret: "x"}} }, "targets[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tc.want)
		})
	}
}

func TestPublicHidesSecrets(t *testing.T) {
	c := Config{
		Upstream: UpstreamConfig{URL: "ws://x", MQTT: MQTTConfig{Password: "hunter2"}},
		Redis:    RedisConfig{URL: "redis://:pw@host"},
		Webhooks: WebhooksConfig{Targets: []WebhookTarget{{URL: "http://h", Secret: "s"}}},
	}
	c.SetDefaults()
	pub := c.Public()
	assert.Equal(t, true, pub["hasRedisURL"])
	assert.Equal(t, 1, pub["webhookTargets"])
	for _, v := range pub {
		assert.NotEqual(t, "hunter2", v)
		assert.NotEqual(t, "redis://:pw@host", v)
	}
}
