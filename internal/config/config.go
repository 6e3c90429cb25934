package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment overrides, e.g. BAECHA_UPSTREAM__URL.
const EnvPrefix = "BAECHA_"

type Config struct {
	HTTP      HTTPConfig      `json:"http"`
	Upstream  UpstreamConfig  `json:"upstream"`
	Map       MapConfig       `json:"map"`
	Dashboard DashboardConfig `json:"dashboard"`
	Redis     RedisConfig     `json:"redis"`
	Webhooks  WebhooksConfig  `json:"webhooks"`
	Log       LogConfig       `json:"log"`
}

// Load reads the optional config file at path, then applies environment
// overrides, defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Upstream.SetDefaults()
	c.Map.SetDefaults()
	c.Dashboard.SetDefaults()
	c.Webhooks.SetDefaults()
	c.Log.SetDefaults()
}

func (c Config) Validate() error {
	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream: %w", err)
	}
	if err := c.Map.Validate(); err != nil {
		return fmt.Errorf("map: %w", err)
	}
	if err := c.Dashboard.Validate(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if err := c.Webhooks.Validate(); err != nil {
		return fmt.Errorf("webhooks: %w", err)
	}
	return nil
}

// Public returns the settings that are safe to show on the debug endpoint.
func (c Config) Public() map[string]any {
	return map[string]any{
		"httpAddr":         c.HTTP.Addr,
		"transport":        c.Upstream.Transport,
		"upstreamURL":      c.Upstream.URL,
		"mqttBroker":       c.Upstream.MQTT.Broker,
		"mapZoom":          c.Map.Zoom,
		"successDisplayMs": c.Dashboard.SuccessDisplayMS,
		"dispatchRate":     c.Dashboard.DispatchRatePerSec,
		"hasRedisURL":      c.Redis.URL != "",
		"webhookTargets":   len(c.Webhooks.Targets),
		"logLevel":         c.Log.Level,
	}
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

const (
	TransportWebsocket = "websocket"
	TransportMQTT      = "mqtt"
)

// UpstreamConfig selects and configures the real-time event channel.
type UpstreamConfig struct {
	// Transport is "websocket" or "mqtt".
	Transport    string            `json:"transport"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers"`
	BackoffMinMS int               `json:"backoff_min_ms"`
	BackoffMaxMS int               `json:"backoff_max_ms"`
	MQTT         MQTTConfig        `json:"mqtt"`
}

type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
}

func (c *UpstreamConfig) SetDefaults() {
	if c.Transport == "" {
		c.Transport = TransportWebsocket
	}
	if c.BackoffMinMS == 0 {
		c.BackoffMinMS = 500
	}
	if c.BackoffMaxMS == 0 {
		c.BackoffMaxMS = 30000
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "baechamap"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "baecha"
	}
}

func (c UpstreamConfig) Validate() error {
	switch c.Transport {
	case TransportWebsocket:
		if c.URL == "" {
			return fmt.Errorf("url is required for the websocket transport")
		}
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required for the mqtt transport")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.BackoffMaxMS < c.BackoffMinMS {
		return fmt.Errorf("backoff_max_ms must be >= backoff_min_ms")
	}
	return nil
}

func (c UpstreamConfig) BackoffMin() time.Duration {
	return time.Duration(c.BackoffMinMS) * time.Millisecond
}

func (c UpstreamConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMS) * time.Millisecond
}

// MapConfig overrides the initial map view.
type MapConfig struct {
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	Zoom      int     `json:"zoom"`
}

func (c *MapConfig) SetDefaults() {
	if c.CenterLat == 0 && c.CenterLng == 0 {
		c.CenterLat, c.CenterLng = 36.33135064483598, 127.43289957845893
	}
	if c.Zoom == 0 {
		c.Zoom = 17
	}
}

func (c MapConfig) Validate() error {
	if c.Zoom < 1 || c.Zoom > 21 {
		return fmt.Errorf("zoom %d out of range", c.Zoom)
	}
	if c.CenterLat < -90 || c.CenterLat > 90 || c.CenterLng < -180 || c.CenterLng > 180 {
		return fmt.Errorf("center (%f, %f) out of range", c.CenterLat, c.CenterLng)
	}
	return nil
}

type DashboardConfig struct {
	// SuccessDisplayMS is how long the dispatch-succeeded flag stays up.
	SuccessDisplayMS int `json:"success_display_ms"`
	// DispatchRatePerSec limits request_baecha emissions; 0 disables the limit.
	DispatchRatePerSec float64 `json:"dispatch_rate_per_sec"`
	DispatchBurst      int     `json:"dispatch_burst"`
}

func (c *DashboardConfig) SetDefaults() {
	if c.SuccessDisplayMS == 0 {
		c.SuccessDisplayMS = 3000
	}
	if c.DispatchBurst == 0 {
		c.DispatchBurst = 1
	}
}

func (c DashboardConfig) Validate() error {
	if c.SuccessDisplayMS < 0 {
		return fmt.Errorf("success_display_ms must be positive")
	}
	if c.DispatchRatePerSec < 0 {
		return fmt.Errorf("dispatch_rate_per_sec must not be negative")
	}
	return nil
}

func (c DashboardConfig) SuccessDisplay() time.Duration {
	return time.Duration(c.SuccessDisplayMS) * time.Millisecond
}

// RedisConfig enables the shared frame broker when URL is set.
type RedisConfig struct {
	URL string `json:"url"`
}

type WebhookTarget struct {
	URL    string `json:"url"`
	Secret string `json:"secret"`
}

type WebhooksConfig struct {
	Targets     []WebhookTarget `json:"targets"`
	MaxAttempts int             `json:"max_attempts"`
}

func (c *WebhooksConfig) SetDefaults() {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 10
	}
}

func (c WebhooksConfig) Validate() error {
	for i, t := range c.Targets {
		if t.URL == "" {
			return fmt.Errorf("targets[%d]: url is required", i)
		}
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1")
	}
	return nil
}

type LogConfig struct {
	Level string `json:"level"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}
