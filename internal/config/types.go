package config

import "time"

// Config is the top-level wcfx configuration.
type Config struct {
	Agent  AgentConfig  `toml:"agent"`
	Bridge BridgeConfig `toml:"bridge"`
	HTTP   HTTPConfig   `toml:"http"`
	Log    LogConfig    `toml:"log"`
	Cache  CacheConfig  `toml:"cache"`
}

// AgentConfig describes how the native agent is started and stopped.
type AgentConfig struct {
	Command string `toml:"command"`
	Debug   bool   `toml:"debug"`
	// Skip leaves agent injection to something else.
	Skip bool `toml:"skip"`
}

// BridgeConfig holds the agent socket addresses and timings. Durations are
// Go duration strings ("2s", "1500ms").
type BridgeConfig struct {
	ControlAddr       string `toml:"control_addr"`
	EventAddr         string `toml:"event_addr"`
	BlockingConnect   bool   `toml:"blocking_connect"`
	SendTimeout       string `toml:"send_timeout"`
	RecvTimeout       string `toml:"recv_timeout"`
	CallTimeout       string `toml:"call_timeout"`
	LoginPollInterval string `toml:"login_poll_interval"`
}

// HTTPConfig enables the HTTP façade when Listen is set.
type HTTPConfig struct {
	Listen string `toml:"listen"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// CacheConfig enables result caching for read-only actions when TTL is set.
// Actions, if non-empty, narrows caching to matching action names (globs).
type CacheConfig struct {
	TTL     string   `toml:"ttl"`
	Actions []string `toml:"actions"`
}

// Defaults.
const (
	DefaultControlAddr       = "tcp://127.0.0.1:10086"
	DefaultEventAddr         = "tcp://127.0.0.1:10087"
	DefaultSocketTimeout     = "2s"
	DefaultLoginPollInterval = "1s"
	DefaultLogLevel          = "info"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Bridge.ControlAddr == "" {
		c.Bridge.ControlAddr = DefaultControlAddr
	}
	if c.Bridge.EventAddr == "" {
		c.Bridge.EventAddr = DefaultEventAddr
	}
	if c.Bridge.SendTimeout == "" {
		c.Bridge.SendTimeout = DefaultSocketTimeout
	}
	if c.Bridge.RecvTimeout == "" {
		c.Bridge.RecvTimeout = DefaultSocketTimeout
	}
	if c.Bridge.LoginPollInterval == "" {
		c.Bridge.LoginPollInterval = DefaultLoginPollInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

// DurationOr parses s, returning def when s is empty or invalid. Validate
// reports invalid values; callers past validation can use this directly.
func DurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
