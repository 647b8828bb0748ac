package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"github.com/lydakis/wcfx/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config with defaults
// applied. A missing file yields Default().
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("parsing config %s: unknown key %q", path, undecoded[0].String())
	}

	expandConfigEnvVars(&cfg)
	cfg.applyDefaults()
	return &cfg, nil
}

func expandConfigEnvVars(cfg *Config) {
	cfg.Agent.Command = expandEnvVars(cfg.Agent.Command)
	cfg.Bridge.ControlAddr = expandEnvVars(cfg.Bridge.ControlAddr)
	cfg.Bridge.EventAddr = expandEnvVars(cfg.Bridge.EventAddr)
	cfg.HTTP.Listen = expandEnvVars(cfg.HTTP.Listen)
	cfg.Log.Level = expandEnvVars(cfg.Log.Level)
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
