package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
	"time"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	errs = append(errs, validateAddr("bridge.control_addr", cfg.Bridge.ControlAddr)...)
	errs = append(errs, validateAddr("bridge.event_addr", cfg.Bridge.EventAddr)...)
	if cfg.Bridge.ControlAddr != "" && cfg.Bridge.ControlAddr == cfg.Bridge.EventAddr {
		errs = append(errs, fmt.Errorf("bridge.event_addr: must differ from bridge.control_addr, both are %q", cfg.Bridge.EventAddr))
	}

	durations := []struct {
		key, value string
	}{
		{"bridge.send_timeout", cfg.Bridge.SendTimeout},
		{"bridge.recv_timeout", cfg.Bridge.RecvTimeout},
		{"bridge.call_timeout", cfg.Bridge.CallTimeout},
		{"bridge.login_poll_interval", cfg.Bridge.LoginPollInterval},
		{"cache.ttl", cfg.Cache.TTL},
	}
	for _, d := range durations {
		errs = append(errs, validateDuration(d.key, d.value)...)
	}

	if listen := strings.TrimSpace(cfg.HTTP.Listen); listen != "" {
		if _, _, err := net.SplitHostPort(listen); err != nil {
			errs = append(errs, fmt.Errorf("http.listen: invalid address %q: %w", cfg.HTTP.Listen, err))
		}
	}

	if cfg.Log.Level != "" && !logLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q, want debug, info, warn or error", cfg.Log.Level))
	}

	for i, pattern := range cfg.Cache.Actions {
		if _, err := path.Match(pattern, "x"); err != nil {
			errs = append(errs, fmt.Errorf("cache.actions[%d]: invalid glob %q: %w", i, pattern, err))
		}
	}

	return errors.Join(errs...)
}

func validateDuration(key, value string) []error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", key, value, err)}
	}
	if d <= 0 {
		return []error{fmt.Errorf("%s: must be > 0, got %q", key, value)}
	}
	return nil
}

func validateAddr(key, addr string) []error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return []error{fmt.Errorf("%s: missing address", key)}
	}
	if !strings.Contains(addr, "://") {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return []error{fmt.Errorf("%s: invalid address %q: %w", key, addr, err)}
		}
		return nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid address %q: %w", key, addr, err)}
	}
	switch u.Scheme {
	case "tcp":
		if _, _, err := net.SplitHostPort(u.Host); err != nil {
			return []error{fmt.Errorf("%s: invalid address %q: %w", key, addr, err)}
		}
	case "ipc", "inproc":
	default:
		return []error{fmt.Errorf("%s: unsupported scheme %q, want tcp, ipc or inproc", key, u.Scheme)}
	}
	return nil
}
