package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration knobs are Go duration strings ("250ms", "5s"). Empty means unset.

// ParseDurationField parses raw, naming the config path in errors. Negative
// values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def for unset or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}

func durationFields(cfg *Config) map[string]string {
	return map[string]string{
		"http.shutdown_timeout": cfg.HTTP.ShutdownTimeout,
		"topics.timeout":        cfg.Topics.Timeout,
		"storage.busy_timeout":  cfg.Storage.BusyTimeout,
	}
}
