package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	logx "pushbridge/pkg/logx"
)

// Validate checks a parsed config. All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if lvl := strings.TrimSpace(cfg.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		add("logging.level: unknown level %q", lvl)
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add("logging.file.path: required when file logging is enabled")
	}

	switch cfg.Consumer.Transport {
	case TransportStdio:
	case TransportWebsocket:
		if !cfg.HTTP.Enabled {
			add("consumer.transport: websocket requires http.enabled")
		}
	default:
		add("consumer.transport: must be %q or %q, got %q", TransportStdio, TransportWebsocket, cfg.Consumer.Transport)
	}
	if cfg.Consumer.QueueSize < 0 {
		add("consumer.queue_size: must be >= 0")
	}

	if cfg.HTTP.Enabled && strings.TrimSpace(cfg.HTTP.Addr) == "" {
		add("http.addr: required when http is enabled")
	}

	if cfg.Ingress.NATS.Enabled && strings.TrimSpace(cfg.Ingress.NATS.URL) == "" {
		add("ingress.nats.url: required when nats ingress is enabled")
	}

	if cfg.Topics.Enabled && strings.TrimSpace(cfg.Topics.Endpoint) == "" {
		add("topics.endpoint: required when topics are enabled")
	}
	if cfg.Topics.Workers < 0 || cfg.Topics.QueueSize < 0 || cfg.Topics.RatePerSec < 0 {
		add("topics: workers, queue_size and rate_per_sec must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "none", "memory":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add("storage.path: required for driver %q", cfg.Storage.Driver)
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
			add("storage.redis.addr: required for driver redis")
		}
	default:
		add("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	durations := durationFields(cfg)
	paths := make([]string, 0, len(durations))
	for p := range durations {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if _, err := ParseDurationField(p, durations[p]); err != nil {
			errs = append(errs, err)
		}
	}

	if spec := strings.TrimSpace(cfg.Token.Rebroadcast); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			add("token.rebroadcast: %v", err)
		}
	}
	return errors.Join(errs...)
}
