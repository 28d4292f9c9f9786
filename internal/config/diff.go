package config

import (
	"reflect"
	"sort"
	"strings"

	logx "pushbridge/pkg/logx"
)

// Sections that only take effect after a restart.
var restartSections = map[string]bool{
	"consumer": true,
	"http":     true,
	"ingress":  true,
	"storage":  true,
	"systemd":  true,
}

// SummarizeConfigChange returns the changed sections (sorted) and safe
// fields for logging them. Secrets (server key, redis password) are only
// reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Consumer != newCfg.Consumer {
		changed = append(changed, "consumer")
		attrs = append(attrs, logx.String("consumer.transport", newCfg.Consumer.Transport))
	}
	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs, logx.Bool("http.enabled", newCfg.HTTP.Enabled), logx.String("http.addr", newCfg.HTTP.Addr))
	}
	if oldCfg.Ingress != newCfg.Ingress {
		changed = append(changed, "ingress")
		attrs = append(attrs, logx.Bool("ingress.nats_enabled", newCfg.Ingress.NATS.Enabled), logx.String("ingress.nats_subject", newCfg.Ingress.NATS.Subject))
	}
	if oldCfg.Topics != newCfg.Topics {
		changed = append(changed, "topics")
		attrs = append(attrs,
			logx.Bool("topics.enabled", newCfg.Topics.Enabled),
			logx.String("topics.endpoint", newCfg.Topics.Endpoint),
			logx.Bool("topics.server_key_set", strings.TrimSpace(newCfg.Topics.ServerKey) != ""),
			logx.Int("topics.rate_per_sec", newCfg.Topics.RatePerSec),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.Bool("storage.redis_password_set", newCfg.Storage.Redis.Password != ""),
		)
	}
	if oldCfg.Flags != newCfg.Flags {
		changed = append(changed, "flags")
		attrs = append(attrs,
			logx.String("flags.call_receiver_namespace", newCfg.Flags.CallReceiverNamespace),
			logx.String("flags.call_receiver_key", newCfg.Flags.CallReceiverKey),
		)
	}
	if oldCfg.Token != newCfg.Token {
		changed = append(changed, "token")
		attrs = append(attrs, logx.Bool("token.persist", newCfg.Token.Persist), logx.String("token.rebroadcast", newCfg.Token.Rebroadcast))
	}
	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists the changed sections that are not applied live.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
