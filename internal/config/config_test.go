package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestManager(path string, envs map[string]string) *Manager {
	m := NewManager(path)
	m.lookupEnv = func() map[string]string { return envs }
	return m
}

func TestParseJSONOverDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "pushbridge.json", `{
		"logging": {"level": "debug"},
		"storage": {"driver": "sqlite", "path": "/var/lib/pushbridge.db"}
	}`)
	cfg, err := newTestManager(p, map[string]string{}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Consumer.Transport != TransportStdio || cfg.Flags.CallReceiverKey != "INTERFONE_LIGACAO" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Consumer, cfg.Flags)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "pushbridge.yaml", `
consumer:
  transport: websocket
http:
  enabled: true
  addr: ":9000"
token:
  rebroadcast: "*/5 * * * *"
`)
	cfg, err := newTestManager(p, map[string]string{}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Consumer.Transport != TransportWebsocket || cfg.HTTP.Addr != ":9000" || cfg.Token.Rebroadcast != "*/5 * * * *" {
		t.Fatalf("cfg = %+v", cfg)
	}

	empty := writeFile(t, dir, "empty.yml", "")
	if _, err := newTestManager(empty, map[string]string{}).Load(); err != nil {
		t.Fatalf("empty yaml: %v", err)
	}
}

func TestParseRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"unknown.json":  `{"telegram": {"token": "x"}}`,
		"trailing.json": `{} {}`,
		"unknown.yaml":  "logging:\n  colour: true\n",
	} {
		p := writeFile(t, dir, name, body)
		if _, err := newTestManager(p, map[string]string{}).Parse(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "c.json", `{"topics": {"enabled": true, "server_key": "from-file"}}`)
	cfg, err := newTestManager(p, map[string]string{
		"PUSHBRIDGE_TOPICS_SERVER_KEY": "from-env",
		"PUSHBRIDGE_HTTP_ENABLED":      "true",
		"PUSHBRIDGE_REDIS_ADDR":        "redis:6379",
		"PUSHBRIDGE_LOG_LEVEL":         "warn",
	}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Topics.ServerKey != "from-env" || !cfg.HTTP.Enabled || cfg.Storage.Redis.Addr != "redis:6379" || cfg.Logging.Level != "warn" {
		t.Fatalf("env not applied: %+v", cfg)
	}

	// No file: defaults plus env.
	cfg, err = newTestManager("", map[string]string{"PUSHBRIDGE_CONSUMER_TRANSPORT": "stdio"}).Load()
	if err != nil || cfg.Consumer.Transport != TransportStdio {
		t.Fatalf("no-file load = %+v, %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, want: "logging.level"},
		{name: "bad transport", mutate: func(c *Config) { c.Consumer.Transport = "grpc" }, want: "consumer.transport"},
		{name: "websocket without http", mutate: func(c *Config) { c.Consumer.Transport = TransportWebsocket }, want: "requires http.enabled"},
		{name: "nats without url", mutate: func(c *Config) { c.Ingress.NATS.Enabled = true }, want: "ingress.nats.url"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, want: "storage.path"},
		{name: "redis without addr", mutate: func(c *Config) { c.Storage.Driver = "redis" }, want: "storage.redis.addr"},
		{name: "unknown driver", mutate: func(c *Config) { c.Storage.Driver = "etcd" }, want: "storage.driver"},
		{name: "bad duration", mutate: func(c *Config) { c.Topics.Timeout = "soon" }, want: "topics.timeout"},
		{name: "bad cron", mutate: func(c *Config) { c.Token.Rebroadcast = "every minute" }, want: "token.rebroadcast"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			tt.mutate(c)
			err := Validate(c)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Validate = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Topics.ServerKey = "secret"
	b.Storage.Driver = "file"

	changed, attrs := SummarizeConfigChange(a, b)
	if want := []string{"logging", "storage", "topics"}; !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log fields")
	}
	if got := RestartRequired(changed); !reflect.DeepEqual(got, []string{"storage"}) {
		t.Fatalf("RestartRequired = %v", got)
	}
	if changed, _ := SummarizeConfigChange(a, Default()); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestWatchPublishesEdits(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "pushbridge.json", `{"logging": {"level": "info"}}`)
	m := newTestManager(p, map[string]string{})
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// Invalid edits are rejected and never published.
	writeFile(t, dir, "pushbridge.json", `{"logging": {"level": "loud"}}`)
	time.Sleep(600 * time.Millisecond)
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg.Logging)
	default:
	}

	writeFile(t, dir, "pushbridge.json", `{"logging": {"level": "debug"}}`)
	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("edit not published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("edit not committed")
	}
}

func TestReloadSkipsUnchanged(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "c.json", `{}`)
	m := newTestManager(p, map[string]string{})
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	published, err := m.Reload(context.Background())
	if err != nil || published {
		t.Fatalf("Reload unchanged = %v, %v", published, err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("x", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "250ms", time.Second); err != nil || d != 250*time.Millisecond {
		t.Fatalf("250ms = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "-1s", time.Second); err == nil {
		t.Fatal("negative duration accepted")
	}
}
