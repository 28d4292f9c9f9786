package config

// Config is the bridge configuration file (JSON or YAML).
//
// Secrets and deployment knobs can be overridden from the environment
// (PUSHBRIDGE_*); the environment wins over the file.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Consumer ConsumerConfig `json:"consumer"`
	HTTP     HTTPConfig     `json:"http"`
	Ingress  IngressConfig  `json:"ingress"`
	Topics   TopicsConfig   `json:"topics"`
	Storage  StorageConfig  `json:"storage"`
	Flags    FlagsConfig    `json:"flags"`
	Token    TokenConfig    `json:"token"`
	Systemd  SystemdConfig  `json:"systemd"`
}

type LoggingConfig struct {
	Level       string      `json:"level" env:"PUSHBRIDGE_LOG_LEVEL"`
	Console     bool        `json:"console"`
	ConsoleJSON bool        `json:"console_json,omitempty" env:"PUSHBRIDGE_LOG_JSON"`
	File        LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path" env:"PUSHBRIDGE_LOG_FILE"`
}

// ConsumerConfig selects how the single consumer connects.
//
//	"consumer": { "transport": "stdio" }       // JSON lines on stdin/stdout
//	"consumer": { "transport": "websocket" }   // GET /v1/consumer on the HTTP server
type ConsumerConfig struct {
	Transport string `json:"transport" env:"PUSHBRIDGE_CONSUMER_TRANSPORT"`
	QueueSize int    `json:"queue_size,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled" env:"PUSHBRIDGE_HTTP_ENABLED"`
	Addr    string `json:"addr" env:"PUSHBRIDGE_HTTP_ADDR"`
	Pprof   bool   `json:"pprof,omitempty"`
	// ShutdownTimeout is a Go duration string (default "5s").
	ShutdownTimeout string `json:"shutdown_timeout,omitempty"`
}

type IngressConfig struct {
	// Buffer is the platform event stream capacity.
	Buffer int        `json:"buffer,omitempty"`
	NATS   NATSConfig `json:"nats"`
}

type NATSConfig struct {
	Enabled bool   `json:"enabled" env:"PUSHBRIDGE_NATS_ENABLED"`
	URL     string `json:"url" env:"PUSHBRIDGE_NATS_URL"`
	Subject string `json:"subject,omitempty" env:"PUSHBRIDGE_NATS_SUBJECT"`
}

// TopicsConfig controls the topic subscription control plane.
type TopicsConfig struct {
	Enabled    bool   `json:"enabled"`
	Endpoint   string `json:"endpoint" env:"PUSHBRIDGE_TOPICS_ENDPOINT"`
	ServerKey  string `json:"server_key,omitempty" env:"PUSHBRIDGE_TOPICS_SERVER_KEY"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// StorageConfig controls the settings store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./pushbridge.db" }
type StorageConfig struct {
	Driver      string      `json:"driver" env:"PUSHBRIDGE_STORAGE_DRIVER"`
	Path        string      `json:"path,omitempty" env:"PUSHBRIDGE_STORAGE_PATH"`
	BusyTimeout string      `json:"busy_timeout,omitempty"`
	Redis       RedisConfig `json:"redis"`
}

type RedisConfig struct {
	Addr      string `json:"addr,omitempty" env:"PUSHBRIDGE_REDIS_ADDR"`
	Password  string `json:"password,omitempty" env:"PUSHBRIDGE_REDIS_PASSWORD"`
	DB        int    `json:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty"`
}

// FlagsConfig locates the call-receiver flag in the settings store.
type FlagsConfig struct {
	CallReceiverNamespace string `json:"call_receiver_namespace,omitempty"`
	CallReceiverKey       string `json:"call_receiver_key,omitempty"`
}

type TokenConfig struct {
	// Persist keeps the last registration token in the settings store.
	Persist bool `json:"persist"`
	// Rebroadcast is an optional cron spec for re-sending the cached token.
	Rebroadcast string `json:"rebroadcast,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify" env:"PUSHBRIDGE_SYSTEMD_NOTIFY"`
}

// Default returns the configuration used for omitted fields.
func Default() *Config {
	return &Config{
		Logging:  LoggingConfig{Level: "info", Console: true},
		Consumer: ConsumerConfig{Transport: TransportStdio, QueueSize: 256},
		HTTP:     HTTPConfig{Addr: "127.0.0.1:8787", ShutdownTimeout: "5s"},
		Ingress:  IngressConfig{Buffer: 256, NATS: NATSConfig{Subject: "pushbridge.broadcast"}},
		Topics: TopicsConfig{
			Endpoint:   "https://iid.googleapis.com",
			Workers:    2,
			QueueSize:  64,
			RatePerSec: 5,
			Timeout:    "10s",
		},
		Storage: StorageConfig{Driver: "memory", BusyTimeout: "5s"},
		Flags: FlagsConfig{
			CallReceiverNamespace: "Interfone",
			CallReceiverKey:       "INTERFONE_LIGACAO",
		},
	}
}

const (
	TransportStdio     = "stdio"
	TransportWebsocket = "websocket"
)
