package app

import (
	"strings"
	"time"

	"pushbridge/internal/config"
	"pushbridge/internal/control"
	"pushbridge/internal/platform/natsin"
	"pushbridge/internal/server"
	"pushbridge/internal/storage"
	"pushbridge/internal/topics"
	logx "pushbridge/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:       cfg.Logging.Level,
		Console:     cfg.Logging.Console,
		ConsoleJSON: cfg.Logging.ConsoleJSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig reports enabled=false for driver "none".
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
		Redis: storage.RedisConfig{
			Addr:      sc.Redis.Addr,
			Password:  sc.Redis.Password,
			DB:        sc.Redis.DB,
			KeyPrefix: sc.Redis.KeyPrefix,
		},
	}, true, nil
}

func mapTopicsConfig(cfg *config.Config) (topics.Config, error) {
	timeout, err := config.ParseDurationOrDefault("topics.timeout", cfg.Topics.Timeout, 10*time.Second)
	if err != nil {
		return topics.Config{}, err
	}
	return topics.Config{
		Endpoint:   cfg.Topics.Endpoint,
		ServerKey:  cfg.Topics.ServerKey,
		Workers:    cfg.Topics.Workers,
		QueueSize:  cfg.Topics.QueueSize,
		RatePerSec: cfg.Topics.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func mapServerConfig(cfg *config.Config) (server.Config, error) {
	shutdown, err := config.ParseDurationOrDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout, 5*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{Addr: cfg.HTTP.Addr, Pprof: cfg.HTTP.Pprof, ShutdownTimeout: shutdown}, nil
}

func mapNATSConfig(cfg *config.Config) natsin.Config {
	return natsin.Config{URL: cfg.Ingress.NATS.URL, Subject: cfg.Ingress.NATS.Subject}
}

func mapFlagLocation(cfg *config.Config) control.FlagLocation {
	return control.FlagLocation{
		Namespace: strings.TrimSpace(cfg.Flags.CallReceiverNamespace),
		Key:       strings.TrimSpace(cfg.Flags.CallReceiverKey),
	}
}
