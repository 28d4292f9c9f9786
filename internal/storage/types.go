package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot file (atomic rewrite on every Set)
//   - "sqlite": SQLite database file (modernc, pure Go)
//   - "redis": one hash per namespace
//   - "memory": process-local map
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	Redis RedisConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// KeyPrefix is prepended to namespace names to form hash keys.
	KeyPrefix string
}
