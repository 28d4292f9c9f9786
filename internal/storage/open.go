package storage

import (
	"context"
	"errors"
	"strconv"
	"strings"

	logx "pushbridge/pkg/logx"
)

// Store is the minimal settings API used by the bridge.
type Store interface {
	// Get returns the value stored under (namespace, key). ok is false when unset.
	Get(ctx context.Context, namespace, key string) (value string, ok bool, err error)
	Set(ctx context.Context, namespace, key, value string) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "redis":
		return openRedis(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// Bool reads a boolean setting. Unset keys, unparsable values and a nil
// store all read as false; only backend failures return an error.
func Bool(ctx context.Context, st Store, namespace, key string) (bool, error) {
	if st == nil {
		return false, nil
	}
	v, ok, err := st.Get(ctx, namespace, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, nil
	}
	return b, nil
}

// SetBool stores a boolean setting.
func SetBool(ctx context.Context, st Store, namespace, key string, value bool) error {
	if st == nil {
		return ErrDisabled
	}
	return st.Set(ctx, namespace, key, strconv.FormatBool(value))
}
