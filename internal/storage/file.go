package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "pushbridge/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// The whole settings map lives in memory and is rewritten to <path> as a
// JSON snapshot (tmp file + rename) on every Set. Settings change rarely, so
// there is no journal.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	data   map[string]map[string]string
	closed bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	data := map[string]map[string]string{}
	if err := loadSnapshot(path, data); err != nil && !errors.Is(err, os.ErrNotExist) {
		// A corrupt snapshot should not keep the bridge down; start empty.
		log.Warn("settings snapshot unreadable; starting empty", logx.String("path", path), logx.Err(err))
	}

	return &fileStore{log: log, path: path, data: data}, nil
}

func (s *fileStore) Get(_ context.Context, namespace, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrDisabled
	}
	v, ok := s.data[namespace][key]
	return v, ok, nil
}

func (s *fileStore) Set(_ context.Context, namespace, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	ns := s.data[namespace]
	if ns == nil {
		ns = map[string]string{}
		s.data[namespace] = ns
	}
	prev, had := ns[key]
	ns[key] = value
	if err := s.writeLocked(); err != nil {
		if had {
			ns[key] = prev
		} else {
			delete(ns, key)
		}
		return err
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) writeLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func loadSnapshot(path string, out map[string]map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for ns, kv := range m {
		if kv == nil {
			continue
		}
		out[ns] = kv
	}
	return nil
}
