package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "voicely/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.pings.json    (subscription registry snapshot)
//   - <prefix>.settings.json (per-tenant settings snapshot)
//
// Every save rewrites the whole file through a temp file and os.Rename, so
// a crash mid-write never leaves a torn snapshot behind.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	registryPath string
	settingsPath string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		registryPath: prefix + ".pings.json",
		settingsPath: prefix + ".settings.json",
	}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) LoadRegistry(ctx context.Context) (RegistrySnapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap RegistrySnapshot
	if err := loadJSON(s.registryPath, &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = RegistrySnapshot{}
	}
	return snap, nil
}

func (s *fileStore) SaveRegistry(ctx context.Context, snap RegistrySnapshot) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap == nil {
		snap = RegistrySnapshot{}
	}
	return saveJSON(s.registryPath, snap)
}

func (s *fileStore) LoadSettings(ctx context.Context) (SettingsSnapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap SettingsSnapshot
	if err := loadJSON(s.settingsPath, &snap); err != nil {
		return nil, err
	}
	if snap == nil {
		snap = SettingsSnapshot{}
	}
	return snap, nil
}

func (s *fileStore) SaveSettings(ctx context.Context, snap SettingsSnapshot) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap == nil {
		snap = SettingsSnapshot{}
	}
	return saveJSON(s.settingsPath, snap)
}

// loadJSON decodes path into out. A missing file leaves out untouched and
// returns nil.
func loadJSON(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(b, out)
}

// saveJSON writes v to path atomically.
func saveJSON(path string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
