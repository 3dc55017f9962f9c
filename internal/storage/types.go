package storage

import (
	"context"
	"errors"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot files, written atomically (tmp + rename)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout string // sqlite only; Go duration string, empty means default
}

// RegistrySnapshot is the persisted subscription registry:
// tenant -> room -> threshold -> subscriber set.
//
// Invariant: no empty node exists at any level of a stored snapshot.
type RegistrySnapshot map[string]map[string]map[int][]string

// TenantSettings is per-tenant configuration.
type TenantSettings struct {
	DefaultThreshold int  `json:"default_threshold"`
	PublicConfirm    bool `json:"public_confirm"`
}

// SettingsSnapshot maps tenant -> settings.
type SettingsSnapshot map[string]TenantSettings

// Store persists the two snapshot tables. Each Save overwrites the whole
// table; there is no append log or versioning. Loads of missing data return
// an empty snapshot, not an error.
type Store interface {
	LoadRegistry(ctx context.Context) (RegistrySnapshot, error)
	SaveRegistry(ctx context.Context, snap RegistrySnapshot) error

	LoadSettings(ctx context.Context) (SettingsSnapshot, error)
	SaveSettings(ctx context.Context, snap SettingsSnapshot) error

	Close() error
}
