// Package settings holds per-tenant tunables that survive restarts.
package settings

import (
	"context"

	"voicely/internal/storage"
	logx "voicely/pkg/logx"
)

// Defaults applied when a tenant has never been configured. Confirmations
// post publicly unless the tenant opts out.
const (
	DefaultThreshold     = 3
	DefaultPublicConfirm = true
)

// Service is the in-memory view of tenant settings, backed by the store.
// Writes persist the full snapshot before the in-memory copy changes, so
// memory never gets ahead of disk. Not safe for concurrent use; the app
// event loop is the single writer.
type Service struct {
	log     logx.Logger
	store   storage.Store
	tenants storage.SettingsSnapshot
}

// Open loads persisted settings. A load failure is logged and treated as an
// empty table; defaults then apply everywhere.
func Open(ctx context.Context, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, store: store, tenants: storage.SettingsSnapshot{}}
	snap, err := store.LoadSettings(ctx)
	if err != nil {
		log.Warn("settings load failed; starting with defaults", logx.Err(err))
		return s
	}
	if snap != nil {
		s.tenants = snap
	}
	return s
}

// Get returns the tenant's settings, with defaults filled in for fields the
// tenant never set.
func (s *Service) Get(tenant string) storage.TenantSettings {
	if ts, ok := s.tenants[tenant]; ok {
		if ts.DefaultThreshold <= 0 {
			ts.DefaultThreshold = DefaultThreshold
		}
		return ts
	}
	return storage.TenantSettings{
		DefaultThreshold: DefaultThreshold,
		PublicConfirm:    DefaultPublicConfirm,
	}
}

// Set persists the tenant's settings, then commits them in memory.
func (s *Service) Set(ctx context.Context, tenant string, ts storage.TenantSettings) error {
	snap := make(storage.SettingsSnapshot, len(s.tenants)+1)
	for k, v := range s.tenants {
		snap[k] = v
	}
	snap[tenant] = ts

	if err := s.store.SaveSettings(ctx, snap); err != nil {
		return err
	}
	s.tenants[tenant] = ts
	s.log.Debug("tenant settings updated",
		logx.String("tenant", tenant),
		logx.Int("default_threshold", ts.DefaultThreshold),
		logx.Bool("public_confirm", ts.PublicConfirm),
	)
	return nil
}
