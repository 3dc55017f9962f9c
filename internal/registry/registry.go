package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"voicely/internal/storage"
	logx "voicely/pkg/logx"
)

var ErrInvalidThreshold = errors.New("threshold must be a positive whole number")

// Key identifies one subscription set.
type Key struct {
	Tenant    string
	Room      string
	Threshold int
}

// Record is one subscription of one subscriber, as returned by
// ListForSubscriber.
type Record struct {
	Tenant    string
	Room      string
	Threshold int
}

type roomKey struct {
	Tenant string
	Room   string
}

// Registry is the durable subscription registry.
//
// It holds a flat mapping keyed by (tenant, room, threshold) plus a
// (tenant, room) prefix index for occupancy lookups, instead of the nested
// tenant->room->threshold containers of the persisted form; empty nodes
// therefore cannot linger, they simply stop existing when their last
// subscriber goes.
//
// Mutations save the durable snapshot first and only then touch the
// in-memory state: a failed write leaves the registry exactly as it was.
//
// Not safe for concurrent use; the app event loop is the single writer.
type Registry struct {
	log   logx.Logger
	store storage.Store

	subs  map[Key]map[string]struct{}
	rooms map[roomKey]map[int]struct{}
}

// Open loads the registry snapshot from the store. A missing or unreadable
// snapshot yields an empty registry, never an error: durability gaps are
// logged, not fatal.
func Open(ctx context.Context, store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Registry{
		log:   log,
		store: store,
		subs:  map[Key]map[string]struct{}{},
		rooms: map[roomKey]map[int]struct{}{},
	}

	snap, err := store.LoadRegistry(ctx)
	if err != nil {
		log.Warn("registry load failed; starting empty", logx.Err(err))
		return r
	}
	for tenant, byRoom := range snap {
		for room, byThr := range byRoom {
			for threshold, subscribers := range byThr {
				if threshold <= 0 || len(subscribers) == 0 {
					continue
				}
				for _, sub := range subscribers {
					r.apply(Key{Tenant: tenant, Room: room, Threshold: threshold}, sub)
				}
			}
		}
	}
	r.log.Info("registry loaded", logx.Int("entries", len(r.subs)))
	return r
}

// Add inserts subscriber under (tenant, room, threshold). Idempotent: a
// duplicate add is a no-op and does not touch the store.
func (r *Registry) Add(ctx context.Context, tenant, room string, threshold int, subscriber string) error {
	if threshold <= 0 {
		return ErrInvalidThreshold
	}
	k := Key{Tenant: tenant, Room: room, Threshold: threshold}
	if set, ok := r.subs[k]; ok {
		if _, dup := set[subscriber]; dup {
			return nil
		}
	}

	snap := r.snapshot()
	addToSnapshot(snap, k, subscriber)
	if err := r.store.SaveRegistry(ctx, snap); err != nil {
		return fmt.Errorf("registry save: %w", err)
	}

	r.apply(k, subscriber)
	return nil
}

// Remove deletes subscriber from (tenant, room, threshold), cascading empty
// nodes away. Removing an absent subscription is a soft no-op: it reports
// removed=false and nil error, and does not touch the store.
func (r *Registry) Remove(ctx context.Context, tenant, room string, threshold int, subscriber string) (bool, error) {
	k := Key{Tenant: tenant, Room: room, Threshold: threshold}
	set, ok := r.subs[k]
	if !ok {
		return false, nil
	}
	if _, ok := set[subscriber]; !ok {
		return false, nil
	}

	snap := r.snapshot()
	removeFromSnapshot(snap, k, subscriber)
	if err := r.store.SaveRegistry(ctx, snap); err != nil {
		return false, fmt.Errorf("registry save: %w", err)
	}

	delete(set, subscriber)
	if len(set) == 0 {
		delete(r.subs, k)
		rk := roomKey{Tenant: tenant, Room: room}
		if thrs, ok := r.rooms[rk]; ok {
			delete(thrs, threshold)
			if len(thrs) == 0 {
				delete(r.rooms, rk)
			}
		}
	}
	return true, nil
}

// Query returns threshold -> subscribers for one room. The result is a
// fresh copy with sorted subscriber lists; absent rooms yield an empty map.
func (r *Registry) Query(tenant, room string) map[int][]string {
	out := map[int][]string{}
	thrs, ok := r.rooms[roomKey{Tenant: tenant, Room: room}]
	if !ok {
		return out
	}
	for threshold := range thrs {
		set := r.subs[Key{Tenant: tenant, Room: room, Threshold: threshold}]
		subs := make([]string, 0, len(set))
		for sub := range set {
			subs = append(subs, sub)
		}
		sort.Strings(subs)
		out[threshold] = subs
	}
	return out
}

// ListForSubscriber returns every subscription held by subscriber across
// all tenants and rooms, ordered by (tenant, room, threshold) for
// determinism. Display-name ordering is the paginator's concern.
func (r *Registry) ListForSubscriber(subscriber string) []Record {
	var out []Record
	for k, set := range r.subs {
		if _, ok := set[subscriber]; ok {
			out = append(out, Record{Tenant: k.Tenant, Room: k.Room, Threshold: k.Threshold})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tenant != out[j].Tenant {
			return out[i].Tenant < out[j].Tenant
		}
		if out[i].Room != out[j].Room {
			return out[i].Room < out[j].Room
		}
		return out[i].Threshold < out[j].Threshold
	})
	return out
}

// Has reports whether the exact subscription exists.
func (r *Registry) Has(tenant, room string, threshold int, subscriber string) bool {
	set, ok := r.subs[Key{Tenant: tenant, Room: room, Threshold: threshold}]
	if !ok {
		return false
	}
	_, ok = set[subscriber]
	return ok
}

// Len returns the number of live (tenant, room, threshold) keys.
func (r *Registry) Len() int { return len(r.subs) }

// Snapshot renders the current state in the persisted nested form.
func (r *Registry) Snapshot() storage.RegistrySnapshot { return r.snapshot() }

func (r *Registry) apply(k Key, subscriber string) {
	set, ok := r.subs[k]
	if !ok {
		set = map[string]struct{}{}
		r.subs[k] = set
	}
	set[subscriber] = struct{}{}

	rk := roomKey{Tenant: k.Tenant, Room: k.Room}
	thrs, ok := r.rooms[rk]
	if !ok {
		thrs = map[int]struct{}{}
		r.rooms[rk] = thrs
	}
	thrs[k.Threshold] = struct{}{}
}

func (r *Registry) snapshot() storage.RegistrySnapshot {
	snap := storage.RegistrySnapshot{}
	for k, set := range r.subs {
		subs := make([]string, 0, len(set))
		for sub := range set {
			subs = append(subs, sub)
		}
		sort.Strings(subs)

		byRoom, ok := snap[k.Tenant]
		if !ok {
			byRoom = map[string]map[int][]string{}
			snap[k.Tenant] = byRoom
		}
		byThr, ok := byRoom[k.Room]
		if !ok {
			byThr = map[int][]string{}
			byRoom[k.Room] = byThr
		}
		byThr[k.Threshold] = subs
	}
	return snap
}

func addToSnapshot(snap storage.RegistrySnapshot, k Key, subscriber string) {
	byRoom, ok := snap[k.Tenant]
	if !ok {
		byRoom = map[string]map[int][]string{}
		snap[k.Tenant] = byRoom
	}
	byThr, ok := byRoom[k.Room]
	if !ok {
		byThr = map[int][]string{}
		byRoom[k.Room] = byThr
	}
	subs := byThr[k.Threshold]
	for _, s := range subs {
		if s == subscriber {
			return
		}
	}
	subs = append(subs, subscriber)
	sort.Strings(subs)
	byThr[k.Threshold] = subs
}

func removeFromSnapshot(snap storage.RegistrySnapshot, k Key, subscriber string) {
	byRoom, ok := snap[k.Tenant]
	if !ok {
		return
	}
	byThr, ok := byRoom[k.Room]
	if !ok {
		return
	}
	subs := byThr[k.Threshold]
	kept := subs[:0]
	for _, s := range subs {
		if s != subscriber {
			kept = append(kept, s)
		}
	}
	if len(kept) > 0 {
		byThr[k.Threshold] = kept
		return
	}
	delete(byThr, k.Threshold)
	if len(byThr) == 0 {
		delete(byRoom, k.Room)
	}
	if len(byRoom) == 0 {
		delete(snap, k.Tenant)
	}
}
