package registry

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"voicely/internal/storage"
	logx "voicely/pkg/logx"
)

// memStore is an in-memory storage.Store for tests. failNext makes the next
// registry save fail once.
type memStore struct {
	registry storage.RegistrySnapshot
	saves    int
	failNext bool
}

func (m *memStore) LoadRegistry(ctx context.Context) (storage.RegistrySnapshot, error) {
	if m.registry == nil {
		return storage.RegistrySnapshot{}, nil
	}
	return m.registry, nil
}

func (m *memStore) SaveRegistry(ctx context.Context, snap storage.RegistrySnapshot) error {
	if m.failNext {
		m.failNext = false
		return errors.New("disk full")
	}
	m.registry = snap
	m.saves++
	return nil
}

func (m *memStore) LoadSettings(ctx context.Context) (storage.SettingsSnapshot, error) {
	return storage.SettingsSnapshot{}, nil
}

func (m *memStore) SaveSettings(ctx context.Context, snap storage.SettingsSnapshot) error {
	return nil
}

func (m *memStore) Close() error { return nil }

func open(t *testing.T, st *memStore) *Registry {
	t.Helper()
	return Open(context.Background(), st, logx.Nop())
}

func TestAddRemoveRoundTrip(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)
	ctx := context.Background()

	before := r.Snapshot()

	if err := r.Add(ctx, "t1", "r1", 3, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	removed, err := r.Remove(ctx, "t1", "r1", 3, "alice")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("Remove reported removed=false")
	}

	if got := r.Snapshot(); !reflect.DeepEqual(got, before) {
		t.Fatalf("snapshot not restored: %v != %v", got, before)
	}
	if r.Len() != 0 {
		t.Fatalf("Len = %d, want 0", r.Len())
	}
}

func TestAddIdempotent(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)
	ctx := context.Background()

	if err := r.Add(ctx, "t1", "r1", 3, "alice"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(ctx, "t1", "r1", 3, "alice"); err != nil {
		t.Fatalf("second Add: %v", err)
	}

	q := r.Query("t1", "r1")
	if got := q[3]; len(got) != 1 || got[0] != "alice" {
		t.Fatalf("Query = %v, want single alice", got)
	}
	if st.saves != 1 {
		t.Fatalf("saves = %d, want 1 (duplicate add must not persist)", st.saves)
	}
}

func TestCascadeCleanup(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)
	ctx := context.Background()

	for _, add := range []struct {
		room string
		thr  int
		sub  string
	}{
		{"r1", 3, "alice"},
		{"r1", 3, "bob"},
		{"r1", 5, "alice"},
		{"r2", 2, "alice"},
	} {
		if err := r.Add(ctx, "t1", add.room, add.thr, add.sub); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	// Last subscriber of a threshold removes the threshold key.
	if _, err := r.Remove(ctx, "t1", "r1", 5, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Query("t1", "r1")[5]; ok {
		t.Fatal("threshold 5 survived cascade")
	}

	// Last threshold of a room removes the room.
	if _, err := r.Remove(ctx, "t1", "r1", 3, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Remove(ctx, "t1", "r1", 3, "bob"); err != nil {
		t.Fatal(err)
	}
	if q := r.Query("t1", "r1"); len(q) != 0 {
		t.Fatalf("room r1 survived cascade: %v", q)
	}

	// Last room of a tenant removes the tenant from the snapshot.
	if _, err := r.Remove(ctx, "t1", "r2", 2, "alice"); err != nil {
		t.Fatal(err)
	}
	if snap := r.Snapshot(); len(snap) != 0 {
		t.Fatalf("tenant survived cascade: %v", snap)
	}
	if got := st.registry; len(got) != 0 {
		t.Fatalf("persisted snapshot not empty: %v", got)
	}
}

func TestRemoveAbsentIsSoftNoop(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)

	removed, err := r.Remove(context.Background(), "t1", "r1", 3, "ghost")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed {
		t.Fatal("Remove reported removed=true for absent entry")
	}
	if st.saves != 0 {
		t.Fatalf("saves = %d, want 0", st.saves)
	}
}

func TestSaveFailureNotCommitted(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)
	ctx := context.Background()

	st.failNext = true
	if err := r.Add(ctx, "t1", "r1", 3, "alice"); err == nil {
		t.Fatal("expected save error")
	}
	if r.Has("t1", "r1", 3, "alice") {
		t.Fatal("failed add was applied in memory")
	}

	if err := r.Add(ctx, "t1", "r1", 3, "alice"); err != nil {
		t.Fatalf("Add after failure: %v", err)
	}
	st.failNext = true
	if _, err := r.Remove(ctx, "t1", "r1", 3, "alice"); err == nil {
		t.Fatal("expected save error")
	}
	if !r.Has("t1", "r1", 3, "alice") {
		t.Fatal("failed remove was applied in memory")
	}
}

func TestInvalidThreshold(t *testing.T) {
	t.Parallel()
	r := open(t, &memStore{})
	if err := r.Add(context.Background(), "t1", "r1", 0, "alice"); !errors.Is(err, ErrInvalidThreshold) {
		t.Fatalf("err = %v, want ErrInvalidThreshold", err)
	}
}

func TestListForSubscriber(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)
	ctx := context.Background()

	_ = r.Add(ctx, "t2", "r1", 2, "alice")
	_ = r.Add(ctx, "t1", "r2", 10, "alice")
	_ = r.Add(ctx, "t1", "r1", 4, "alice")
	_ = r.Add(ctx, "t1", "r1", 4, "bob")

	got := r.ListForSubscriber("alice")
	want := []Record{
		{Tenant: "t1", Room: "r1", Threshold: 4},
		{Tenant: "t1", Room: "r2", Threshold: 10},
		{Tenant: "t2", Room: "r1", Threshold: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListForSubscriber = %v, want %v", got, want)
	}
	if got := r.ListForSubscriber("nobody"); len(got) != 0 {
		t.Fatalf("expected empty list, got %v", got)
	}
}

func TestLoadRestoresState(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	r := open(t, st)
	ctx := context.Background()
	_ = r.Add(ctx, "t1", "r1", 3, "alice")
	_ = r.Add(ctx, "t1", "r1", 3, "bob")

	r2 := open(t, st)
	if !r2.Has("t1", "r1", 3, "alice") || !r2.Has("t1", "r1", 3, "bob") {
		t.Fatalf("reloaded registry missing entries: %v", r2.Snapshot())
	}
}
