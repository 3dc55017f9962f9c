package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"voicely/internal/eventbus"
	"voicely/internal/registry"
	"voicely/internal/storage"
	"voicely/internal/transport"
	logx "voicely/pkg/logx"
)

// nopStore satisfies storage.Store with empty snapshots; processor tests
// don't exercise persistence.
type nopStore struct{}

func (nopStore) LoadRegistry(context.Context) (storage.RegistrySnapshot, error) {
	return storage.RegistrySnapshot{}, nil
}
func (nopStore) SaveRegistry(context.Context, storage.RegistrySnapshot) error { return nil }
func (nopStore) LoadSettings(context.Context) (storage.SettingsSnapshot, error) {
	return storage.SettingsSnapshot{}, nil
}
func (nopStore) SaveSettings(context.Context, storage.SettingsSnapshot) error { return nil }
func (nopStore) Close() error                                                 { return nil }

type gatewayOp struct {
	kind string // "send", "edit", "delete"
	user string
	ref  transport.MessageRef
	text string
}

type fakeGateway struct {
	ops     []gatewayOp
	seq     int
	failFor map[string]bool
}

func (g *fakeGateway) Start(context.Context, chan<- transport.Event) error { return nil }
func (g *fakeGateway) Stop(context.Context) error                          { return nil }

func (g *fakeGateway) SendDirect(_ context.Context, userID, text string) (transport.MessageRef, error) {
	if g.failFor[userID] {
		return transport.MessageRef{}, errors.New("cannot send messages to this user")
	}
	g.seq++
	ref := transport.MessageRef{ChannelID: "dm-" + userID, MessageID: fmt.Sprintf("m%d", g.seq)}
	g.ops = append(g.ops, gatewayOp{kind: "send", user: userID, ref: ref, text: text})
	return ref, nil
}

func (g *fakeGateway) Edit(_ context.Context, ref transport.MessageRef, text string) error {
	g.ops = append(g.ops, gatewayOp{kind: "edit", ref: ref, text: text})
	return nil
}

func (g *fakeGateway) Delete(_ context.Context, ref transport.MessageRef) error {
	g.ops = append(g.ops, gatewayOp{kind: "delete", ref: ref})
	return nil
}

func (g *fakeGateway) count(kind string) int {
	n := 0
	for _, op := range g.ops {
		if op.kind == kind {
			n++
		}
	}
	return n
}

func roster(ids ...string) []transport.Participant {
	out := make([]transport.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, transport.Participant{ID: id})
	}
	return out
}

func newProcessor(t *testing.T) (*Processor, *registry.Registry, *Tracker, *fakeGateway) {
	t.Helper()
	reg := registry.Open(context.Background(), nopStore{}, logx.Nop())
	tr := NewTracker()
	gw := &fakeGateway{failFor: map[string]bool{}}
	p := NewProcessor(reg, tr, gw, eventbus.New(), logx.Nop())
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	return p, reg, tr, gw
}

func TestSingleNotifyThenEdit(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 3, "xavier")

	ev := &transport.PresenceEvent{
		UserID:     "carol",
		TenantID:   "t1",
		CurrRoomID: "r1",
		CurrRoster: roster("alice", "bob", "carol"),
	}
	p.HandlePresence(ctx, ev)

	if got := gw.count("send"); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	e, ok := tr.Get("xavier", "r1", 3)
	if !ok || e.Ref == nil {
		t.Fatalf("expected tracked handle, got %+v ok=%v", e, ok)
	}

	// Same occupancy again (e.g. a non-membership property change): edit,
	// not a second send.
	p.HandlePresence(ctx, ev)
	if got := gw.count("send"); got != 1 {
		t.Fatalf("sends after repeat = %d, want 1", got)
	}
	if got := gw.count("edit"); got != 1 {
		t.Fatalf("edits after repeat = %d, want 1", got)
	}
}

func TestVacancyCleanup(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "xavier")

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "bob", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob"),
	})
	if gw.count("send") != 1 {
		t.Fatal("setup send missing")
	}

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "bob", TenantID: "t1",
		PrevRoomID: "r1", PrevRoster: nil,
	})

	var edited string
	for _, op := range gw.ops {
		if op.kind == "edit" {
			edited = op.text
		}
	}
	if edited == "" {
		t.Fatal("expected a past-tense edit")
	}
	if !strings.Contains(edited, "were") || strings.Contains(edited, "are currently") {
		t.Fatalf("edit not past tense: %q", edited)
	}
	if !strings.Contains(edited, "<t:1700000000:R>") {
		t.Fatalf("edit missing departure timestamp: %q", edited)
	}
	if got := tr.OutstandingForRoom("r1"); len(got) != 0 {
		t.Fatalf("tracker still holds %d entries for emptied room", len(got))
	}
}

func TestSelfSuppression(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "yara")

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "yara", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "yara"),
	})

	if got := gw.count("send"); got != 0 {
		t.Fatalf("sends = %d, want 0 (subscriber is in the room)", got)
	}
	e, ok := tr.Get("yara", "r1", 2)
	if !ok {
		t.Fatal("slot not occupied for self-present subscriber")
	}
	if e.Ref != nil {
		t.Fatal("suppressed slot should hold a null handle")
	}
}

func TestDeliveryFailureIsolation(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "blocked")
	_ = reg.Add(ctx, "t1", "r1", 2, "open")
	gw.failFor["blocked"] = true

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "bob", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob"),
	})

	if got := gw.count("send"); got != 1 {
		t.Fatalf("sends = %d, want 1 (the reachable subscriber)", got)
	}
	if e, ok := tr.Get("blocked", "r1", 2); !ok || e.Ref != nil {
		t.Fatalf("failed delivery slot = %+v ok=%v, want occupied null", e, ok)
	}
	if e, ok := tr.Get("open", "r1", 2); !ok || e.Ref == nil {
		t.Fatalf("successful delivery slot = %+v ok=%v, want handle", e, ok)
	}
}

func TestStaleNotificationReplaced(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "xavier")
	_ = reg.Add(ctx, "t1", "r1", 3, "xavier")

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "bob", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob"),
	})
	if gw.count("send") != 1 {
		t.Fatal("setup send missing")
	}

	// Count moves to 3; xavier is still outside the room. The old message
	// is stale: deleted, then replaced by a fresh send.
	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "carol", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob", "carol"),
	})

	if got := gw.count("delete"); got != 1 {
		t.Fatalf("deletes = %d, want 1", got)
	}
	if got := gw.count("send"); got != 2 {
		t.Fatalf("sends = %d, want 2", got)
	}
	if _, ok := tr.Get("xavier", "r1", 2); ok {
		t.Fatal("stale slot at threshold 2 not cleared")
	}
	if e, ok := tr.Get("xavier", "r1", 3); !ok || e.Ref == nil {
		t.Fatal("fresh slot at threshold 3 missing")
	}
}

func TestInRoomThresholdChangeEditsInPlace(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "xavier")
	_ = reg.Add(ctx, "t1", "r1", 3, "xavier")

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "bob", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob"),
	})
	if gw.count("send") != 1 {
		t.Fatal("setup send missing")
	}

	// xavier then joins the room himself, bringing the count to his other
	// threshold. No new DM; the existing message is edited in place.
	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "xavier", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob", "xavier"),
	})

	if got := gw.count("send"); got != 1 {
		t.Fatalf("sends = %d, want 1", got)
	}
	if got := gw.count("delete"); got != 0 {
		t.Fatalf("deletes = %d, want 0", got)
	}
	if got := gw.count("edit"); got == 0 {
		t.Fatal("expected in-place edit")
	}
	if _, ok := tr.Get("xavier", "r1", 2); !ok {
		t.Fatal("existing slot should survive an in-room threshold match")
	}
}

func TestDepartureRefreshesRoster(t *testing.T) {
	t.Parallel()
	p, reg, tr, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 3, "xavier")

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "carol", TenantID: "t1",
		CurrRoomID: "r1", CurrRoster: roster("alice", "bob", "carol"),
	})
	if gw.count("send") != 1 {
		t.Fatal("setup send missing")
	}

	// carol leaves; the room is still occupied, so the outstanding
	// notification gets a roster refresh even though no threshold matched.
	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "carol", TenantID: "t1",
		PrevRoomID: "r1", PrevRoster: roster("alice", "bob"),
	})

	var last string
	for _, op := range gw.ops {
		if op.kind == "edit" {
			last = op.text
		}
	}
	if !strings.Contains(last, "<@alice>") || strings.Contains(last, "<@carol>") {
		t.Fatalf("refreshed text = %q, want alice without carol", last)
	}
	if e, ok := tr.Get("xavier", "r1", 3); !ok || e.Text != last {
		t.Fatal("tracker text not refreshed")
	}
}

func TestBotsExcludedFromCount(t *testing.T) {
	t.Parallel()
	p, reg, _, gw := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "xavier")

	p.HandlePresence(ctx, &transport.PresenceEvent{
		UserID: "bot", TenantID: "t1",
		CurrRoomID: "r1",
		CurrRoster: []transport.Participant{
			{ID: "alice"}, {ID: "bob"}, {ID: "musicbot", Bot: true},
		},
	})

	if got := gw.count("send"); got != 1 {
		t.Fatalf("sends = %d, want 1 (bot must not raise the count past 2)", got)
	}
}

func TestJanitorPrunesOrphanedNullSlots(t *testing.T) {
	t.Parallel()
	p, reg, tr, _ := newProcessor(t)
	ctx := context.Background()
	_ = reg.Add(ctx, "t1", "r1", 2, "kept")

	tr.Set(Slot{Subscriber: "kept", Tenant: "t1", Room: "r1", Threshold: 2}, nil, "x")
	tr.Set(Slot{Subscriber: "gone", Tenant: "t1", Room: "r1", Threshold: 4}, nil, "x")
	ref := transport.MessageRef{ChannelID: "c", MessageID: "m"}
	tr.Set(Slot{Subscriber: "live", Tenant: "t1", Room: "r1", Threshold: 5}, &ref, "x")

	p.Janitor(ctx)

	if _, ok := tr.Get("kept", "r1", 2); !ok {
		t.Fatal("slot with live subscription was pruned")
	}
	if _, ok := tr.Get("gone", "r1", 4); ok {
		t.Fatal("orphaned null slot survived")
	}
	if _, ok := tr.Get("live", "r1", 5); !ok {
		t.Fatal("slot with a message handle must never be pruned")
	}
}
