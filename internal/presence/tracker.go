package presence

import (
	"sort"

	"voicely/internal/transport"
)

// Slot identifies one notification entry. The tracker keys entries by
// (subscriber, room, threshold); the tenant rides along so sweeps can check
// the registry without a reverse lookup.
type Slot struct {
	Subscriber string
	Tenant     string
	Room       string
	Threshold  int
}

// Outstanding is one live tracker entry. Ref is nil when delivery failed or
// was suppressed; the slot is still occupied either way.
type Outstanding struct {
	Subscriber string
	Tenant     string
	Room       string
	Threshold  int
	Ref        *transport.MessageRef
	Text       string
}

type slotKey struct {
	subscriber string
	room       string
	threshold  int
}

type slotState struct {
	tenant string
	ref    *transport.MessageRef
	text   string
}

// Tracker records which notifications are currently outstanding.
//
// It is working memory only: nothing is persisted, and it starts empty on
// every process start. Messages delivered before a restart are orphaned on
// the platform and will not be edited or cleaned up by later events.
//
// Not safe for concurrent use; the app event loop is the single writer.
type Tracker struct {
	slots map[slotKey]*slotState
}

func NewTracker() *Tracker {
	return &Tracker{slots: map[slotKey]*slotState{}}
}

// Set creates or replaces the entry for slot. A nil ref occupies the slot
// without a message handle. Text is the last rendered message content, kept
// so later edits can be derived from it.
func (t *Tracker) Set(slot Slot, ref *transport.MessageRef, text string) {
	t.slots[slotKey{slot.Subscriber, slot.Room, slot.Threshold}] = &slotState{
		tenant: slot.Tenant,
		ref:    ref,
		text:   text,
	}
}

// Get returns the entry for (subscriber, room, threshold). ok
// distinguishes an occupied slot with a nil handle from no entry at all.
func (t *Tracker) Get(subscriber, room string, threshold int) (Outstanding, bool) {
	st, ok := t.slots[slotKey{subscriber, room, threshold}]
	if !ok {
		return Outstanding{}, false
	}
	return Outstanding{
		Subscriber: subscriber,
		Tenant:     st.tenant,
		Room:       room,
		Threshold:  threshold,
		Ref:        st.ref,
		Text:       st.text,
	}, true
}

// ClearThreshold removes a single entry. Clearing an absent entry is a
// no-op.
func (t *Tracker) ClearThreshold(subscriber, room string, threshold int) {
	delete(t.slots, slotKey{subscriber, room, threshold})
}

// ClearRoom removes every subscriber's entries for room, across all
// thresholds.
func (t *Tracker) ClearRoom(room string) {
	for k := range t.slots {
		if k.room == room {
			delete(t.slots, k)
		}
	}
}

// OutstandingForRoom returns every entry for room, ordered by subscriber
// then threshold.
func (t *Tracker) OutstandingForRoom(room string) []Outstanding {
	var out []Outstanding
	for k, st := range t.slots {
		if k.room != room {
			continue
		}
		out = append(out, Outstanding{
			Subscriber: k.subscriber,
			Tenant:     st.tenant,
			Room:       k.room,
			Threshold:  k.threshold,
			Ref:        st.ref,
			Text:       st.text,
		})
	}
	sortOutstanding(out)
	return out
}

// OutstandingForSubscriber returns the subscriber's entries for room,
// ordered by threshold.
func (t *Tracker) OutstandingForSubscriber(subscriber, room string) []Outstanding {
	var out []Outstanding
	for k, st := range t.slots {
		if k.room != room || k.subscriber != subscriber {
			continue
		}
		out = append(out, Outstanding{
			Subscriber: k.subscriber,
			Tenant:     st.tenant,
			Room:       k.room,
			Threshold:  k.threshold,
			Ref:        st.ref,
			Text:       st.text,
		})
	}
	sortOutstanding(out)
	return out
}

// All returns every entry, ordered for determinism.
func (t *Tracker) All() []Outstanding {
	out := make([]Outstanding, 0, len(t.slots))
	for k, st := range t.slots {
		out = append(out, Outstanding{
			Subscriber: k.subscriber,
			Tenant:     st.tenant,
			Room:       k.room,
			Threshold:  k.threshold,
			Ref:        st.ref,
			Text:       st.text,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Room != out[j].Room {
			return out[i].Room < out[j].Room
		}
		if out[i].Subscriber != out[j].Subscriber {
			return out[i].Subscriber < out[j].Subscriber
		}
		return out[i].Threshold < out[j].Threshold
	})
	return out
}

// Len returns the number of occupied slots.
func (t *Tracker) Len() int { return len(t.slots) }

func sortOutstanding(out []Outstanding) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subscriber != out[j].Subscriber {
			return out[i].Subscriber < out[j].Subscriber
		}
		return out[i].Threshold < out[j].Threshold
	})
}
