package presence

import (
	"context"
	"time"

	"voicely/internal/eventbus"
	"voicely/internal/registry"
	"voicely/internal/transport"
	logx "voicely/pkg/logx"
)

// Processor is the occupancy state machine. It consumes presence events,
// consults the registry and the tracker, and issues send/edit/delete calls
// against the gateway.
//
// One event is processed to completion, including every outbound call,
// before the next one; the app event loop is the single writer of both the
// registry and the tracker, so no locking happens here. A failing delivery
// is absorbed per recipient and never aborts the rest of the event.
type Processor struct {
	log     logx.Logger
	reg     *registry.Registry
	tracker *Tracker
	gw      transport.Gateway
	bus     eventbus.Bus

	sendTimeout time.Duration
	now         func() time.Time
}

func NewProcessor(reg *registry.Registry, tracker *Tracker, gw transport.Gateway, bus eventbus.Bus, log logx.Logger) *Processor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Processor{
		log:         log,
		reg:         reg,
		tracker:     tracker,
		gw:          gw,
		bus:         bus,
		sendTimeout: 10 * time.Second,
		now:         time.Now,
	}
}

// SetSendTimeout bounds each outbound gateway call. A timed-out call is
// treated like any other delivery failure.
func (p *Processor) SetSendTimeout(d time.Duration) {
	if d > 0 {
		p.sendTimeout = d
	}
}

// HandlePresence processes one membership change: the departure side first
// (room emptied, or roster refresh for lingering notifications), then the
// arrival side (threshold matching).
func (p *Processor) HandlePresence(ctx context.Context, ev *transport.PresenceEvent) {
	if ev == nil {
		return
	}
	if ev.PrevRoomID != "" {
		p.handleDeparture(ctx, ev)
	}
	if ev.CurrRoomID != "" {
		p.handleArrival(ctx, ev)
	}
}

func (p *Processor) handleDeparture(ctx context.Context, ev *transport.PresenceEvent) {
	room := ev.PrevRoomID
	roster := humanIDs(ev.PrevRoster)

	if len(roster) == 0 {
		outs := p.tracker.OutstandingForRoom(room)
		if len(outs) == 0 {
			return
		}
		at := p.now()
		for _, o := range outs {
			if o.Ref == nil {
				continue
			}
			if err := p.edit(ctx, *o.Ref, pastTense(o.Text, at)); err != nil {
				p.log.Warn("past-tense edit failed",
					logx.String("subscriber", o.Subscriber),
					logx.String("room", room),
					logx.Err(err),
				)
			}
		}
		p.tracker.ClearRoom(room)
		p.publish(eventbus.TypeRoomEmptied, ev.TenantID, room, "", 0)
		p.log.Debug("room emptied; notifications retired",
			logx.String("room", room), logx.Int("count", len(outs)))
		return
	}

	// Room still occupied: refresh every outstanding message for it so the
	// displayed roster stays current, regardless of the matched threshold.
	text := renderPresence(roster, ev.TenantID, room)
	for _, o := range p.tracker.OutstandingForRoom(room) {
		if o.Ref != nil {
			if err := p.edit(ctx, *o.Ref, text); err != nil {
				p.log.Warn("roster refresh edit failed",
					logx.String("subscriber", o.Subscriber),
					logx.String("room", room),
					logx.Err(err),
				)
			}
		}
		p.tracker.Set(Slot{
			Subscriber: o.Subscriber,
			Tenant:     o.Tenant,
			Room:       room,
			Threshold:  o.Threshold,
		}, o.Ref, text)
	}
}

func (p *Processor) handleArrival(ctx context.Context, ev *transport.PresenceEvent) {
	room := ev.CurrRoomID
	roster := humanIDs(ev.CurrRoster)
	count := len(roster)
	if count == 0 {
		return
	}

	matched := p.reg.Query(ev.TenantID, room)[count]
	if len(matched) == 0 {
		return
	}

	text := renderPresence(roster, ev.TenantID, room)
	for _, subscriber := range matched {
		p.notifyOne(ctx, subscriber, ev.TenantID, room, count, roster, text)
	}
}

func (p *Processor) notifyOne(ctx context.Context, subscriber, tenant, room string, count int, roster []string, text string) {
	// Already notified at exactly this count: refresh in place. Repeated
	// events for the same stable count stay idempotent.
	if e, ok := p.tracker.Get(subscriber, room, count); ok {
		if e.Ref != nil {
			if err := p.edit(ctx, *e.Ref, text); err != nil {
				p.log.Warn("refresh edit failed",
					logx.String("subscriber", subscriber), logx.String("room", room), logx.Err(err))
			}
		}
		p.tracker.Set(Slot{Subscriber: subscriber, Tenant: tenant, Room: room, Threshold: count}, e.Ref, text)
		return
	}

	// Outstanding notification for this room at some other count.
	if others := p.tracker.OutstandingForSubscriber(subscriber, room); len(others) > 0 {
		if contains(roster, subscriber) {
			// A subscriber inside the room never gets a fresh DM for it;
			// keep the existing message current instead.
			for _, o := range others {
				if o.Ref != nil {
					if err := p.edit(ctx, *o.Ref, text); err != nil {
						p.log.Warn("in-room edit failed",
							logx.String("subscriber", subscriber), logx.String("room", room), logx.Err(err))
					}
				}
				p.tracker.Set(Slot{Subscriber: o.Subscriber, Tenant: o.Tenant, Room: room, Threshold: o.Threshold}, o.Ref, text)
			}
			return
		}
		// Subscriber is outside the room: the old notification is stale.
		// Drop it and fall through to a fresh send.
		for _, o := range others {
			if o.Ref != nil {
				if err := p.delete(ctx, *o.Ref); err != nil {
					p.log.Warn("stale notification delete failed",
						logx.String("subscriber", subscriber), logx.String("room", room), logx.Err(err))
				}
			}
			p.tracker.ClearThreshold(subscriber, room, o.Threshold)
		}
	}

	// Fresh slot. Occupy it before any membership check or delivery
	// attempt, so a leave-and-rejoin at the same count cannot resend.
	slot := Slot{Subscriber: subscriber, Tenant: tenant, Room: room, Threshold: count}
	p.tracker.Set(slot, nil, text)

	if contains(roster, subscriber) {
		p.publish(eventbus.TypeNotifySuppressed, tenant, room, subscriber, count)
		return
	}

	ref, err := p.send(ctx, subscriber, text)
	if err != nil {
		// Permanent for this slot: logged, never retried, slot stays
		// occupied with a null handle.
		p.log.Warn("notification delivery failed",
			logx.String("subscriber", subscriber), logx.String("room", room), logx.Err(err))
		p.publish(eventbus.TypeNotifyFailed, tenant, room, subscriber, count)
		return
	}
	p.tracker.Set(slot, &ref, text)
	p.publish(eventbus.TypeNotifySent, tenant, room, subscriber, count)
}

// Janitor prunes occupied-with-null slots whose subscription has since been
// removed from the registry. Slots holding a live message are left alone so
// their vacancy edit still happens.
func (p *Processor) Janitor(ctx context.Context) {
	_ = ctx
	pruned := 0
	for _, o := range p.tracker.All() {
		if o.Ref != nil {
			continue
		}
		if !p.reg.Has(o.Tenant, o.Room, o.Threshold, o.Subscriber) {
			p.tracker.ClearThreshold(o.Subscriber, o.Room, o.Threshold)
			pruned++
		}
	}
	if pruned > 0 {
		p.log.Debug("janitor pruned stale slots", logx.Int("count", pruned))
	}
}

// NotifyEvent is the payload of notify.* and room.emptied bus events.
type NotifyEvent struct {
	Tenant     string
	Room       string
	Subscriber string
	Threshold  int
}

func (p *Processor) publish(typ, tenant, room, subscriber string, threshold int) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{
		Type: typ,
		Data: NotifyEvent{Tenant: tenant, Room: room, Subscriber: subscriber, Threshold: threshold},
	})
}

func (p *Processor) send(ctx context.Context, userID, text string) (transport.MessageRef, error) {
	cctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	return p.gw.SendDirect(cctx, userID, text)
}

func (p *Processor) edit(ctx context.Context, ref transport.MessageRef, text string) error {
	cctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	return p.gw.Edit(cctx, ref, text)
}

func (p *Processor) delete(ctx context.Context, ref transport.MessageRef) error {
	cctx, cancel := context.WithTimeout(ctx, p.sendTimeout)
	defer cancel()
	return p.gw.Delete(cctx, ref)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
