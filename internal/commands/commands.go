// Package commands routes user interactions (slash commands, component
// submits, modal submits) to the registry and settings services and builds
// the replies the gateway adapter renders.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"voicely/internal/pager"
	"voicely/internal/registry"
	"voicely/internal/settings"
	"voicely/internal/transport"
	logx "voicely/pkg/logx"
)

// Component and modal custom IDs. Token- and page-carrying IDs append their
// payload after a colon.
const (
	idAddRooms    = "ping_add_rooms"
	idAddContinue = "ping_add_go"  // :token
	idAddModal    = "ping_add_cnt" // :token
	idRemovePage  = "ping_rm_page" // :page
	idRemovePick  = "ping_rm_pick" // :page:chunk
)

// Removal select values are "tenant/room/threshold"; IDs are numeric
// snowflakes so the separator is unambiguous.
const removeValueSep = "/"

// Router dispatches one interaction at a time. It runs on the app event
// loop, so it shares the registry and settings single-writer discipline.
type Router struct {
	log      logx.Logger
	reg      *registry.Registry
	settings *settings.Service
	names    transport.NameResolver
	sessions *SessionStore
}

func NewRouter(reg *registry.Registry, st *settings.Service, names transport.NameResolver, sessions *SessionStore, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sessions == nil {
		sessions = NewSessionStore(0)
	}
	return &Router{log: log, reg: reg, settings: st, names: names, sessions: sessions}
}

// Handle processes one interaction to completion. Unroutable interactions
// are logged and dropped; a user never waits on a reply we cannot produce.
func (r *Router) Handle(ctx context.Context, in *transport.Interaction) {
	if in == nil || in.Respond == nil {
		return
	}
	switch in.Kind {
	case transport.InteractionCommand:
		switch in.Command {
		case "ping add":
			r.handleAdd(ctx, in)
		case "ping remove":
			r.handleRemovePage(ctx, in, 0)
		case "ping config":
			r.handleConfig(ctx, in)
		default:
			r.log.Warn("unknown command", logx.String("command", in.Command))
		}
	case transport.InteractionComponent:
		id, arg, _ := strings.Cut(in.CustomID, ":")
		switch id {
		case idAddRooms:
			r.handleAddRooms(ctx, in)
		case idAddContinue:
			r.handleAddContinue(ctx, in, arg)
		case idRemovePage:
			page, _ := strconv.Atoi(arg)
			r.handleRemovePage(ctx, in, page)
		case idRemovePick:
			r.handleRemovePick(ctx, in)
		default:
			r.log.Warn("unknown component", logx.String("custom_id", in.CustomID))
		}
	case transport.InteractionModal:
		id, arg, _ := strings.Cut(in.CustomID, ":")
		if id == idAddModal {
			r.handleAddSubmit(ctx, in, arg)
			return
		}
		r.log.Warn("unknown modal", logx.String("custom_id", in.CustomID))
	}
}

// --- add flow ---

func (r *Router) handleAdd(ctx context.Context, in *transport.Interaction) {
	r.reply(ctx, in, transport.Reply{
		Text:      "Choose from the dropdown to specify **one or more channels** to be notified in dm's for.",
		Ephemeral: true,
		Selects: []transport.SelectControl{{
			CustomID:    idAddRooms,
			Placeholder: "Select one or more channels",
			MinValues:   1,
			MaxValues:   pager.GroupSize,
			RoomPicker:  true,
		}},
	})
}

func (r *Router) handleAddRooms(ctx context.Context, in *transport.Interaction) {
	if len(in.Values) == 0 {
		r.fail(ctx, in, "You must select at least one channel!")
		return
	}
	token := r.sessions.Put(Session{
		UserID:   in.UserID,
		TenantID: in.TenantID,
		Rooms:    append([]string(nil), in.Values...),
	})

	s := plural(len(in.Values))
	r.reply(ctx, in, transport.Reply{
		Text: fmt.Sprintf(
			"You have selected the following channel%s: %s\n"+
				"In the modal that opens, type a number that represents the **number of people** "+
				"that need to be in the channel%s you selected for you to be notified.\n\n"+
				"You won't be notified again until after everyone has left the channel.",
			s, roomMentions(in.Values), s),
		Ephemeral: true,
		Buttons: []transport.Button{{
			CustomID: idAddContinue + ":" + token,
			Label:    "Continue",
		}},
	})
}

func (r *Router) handleAddContinue(ctx context.Context, in *transport.Interaction, token string) {
	if _, ok := r.sessions.Peek(token, in.UserID); !ok {
		r.fail(ctx, in, "This selection has expired. Run the command again.")
		return
	}
	def := r.settings.Get(in.TenantID).DefaultThreshold
	r.reply(ctx, in, transport.Reply{
		Modal: &transport.Modal{
			CustomID: idAddModal + ":" + token,
			Title:    "Specify member count",
			Inputs: []transport.TextInput{{
				CustomID:    "count",
				Label:       "Member count",
				Placeholder: strconv.Itoa(def),
				MaxLength:   3,
			}},
		},
	})
}

func (r *Router) handleAddSubmit(ctx context.Context, in *transport.Interaction, token string) {
	sess, ok := r.sessions.Take(token, in.UserID)
	if !ok {
		r.fail(ctx, in, "This selection has expired. Run the command again.")
		return
	}
	raw := in.Inputs["count"]
	threshold, err := ParseThreshold(raw)
	if err != nil {
		r.fail(ctx, in, fmt.Sprintf("`%s` is not a valid number! Only positive whole numbers are allowed.", raw))
		return
	}

	for _, room := range sess.Rooms {
		if err := r.reg.Add(ctx, sess.TenantID, room, threshold, sess.UserID); err != nil {
			r.log.Error("subscription add failed",
				logx.String("tenant", sess.TenantID),
				logx.String("room", room),
				logx.Int("threshold", threshold),
				logx.Err(err),
			)
			r.fail(ctx, in, "Something went wrong while saving your pings. Please try again.")
			return
		}
	}

	people, verb := "people", "are"
	if threshold == 1 {
		people, verb = "person", "is"
	}
	channelRef := "the following channel"
	if len(sess.Rooms) > 1 {
		channelRef = "any of the following channels"
	}

	r.log.Info("subscriptions added",
		logx.String("subscriber", sess.UserID),
		logx.String("tenant", sess.TenantID),
		logx.Int("rooms", len(sess.Rooms)),
		logx.Int("threshold", threshold),
	)
	r.reply(ctx, in, transport.Reply{
		Text: fmt.Sprintf("Ping%s set! You will be notified in dm's when **%d %s** %s in %s: %s",
			plural(len(sess.Rooms)), threshold, people, verb, channelRef, roomMentions(sess.Rooms)),
		Ephemeral: !r.settings.Get(sess.TenantID).PublicConfirm,
	})
}

// --- remove flow ---

func (r *Router) handleRemovePage(ctx context.Context, in *transport.Interaction, page int) {
	records := r.reg.ListForSubscriber(in.UserID)
	if len(records) == 0 {
		r.fail(ctx, in, "You have not set up any pings to remove.")
		return
	}

	items := make([]pager.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, pager.Item{
			Tenant:     rec.Tenant,
			TenantName: r.names.TenantName(rec.Tenant),
			Room:       rec.Room,
			RoomName:   r.names.RoomName(rec.Room),
			Threshold:  rec.Threshold,
		})
	}
	pager.Sort(items)
	pg := pager.Build(items, page)

	text := "Choose from the dropdowns below to remove those pings."
	if pg.Count > 1 {
		text += fmt.Sprintf("\nPage %d of %d", pg.Index+1, pg.Count)
	}

	reply := transport.Reply{Text: text, Ephemeral: true}
	for i, chunk := range pg.Chunks {
		opts := make([]transport.SelectOption, 0, len(chunk))
		for _, it := range chunk {
			opts = append(opts, transport.SelectOption{
				Label: fmt.Sprintf("%s: %d member%s", it.RoomName, it.Threshold, plural(it.Threshold)),
				Value: strings.Join([]string{it.Tenant, it.Room, strconv.Itoa(it.Threshold)}, removeValueSep),
				Description: it.TenantName,
			})
		}
		reply.Selects = append(reply.Selects, transport.SelectControl{
			CustomID:    fmt.Sprintf("%s:%d:%d", idRemovePick, pg.Index, i),
			Placeholder: chunkPlaceholder(chunk),
			MinValues:   1,
			MaxValues:   len(chunk),
			Options:     opts,
		})
	}
	if pg.HasPrev {
		reply.Buttons = append(reply.Buttons, transport.Button{
			CustomID: fmt.Sprintf("%s:%d", idRemovePage, pg.Index-1),
			Label:    "Previous Page",
		})
	}
	if pg.HasNext {
		reply.Buttons = append(reply.Buttons, transport.Button{
			CustomID: fmt.Sprintf("%s:%d", idRemovePage, pg.Index+1),
			Label:    "Next Page",
		})
	}
	r.reply(ctx, in, reply)
}

func (r *Router) handleRemovePick(ctx context.Context, in *transport.Interaction) {
	removed := 0
	for _, v := range in.Values {
		parts := strings.Split(v, removeValueSep)
		if len(parts) != 3 {
			r.log.Warn("malformed removal value", logx.String("value", v))
			continue
		}
		threshold, err := strconv.Atoi(parts[2])
		if err != nil {
			r.log.Warn("malformed removal threshold", logx.String("value", v))
			continue
		}
		ok, err := r.reg.Remove(ctx, parts[0], parts[1], threshold, in.UserID)
		if err != nil {
			r.log.Error("subscription remove failed", logx.String("value", v), logx.Err(err))
			r.fail(ctx, in, "Something went wrong while removing your pings. Please try again.")
			return
		}
		if ok {
			removed++
		}
	}
	r.reply(ctx, in, transport.Reply{
		Text:      fmt.Sprintf("Successfully removed **%d ping%s**.", removed, plural(removed)),
		Ephemeral: !r.settings.Get(in.TenantID).PublicConfirm,
	})
}

// --- config ---

func (r *Router) handleConfig(ctx context.Context, in *transport.Interaction) {
	cur := r.settings.Get(in.TenantID)

	rawCount, hasCount := in.Options["default_count"]
	rawPublic, hasPublic := in.Options["public_confirmations"]
	if !hasCount && !hasPublic {
		r.reply(ctx, in, transport.Reply{
			Text: fmt.Sprintf("Default member count: **%d**. Public confirmations: **%v**.",
				cur.DefaultThreshold, cur.PublicConfirm),
			Ephemeral: true,
		})
		return
	}

	next := cur
	if hasCount {
		n, err := ParseThreshold(rawCount)
		if err != nil {
			r.fail(ctx, in, fmt.Sprintf("`%s` is not a valid number! Only positive whole numbers are allowed.", rawCount))
			return
		}
		next.DefaultThreshold = n
	}
	if hasPublic {
		b, err := strconv.ParseBool(rawPublic)
		if err != nil {
			r.fail(ctx, in, "Public confirmations must be true or false.")
			return
		}
		next.PublicConfirm = b
	}

	if err := r.settings.Set(ctx, in.TenantID, next); err != nil {
		r.log.Error("settings update failed", logx.String("tenant", in.TenantID), logx.Err(err))
		r.fail(ctx, in, "Something went wrong while saving the settings. Please try again.")
		return
	}
	r.reply(ctx, in, transport.Reply{
		Text: fmt.Sprintf("Updated. Default member count: **%d**. Public confirmations: **%v**.",
			next.DefaultThreshold, next.PublicConfirm),
		Ephemeral: true,
	})
}

// --- helpers ---

// chunkPlaceholder labels a removal select the way the list reads: one
// tenant's pings, or a span of tenants when the chunk crosses a boundary.
func chunkPlaceholder(chunk []pager.Item) string {
	if len(chunk) == 0 {
		return ""
	}
	first := chunk[0].TenantName
	last := chunk[len(chunk)-1].TenantName
	if first == last {
		return "Pings in " + first
	}
	return fmt.Sprintf("Servers %s to %s", first, last)
}

func roomMentions(ids []string) string {
	mentions := make([]string, 0, len(ids))
	for _, id := range ids {
		mentions = append(mentions, "<#"+id+">")
	}
	return strings.Join(mentions, ", ")
}

func (r *Router) reply(ctx context.Context, in *transport.Interaction, rep transport.Reply) {
	if err := in.Respond.Respond(ctx, rep); err != nil {
		r.log.Warn("interaction reply failed",
			logx.String("user", in.UserID), logx.String("command", in.Command), logx.Err(err))
	}
}

func (r *Router) fail(ctx context.Context, in *transport.Interaction, msg string) {
	r.reply(ctx, in, transport.Reply{Text: msg, Ephemeral: true})
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
