package transport

import "context"

type EventKind string

const (
	EventPresence    EventKind = "presence"
	EventInteraction EventKind = "interaction"
	EventJanitor     EventKind = "janitor"
)

// Event is a single unit of work for the app loop. Exactly one of the
// pointer fields is set, selected by Kind.
type Event struct {
	Kind        EventKind
	Presence    *PresenceEvent
	Interaction *Interaction
}

// Participant is one entry in a room roster.
type Participant struct {
	ID  string
	Bot bool
}

// PresenceEvent describes one membership change of one user.
//
// PrevRoster and CurrRoster are the live rosters of the two rooms as
// observed after the change has been applied. Either room may be absent
// (user joined from nowhere / disconnected entirely).
type PresenceEvent struct {
	UserID   string
	TenantID string

	PrevRoomID string
	CurrRoomID string

	PrevRoster []Participant
	CurrRoster []Participant
}

type InteractionKind string

const (
	InteractionCommand   InteractionKind = "command"
	InteractionComponent InteractionKind = "component"
	InteractionModal     InteractionKind = "modal"
)

// Interaction is a platform-agnostic view of one user interaction
// (slash command, component submit, or modal submit).
type Interaction struct {
	Kind     InteractionKind
	Command  string // "ping add", "ping remove", ... (commands only)
	CustomID string // component/modal custom id
	Values   []string
	Inputs   map[string]string // modal text inputs, keyed by custom id
	Options  map[string]string // command options, keyed by option name

	TenantID string
	UserID   string

	Respond Responder
}

// Responder answers a single interaction. Each Interaction carries its own.
type Responder interface {
	Respond(ctx context.Context, r Reply) error
}

// Reply is the platform-agnostic response model the adapter renders into
// native messages, select menus, buttons and modals.
type Reply struct {
	Text      string
	Ephemeral bool

	Selects []SelectControl
	Buttons []Button

	// Modal, when set, takes precedence over everything else.
	Modal *Modal
}

type SelectControl struct {
	CustomID    string
	Placeholder string
	MinValues   int
	MaxValues   int
	Options     []SelectOption

	// RoomPicker renders a native voice-room picker instead of Options.
	RoomPicker bool
}

type SelectOption struct {
	Label       string
	Value       string
	Description string
}

type Button struct {
	CustomID string
	Label    string
}

type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

type TextInput struct {
	CustomID    string
	Label       string
	Placeholder string
	MaxLength   int
}

// MessageRef identifies a delivered direct message.
type MessageRef struct {
	ChannelID string
	MessageID string
}

// Gateway is the messaging platform boundary: it emits Events into the app
// loop and performs outbound direct-message operations.
type Gateway interface {
	Start(ctx context.Context, out chan<- Event) error
	Stop(ctx context.Context) error

	SendDirect(ctx context.Context, userID, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
	Delete(ctx context.Context, ref MessageRef) error
}

// NameResolver resolves display names for tenants and rooms. Implemented by
// the gateway adapter; used by the removal flow to label selections.
type NameResolver interface {
	TenantName(id string) string
	RoomName(id string) string
}
