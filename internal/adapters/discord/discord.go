// Package discord adapts the Discord gateway (via discordgo) to the
// transport model: voice state updates become presence events, interactions
// become platform-agnostic Interaction values, and replies are rendered back
// into native messages, components and modals.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"

	"voicely/internal/transport"
	logx "voicely/pkg/logx"
)

type Config struct {
	Token string
}

// Adapter owns the discordgo session. It implements transport.Gateway and
// transport.NameResolver.
type Adapter struct {
	log     logx.Logger
	session *discordgo.Session

	mu  sync.Mutex
	out chan<- transport.Event

	// dmChannels caches user -> DM channel so repeated notifications don't
	// re-open the channel.
	dmMu       sync.Mutex
	dmChannels map[string]string
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers
	s.StateEnabled = true

	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		log:        log,
		session:    s,
		dmChannels: map[string]string{},
	}, nil
}

// Start connects the session and begins emitting events on out. It returns
// once the connection is up; events flow on discordgo's goroutines.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Event) error {
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()

	a.session.AddHandler(func(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		a.onVoiceState(ctx, s, v)
	})
	a.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		a.onInteraction(ctx, s, i)
	})

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	if err := a.registerCommands(); err != nil {
		_ = a.session.Close()
		return err
	}
	a.log.Info("discord gateway connected",
		logx.String("user", a.session.State.User.Username))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	_ = ctx
	return a.session.Close()
}

func (a *Adapter) onVoiceState(ctx context.Context, s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID == "" {
		return
	}
	prevRoom := ""
	if v.BeforeUpdate != nil {
		prevRoom = v.BeforeUpdate.ChannelID
	}
	if prevRoom == v.ChannelID {
		// Mute/deafen toggles and the like; occupancy is unchanged.
		return
	}

	ev := &transport.PresenceEvent{
		UserID:     v.UserID,
		TenantID:   v.GuildID,
		PrevRoomID: prevRoom,
		CurrRoomID: v.ChannelID,
	}
	if prevRoom != "" {
		ev.PrevRoster = a.roster(s, v.GuildID, prevRoom)
	}
	if v.ChannelID != "" {
		ev.CurrRoster = a.roster(s, v.GuildID, v.ChannelID)
	}
	a.emit(ctx, transport.Event{Kind: transport.EventPresence, Presence: ev})
}

// roster reads the room's occupants from the session state cache. The cache
// reflects the update that triggered the handler, so this is the post-change
// roster.
func (a *Adapter) roster(s *discordgo.Session, guildID, channelID string) []transport.Participant {
	g, err := s.State.Guild(guildID)
	if err != nil {
		a.log.Warn("guild not in state cache", logx.String("guild", guildID), logx.Err(err))
		return nil
	}
	var out []transport.Participant
	for _, vs := range g.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		out = append(out, transport.Participant{
			ID:  vs.UserID,
			Bot: a.isBot(s, guildID, vs),
		})
	}
	return out
}

func (a *Adapter) isBot(s *discordgo.Session, guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if m, err := s.State.Member(guildID, vs.UserID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return false
}

func (a *Adapter) emit(ctx context.Context, ev transport.Event) {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// SendDirect opens (or reuses) the user's DM channel and sends text.
func (a *Adapter) SendDirect(ctx context.Context, userID, text string) (transport.MessageRef, error) {
	chID, err := a.dmChannel(ctx, userID)
	if err != nil {
		return transport.MessageRef{}, err
	}
	msg, err := a.session.ChannelMessageSend(chID, text, discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageRef{}, fmt.Errorf("discord: send dm to %s: %w", userID, err)
	}
	return transport.MessageRef{ChannelID: chID, MessageID: msg.ID}, nil
}

func (a *Adapter) Edit(ctx context.Context, ref transport.MessageRef, text string) error {
	_, err := a.session.ChannelMessageEdit(ref.ChannelID, ref.MessageID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: edit message %s: %w", ref.MessageID, err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, ref transport.MessageRef) error {
	if err := a.session.ChannelMessageDelete(ref.ChannelID, ref.MessageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete message %s: %w", ref.MessageID, err)
	}
	return nil
}

func (a *Adapter) dmChannel(ctx context.Context, userID string) (string, error) {
	a.dmMu.Lock()
	chID, ok := a.dmChannels[userID]
	a.dmMu.Unlock()
	if ok {
		return chID, nil
	}
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: open dm channel for %s: %w", userID, err)
	}
	a.dmMu.Lock()
	a.dmChannels[userID] = ch.ID
	a.dmMu.Unlock()
	return ch.ID, nil
}

// TenantName implements transport.NameResolver.
func (a *Adapter) TenantName(id string) string {
	if g, err := a.session.State.Guild(id); err == nil && g.Name != "" {
		return g.Name
	}
	return id
}

// RoomName implements transport.NameResolver.
func (a *Adapter) RoomName(id string) string {
	if ch, err := a.session.State.Channel(id); err == nil && ch.Name != "" {
		return ch.Name
	}
	return id
}
