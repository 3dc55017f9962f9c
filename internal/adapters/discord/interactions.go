package discord

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"voicely/internal/transport"
)

// registerCommands publishes the /ping command tree. Registration is global;
// Discord propagates it to every guild the bot is in.
func (a *Adapter) registerCommands() error {
	minCount := 1.0
	cmd := &discordgo.ApplicationCommand{
		Name:        "ping",
		Description: "Voice room presence pings",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "add",
				Description: "Get pinged when a voice room reaches a member count",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove pings you no longer want",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "config",
				Description: "Show or change server-wide ping settings",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "default_count",
						Description: "Default member count suggested to new pings",
						MinValue:    &minCount,
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "public_confirmations",
						Description: "Post ping confirmations publicly instead of ephemerally",
					},
				},
			},
		},
	}
	if _, err := a.session.ApplicationCommandCreate(a.session.State.User.ID, "", cmd); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	return nil
}

func (a *Adapter) onInteraction(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	in := &transport.Interaction{
		TenantID: i.GuildID,
		UserID:   interactionUserID(i),
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != "ping" || len(data.Options) == 0 {
			return
		}
		sub := data.Options[0]
		in.Kind = transport.InteractionCommand
		in.Command = data.Name + " " + sub.Name
		in.Options = optionStrings(sub.Options)
		in.Respond = &responder{session: s, interaction: i}

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		in.Kind = transport.InteractionComponent
		in.CustomID = data.CustomID
		in.Values = data.Values
		// Components live on an existing (usually ephemeral) message; the
		// reply replaces it instead of stacking a new one.
		in.Respond = &responder{session: s, interaction: i, update: true}

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		in.Kind = transport.InteractionModal
		in.CustomID = data.CustomID
		in.Inputs = textInputs(data.Components)
		in.Respond = &responder{session: s, interaction: i}

	default:
		return
	}

	a.emit(ctx, transport.Event{Kind: transport.EventInteraction, Interaction: in})
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func optionStrings(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	out := make(map[string]string, len(opts))
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionInteger:
			out[o.Name] = strconv.FormatInt(o.IntValue(), 10)
		case discordgo.ApplicationCommandOptionBoolean:
			out[o.Name] = strconv.FormatBool(o.BoolValue())
		case discordgo.ApplicationCommandOptionString:
			out[o.Name] = o.StringValue()
		}
	}
	return out
}

func textInputs(components []discordgo.MessageComponent) map[string]string {
	out := map[string]string{}
	for _, c := range components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if ti, ok := rc.(*discordgo.TextInput); ok {
				out[ti.CustomID] = ti.Value
			}
		}
	}
	return out
}

// responder renders one transport.Reply as the interaction's response.
type responder struct {
	session     *discordgo.Session
	interaction *discordgo.InteractionCreate
	update      bool
}

func (r *responder) Respond(ctx context.Context, rep transport.Reply) error {
	resp := &discordgo.InteractionResponse{}

	if rep.Modal != nil {
		resp.Type = discordgo.InteractionResponseModal
		resp.Data = &discordgo.InteractionResponseData{
			CustomID:   rep.Modal.CustomID,
			Title:      rep.Modal.Title,
			Components: modalComponents(rep.Modal),
		}
		return r.session.InteractionRespond(r.interaction.Interaction, resp, discordgo.WithContext(ctx))
	}

	resp.Type = discordgo.InteractionResponseChannelMessageWithSource
	if r.update {
		resp.Type = discordgo.InteractionResponseUpdateMessage
	}
	data := &discordgo.InteractionResponseData{
		Content:    rep.Text,
		Components: messageComponents(rep),
	}
	if rep.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	resp.Data = data
	return r.session.InteractionRespond(r.interaction.Interaction, resp, discordgo.WithContext(ctx))
}

func messageComponents(rep transport.Reply) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, sel := range rep.Selects {
		minValues := sel.MinValues
		menu := discordgo.SelectMenu{
			CustomID:    sel.CustomID,
			Placeholder: sel.Placeholder,
			MinValues:   &minValues,
			MaxValues:   sel.MaxValues,
		}
		if sel.RoomPicker {
			menu.MenuType = discordgo.ChannelSelectMenu
			menu.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice}
		} else {
			menu.MenuType = discordgo.StringSelectMenu
			for _, o := range sel.Options {
				menu.Options = append(menu.Options, discordgo.SelectMenuOption{
					Label:       o.Label,
					Value:       o.Value,
					Description: o.Description,
				})
			}
		}
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{menu},
		})
	}
	if len(rep.Buttons) > 0 {
		var btns []discordgo.MessageComponent
		for _, b := range rep.Buttons {
			btns = append(btns, discordgo.Button{
				CustomID: b.CustomID,
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
			})
		}
		rows = append(rows, discordgo.ActionsRow{Components: btns})
	}
	return rows
}

func modalComponents(m *transport.Modal) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for _, in := range m.Inputs {
		rows = append(rows, discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{discordgo.TextInput{
				CustomID:    in.CustomID,
				Label:       in.Label,
				Placeholder: in.Placeholder,
				MaxLength:   in.MaxLength,
				Style:       discordgo.TextInputShort,
				Required:    true,
			}},
		})
	}
	return rows
}
