package presence

import (
	"fmt"
	"strings"
	"time"

	"voicely/internal/transport"
)

// namedRosterMax is the largest occupancy that still names members
// individually; above it the message just carries the count.
const namedRosterMax = 5

// humanIDs filters bot/service accounts out of a roster, preserving order.
func humanIDs(roster []transport.Participant) []string {
	var out []string
	for _, p := range roster {
		if p.Bot {
			continue
		}
		out = append(out, p.ID)
	}
	return out
}

func roomLink(tenant, room string) string {
	return "https://discord.com/channels/" + tenant + "/" + room
}

// mentionList renders member mentions per occupancy:
//
//	1: "@a"
//	2: "@a and @b"
//	3..5: "@a, @b, and @c"
//	>5: "**{n}** members"
func mentionList(ids []string) string {
	n := len(ids)
	if n > namedRosterMax {
		return fmt.Sprintf("**%d** members", n)
	}
	var b strings.Builder
	for i, id := range ids {
		switch {
		case n == 1:
			b.WriteString("<@" + id + ">")
		case i == 0 && n == 2:
			b.WriteString("<@" + id + "> ")
		case i < n-1:
			b.WriteString("<@" + id + ">, ")
		default:
			b.WriteString("and <@" + id + ">")
		}
	}
	return b.String()
}

func presenceVerb(count int) string {
	if count == 1 {
		return "is"
	}
	return "are"
}

// renderPresence renders the live notification text for a room roster.
func renderPresence(ids []string, tenant, room string) string {
	return fmt.Sprintf("%s %s currently in %s", mentionList(ids), presenceVerb(len(ids)), roomLink(tenant, room))
}

var pastTenseReplacer = strings.NewReplacer(
	"is currently", "was",
	"are currently", "were",
)

// pastTense rewrites a live notification into its emptied-room form and
// appends the moment the last member left.
func pastTense(text string, at time.Time) string {
	return fmt.Sprintf("%s. (last member left <t:%d:R>)", pastTenseReplacer.Replace(text), at.Unix())
}
