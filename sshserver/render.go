package sshserver

import (
	"fmt"

	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/schema"
)

// renderEvent formats a presentation event for the console. window is the
// session's selected window; title events for other windows are skipped.
// Indicator events are skipped since membership lines already carry them.
func renderEvent(ev eventbus.Event, window schema.WindowID, theme tuiTheme) (string, bool) {
	switch ev.Type {
	case eventbus.EventNotice:
		title := ev.Notice.Title
		if title == "" {
			title = schema.DefaultNoticeTitle
		}
		return colorize(ansiBold+title+": ", theme.NoticeFG) + ev.Notice.Message, true
	case eventbus.EventMembership:
		return renderMembership(ev.Membership, theme), true
	case eventbus.EventTitle:
		if window != schema.NoWindow && ev.Title.WindowID != window {
			return "", false
		}
		if ev.Title.Tag == schema.TitleTagNone || ev.Title.Tag == "" {
			return colorize(fmt.Sprintf("window %d: title cleared", ev.Title.WindowID), theme.MetaFG), true
		}
		return colorize(fmt.Sprintf("window %d: title %q", ev.Title.WindowID, ev.Title.Preface), theme.MetaFG), true
	default:
		return "", false
	}
}

func renderMembership(ev schema.MembershipEvent, theme tuiTheme) string {
	switch ev.Role {
	case schema.RoleHost:
		return colorize(fmt.Sprintf("tab %d is now a stack host", ev.TabID), theme.HostFG)
	case schema.RoleGuest:
		return colorize(fmt.Sprintf("tab %d joined the stack of %d", ev.TabID, ev.Host), theme.GuestFG)
	default:
		return colorize(fmt.Sprintf("tab %d left its stack", ev.TabID), theme.MetaFG)
	}
}

func renderError(err error, theme tuiTheme) string {
	return colorize("error: "+err.Error(), theme.ErrorFG)
}
