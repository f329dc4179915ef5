package sshserver

import (
	"errors"
	"strings"
	"testing"

	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/schema"
)

func TestRenderEvent(t *testing.T) {
	theme := themeForName("")
	cases := []struct {
		name   string
		ev     eventbus.Event
		window schema.WindowID
		want   string
		show   bool
	}{
		{
			name: "notice",
			ev:   eventbus.Event{Type: eventbus.EventNotice, Notice: schema.NoticeEvent{Title: "tabstack", Message: "Tabs stacked"}},
			want: "Tabs stacked", show: true, window: schema.NoWindow,
		},
		{
			name: "guest membership",
			ev:   eventbus.Event{Type: eventbus.EventMembership, Membership: schema.MembershipEvent{TabID: 4, Role: schema.RoleGuest, Host: 2}},
			want: "tab 4 joined the stack of 2", show: true, window: schema.NoWindow,
		},
		{
			name: "title for selected window",
			ev:   eventbus.Event{Type: eventbus.EventTitle, Title: schema.TitleEvent{WindowID: 1, Tag: schema.TitleTagHost, Preface: "Stack Top  :: "}},
			want: "window 1: title", show: true, window: 1,
		},
		{
			name: "title for other window",
			ev:   eventbus.Event{Type: eventbus.EventTitle, Title: schema.TitleEvent{WindowID: 2, Tag: schema.TitleTagNone}},
			show: false, window: 1,
		},
		{
			name: "indicator",
			ev:   eventbus.Event{Type: eventbus.EventIndicator, Indicator: schema.IndicatorEvent{TabID: 1, Enabled: true}},
			show: false, window: schema.NoWindow,
		},
	}
	for _, tc := range cases {
		text, show := renderEvent(tc.ev, tc.window, theme)
		if show != tc.show {
			t.Fatalf("%s: expected show=%v, got %v", tc.name, tc.show, show)
		}
		if tc.show && !strings.Contains(text, tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, text)
		}
	}
}

func TestThemeFallback(t *testing.T) {
	if themeForName("missing").Name != DefaultTheme {
		t.Fatalf("expected default theme fallback")
	}
	if got := renderError(errors.New("boom"), themeForName("gruvbox")); !strings.Contains(got, "error: boom") {
		t.Fatalf("unexpected error rendering %q", got)
	}
}
