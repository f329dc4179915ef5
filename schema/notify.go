package schema

// TitleTag is the window title marker for the active tab's stack role.
type TitleTag string

const (
	// TitleTagNone clears the window title marker.
	TitleTagNone TitleTag = "none"
	// TitleTagHost marks a window whose active tab hosts a stack.
	TitleTagHost TitleTag = "host"
	// TitleTagGuest marks a window whose active tab is a stack guest.
	TitleTagGuest TitleTag = "guest"
)

// IndicatorEvent enables or disables the stacked indicator for a tab.
type IndicatorEvent struct {
	TabID   TabID `json:"tab_id"`
	Enabled bool  `json:"enabled"`
}

// TitleEvent sets the title marker of a window.
type TitleEvent struct {
	WindowID WindowID `json:"window_id"`
	Tag      TitleTag `json:"tag"`
	// Preface is the rendered title prefix for Tag.
	Preface string `json:"preface"`
}

// NoticeEvent is a transient user-visible message.
type NoticeEvent struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// MembershipEvent reports that a tab's stack membership changed.
type MembershipEvent struct {
	TabID TabID `json:"tab_id"`
	Role  Role  `json:"role"`
	Host  TabID `json:"host,omitempty"`
}
