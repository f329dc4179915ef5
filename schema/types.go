package schema

import "strconv"

// TabID identifies a browser tab. Values are assigned by the tab manager.
type TabID int

// String renders the id for logs and console output.
func (id TabID) String() string {
	return strconv.Itoa(int(id))
}

// WindowID identifies a browser window.
type WindowID int

// String renders the id for logs and console output.
func (id WindowID) String() string {
	return strconv.Itoa(int(id))
}

// NoWindow is used when an event does not carry a window.
const NoWindow WindowID = -1

// IndexEnd moves tabs to the end of the tab strip.
const IndexEnd = -1

// Role is the stack role of a tab.
type Role string

const (
	// RoleFree marks a tab that is not part of any stack.
	RoleFree Role = "free"
	// RoleHost marks the visible representative of a stack.
	RoleHost Role = "host"
	// RoleGuest marks any other stack member.
	RoleGuest Role = "guest"
)

// Tab is the tab manager's view of a single tab.
type Tab struct {
	ID          TabID    `json:"id"`
	WindowID    WindowID `json:"window_id"`
	Index       int      `json:"index"`
	Active      bool     `json:"active,omitempty"`
	Highlighted bool     `json:"highlighted,omitempty"`
	Hidden      bool     `json:"hidden,omitempty"`
	Pinned      bool     `json:"pinned,omitempty"`
	Title       string   `json:"title,omitempty"`
}

// TabQuery filters tabs. Nil fields match everything.
type TabQuery struct {
	WindowID    *WindowID `json:"window_id,omitempty"`
	Active      *bool     `json:"active,omitempty"`
	Highlighted *bool     `json:"highlighted,omitempty"`
}

// Matches reports whether tab satisfies the query.
func (q TabQuery) Matches(tab Tab) bool {
	if q.WindowID != nil && *q.WindowID != tab.WindowID {
		return false
	}
	if q.Active != nil && *q.Active != tab.Active {
		return false
	}
	if q.Highlighted != nil && *q.Highlighted != tab.Highlighted {
		return false
	}
	return true
}

// TabUpdate changes tab attributes. Nil fields are left untouched.
type TabUpdate struct {
	Active      *bool `json:"active,omitempty"`
	Highlighted *bool `json:"highlighted,omitempty"`
	Pinned      *bool `json:"pinned,omitempty"`
}

// Bool returns a pointer to v for use in queries and updates.
func Bool(v bool) *bool {
	return &v
}

// Window returns a pointer to id for use in queries.
func Window(id WindowID) *WindowID {
	return &id
}

// StackSnapshot is a read-only view of one stack.
type StackSnapshot struct {
	Host   TabID   `json:"host"`
	Guests []TabID `json:"guests"`
}
