package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTabNotFound indicates a requested tab could not be found.
	ErrTabNotFound = errors.New("tab not found")
	// ErrSelectionTooSmall indicates fewer than two tabs were selected for stacking.
	ErrSelectionTooSmall = errors.New("more than one tab required to stack")
	// ErrHostNotSelected indicates the intended host is not part of the selection.
	ErrHostNotSelected = errors.New("host must be part of the selection")
	// ErrDoubleStacking indicates a selected tab already belongs to a stack.
	ErrDoubleStacking = errors.New("double stacking not allowed")
	// ErrNotStacked indicates the tab is not part of a stack.
	ErrNotStacked = errors.New("tab is not part of a stack")
	// ErrNoActiveTab indicates the window has no active tab.
	ErrNoActiveTab = errors.New("no active tab")
	// ErrBridgeUnavailable indicates no browser is connected.
	ErrBridgeUnavailable = errors.New("browser bridge not connected")
)

// IsUserError reports whether err is a condition the user can correct.
func IsUserError(err error) bool {
	return errors.Is(err, ErrSelectionTooSmall) ||
		errors.Is(err, ErrHostNotSelected) ||
		errors.Is(err, ErrDoubleStacking) ||
		errors.Is(err, ErrNotStacked) ||
		errors.Is(err, ErrNoActiveTab)
}
