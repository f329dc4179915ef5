package core

import "pkt.systems/pslog"

// ControllerDeps captures dependencies for the stack controller. Tabs is
// required; the rest fall back to defaults.
type ControllerDeps struct {
	Registry  *Registry
	Tabs      TabManager
	Presenter Presenter
	Logger    pslog.Logger
}
