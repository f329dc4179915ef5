package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/internal/logx"
	"pkt.systems/tabstack/schema"
)

const (
	noticeStacked          = "Tabs stacked"
	noticeTooSmall         = "More than one tab required to stack"
	noticeHostNotSelected  = "Active tab must be part of the selection"
	noticeNoActiveTab      = "No active tab in the selection"
	noticeDoubleStacking   = "Double stacking not allowed. Sorry."
	noticeUnstacked        = "Unstack"
	noticeNothingToUnstack = "active tab not stacked, nothing to unstack"
	noticeNotInStack       = "tab is not part of a stack"
	noticeHostRemoved      = "Unstack (host removed)"
	noticeOnlyHostLeft     = "Unstack (only host was left)"
)

// StackController drives stack, unstack, toggle and teardown against the
// registry and the browser. Roles are read from the registry at every decision
// point and re-read after every browser command, since another handler may
// have changed the registry while a command was in flight.
type StackController struct {
	cfg      schema.ControllerConfig
	reg      *Registry
	tabs     TabManager
	present  Presenter
	multiple atomic.Bool
}

var _ Controller = (*StackController)(nil)

// NewController constructs the stack controller.
func NewController(cfg schema.ControllerConfig, deps ControllerDeps) (*StackController, error) {
	if deps.Tabs == nil {
		return nil, errors.New("tab manager is required")
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Logger)
	}
	if deps.Presenter == nil {
		deps.Presenter = nopPresenter{}
	}
	return &StackController{
		cfg:     schema.NormalizeControllerConfig(cfg),
		reg:     deps.Registry,
		tabs:    deps.Tabs,
		present: deps.Presenter,
	}, nil
}

// Registry returns the registry backing the controller.
func (c *StackController) Registry() *Registry {
	return c.reg
}

// Stack groups selection under host and collapses the new stack.
func (c *StackController) Stack(ctx context.Context, selection []schema.TabID, host schema.TabID) error {
	log := logx.WithTab(ctx, host).With("selection", len(selection))
	log.Info("stack request")
	if err := c.reg.Create(host, selection); err != nil {
		log.Warn("stack rejected", "err", err)
		c.noticeFor(err)
		return err
	}
	guests := c.reg.Rest(host)
	c.present.OnMembership(schema.MembershipEvent{TabID: host, Role: schema.RoleHost, Host: host})
	for _, id := range guests {
		c.present.OnMembership(schema.MembershipEvent{TabID: id, Role: schema.RoleGuest, Host: host})
	}
	c.notice(noticeStacked)
	logx.WithHost(log, host, len(guests)).Info("stack created")
	return c.Toggle(ctx, host)
}

// StackSelection stacks the highlighted tabs of window with the active tab as host.
func (c *StackController) StackSelection(ctx context.Context, window schema.WindowID) error {
	log := logx.WithWindow(ctx, window)
	selected, err := c.tabs.Query(ctx, schema.TabQuery{WindowID: schema.Window(window), Highlighted: schema.Bool(true)})
	if err != nil {
		log.Warn("stack selection query failed", "err", err)
		return fmt.Errorf("query highlighted tabs: %w", err)
	}
	ids := make([]schema.TabID, 0, len(selected))
	host, found := schema.TabID(0), false
	for _, tab := range selected {
		ids = append(ids, tab.ID)
		if tab.Active {
			host, found = tab.ID, true
		}
	}
	if len(ids) < 2 {
		log.Info("stack selection rejected", "selected", len(ids))
		c.noticeFor(schema.ErrSelectionTooSmall)
		return schema.ErrSelectionTooSmall
	}
	if !found {
		log.Info("stack selection rejected", "reason", "no active tab")
		c.noticeFor(schema.ErrNoActiveTab)
		return schema.ErrNoActiveTab
	}
	return c.Stack(logx.ContextWithWindowLogger(ctx, log, window), ids, host)
}

// Unstack dissolves the stack containing member and restores every tab.
func (c *StackController) Unstack(ctx context.Context, member schema.TabID) error {
	log := logx.WithTab(ctx, member)
	var members []schema.TabID
	_ = c.reg.Update(func(tx *Txn) error {
		if !tx.IsStacked(member) {
			return nil
		}
		members = tx.Members(member)
		for _, id := range members {
			tx.Remove(id)
		}
		return nil
	})
	if len(members) == 0 {
		log.Info("unstack skipped", "reason", "not stacked")
		c.notice(noticeNothingToUnstack)
		return nil
	}
	host, guests := members[0], members[1:]
	log = logx.WithHost(log, host, len(guests))
	log.Info("unstack start")

	c.command(log, "unpin host", c.tabs.Update(ctx, host, schema.TabUpdate{Pinned: schema.Bool(false)}))
	c.command(log, "move stack to end", c.tabs.Move(ctx, members, schema.IndexEnd))
	c.command(log, "show guests", c.tabs.SetHidden(ctx, guests, false))
	c.command(log, "focus host", c.tabs.Update(ctx, host, schema.TabUpdate{Active: schema.Bool(true), Highlighted: schema.Bool(true)}))

	for _, id := range members {
		c.present.OnMembership(schema.MembershipEvent{TabID: id, Role: schema.RoleFree})
	}
	c.notice(noticeUnstacked)
	c.OnActivated(ctx, host, c.windowOf(ctx, host))
	log.Info("unstack done")
	return nil
}

// Toggle collapses or expands the stack containing tab. A guest is promoted
// to host first; the phase is read from the guests as they were before the
// promotion, so toggling through a guest flips the stack like its host would.
func (c *StackController) Toggle(ctx context.Context, tab schema.TabID) error {
	log := logx.WithTab(ctx, tab)
	switch c.reg.Role(tab) {
	case schema.RoleFree:
		log.Info("toggle skipped", "reason", "not stacked")
		c.notice(noticeNotInStack)
		return nil
	case schema.RoleGuest:
		sample, found := c.samplePhase(ctx, log, c.peersOf(tab))
		if !c.promote(ctx, tab) {
			log.Info("toggle skipped", "reason", "stack dissolved")
			c.notice(noticeNotInStack)
			return nil
		}
		if !found {
			log.Warn("toggle stopped", "reason", "no guest reachable")
			return nil
		}
		c.applyPhase(ctx, tab, sample)
		return nil
	}
	c.collapseOrExpand(ctx, tab)
	return nil
}

// peersOf returns the guests of tab's stack with tab first.
func (c *StackController) peersOf(tab schema.TabID) []schema.TabID {
	peers := []schema.TabID{tab}
	_ = c.reg.Update(func(tx *Txn) error {
		host, ok := tx.Top(tab)
		if !ok {
			return nil
		}
		for _, id := range tx.Rest(host) {
			if id != tab {
				peers = append(peers, id)
			}
		}
		return nil
	})
	return peers
}

// promote makes tab the host of its stack and shows it. It reports false when
// tab is no longer stacked.
func (c *StackController) promote(ctx context.Context, tab schema.TabID) bool {
	var previous schema.TabID
	err := c.reg.Update(func(tx *Txn) error {
		if !tx.IsStacked(tab) {
			return schema.ErrNotStacked
		}
		previous, _ = tx.Top(tab)
		return tx.SetTop(tab)
	})
	if err != nil {
		return false
	}
	if previous != tab {
		log := logx.WithTab(ctx, tab)
		c.present.OnMembership(schema.MembershipEvent{TabID: tab, Role: schema.RoleHost, Host: tab})
		c.present.OnMembership(schema.MembershipEvent{TabID: previous, Role: schema.RoleGuest, Host: tab})
		// A collapsed stack leaves its host pinned; guests never are.
		c.command(log, "unpin previous host", c.tabs.Update(ctx, previous, schema.TabUpdate{Pinned: schema.Bool(false)}))
		c.command(log, "show new host", c.tabs.SetHidden(ctx, []schema.TabID{tab}, false))
		log.Info("stack host promoted", "previous", int(previous))
	}
	return true
}

// collapseOrExpand flips the visibility of host's stack. The current phase is
// sampled from the first guest the browser still knows about; the chosen
// command is then applied to every guest so they end up sharing one state.
func (c *StackController) collapseOrExpand(ctx context.Context, host schema.TabID) {
	log := logx.WithTab(ctx, host)
	guests, ok := c.guestsOf(ctx, host)
	if !ok {
		log.Debug("toggle stopped", "reason", "stack changed")
		return
	}
	sample, found := c.samplePhase(ctx, log, guests)
	if !found {
		log.Warn("toggle stopped", "reason", "no guest reachable")
		return
	}
	c.applyPhase(ctx, host, sample)
}

// samplePhase returns the first of candidates the browser still knows about.
func (c *StackController) samplePhase(ctx context.Context, log pslog.Logger, candidates []schema.TabID) (schema.Tab, bool) {
	for _, id := range candidates {
		tab, err := c.tabs.Get(ctx, id)
		if err != nil {
			log.Debug("toggle sample failed", "guest", int(id), "err", err)
			continue
		}
		return tab, true
	}
	return schema.Tab{}, false
}

// applyPhase expands host's stack when sample was hidden and collapses it
// otherwise.
func (c *StackController) applyPhase(ctx context.Context, host schema.TabID, sample schema.Tab) {
	guests, ok := c.guestsOf(ctx, host)
	if !ok {
		logx.WithTab(ctx, host).Debug("toggle stopped", "reason", "stack changed")
		return
	}
	log := logx.WithHost(logx.WithTab(ctx, host), host, len(guests))
	if sample.Hidden {
		log.Info("stack expand")
		c.expand(ctx, log, host)
	} else {
		log.Info("stack collapse")
		c.collapse(ctx, log, host)
	}
	c.OnActivated(ctx, host, sample.WindowID)
}

func (c *StackController) expand(ctx context.Context, log pslog.Logger, host schema.TabID) {
	if _, ok := c.guestsOf(ctx, host); !ok {
		return
	}
	c.command(log, "unpin host", c.tabs.Update(ctx, host, schema.TabUpdate{
		Pinned:      schema.Bool(false),
		Active:      schema.Bool(true),
		Highlighted: schema.Bool(true),
	}))
	guests, ok := c.guestsOf(ctx, host)
	if !ok {
		log.Debug("expand stopped", "reason", "stack changed")
		return
	}
	c.command(log, "move stack to end", c.tabs.Move(ctx, append([]schema.TabID{host}, guests...), schema.IndexEnd))
	if guests, ok = c.guestsOf(ctx, host); !ok {
		log.Debug("expand stopped", "reason", "stack changed")
		return
	}
	c.command(log, "show guests", c.tabs.SetHidden(ctx, guests, false))
}

func (c *StackController) collapse(ctx context.Context, log pslog.Logger, host schema.TabID) {
	if _, ok := c.guestsOf(ctx, host); !ok {
		return
	}
	c.command(log, "pin host", c.tabs.Update(ctx, host, schema.TabUpdate{
		Pinned:      schema.Bool(true),
		Active:      schema.Bool(true),
		Highlighted: schema.Bool(true),
	}))
	guests, ok := c.guestsOf(ctx, host)
	if !ok {
		log.Debug("collapse stopped", "reason", "stack changed")
		return
	}
	c.command(log, "hide guests", c.tabs.SetHidden(ctx, guests, true))
	if guests, ok = c.guestsOf(ctx, host); !ok {
		log.Debug("collapse stopped", "reason", "stack changed")
		return
	}
	// Guests stay aligned at the front so a later teardown finds them adjacent.
	c.command(log, "move guests to front", c.tabs.Move(ctx, guests, 0))
}

// guestsOf re-reads host's guests. It reports false once host no longer hosts
// a stack or ctx is done.
func (c *StackController) guestsOf(ctx context.Context, host schema.TabID) ([]schema.TabID, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	var guests []schema.TabID
	_ = c.reg.Update(func(tx *Txn) error {
		if tx.IsStacked(host) && tx.IsTop(host) {
			guests = tx.Rest(host)
		}
		return nil
	})
	return guests, len(guests) > 0
}

// OnRemoved tears down stack state for a closed tab. Closing a host dissolves
// its stack; closing the last guest dissolves the stack as well.
func (c *StackController) OnRemoved(ctx context.Context, tab schema.TabID) {
	log := logx.WithTab(ctx, tab)
	role := schema.RoleFree
	var released []schema.TabID
	var host schema.TabID
	dissolved := false
	_ = c.reg.Update(func(tx *Txn) error {
		if !tx.IsStacked(tab) {
			return nil
		}
		if tx.IsTop(tab) {
			role = schema.RoleHost
			released = tx.Rest(tab)
			for _, id := range released {
				tx.Remove(id)
			}
			tx.Remove(tab)
			return nil
		}
		role = schema.RoleGuest
		host, _ = tx.Top(tab)
		if len(tx.Rest(host)) == 1 {
			tx.Remove(host)
			dissolved = true
		}
		tx.Remove(tab)
		return nil
	})

	switch role {
	case schema.RoleHost:
		log = logx.WithHost(log, tab, len(released))
		c.command(log, "show guests", c.tabs.SetHidden(ctx, released, false))
		for _, id := range released {
			c.present.OnMembership(schema.MembershipEvent{TabID: id, Role: schema.RoleFree})
		}
		c.notice(noticeHostRemoved)
		log.Info("stack dissolved", "reason", "host removed")
	case schema.RoleGuest:
		c.present.OnMembership(schema.MembershipEvent{TabID: tab, Role: schema.RoleFree})
		if !dissolved {
			log.Info("stack guest removed", "host", int(host))
			return
		}
		log = log.With("host", int(host))
		c.command(log, "unpin host", c.tabs.Update(ctx, host, schema.TabUpdate{Pinned: schema.Bool(false)}))
		c.present.OnMembership(schema.MembershipEvent{TabID: host, Role: schema.RoleFree})
		c.present.OnIndicator(schema.IndicatorEvent{TabID: host, Enabled: false})
		c.notice(noticeOnlyHostLeft)
		log.Info("stack dissolved", "reason", "only host left")
	default:
		log.Trace("tab removed", "stacked", false)
	}
}

// OnActivated refreshes the indicator and window title for the active tab.
func (c *StackController) OnActivated(ctx context.Context, tab schema.TabID, window schema.WindowID) {
	role := c.reg.Role(tab)
	tag := schema.TitleTagNone
	switch role {
	case schema.RoleHost:
		tag = schema.TitleTagHost
	case schema.RoleGuest:
		tag = schema.TitleTagGuest
	}
	c.present.OnIndicator(schema.IndicatorEvent{TabID: tab, Enabled: role != schema.RoleFree})
	if window != schema.NoWindow {
		c.present.OnWindowTitle(schema.TitleEvent{WindowID: window, Tag: tag, Preface: c.cfg.Preface(tag)})
	}
	logx.WithTabWindow(ctx, tab, window).Trace("tab activated", "role", role)
}

// OnHighlighted records whether more than one tab is highlighted. The latest
// event wins.
func (c *StackController) OnHighlighted(ctx context.Context, window schema.WindowID, tabs []schema.TabID) {
	multiple := len(tabs) > 1
	c.multiple.Store(multiple)
	logx.WithWindow(ctx, window).Trace("tabs highlighted", "count", len(tabs), "stack_eligible", multiple)
}

// StackEligible reports whether the latest highlight event selected more than one tab.
func (c *StackController) StackEligible() bool {
	return c.multiple.Load()
}

// Role returns the stack role of tab.
func (c *StackController) Role(tab schema.TabID) schema.Role {
	return c.reg.Role(tab)
}

// Stacks returns a snapshot of every stack.
func (c *StackController) Stacks() []schema.StackSnapshot {
	return c.reg.Stacks()
}

func (c *StackController) windowOf(ctx context.Context, tab schema.TabID) schema.WindowID {
	info, err := c.tabs.Get(ctx, tab)
	if err != nil {
		logx.WithTab(ctx, tab).Debug("tab lookup failed", "err", err)
		return schema.NoWindow
	}
	return info.WindowID
}

func (c *StackController) command(log pslog.Logger, op string, err error) {
	if err != nil {
		log.Warn("tab command failed", "op", op, "err", err)
	}
}

func (c *StackController) notice(message string) {
	if c.cfg.DisableNotices {
		return
	}
	c.present.OnNotice(schema.NoticeEvent{Title: c.cfg.NoticeTitle, Message: message})
}

func (c *StackController) noticeFor(err error) {
	switch {
	case errors.Is(err, schema.ErrSelectionTooSmall):
		c.notice(noticeTooSmall)
	case errors.Is(err, schema.ErrHostNotSelected):
		c.notice(noticeHostNotSelected)
	case errors.Is(err, schema.ErrNoActiveTab):
		c.notice(noticeNoActiveTab)
	case errors.Is(err, schema.ErrDoubleStacking):
		c.notice(noticeDoubleStacking)
	}
}
