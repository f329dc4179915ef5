package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/internal/logx"
	"pkt.systems/tabstack/internal/sessionprefs"
	"pkt.systems/tabstack/internal/version"
	"pkt.systems/tabstack/schema"
)

// Strip drives a local tab strip. It is only available in the simulator,
// where the handler plays the role of the browser user.
type Strip interface {
	Open(window schema.WindowID, title string) schema.Tab
	Close(ctx context.Context, id schema.TabID) error
	Activate(ctx context.Context, id schema.TabID) error
	Highlight(ctx context.Context, window schema.WindowID, ids []schema.TabID) error
}

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	DisableAuditLogging bool
}

// Handler routes slash commands to controller operations.
type Handler struct {
	ctrl  core.Controller
	tabs  core.TabManager
	strip Strip
	cfg   HandlerConfig
}

// NewHandler constructs a command handler. strip may be nil; /open and
// /close are then unavailable and /activate and /highlight go through tabs.
func NewHandler(ctrl core.Controller, tabs core.TabManager, strip Strip, cfg HandlerConfig) *Handler {
	return &Handler{ctrl: ctrl, tabs: tabs, strip: strip, cfg: cfg}
}

// Handle inspects input and executes slash commands, writing output to out.
// It reports false when input is not a slash command.
func (h *Handler) Handle(ctx context.Context, out io.Writer, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	log := logx.Ctx(ctx)
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	var err error
	switch cmd.Name {
	case "":
		err = errors.New("invalid command")
	case "stack":
		err = h.handleStack(ctx, out, cmd)
	case "unstack":
		err = h.handleTabOp(ctx, cmd, "/unstack [tab]", h.ctrl.Unstack)
	case "toggle":
		err = h.handleTabOp(ctx, cmd, "/toggle [tab]", h.ctrl.Toggle)
	case "activate":
		err = h.handleActivate(ctx, cmd)
	case "highlight":
		err = h.handleHighlight(ctx, out, cmd)
	case "close":
		err = h.handleClose(ctx, cmd)
	case "open":
		err = h.handleOpen(ctx, out, cmd)
	case "list", "ls":
		err = h.handleList(ctx, out)
	case "stacks":
		h.handleStacks(out)
	case "window":
		err = h.handleWindow(ctx, out, cmd)
	case "help":
		writeLines(out, helpLines(h.strip != nil)...)
	case "version":
		writeLines(out, version.String())
	default:
		err = fmt.Errorf("unknown command /%s (try /help)", cmd.Name)
	}
	if err != nil {
		log.Warn("command slash failed", "err", err)
		return true, err
	}
	log.Debug("command slash completed")
	return true, nil
}

func (h *Handler) handleStack(ctx context.Context, out io.Writer, cmd Command) error {
	ids, err := cmd.TabArgs()
	if err != nil {
		return errors.New("usage: /stack [host tab...]")
	}
	if len(ids) == 0 {
		window, err := h.window(ctx)
		if err != nil {
			return err
		}
		err = h.ctrl.StackSelection(ctx, window)
		if err == nil {
			h.handleStacks(out)
		}
		return err
	}
	if err := h.ctrl.Stack(ctx, ids, ids[0]); err != nil {
		return err
	}
	h.handleStacks(out)
	return nil
}

func (h *Handler) handleTabOp(ctx context.Context, cmd Command, usage string, op func(context.Context, schema.TabID) error) error {
	ids, err := cmd.TabArgs()
	if err != nil || len(ids) > 1 {
		return errors.New("usage: " + usage)
	}
	tab, err := h.targetTab(ctx, ids)
	if err != nil {
		return err
	}
	return op(logx.ContextWithTabLogger(ctx, logx.WithTab(ctx, tab), tab), tab)
}

func (h *Handler) handleActivate(ctx context.Context, cmd Command) error {
	ids, err := cmd.TabArgs()
	if err != nil || len(ids) != 1 {
		return errors.New("usage: /activate tab")
	}
	if h.strip != nil {
		return h.strip.Activate(ctx, ids[0])
	}
	return h.tabs.Update(ctx, ids[0], schema.TabUpdate{Active: schema.Bool(true), Highlighted: schema.Bool(true)})
}

func (h *Handler) handleHighlight(ctx context.Context, out io.Writer, cmd Command) error {
	ids, err := cmd.TabArgs()
	if err != nil || len(ids) == 0 {
		return errors.New("usage: /highlight tab...")
	}
	window, err := h.window(ctx)
	if err != nil {
		return err
	}
	if h.strip != nil {
		if err := h.strip.Highlight(ctx, window, ids); err != nil {
			return err
		}
	} else {
		for _, id := range ids {
			if err := h.tabs.Update(ctx, id, schema.TabUpdate{Highlighted: schema.Bool(true)}); err != nil {
				return err
			}
		}
	}
	if h.ctrl.StackEligible() {
		writeLines(out, "selection can be stacked with /stack")
	}
	return nil
}

func (h *Handler) handleClose(ctx context.Context, cmd Command) error {
	if h.strip == nil {
		return errors.New("/close is only available in the simulator")
	}
	ids, err := cmd.TabArgs()
	if err != nil || len(ids) != 1 {
		return errors.New("usage: /close tab")
	}
	return h.strip.Close(ctx, ids[0])
}

func (h *Handler) handleOpen(ctx context.Context, out io.Writer, cmd Command) error {
	if h.strip == nil {
		return errors.New("/open is only available in the simulator")
	}
	count := 1
	if len(cmd.Args) > 1 {
		return errors.New("usage: /open [count]")
	}
	if len(cmd.Args) == 1 {
		n, err := strconv.Atoi(cmd.Args[0])
		if err != nil || n < 1 {
			return errors.New("usage: /open [count]")
		}
		count = n
	}
	window := sessionprefs.FromContext(ctx).Window()
	if window == schema.NoWindow {
		window = 1
	}
	opened := make([]string, 0, count)
	for i := 0; i < count; i++ {
		tab := h.strip.Open(window, "")
		opened = append(opened, tab.ID.String())
	}
	writeLines(out, fmt.Sprintf("opened %s in window %d", strings.Join(opened, ", "), window))
	return nil
}

func (h *Handler) handleList(ctx context.Context, out io.Writer) error {
	window, err := h.window(ctx)
	if err != nil {
		return err
	}
	tabs, err := h.tabs.Query(ctx, schema.TabQuery{WindowID: schema.Window(window)})
	if err != nil {
		return err
	}
	if len(tabs) == 0 {
		writeLines(out, fmt.Sprintf("window %d has no tabs", window))
		return nil
	}
	lines := make([]string, 0, len(tabs)+1)
	lines = append(lines, fmt.Sprintf("window %d:", window))
	for _, tab := range tabs {
		lines = append(lines, formatTab(tab, h.ctrl.Role(tab.ID)))
	}
	writeLines(out, lines...)
	return nil
}

func (h *Handler) handleStacks(out io.Writer) {
	stacks := h.ctrl.Stacks()
	if len(stacks) == 0 {
		writeLines(out, "no stacks")
		return
	}
	lines := make([]string, 0, len(stacks))
	for _, stack := range stacks {
		guests := make([]string, 0, len(stack.Guests))
		for _, id := range stack.Guests {
			guests = append(guests, id.String())
		}
		lines = append(lines, fmt.Sprintf("host %d: %s", stack.Host, strings.Join(guests, ", ")))
	}
	writeLines(out, lines...)
}

func (h *Handler) handleWindow(ctx context.Context, out io.Writer, cmd Command) error {
	prefs := sessionprefs.FromContext(ctx)
	if len(cmd.Args) == 0 {
		window, err := h.window(ctx)
		if err != nil {
			return err
		}
		writeLines(out, fmt.Sprintf("window %d", window))
		return nil
	}
	if len(cmd.Args) != 1 {
		return errors.New("usage: /window [id]")
	}
	window, err := schema.ParseWindowID(cmd.Args[0])
	if err != nil {
		return errors.New("usage: /window [id]")
	}
	if prefs == nil {
		return errors.New("session has no preferences")
	}
	prefs.SetWindow(window)
	writeLines(out, fmt.Sprintf("window %d selected", window))
	return nil
}

// window returns the session's window, falling back to the window of the
// first active tab.
func (h *Handler) window(ctx context.Context) (schema.WindowID, error) {
	if window := sessionprefs.FromContext(ctx).Window(); window != schema.NoWindow {
		return window, nil
	}
	active, err := h.tabs.Query(ctx, schema.TabQuery{Active: schema.Bool(true)})
	if err != nil {
		return schema.NoWindow, err
	}
	if len(active) == 0 {
		return schema.NoWindow, schema.ErrNoActiveTab
	}
	return active[0].WindowID, nil
}

func (h *Handler) targetTab(ctx context.Context, ids []schema.TabID) (schema.TabID, error) {
	if len(ids) == 1 {
		return ids[0], nil
	}
	window, err := h.window(ctx)
	if err != nil {
		return 0, err
	}
	active, err := h.tabs.Query(ctx, schema.TabQuery{WindowID: schema.Window(window), Active: schema.Bool(true)})
	if err != nil {
		return 0, err
	}
	if len(active) == 0 {
		return 0, schema.ErrNoActiveTab
	}
	return active[0].ID, nil
}

func formatTab(tab schema.Tab, role schema.Role) string {
	marker := " "
	if tab.Active {
		marker = "*"
	} else if tab.Highlighted {
		marker = "+"
	}
	var flags []string
	if role != schema.RoleFree {
		flags = append(flags, string(role))
	}
	if tab.Pinned {
		flags = append(flags, "pinned")
	}
	if tab.Hidden {
		flags = append(flags, "hidden")
	}
	line := fmt.Sprintf("%s %4d", marker, tab.ID)
	if tab.Title != "" {
		line += "  " + tab.Title
	}
	if len(flags) > 0 {
		line += "  [" + strings.Join(flags, " ") + "]"
	}
	return line
}

func helpLines(sim bool) []string {
	lines := []string{
		"/stack [host tab...]   stack tabs under the first id, or the highlighted selection",
		"/unstack [tab]         dissolve the stack containing tab (default: active tab)",
		"/toggle [tab]          collapse or expand the stack containing tab",
		"/activate tab          make tab the active tab",
		"/highlight tab...      add tabs to the selection",
		"/list                  list tabs of the current window",
		"/stacks                list stacks",
		"/window [id]           show or select the current window",
		"/version               show version",
	}
	if sim {
		lines = append(lines,
			"/open [count]          open tabs in the current window",
			"/close tab             close a tab",
		)
	}
	return lines
}

func writeLines(out io.Writer, lines ...string) {
	if out == nil {
		return
	}
	for _, line := range lines {
		_, _ = io.WriteString(out, line+"\n")
	}
}
