// Package tabstrip is an in-memory browser tab strip. It implements the tab
// management surface the stack controller drives and forwards strip events
// (activation, highlight, removal) to a Listener, which makes it the backend
// of the local simulator and of controller tests.
package tabstrip

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pkt.systems/tabstack/schema"
)

// Listener receives browser-level events produced by the strip.
type Listener interface {
	OnRemoved(ctx context.Context, tab schema.TabID)
	OnActivated(ctx context.Context, tab schema.TabID, window schema.WindowID)
	OnHighlighted(ctx context.Context, window schema.WindowID, tabs []schema.TabID)
}

// Call records one tab manager command.
type Call struct {
	Op     string
	IDs    []schema.TabID
	Index  int
	Hidden bool
	Update schema.TabUpdate
}

const (
	OpQuery     = "query"
	OpGet       = "get"
	OpMove      = "move"
	OpSetHidden = "set_hidden"
	OpUpdate    = "update"
)

type tabState struct {
	id          schema.TabID
	window      schema.WindowID
	title       string
	active      bool
	highlighted bool
	hidden      bool
	pinned      bool
}

// Strip is a set of windows holding ordered tabs. Pinned tabs always precede
// unpinned ones, as in the browser.
type Strip struct {
	mu       sync.Mutex
	nextID   schema.TabID
	windows  map[schema.WindowID][]*tabState
	byID     map[schema.TabID]*tabState
	calls    []Call
	faults   map[string]error
	hook     func(op string)
	listener Listener
}

// New constructs an empty strip.
func New() *Strip {
	return &Strip{
		nextID:  1,
		windows: make(map[schema.WindowID][]*tabState),
		byID:    make(map[schema.TabID]*tabState),
		faults:  make(map[string]error),
	}
}

// SetListener registers the receiver of strip events.
func (s *Strip) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// SetHook installs fn to run before every tab manager command, outside the
// strip lock. Tests use it to interleave events with in-flight commands.
func (s *Strip) SetHook(fn func(op string)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

// Fail makes every subsequent op command return err. A nil err clears it.
func (s *Strip) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// Open appends a new tab to window and returns it.
func (s *Strip) Open(window schema.WindowID, title string) schema.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tabState{id: s.nextID, window: window, title: title}
	s.nextID++
	s.byID[t.id] = t
	s.windows[window] = append(s.windows[window], t)
	if len(s.windows[window]) == 1 {
		t.active, t.highlighted = true, true
	}
	return s.snapshotLocked(t)
}

// Close removes tab and notifies the listener.
func (s *Strip) Close(ctx context.Context, id schema.TabID) error {
	s.mu.Lock()
	t := s.byID[id]
	if t == nil {
		s.mu.Unlock()
		return fmt.Errorf("close %d: %w", id, schema.ErrTabNotFound)
	}
	tabs := s.windows[t.window]
	s.windows[t.window] = removeTab(tabs, t)
	delete(s.byID, id)
	var next *tabState
	if t.active {
		next = s.pickActiveLocked(t.window)
	}
	listener := s.listener
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	listener.OnRemoved(ctx, id)
	if next != nil {
		listener.OnActivated(ctx, next.id, next.window)
	}
	return nil
}

// Activate makes tab the active, sole highlighted tab of its window and
// notifies the listener.
func (s *Strip) Activate(ctx context.Context, id schema.TabID) error {
	s.mu.Lock()
	t := s.byID[id]
	if t == nil {
		s.mu.Unlock()
		return fmt.Errorf("activate %d: %w", id, schema.ErrTabNotFound)
	}
	s.activateLocked(t)
	listener := s.listener
	window := t.window
	s.mu.Unlock()

	if listener != nil {
		listener.OnActivated(ctx, id, window)
		listener.OnHighlighted(ctx, window, []schema.TabID{id})
	}
	return nil
}

// Highlight selects ids in window in addition to the active tab and notifies
// the listener with the resulting selection.
func (s *Strip) Highlight(ctx context.Context, window schema.WindowID, ids []schema.TabID) error {
	s.mu.Lock()
	tabs, ok := s.windows[window]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("highlight window %d: %w", window, schema.ErrTabNotFound)
	}
	want := make(map[schema.TabID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	selected := []schema.TabID{}
	for _, t := range tabs {
		_, hit := want[t.id]
		t.highlighted = hit || t.active
		if t.highlighted {
			selected = append(selected, t.id)
		}
	}
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener.OnHighlighted(ctx, window, selected)
	}
	return nil
}

// Tabs returns the tabs of window in strip order.
func (s *Strip) Tabs(window schema.WindowID) []schema.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Tab, 0, len(s.windows[window]))
	for _, t := range s.windows[window] {
		out = append(out, s.snapshotLocked(t))
	}
	return out
}

// Visible returns the ids of window's tabs that are not hidden, in strip order.
func (s *Strip) Visible(window schema.WindowID) []schema.TabID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []schema.TabID{}
	for _, t := range s.windows[window] {
		if !t.hidden {
			out = append(out, t.id)
		}
	}
	return out
}

// Calls returns the recorded tab manager commands.
func (s *Strip) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// ResetCalls clears the recorded commands.
func (s *Strip) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// Query implements core.TabManager.
func (s *Strip) Query(_ context.Context, query schema.TabQuery) ([]schema.Tab, error) {
	if err := s.begin(Call{Op: OpQuery}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	windows := make([]schema.WindowID, 0, len(s.windows))
	for id := range s.windows {
		windows = append(windows, id)
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })
	out := []schema.Tab{}
	for _, w := range windows {
		for _, t := range s.windows[w] {
			snap := s.snapshotLocked(t)
			if query.Matches(snap) {
				out = append(out, snap)
			}
		}
	}
	return out, nil
}

// Get implements core.TabManager.
func (s *Strip) Get(_ context.Context, id schema.TabID) (schema.Tab, error) {
	if err := s.begin(Call{Op: OpGet, IDs: []schema.TabID{id}}); err != nil {
		return schema.Tab{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byID[id]
	if t == nil {
		return schema.Tab{}, fmt.Errorf("get %d: %w", id, schema.ErrTabNotFound)
	}
	return s.snapshotLocked(t), nil
}

// Move implements core.TabManager. Unknown ids are ignored; the block is
// placed in the window of the first known id.
func (s *Strip) Move(_ context.Context, ids []schema.TabID, index int) error {
	if err := s.begin(Call{Op: OpMove, IDs: append([]schema.TabID(nil), ids...), Index: index}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var block []*tabState
	for _, id := range ids {
		if t := s.byID[id]; t != nil {
			block = append(block, t)
		}
	}
	if len(block) == 0 {
		return nil
	}
	window := block[0].window
	rest := s.windows[window]
	for _, t := range block {
		if t.window != window {
			s.windows[t.window] = removeTab(s.windows[t.window], t)
			t.window = window
			continue
		}
		rest = removeTab(rest, t)
	}
	pinned := countPinned(rest)
	anyUnpinned := false
	for _, t := range block {
		if !t.pinned {
			anyUnpinned = true
		}
	}
	if index < 0 || index > len(rest) {
		index = len(rest)
	}
	if anyUnpinned && index < pinned {
		index = pinned
	}
	if !anyUnpinned && index > pinned {
		index = pinned
	}
	s.windows[window] = insertTabs(rest, index, block)
	return nil
}

// SetHidden implements core.TabManager. Unknown ids are ignored.
func (s *Strip) SetHidden(_ context.Context, ids []schema.TabID, hidden bool) error {
	if err := s.begin(Call{Op: OpSetHidden, IDs: append([]schema.TabID(nil), ids...), Hidden: hidden}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if t := s.byID[id]; t != nil {
			t.hidden = hidden
		}
	}
	return nil
}

// Update implements core.TabManager. Unknown ids are ignored.
func (s *Strip) Update(_ context.Context, id schema.TabID, update schema.TabUpdate) error {
	if err := s.begin(Call{Op: OpUpdate, IDs: []schema.TabID{id}, Update: update}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.byID[id]
	if t == nil {
		return nil
	}
	if update.Pinned != nil && *update.Pinned != t.pinned {
		tabs := removeTab(s.windows[t.window], t)
		t.pinned = *update.Pinned
		s.windows[t.window] = insertTabs(tabs, countPinned(tabs), []*tabState{t})
	}
	if update.Active != nil && *update.Active {
		s.activateLocked(t)
	}
	if update.Highlighted != nil {
		t.highlighted = *update.Highlighted || t.active
	}
	return nil
}

func (s *Strip) begin(call Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	hook := s.hook
	err := s.faults[call.Op]
	s.mu.Unlock()
	if hook != nil {
		hook(call.Op)
	}
	return err
}

func (s *Strip) activateLocked(t *tabState) {
	for _, other := range s.windows[t.window] {
		other.active = false
		other.highlighted = false
	}
	t.active, t.highlighted = true, true
}

// pickActiveLocked activates the first visible tab of window, if any.
func (s *Strip) pickActiveLocked(window schema.WindowID) *tabState {
	for _, t := range s.windows[window] {
		if !t.hidden {
			s.activateLocked(t)
			return t
		}
	}
	return nil
}

func (s *Strip) snapshotLocked(t *tabState) schema.Tab {
	index := -1
	for i, cur := range s.windows[t.window] {
		if cur == t {
			index = i
			break
		}
	}
	return schema.Tab{
		ID:          t.id,
		WindowID:    t.window,
		Index:       index,
		Active:      t.active,
		Highlighted: t.highlighted,
		Hidden:      t.hidden,
		Pinned:      t.pinned,
		Title:       t.title,
	}
}

func removeTab(tabs []*tabState, t *tabState) []*tabState {
	out := make([]*tabState, 0, len(tabs))
	for _, cur := range tabs {
		if cur != t {
			out = append(out, cur)
		}
	}
	return out
}

func insertTabs(tabs []*tabState, index int, block []*tabState) []*tabState {
	out := make([]*tabState, 0, len(tabs)+len(block))
	out = append(out, tabs[:index]...)
	out = append(out, block...)
	return append(out, tabs[index:]...)
}

func countPinned(tabs []*tabState) int {
	n := 0
	for _, t := range tabs {
		if t.pinned {
			n++
		}
	}
	return n
}
