package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"pkt.systems/tabstack/internal/tabstrip"
	"pkt.systems/tabstack/schema"
)

func TestStackCollapsesGuests(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	assertVisible(t, strip, []schema.TabID{ids[0], ids[3]})
	host := tabByID(t, strip, ids[0])
	if !host.Pinned || !host.Active {
		t.Fatalf("expected pinned active host, got %+v", host)
	}
	if !rec.hasNotice(noticeStacked) {
		t.Fatalf("expected stacked notice, got %v", rec.notices())
	}
	members := rec.membership()
	if len(members) != 3 || members[0].Role != schema.RoleHost || members[1].Role != schema.RoleGuest {
		t.Fatalf("unexpected membership events %+v", members)
	}
	title, ok := rec.lastTitle()
	if !ok || title.Tag != schema.TitleTagHost || title.Preface != schema.DefaultHostTitleTag {
		t.Fatalf("unexpected title %+v", title)
	}
	if err := ctrl.Registry().Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestToggleTwiceRestoresVisibleSet(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 5)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[1:4], ids[1]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	before := sortedIDs(strip.Visible(1))
	if err := ctrl.Toggle(ctx, ids[1]); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	assertVisible(t, strip, ids)
	if tabByID(t, strip, ids[1]).Pinned {
		t.Fatalf("expected expanded host to be unpinned")
	}
	if err := ctrl.Toggle(ctx, ids[1]); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	after := sortedIDs(strip.Visible(1))
	assertSameIDs(t, after, before)
}

func TestExpandKeepsStackContiguous(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 5)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, []schema.TabID{ids[0], ids[2], ids[4]}, ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	if err := ctrl.Toggle(ctx, ids[0]); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	tabs := strip.Tabs(1)
	got := []schema.TabID{tabs[2].ID, tabs[3].ID, tabs[4].ID}
	assertSameIDs(t, got, []schema.TabID{ids[0], ids[2], ids[4]})
	if tabs[2].ID != ids[0] {
		t.Fatalf("expected host to lead the block, got %+v", tabs)
	}
}

func TestToggleOnGuestPromotesIt(t *testing.T) {
	cases := []struct {
		name        string
		expandFirst bool
		visible     func(ids []schema.TabID) []schema.TabID
	}{
		{
			name:    "collapsed stack expands",
			visible: func(ids []schema.TabID) []schema.TabID { return ids },
		},
		{
			name:        "expanded stack collapses onto the guest",
			expandFirst: true,
			visible:     func(ids []schema.TabID) []schema.TabID { return []schema.TabID{ids[1], ids[3]} },
		},
	}
	for _, tc := range cases {
		ctrl, strip, rec, ids := newControllerFixture(t, 4)
		ctx := context.Background()
		if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
			t.Fatalf("%s: stack: %v", tc.name, err)
		}
		if tc.expandFirst {
			if err := ctrl.Toggle(ctx, ids[0]); err != nil {
				t.Fatalf("%s: expand: %v", tc.name, err)
			}
		}
		rec.reset()
		if err := ctrl.Toggle(ctx, ids[1]); err != nil {
			t.Fatalf("%s: toggle: %v", tc.name, err)
		}
		reg := ctrl.Registry()
		if !reg.IsTop(ids[1]) {
			t.Fatalf("%s: expected guest promoted to host", tc.name)
		}
		if top, _ := reg.Top(ids[0]); top != ids[1] {
			t.Fatalf("%s: expected previous host under %d, got %d", tc.name, ids[1], top)
		}
		if top, _ := reg.Top(ids[2]); top != ids[1] {
			t.Fatalf("%s: expected guest re-pointed to %d, got %d", tc.name, ids[1], top)
		}
		assertVisible(t, strip, tc.visible(ids))
		if tab := tabByID(t, strip, ids[1]); tab.Hidden || !tab.Active {
			t.Fatalf("%s: expected new host shown and active, got %+v", tc.name, tab)
		}
		guests := []schema.TabID{ids[0], ids[2]}
		hidden := 0
		for _, id := range guests {
			tab := tabByID(t, strip, id)
			if tab.Pinned {
				t.Fatalf("%s: expected guest %d unpinned", tc.name, id)
			}
			if tab.Hidden {
				hidden++
			}
		}
		if hidden != 0 && hidden != len(guests) {
			t.Fatalf("%s: expected guests to share one visibility state, %d of %d hidden", tc.name, hidden, len(guests))
		}
		members := rec.membership()
		if len(members) != 2 || members[0].TabID != ids[1] || members[1].Role != schema.RoleGuest {
			t.Fatalf("%s: unexpected membership events %+v", tc.name, members)
		}
		if err := reg.Check(); err != nil {
			t.Fatalf("%s: check: %v", tc.name, err)
		}
	}
}

func TestToggleOnFreeTabIsNoop(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 2)
	strip.ResetCalls()
	if err := ctrl.Toggle(context.Background(), ids[0]); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if calls := strip.Calls(); len(calls) != 0 {
		t.Fatalf("expected no tab commands, got %+v", calls)
	}
	if !rec.hasNotice(noticeNotInStack) {
		t.Fatalf("expected not in stack notice, got %v", rec.notices())
	}
}

func TestStackRejectsSmallSelection(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 2)
	strip.ResetCalls()
	err := ctrl.Stack(context.Background(), ids[:1], ids[0])
	if !errors.Is(err, schema.ErrSelectionTooSmall) {
		t.Fatalf("expected selection too small, got %v", err)
	}
	if ctrl.Registry().Len() != 0 {
		t.Fatalf("expected no registry mutation")
	}
	if len(strip.Calls()) != 0 {
		t.Fatalf("expected no tab commands")
	}
	if !rec.hasNotice(noticeTooSmall) {
		t.Fatalf("expected too small notice, got %v", rec.notices())
	}
}

func TestStackRejectsDoubleStacking(t *testing.T) {
	ctrl, _, rec, ids := newControllerFixture(t, 5)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	before := ctrl.Stacks()
	err := ctrl.Stack(ctx, []schema.TabID{ids[3], ids[4], ids[2]}, ids[3])
	if !errors.Is(err, schema.ErrDoubleStacking) {
		t.Fatalf("expected double stacking, got %v", err)
	}
	if !rec.hasNotice(noticeDoubleStacking) {
		t.Fatalf("expected double stacking notice, got %v", rec.notices())
	}
	after := ctrl.Stacks()
	if len(after) != 1 || after[0].Host != before[0].Host {
		t.Fatalf("expected stacks unchanged, got %+v", after)
	}
	assertSameIDs(t, after[0].Guests, before[0].Guests)
	if ctrl.Role(ids[3]) != schema.RoleFree || ctrl.Role(ids[4]) != schema.RoleFree {
		t.Fatalf("expected new selection left free")
	}
}

func TestStackSelectionUsesActiveTabAsHost(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := strip.Highlight(ctx, 1, []schema.TabID{ids[1], ids[2]}); err != nil {
		t.Fatalf("highlight: %v", err)
	}
	if err := ctrl.StackSelection(ctx, 1); err != nil {
		t.Fatalf("stack selection: %v", err)
	}
	if ctrl.Role(ids[0]) != schema.RoleHost {
		t.Fatalf("expected active tab to host the stack")
	}
	assertSameIDs(t, ctrl.Registry().Rest(ids[0]), []schema.TabID{ids[1], ids[2]})
}

func TestStackSelectionNeedsTwoTabs(t *testing.T) {
	ctrl, _, rec, _ := newControllerFixture(t, 3)
	err := ctrl.StackSelection(context.Background(), 1)
	if !errors.Is(err, schema.ErrSelectionTooSmall) {
		t.Fatalf("expected selection too small, got %v", err)
	}
	if !rec.hasNotice(noticeTooSmall) {
		t.Fatalf("expected too small notice, got %v", rec.notices())
	}
}

func TestUnstackRestoresTabs(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	if err := ctrl.Unstack(ctx, ids[2]); err != nil {
		t.Fatalf("unstack: %v", err)
	}
	if ctrl.Registry().Len() != 0 {
		t.Fatalf("expected empty registry, got %+v", ctrl.Stacks())
	}
	assertVisible(t, strip, ids)
	for _, tab := range strip.Tabs(1) {
		if tab.Pinned {
			t.Fatalf("expected no pinned tabs, got %+v", tab)
		}
	}
	if !tabByID(t, strip, ids[0]).Active {
		t.Fatalf("expected former host focused")
	}
	if !rec.hasNotice(noticeUnstacked) {
		t.Fatalf("expected unstack notice, got %v", rec.notices())
	}
	if title, ok := rec.lastTitle(); !ok || title.Tag != schema.TitleTagNone {
		t.Fatalf("expected plain title, got %+v", title)
	}
}

func TestUnstackFreeTabIsNoop(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 2)
	strip.ResetCalls()
	if err := ctrl.Unstack(context.Background(), ids[0]); err != nil {
		t.Fatalf("unstack: %v", err)
	}
	if len(strip.Calls()) != 0 {
		t.Fatalf("expected no tab commands")
	}
	if !rec.hasNotice(noticeNothingToUnstack) {
		t.Fatalf("expected nothing to unstack notice, got %v", rec.notices())
	}
}

func TestRemovingHostReleasesGuests(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	if err := strip.Close(ctx, ids[0]); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ctrl.Registry().IsStacked(ids[1]) || ctrl.Registry().IsStacked(ids[2]) {
		t.Fatalf("expected guests released")
	}
	assertVisible(t, strip, ids[1:])
	if !rec.hasNotice(noticeHostRemoved) {
		t.Fatalf("expected host removed notice, got %v", rec.notices())
	}
}

func TestRemovingGuestKeepsStack(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	if err := strip.Close(ctx, ids[1]); err != nil {
		t.Fatalf("close: %v", err)
	}
	reg := ctrl.Registry()
	if !reg.IsStacked(ids[0]) || !reg.IsStacked(ids[2]) {
		t.Fatalf("expected stack to survive")
	}
	if top, _ := reg.Top(ids[2]); top != ids[0] {
		t.Fatalf("expected top %d, got %d", ids[0], top)
	}
	if err := reg.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestRemovingLastGuestDissolvesStack(t *testing.T) {
	ctrl, strip, rec, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	if err := strip.Close(ctx, ids[1]); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := strip.Close(ctx, ids[2]); err != nil {
		t.Fatalf("close: %v", err)
	}
	if ctrl.Registry().IsStacked(ids[0]) {
		t.Fatalf("expected host dissolved")
	}
	if tabByID(t, strip, ids[0]).Pinned {
		t.Fatalf("expected former host unpinned")
	}
	if !rec.hasNotice(noticeOnlyHostLeft) {
		t.Fatalf("expected only host left notice, got %v", rec.notices())
	}
	last, ok := rec.lastIndicator()
	if !ok || last.TabID != ids[0] || last.Enabled {
		t.Fatalf("expected indicator cleared for host, got %+v", last)
	}
}

func TestRemovalDuringToggleStopsCommands(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 4)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:3], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	fired := false
	strip.SetHook(func(op string) {
		if fired || op != tabstrip.OpUpdate {
			return
		}
		fired = true
		ctrl.OnRemoved(ctx, ids[0])
	})
	strip.ResetCalls()
	if err := ctrl.Toggle(ctx, ids[0]); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !fired {
		t.Fatalf("expected removal to interleave with toggle")
	}
	for _, call := range strip.Calls() {
		if call.Op == tabstrip.OpMove {
			t.Fatalf("expected toggle to stop after teardown, got %+v", strip.Calls())
		}
	}
	if ctrl.Registry().Len() != 0 {
		t.Fatalf("expected registry empty, got %+v", ctrl.Stacks())
	}
	if err := ctrl.Registry().Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestFailedCommandDoesNotAbortToggle(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 3)
	strip.Fail(tabstrip.OpSetHidden, errors.New("tab gone"))
	if err := ctrl.Stack(context.Background(), ids[:2], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	calls := strip.Calls()
	if len(calls) == 0 || calls[len(calls)-1].Op != tabstrip.OpMove {
		t.Fatalf("expected move after failed hide, got %+v", calls)
	}
	if !ctrl.Registry().IsTop(ids[0]) {
		t.Fatalf("expected stack registered despite failed command")
	}
}

func TestDisableNoticesSuppressesNotices(t *testing.T) {
	strip := tabstrip.New()
	ids := []schema.TabID{strip.Open(1, "").ID, strip.Open(1, "").ID}
	rec := &recordingPresenter{}
	ctrl, err := NewController(schema.ControllerConfig{DisableNotices: true}, ControllerDeps{Tabs: strip, Presenter: rec})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := ctrl.Stack(context.Background(), ids, ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	if notices := rec.notices(); len(notices) != 0 {
		t.Fatalf("expected no notices, got %v", notices)
	}
}

func TestOnActivatedTagsGuestWindow(t *testing.T) {
	ctrl, _, rec, ids := newControllerFixture(t, 3)
	ctx := context.Background()
	if err := ctrl.Stack(ctx, ids[:2], ids[0]); err != nil {
		t.Fatalf("stack: %v", err)
	}
	ctrl.OnActivated(ctx, ids[1], 1)
	title, _ := rec.lastTitle()
	if title.Tag != schema.TitleTagGuest || title.Preface != schema.DefaultGuestTitleTag {
		t.Fatalf("unexpected title %+v", title)
	}
	ctrl.OnActivated(ctx, ids[2], 1)
	title, _ = rec.lastTitle()
	if title.Tag != schema.TitleTagNone || title.Preface != "" {
		t.Fatalf("unexpected title %+v", title)
	}
	if last, _ := rec.lastIndicator(); last.Enabled {
		t.Fatalf("expected indicator off for free tab")
	}
}

func TestOnHighlightedTracksEligibility(t *testing.T) {
	ctrl, _, _, ids := newControllerFixture(t, 2)
	ctx := context.Background()
	ctrl.OnHighlighted(ctx, 1, ids)
	if !ctrl.StackEligible() {
		t.Fatalf("expected eligible with two highlighted tabs")
	}
	ctrl.OnHighlighted(ctx, 1, ids[:1])
	if ctrl.StackEligible() {
		t.Fatalf("expected latest event to win")
	}
}

func TestNewControllerRequiresTabs(t *testing.T) {
	if _, err := NewController(schema.ControllerConfig{}, ControllerDeps{}); err == nil {
		t.Fatalf("expected error without tab manager")
	}
}

func TestConcurrentEventsKeepInvariants(t *testing.T) {
	ctrl, strip, _, ids := newControllerFixture(t, 12)
	ctx := context.Background()
	for i := 0; i+2 < len(ids); i += 3 {
		if err := ctrl.Stack(ctx, ids[i:i+3], ids[i]); err != nil {
			t.Fatalf("stack: %v", err)
		}
	}
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id schema.TabID) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				_ = ctrl.Toggle(ctx, id)
			case 1:
				_ = strip.Close(ctx, id)
			default:
				_ = ctrl.Toggle(ctx, id)
				_ = ctrl.Unstack(ctx, id)
			}
		}(i, id)
	}
	wg.Wait()
	if err := ctrl.Registry().Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func newControllerFixture(t *testing.T, n int) (*StackController, *tabstrip.Strip, *recordingPresenter, []schema.TabID) {
	t.Helper()
	strip := tabstrip.New()
	ids := make([]schema.TabID, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, strip.Open(1, "").ID)
	}
	rec := &recordingPresenter{}
	ctrl, err := NewController(schema.ControllerConfig{}, ControllerDeps{Tabs: strip, Presenter: rec})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	strip.SetListener(ctrl)
	return ctrl, strip, rec, ids
}

func tabByID(t *testing.T, strip *tabstrip.Strip, id schema.TabID) schema.Tab {
	t.Helper()
	tab, err := strip.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %d: %v", id, err)
	}
	return tab
}

func assertVisible(t *testing.T, strip *tabstrip.Strip, want []schema.TabID) {
	t.Helper()
	assertSameIDs(t, sortedIDs(strip.Visible(1)), sortedIDs(want))
}

func assertSameIDs(t *testing.T, got, want []schema.TabID) {
	t.Helper()
	assertIDs(t, sortedIDs(got), sortedIDs(want))
}

func sortedIDs(ids []schema.TabID) []schema.TabID {
	out := append([]schema.TabID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type recordingPresenter struct {
	mu         sync.Mutex
	indicators []schema.IndicatorEvent
	titles     []schema.TitleEvent
	notes      []schema.NoticeEvent
	members    []schema.MembershipEvent
}

func (r *recordingPresenter) OnIndicator(event schema.IndicatorEvent) {
	r.mu.Lock()
	r.indicators = append(r.indicators, event)
	r.mu.Unlock()
}

func (r *recordingPresenter) OnWindowTitle(event schema.TitleEvent) {
	r.mu.Lock()
	r.titles = append(r.titles, event)
	r.mu.Unlock()
}

func (r *recordingPresenter) OnNotice(event schema.NoticeEvent) {
	r.mu.Lock()
	r.notes = append(r.notes, event)
	r.mu.Unlock()
}

func (r *recordingPresenter) OnMembership(event schema.MembershipEvent) {
	r.mu.Lock()
	r.members = append(r.members, event)
	r.mu.Unlock()
}

func (r *recordingPresenter) reset() {
	r.mu.Lock()
	r.indicators, r.titles, r.notes, r.members = nil, nil, nil, nil
	r.mu.Unlock()
}

func (r *recordingPresenter) notices() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Message)
	}
	return out
}

func (r *recordingPresenter) hasNotice(message string) bool {
	for _, n := range r.notices() {
		if n == message {
			return true
		}
	}
	return false
}

func (r *recordingPresenter) membership() []schema.MembershipEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.MembershipEvent(nil), r.members...)
}

func (r *recordingPresenter) lastTitle() (schema.TitleEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.titles) == 0 {
		return schema.TitleEvent{}, false
	}
	return r.titles[len(r.titles)-1], true
}

func (r *recordingPresenter) lastIndicator() (schema.IndicatorEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.indicators) == 0 {
		return schema.IndicatorEvent{}, false
	}
	return r.indicators[len(r.indicators)-1], true
}
