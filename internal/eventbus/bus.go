package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventIndicator carries stack indicator changes for a tab.
	EventIndicator EventType = "indicator"
	// EventTitle carries window title prefaces.
	EventTitle EventType = "title"
	// EventNotice carries transient user notices.
	EventNotice EventType = "notice"
	// EventMembership carries stack role changes for a tab.
	EventMembership EventType = "membership"
)

// Event represents a presentation intent emitted by the stack controller.
type Event struct {
	Type       EventType
	Indicator  schema.IndicatorEvent
	Title      schema.TitleEvent
	Notice     schema.NoticeEvent
	Membership schema.MembershipEvent
}

// Window returns the window the event is scoped to, or schema.NoWindow.
func (e Event) Window() schema.WindowID {
	if e.Type == EventTitle {
		return e.Title.WindowID
	}
	return schema.NoWindow
}

// Bus fans out events to subscribers. A subscriber scoped to a window only
// receives window-scoped events for that window; unscoped events reach everyone.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]schema.WindowID
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]schema.WindowID),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber and returns a channel + cancel. Pass
// schema.NoWindow to receive events for every window.
func (b *Bus) Subscribe(window schema.WindowID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = window
	count := len(b.subs)
	b.mu.Unlock()
	b.log.With("window", int(window)).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
			b.log.With("window", int(window)).Debug("eventbus unsubscribe")
		})
	}
}

// OnIndicator implements core.Presenter.
func (b *Bus) OnIndicator(event schema.IndicatorEvent) {
	b.publish(Event{Type: EventIndicator, Indicator: event})
}

// OnWindowTitle implements core.Presenter.
func (b *Bus) OnWindowTitle(event schema.TitleEvent) {
	b.publish(Event{Type: EventTitle, Title: event})
}

// OnNotice implements core.Presenter.
func (b *Bus) OnNotice(event schema.NoticeEvent) {
	b.publish(Event{Type: EventNotice, Notice: event})
}

// OnMembership implements core.Presenter.
func (b *Bus) OnMembership(event schema.MembershipEvent) {
	b.publish(Event{Type: EventMembership, Membership: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	window := event.Window()
	b.mu.Lock()
	subs := make([]chan Event, 0, len(b.subs))
	for sub, scope := range b.subs {
		if scope != schema.NoWindow && window != schema.NoWindow && scope != window {
			continue
		}
		subs = append(subs, sub)
	}
	// Sends happen under the lock so cancel cannot close a channel mid-send.
	dropped := 0
	for _, sub := range subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "type", string(event.Type), "count", dropped)
	}
}
