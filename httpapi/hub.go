package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq        uint64                  `json:"seq"`
	Type       string                  `json:"type"`
	Indicator  *schema.IndicatorEvent  `json:"indicator,omitempty"`
	Title      *schema.TitleEvent      `json:"title,omitempty"`
	Notice     *schema.NoticeEvent     `json:"notice,omitempty"`
	Membership *schema.MembershipEvent `json:"membership,omitempty"`
	Stacks     []schema.StackSnapshot  `json:"stacks,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Hub broadcasts controller intents to stream subscribers and keeps a bounded
// history for Last-Event-ID replay.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
	}
}

// OnIndicator implements core.Presenter.
func (h *Hub) OnIndicator(event schema.IndicatorEvent) {
	h.publish(StreamEvent{Type: "indicator", Indicator: &event, Timestamp: time.Now()})
}

// OnWindowTitle implements core.Presenter.
func (h *Hub) OnWindowTitle(event schema.TitleEvent) {
	h.publish(StreamEvent{Type: "title", Title: &event, Timestamp: time.Now()})
}

// OnNotice implements core.Presenter.
func (h *Hub) OnNotice(event schema.NoticeEvent) {
	h.publish(StreamEvent{Type: "notice", Notice: &event, Timestamp: time.Now()})
}

// OnMembership implements core.Presenter.
func (h *Hub) OnMembership(event schema.MembershipEvent) {
	pslog.Ctx(context.Background()).Trace("hub membership event", "tab", int(event.TabID), "role", string(event.Role))
	h.publish(StreamEvent{Type: "membership", Membership: &event, Timestamp: time.Now()})
}

// Subscribe registers a subscriber.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64, []StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	history := append([]StreamEvent(nil), h.history...)
	seq := h.seq
	log := pslog.Ctx(context.Background())
	log.Info("hub subscribe", "subs", len(h.subs), "history", len(history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, seq, history
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	pslog.Ctx(context.Background()).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		pslog.Ctx(context.Background()).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}
