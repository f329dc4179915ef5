// Package bridge connects the stack controller to a browser extension over a
// websocket. The extension answers tab manager calls, reports tab events and
// renders presentation intents pushed by the server.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/schema"
)

// FrameKind identifies a websocket frame.
type FrameKind string

const (
	// KindCall is a tab manager call sent to the browser.
	KindCall FrameKind = "call"
	// KindResult answers a call.
	KindResult FrameKind = "result"
	// KindEvent is a browser event sent to the server.
	KindEvent FrameKind = "event"
	// KindIntent is a presentation intent sent to the browser.
	KindIntent FrameKind = "intent"
)

// Tab manager methods.
const (
	MethodQuery     = "query"
	MethodGet       = "get"
	MethodMove      = "move"
	MethodSetHidden = "set_hidden"
	MethodUpdate    = "update"
)

// Result error codes.
const (
	CodeNotFound = "not_found"
	CodeInternal = "internal"
)

// Frame is the single wire envelope in both directions.
type Frame struct {
	Kind   FrameKind       `json:"kind"`
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
	Event  *Event          `json:"event,omitempty"`
	Intent *Intent         `json:"intent,omitempty"`
}

// EventType names a browser event.
type EventType string

const (
	EventActivated   EventType = "activated"
	EventRemoved     EventType = "removed"
	EventHighlighted EventType = "highlighted"
	// EventStack stacks Tabs under Host, or the highlighted tabs of Window
	// when Tabs is empty.
	EventStack   EventType = "stack"
	EventUnstack EventType = "unstack"
	EventToggle  EventType = "toggle"
)

// Event is reported by the browser.
type Event struct {
	Type   EventType       `json:"type"`
	Tab    schema.TabID    `json:"tab,omitempty"`
	Window schema.WindowID `json:"window,omitempty"`
	Tabs   []schema.TabID  `json:"tabs,omitempty"`
	Host   schema.TabID    `json:"host,omitempty"`
}

// Intent is a presentation request rendered by the browser.
type Intent struct {
	Type       eventbus.EventType      `json:"type"`
	Indicator  *schema.IndicatorEvent  `json:"indicator,omitempty"`
	Title      *schema.TitleEvent      `json:"title,omitempty"`
	Notice     *schema.NoticeEvent     `json:"notice,omitempty"`
	Membership *schema.MembershipEvent `json:"membership,omitempty"`
}

// IntentFromEvent converts a bus event into its wire form.
func IntentFromEvent(event eventbus.Event) Intent {
	intent := Intent{Type: event.Type}
	switch event.Type {
	case eventbus.EventIndicator:
		v := event.Indicator
		intent.Indicator = &v
	case eventbus.EventTitle:
		v := event.Title
		intent.Title = &v
	case eventbus.EventNotice:
		v := event.Notice
		intent.Notice = &v
	case eventbus.EventMembership:
		v := event.Membership
		intent.Membership = &v
	}
	return intent
}

type getParams struct {
	ID schema.TabID `json:"id"`
}

type moveParams struct {
	IDs   []schema.TabID `json:"ids"`
	Index int            `json:"index"`
}

type hiddenParams struct {
	IDs    []schema.TabID `json:"ids"`
	Hidden bool           `json:"hidden"`
}

type updateParams struct {
	ID     schema.TabID     `json:"id"`
	Update schema.TabUpdate `json:"update"`
}

func resultError(frame Frame) error {
	if frame.Error == "" {
		return nil
	}
	if frame.Code == CodeNotFound {
		return fmt.Errorf("%s: %w", frame.Error, schema.ErrTabNotFound)
	}
	return errors.New(frame.Error)
}

func errorCode(err error) string {
	if errors.Is(err, schema.ErrTabNotFound) {
		return CodeNotFound
	}
	return CodeInternal
}
