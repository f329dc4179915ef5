package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"pkt.systems/pslog"
	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/schema"
)

// Client is the browser side of the bridge. It answers calls from a local
// tab manager, reports tab events and hands received intents to OnIntent.
// The simulator uses it to stand in for the extension.
type Client struct {
	conn     *websocket.Conn
	tabs     core.TabManager
	onIntent func(Intent)
	writeMu  sync.Mutex
}

// ClientOptions configures a Client.
type ClientOptions struct {
	OnIntent func(Intent)
}

// Dial connects to a bridge endpoint.
func Dial(ctx context.Context, url string, tabs core.TabManager, opts ClientOptions) (*Client, error) {
	if tabs == nil {
		return nil, fmt.Errorf("dial bridge: tab manager is required")
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge %s: %w", url, err)
	}
	return &Client{conn: conn, tabs: tabs, onIntent: opts.OnIntent}, nil
}

// Run serves calls until the connection closes or ctx is done.
func (c *Client) Run(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()
	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if ctx.Err() != nil || isClosed(err) {
				return nil
			}
			return err
		}
		switch frame.Kind {
		case KindCall:
			if err := c.write(c.answer(ctx, frame)); err != nil {
				return err
			}
		case KindIntent:
			if frame.Intent != nil && c.onIntent != nil {
				c.onIntent(*frame.Intent)
			}
		default:
			log.Debug("bridge client frame ignored", "kind", string(frame.Kind))
		}
	}
}

// Send reports a browser event.
func (c *Client) Send(event Event) error {
	return c.write(Frame{Kind: KindEvent, Event: &event})
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// OnRemoved forwards a removal, so a Client can listen to a tab strip.
func (c *Client) OnRemoved(ctx context.Context, tab schema.TabID) {
	c.report(ctx, Event{Type: EventRemoved, Tab: tab})
}

// OnActivated forwards an activation.
func (c *Client) OnActivated(ctx context.Context, tab schema.TabID, window schema.WindowID) {
	c.report(ctx, Event{Type: EventActivated, Tab: tab, Window: window})
}

// OnHighlighted forwards a highlight change.
func (c *Client) OnHighlighted(ctx context.Context, window schema.WindowID, tabs []schema.TabID) {
	c.report(ctx, Event{Type: EventHighlighted, Window: window, Tabs: tabs})
}

func (c *Client) report(ctx context.Context, event Event) {
	if err := c.Send(event); err != nil {
		pslog.Ctx(ctx).Warn("bridge client event failed", "type", string(event.Type), "err", err)
	}
}

func (c *Client) write(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (c *Client) answer(ctx context.Context, call Frame) Frame {
	result, err := c.invoke(ctx, call)
	res := Frame{Kind: KindResult, ID: call.ID}
	if err != nil {
		res.Error = err.Error()
		res.Code = errorCode(err)
		return res
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			res.Error = err.Error()
			res.Code = CodeInternal
			return res
		}
		res.Result = raw
	}
	return res
}

func (c *Client) invoke(ctx context.Context, call Frame) (any, error) {
	switch call.Method {
	case MethodQuery:
		var query schema.TabQuery
		if err := decodeParams(call, &query); err != nil {
			return nil, err
		}
		return c.tabs.Query(ctx, query)
	case MethodGet:
		var params getParams
		if err := decodeParams(call, &params); err != nil {
			return nil, err
		}
		return c.tabs.Get(ctx, params.ID)
	case MethodMove:
		var params moveParams
		if err := decodeParams(call, &params); err != nil {
			return nil, err
		}
		return nil, c.tabs.Move(ctx, params.IDs, params.Index)
	case MethodSetHidden:
		var params hiddenParams
		if err := decodeParams(call, &params); err != nil {
			return nil, err
		}
		return nil, c.tabs.SetHidden(ctx, params.IDs, params.Hidden)
	case MethodUpdate:
		var params updateParams
		if err := decodeParams(call, &params); err != nil {
			return nil, err
		}
		return nil, c.tabs.Update(ctx, params.ID, params.Update)
	default:
		return nil, fmt.Errorf("unknown method %q: %w", call.Method, schema.ErrInvalidRequest)
	}
}

func decodeParams(call Frame, out any) error {
	if len(call.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(call.Params, out); err != nil {
		return fmt.Errorf("%s params: %w", call.Method, schema.ErrInvalidRequest)
	}
	return nil
}
