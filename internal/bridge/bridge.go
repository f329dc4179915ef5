package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/internal/logx"
	"pkt.systems/tabstack/schema"
)

const (
	defaultRequestTimeout = 5 * time.Second
	writeWait             = 10 * time.Second
	maxFrameBytes         = 1 << 20
	eventQueueDepth       = 256
)

// Config defines bridge settings.
type Config struct {
	RequestTimeout time.Duration
	// AllowedOrigins restricts the Origin header of upgrading clients. Empty
	// allows every origin.
	AllowedOrigins []string
}

// Bridge serves a single browser connection at a time. It implements
// core.TabManager by forwarding calls to the connected browser and feeds
// browser events into the bound controller.
type Bridge struct {
	cfg      Config
	bus      *eventbus.Bus
	upgrader websocket.Upgrader

	mu   sync.Mutex
	ctrl core.Controller
	peer *peer
}

var _ core.TabManager = (*Bridge)(nil)

// New constructs a Bridge. Intents published on bus are pushed to the browser.
func New(cfg Config, bus *eventbus.Bus) *Bridge {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	b := &Bridge{cfg: cfg, bus: bus}
	b.upgrader = websocket.Upgrader{CheckOrigin: b.checkOrigin}
	return b
}

// Bind sets the controller that receives browser events.
func (b *Bridge) Bind(ctrl core.Controller) {
	b.mu.Lock()
	b.ctrl = ctrl
	b.mu.Unlock()
}

// Connected reports whether a browser is attached.
func (b *Bridge) Connected() bool {
	return b.current() != nil
}

// ServeHTTP upgrades the request and serves the browser until it disconnects.
// A new connection replaces the previous one.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		pslog.Ctx(r.Context()).Warn("bridge upgrade failed", "err", err)
		return
	}
	p := newPeer(conn)
	log := pslog.Ctx(r.Context()).With("bridge_peer", p.id, "remote", r.RemoteAddr)
	ctx := pslog.ContextWithLogger(r.Context(), log)
	if previous := b.attach(p); previous != nil {
		log.Info("bridge peer replaced", "previous", previous.id)
		previous.shutdown()
	}
	log.Info("bridge peer connected")
	err = b.run(ctx, p)
	b.detach(p)
	if err != nil && !isClosed(err) {
		log.Warn("bridge peer stopped", "err", err)
	}
	log.Info("bridge peer disconnected")
}

// Query implements core.TabManager.
func (b *Bridge) Query(ctx context.Context, query schema.TabQuery) ([]schema.Tab, error) {
	var tabs []schema.Tab
	if err := b.call(ctx, MethodQuery, query, &tabs); err != nil {
		return nil, err
	}
	return tabs, nil
}

// Get implements core.TabManager.
func (b *Bridge) Get(ctx context.Context, id schema.TabID) (schema.Tab, error) {
	var tab schema.Tab
	if err := b.call(ctx, MethodGet, getParams{ID: id}, &tab); err != nil {
		return schema.Tab{}, err
	}
	return tab, nil
}

// Move implements core.TabManager.
func (b *Bridge) Move(ctx context.Context, ids []schema.TabID, index int) error {
	return b.call(ctx, MethodMove, moveParams{IDs: ids, Index: index}, nil)
}

// SetHidden implements core.TabManager.
func (b *Bridge) SetHidden(ctx context.Context, ids []schema.TabID, hidden bool) error {
	return b.call(ctx, MethodSetHidden, hiddenParams{IDs: ids, Hidden: hidden}, nil)
}

// Update implements core.TabManager.
func (b *Bridge) Update(ctx context.Context, id schema.TabID, update schema.TabUpdate) error {
	return b.call(ctx, MethodUpdate, updateParams{ID: id, Update: update}, nil)
}

func (b *Bridge) call(ctx context.Context, method string, params any, out any) error {
	p := b.current()
	if p == nil {
		return fmt.Errorf("%s: %w", method, schema.ErrBridgeUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()
	start := time.Now()
	err := p.call(ctx, method, params, out)
	pslog.Ctx(ctx).Trace("bridge call", "method", method, "duration_ms", time.Since(start).Milliseconds(), "err", err)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (b *Bridge) run(ctx context.Context, p *peer) error {
	g, ctx := errgroup.WithContext(ctx)
	var intents <-chan eventbus.Event
	unsubscribe := func() {}
	if b.bus != nil {
		intents, unsubscribe = b.bus.Subscribe(schema.NoWindow)
	}
	defer unsubscribe()

	g.Go(func() error {
		<-ctx.Done()
		p.shutdown()
		return nil
	})
	g.Go(func() error { return p.readLoop(ctx) })
	g.Go(func() error { return p.writeLoop(ctx) })
	g.Go(func() error { return b.dispatchLoop(ctx, p) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-intents:
				if !ok {
					return nil
				}
				intent := IntentFromEvent(event)
				if err := p.enqueue(ctx, Frame{Kind: KindIntent, Intent: &intent}); err != nil {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

// dispatchLoop feeds browser events to the controller in arrival order.
func (b *Bridge) dispatchLoop(ctx context.Context, p *peer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-p.events:
			b.dispatch(ctx, event)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, event Event) {
	b.mu.Lock()
	ctrl := b.ctrl
	b.mu.Unlock()
	log := logx.WithTabWindow(ctx, event.Tab, event.Window).With("event", string(event.Type))
	if ctrl == nil {
		log.Warn("bridge event ignored", "reason", "no controller")
		return
	}
	ctx = pslog.ContextWithLogger(ctx, log)
	var err error
	switch event.Type {
	case EventActivated:
		ctrl.OnActivated(ctx, event.Tab, event.Window)
	case EventRemoved:
		ctrl.OnRemoved(ctx, event.Tab)
	case EventHighlighted:
		ctrl.OnHighlighted(ctx, event.Window, event.Tabs)
	case EventStack:
		if len(event.Tabs) == 0 {
			err = ctrl.StackSelection(ctx, event.Window)
		} else {
			err = ctrl.Stack(ctx, event.Tabs, event.Host)
		}
	case EventUnstack:
		err = ctrl.Unstack(ctx, event.Tab)
	case EventToggle:
		err = ctrl.Toggle(ctx, event.Tab)
	default:
		log.Warn("bridge event unknown")
		return
	}
	if err != nil {
		if schema.IsUserError(err) {
			log.Debug("bridge event rejected", "err", err)
			return
		}
		log.Warn("bridge event failed", "err", err)
	}
}

func (b *Bridge) attach(p *peer) *peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	previous := b.peer
	b.peer = p
	return previous
}

func (b *Bridge) detach(p *peer) {
	b.mu.Lock()
	if b.peer == p {
		b.peer = nil
	}
	b.mu.Unlock()
	p.shutdown()
}

func (b *Bridge) current() *peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer
}

func (b *Bridge) checkOrigin(r *http.Request) bool {
	if len(b.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range b.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

type peer struct {
	id      string
	conn    *websocket.Conn
	send    chan Frame
	events  chan Event
	done    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	pending map[string]chan Frame
}

func newPeer(conn *websocket.Conn) *peer {
	return &peer{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan Frame, 64),
		events:  make(chan Event, eventQueueDepth),
		done:    make(chan struct{}),
		pending: make(map[string]chan Frame),
	}
}

func (p *peer) call(ctx context.Context, method string, params any, out any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	id := uuid.NewString()
	ch := make(chan Frame, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if err := p.enqueue(ctx, Frame{Kind: KindCall, ID: id, Method: method, Params: raw}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return schema.ErrBridgeUnavailable
	case res := <-ch:
		if err := resultError(res); err != nil {
			return err
		}
		if out == nil || len(res.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return nil
	}
}

func (p *peer) enqueue(ctx context.Context, frame Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return schema.ErrBridgeUnavailable
	case p.send <- frame:
		return nil
	}
}

func (p *peer) readLoop(ctx context.Context) error {
	log := pslog.Ctx(ctx)
	p.conn.SetReadLimit(maxFrameBytes)
	for {
		var frame Frame
		if err := p.conn.ReadJSON(&frame); err != nil {
			return err
		}
		switch frame.Kind {
		case KindResult:
			p.mu.Lock()
			ch := p.pending[frame.ID]
			p.mu.Unlock()
			if ch == nil {
				log.Debug("bridge result without call", "id", frame.ID)
				continue
			}
			select {
			case ch <- frame:
			default:
			}
		case KindEvent:
			if frame.Event == nil {
				log.Debug("bridge event frame without payload")
				continue
			}
			select {
			case p.events <- *frame.Event:
			default:
				// Blocking here would starve the results the dispatcher waits on.
				log.Warn("bridge event dropped", "type", string(frame.Event.Type))
			}
		default:
			log.Debug("bridge frame ignored", "kind", string(frame.Kind))
		}
	}
}

func (p *peer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(frame); err != nil {
				return err
			}
		}
	}
}

// shutdown stops the peer. Closing the connection fails the read loop, which
// cancels the rest of the group.
func (p *peer) shutdown() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = p.conn.Close()
	})
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed)
}
