package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/internal/logx"
	"pkt.systems/tabstack/schema"
)

// BridgeStatus reports whether a browser is attached.
type BridgeStatus interface {
	Connected() bool
}

// ServerDeps captures dependencies for the HTTP server. Controller is
// required; Bridge is mounted at /bridge when set.
type ServerDeps struct {
	Controller core.Controller
	Hub        *Hub
	Bridge     http.Handler
}

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	ctrl     core.Controller
	hub      *Hub
	bridge   http.Handler
	basePath string
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps ServerDeps) *Server {
	if deps.Hub == nil {
		deps.Hub = NewHub(cfg.HubHistory)
	}
	return &Server{
		cfg:      cfg,
		ctrl:     deps.Controller,
		hub:      deps.Hub,
		bridge:   deps.Bridge,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/stacks", s.handleStacks)
	mux.HandleFunc("/api/stack", s.handleStack)
	mux.HandleFunc("/api/unstack", s.handleUnstack)
	mux.HandleFunc("/api/toggle", s.handleToggle)
	mux.HandleFunc("/api/events/activated", s.handleActivated)
	mux.HandleFunc("/api/events/removed", s.handleRemoved)
	mux.HandleFunc("/api/events/highlighted", s.handleHighlighted)
	mux.HandleFunc("/api/stream", s.handleStream)
	if s.bridge != nil {
		mux.Handle("/bridge", s.bridge)
	}

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

// normalizeBasePath returns value as "/a/b" with no trailing slash, or ""
// when the API is mounted at the root.
func normalizeBasePath(value string) string {
	trimmed := strings.Trim(strings.TrimSpace(value), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := false
	if status, ok := s.bridge.(BridgeStatus); ok {
		connected = status.Connected()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "bridge_connected": connected})
}

func (s *Server) handleStacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stacks": s.ctrl.Stacks()})
}

func (s *Server) handleStack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		Tabs   []schema.TabID   `json:"tabs"`
		Host   *schema.TabID    `json:"host"`
		Window *schema.WindowID `json:"window"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http stack decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var err error
	switch {
	case len(payload.Tabs) > 0 && payload.Host != nil:
		err = s.ctrl.Stack(r.Context(), payload.Tabs, *payload.Host)
	case len(payload.Tabs) == 0 && payload.Window != nil:
		err = s.ctrl.StackSelection(r.Context(), *payload.Window)
	default:
		err = fmt.Errorf("stack needs tabs and host, or window: %w", schema.ErrInvalidRequest)
	}
	if err != nil {
		log.Warn("http stack failed", "err", err)
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stacks": s.ctrl.Stacks()})
	log.Info("http stack ok")
}

func (s *Server) handleUnstack(w http.ResponseWriter, r *http.Request) {
	s.handleTabAction(w, r, "unstack", s.ctrl.Unstack)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.handleTabAction(w, r, "toggle", s.ctrl.Toggle)
}

func (s *Server) handleTabAction(w http.ResponseWriter, r *http.Request, name string, action func(ctx context.Context, tab schema.TabID) error) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		Tab schema.TabID `json:"tab"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http "+name+" decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = logx.WithTab(r.Context(), payload.Tab)
	ctx := logx.ContextWithTabLogger(r.Context(), log, payload.Tab)
	if err := action(ctx, payload.Tab); err != nil {
		log.Warn("http "+name+" failed", "err", err)
		writeError(w, statusFromError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tab": payload.Tab, "role": s.ctrl.Role(payload.Tab)})
	log.Info("http " + name + " ok")
}

func (s *Server) handleActivated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Tab    schema.TabID    `json:"tab"`
		Window schema.WindowID `json:"window"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ctrl.OnActivated(r.Context(), payload.Tab, payload.Window)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoved(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Tab schema.TabID `json:"tab"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ctrl.OnRemoved(r.Context(), payload.Tab)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHighlighted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Window schema.WindowID `json:"window"`
		Tabs   []schema.TabID  `json:"tabs"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.ctrl.OnHighlighted(r.Context(), payload.Window, payload.Tabs)
	writeJSON(w, http.StatusOK, map[string]any{"stack_eligible": s.ctrl.StackEligible()})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	// Subscribe before the snapshot so nothing published in between is lost.
	ch, unsubscribe, seq, _ := s.hub.Subscribe()
	defer unsubscribe()

	stacks := s.ctrl.Stacks()
	_ = writeSSEvent(w, StreamEvent{Type: "snapshot", Stacks: stacks, Timestamp: time.Now()})
	flusher.Flush()

	replayCount := 0
	if lastID > 0 {
		for _, event := range s.hub.Replay(lastID) {
			if event.Seq > seq {
				break
			}
			_ = writeSSEvent(w, event)
			replayCount++
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "stacks", len(stacks))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, schema.ErrBridgeUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, schema.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidRequest), schema.IsUserError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
