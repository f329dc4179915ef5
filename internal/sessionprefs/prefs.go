package sessionprefs

import (
	"context"
	"sync"

	"pkt.systems/tabstack/schema"
)

// Prefs captures per-session preferences.
type Prefs struct {
	mu     sync.Mutex
	window schema.WindowID
}

type prefsKey struct{}

// New returns a new Prefs instance with no window selected.
func New() *Prefs {
	return &Prefs{window: schema.NoWindow}
}

// Window returns the selected window, or schema.NoWindow.
func (p *Prefs) Window() schema.WindowID {
	if p == nil {
		return schema.NoWindow
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// SetWindow selects the window commands operate on.
func (p *Prefs) SetWindow(window schema.WindowID) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.window = window
	p.mu.Unlock()
}

// WithContext stores prefs in the context.
func WithContext(ctx context.Context, prefs *Prefs) context.Context {
	if ctx == nil || prefs == nil {
		return ctx
	}
	return context.WithValue(ctx, prefsKey{}, prefs)
}

// FromContext returns the prefs stored in the context, if any.
func FromContext(ctx context.Context) *Prefs {
	if ctx == nil {
		return nil
	}
	if value := ctx.Value(prefsKey{}); value != nil {
		if prefs, ok := value.(*Prefs); ok {
			return prefs
		}
	}
	return nil
}
