package sessionprefs

import (
	"context"
	"testing"

	"pkt.systems/tabstack/schema"
)

func TestWithContextAndFromContext(t *testing.T) {
	prefs := New()
	if prefs.Window() != schema.NoWindow {
		t.Fatalf("expected no window selected by default")
	}
	prefs.SetWindow(3)

	ctx := WithContext(context.Background(), prefs)
	got := FromContext(ctx)
	if got == nil {
		t.Fatalf("expected prefs")
	}
	if got.Window() != 3 {
		t.Fatalf("expected window to be preserved, got %d", got.Window())
	}
}

func TestWithContextNil(t *testing.T) {
	var nilCtx context.Context
	ctx := WithContext(nilCtx, New())
	if ctx != nil {
		t.Fatalf("expected nil context")
	}
	ctx = WithContext(context.Background(), nil)
	if ctx == nil {
		t.Fatalf("expected non-nil context to pass through")
	}
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected no prefs for empty context")
	}
	var prefs *Prefs
	prefs.SetWindow(1)
	if prefs.Window() != schema.NoWindow {
		t.Fatalf("expected nil prefs to report no window")
	}
}
