package core

import (
	"context"

	"pkt.systems/tabstack/schema"
)

// TabManager is the browser's tab management surface. Commands targeting a
// tab that no longer exists are expected to be ignored, and every command is
// expected to be idempotent per tab id.
type TabManager interface {
	Query(ctx context.Context, query schema.TabQuery) ([]schema.Tab, error)
	Get(ctx context.Context, id schema.TabID) (schema.Tab, error)
	// Move places ids as a contiguous block starting at index; schema.IndexEnd appends.
	Move(ctx context.Context, ids []schema.TabID, index int) error
	SetHidden(ctx context.Context, ids []schema.TabID, hidden bool) error
	Update(ctx context.Context, id schema.TabID, update schema.TabUpdate) error
}
