package core

import (
	"context"

	"pkt.systems/tabstack/schema"
)

// Controller is the transport-agnostic API for stacking tabs.
type Controller interface {
	Stack(ctx context.Context, selection []schema.TabID, host schema.TabID) error
	StackSelection(ctx context.Context, window schema.WindowID) error
	Unstack(ctx context.Context, member schema.TabID) error
	Toggle(ctx context.Context, tab schema.TabID) error
	OnRemoved(ctx context.Context, tab schema.TabID)
	OnActivated(ctx context.Context, tab schema.TabID, window schema.WindowID)
	OnHighlighted(ctx context.Context, window schema.WindowID, tabs []schema.TabID)
	StackEligible() bool
	Role(tab schema.TabID) schema.Role
	Stacks() []schema.StackSnapshot
}
