package main

import (
	"context"
	"sort"
	"sync"

	"pkt.systems/tabstack/internal/bridge"
	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/schema"
)

// eventSender is the part of bridge.Client the remote controller needs.
type eventSender interface {
	Send(event bridge.Event) error
}

// remoteController drives a daemon's controller by reporting browser events
// over the bridge. Commands are asynchronous; their outcome arrives as
// notices. Roles are mirrored from membership intents.
type remoteController struct {
	client eventSender

	mu    sync.Mutex
	roles map[schema.TabID]schema.Role
	hosts map[schema.TabID]schema.TabID
}

func newRemoteController(client eventSender) *remoteController {
	return &remoteController{
		client: client,
		roles:  make(map[schema.TabID]schema.Role),
		hosts:  make(map[schema.TabID]schema.TabID),
	}
}

func (r *remoteController) Stack(_ context.Context, selection []schema.TabID, host schema.TabID) error {
	return r.client.Send(bridge.Event{Type: bridge.EventStack, Tabs: selection, Host: host})
}

func (r *remoteController) StackSelection(_ context.Context, window schema.WindowID) error {
	return r.client.Send(bridge.Event{Type: bridge.EventStack, Window: window})
}

func (r *remoteController) Unstack(_ context.Context, member schema.TabID) error {
	return r.client.Send(bridge.Event{Type: bridge.EventUnstack, Tab: member})
}

func (r *remoteController) Toggle(_ context.Context, tab schema.TabID) error {
	return r.client.Send(bridge.Event{Type: bridge.EventToggle, Tab: tab})
}

func (r *remoteController) OnRemoved(_ context.Context, tab schema.TabID) {
	_ = r.client.Send(bridge.Event{Type: bridge.EventRemoved, Tab: tab})
}

func (r *remoteController) OnActivated(_ context.Context, tab schema.TabID, window schema.WindowID) {
	_ = r.client.Send(bridge.Event{Type: bridge.EventActivated, Tab: tab, Window: window})
}

func (r *remoteController) OnHighlighted(_ context.Context, window schema.WindowID, tabs []schema.TabID) {
	_ = r.client.Send(bridge.Event{Type: bridge.EventHighlighted, Window: window, Tabs: tabs})
}

// StackEligible is unknown remotely; the daemon decides when /stack arrives.
func (r *remoteController) StackEligible() bool {
	return false
}

func (r *remoteController) Role(tab schema.TabID) schema.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role, ok := r.roles[tab]; ok {
		return role
	}
	return schema.RoleFree
}

func (r *remoteController) Stacks() []schema.StackSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	guests := make(map[schema.TabID][]schema.TabID)
	for guest, host := range r.hosts {
		guests[host] = append(guests[host], guest)
	}
	out := make([]schema.StackSnapshot, 0, len(guests))
	for host, members := range guests {
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, schema.StackSnapshot{Host: host, Guests: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// observe updates the role mirror from a presentation intent.
func (r *remoteController) observe(intent bridge.Intent) {
	if intent.Type != eventbus.EventMembership || intent.Membership == nil {
		return
	}
	ev := *intent.Membership
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Role {
	case schema.RoleGuest:
		r.roles[ev.TabID] = schema.RoleGuest
		r.hosts[ev.TabID] = ev.Host
	case schema.RoleHost:
		// A promoted guest takes over the remaining guests of its old host.
		if previous, ok := r.hosts[ev.TabID]; ok {
			for guest, host := range r.hosts {
				if host == previous {
					r.hosts[guest] = ev.TabID
				}
			}
		}
		r.roles[ev.TabID] = schema.RoleHost
		delete(r.hosts, ev.TabID)
	default:
		delete(r.roles, ev.TabID)
		delete(r.hosts, ev.TabID)
	}
}
