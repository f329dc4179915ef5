package core

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/schema"
)

// Registry owns the host/guest relation of every stacked tab.
//
// A tab is a member iff it has an entry. A member whose entry points at itself
// is the host of its stack; every other member is a guest of the tab it points
// at. Entries always point at a host (no chains) and a stack never persists
// with a single member. Every method runs as one critical section, so these
// invariants hold whenever another goroutine can observe the registry.
type Registry struct {
	mu  sync.Mutex
	tbl table
	log pslog.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger pslog.Logger) *Registry {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		tbl: table{top: make(map[schema.TabID]schema.TabID)},
		log: logger,
	}
}

// IsStacked reports whether id is a member of any stack.
func (r *Registry) IsStacked(id schema.TabID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tbl.isStacked(id)
}

// IsTop reports whether id hosts its stack. Calling it for a free tab is a
// contract violation: it is logged and treated as free.
func (r *Registry) IsTop(id schema.TabID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().IsTop(id)
}

// Top returns the host of id's stack. The boolean is false for free tabs,
// which is logged as a contract violation.
func (r *Registry) Top(id schema.TabID) (schema.TabID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().Top(id)
}

// Rest returns the guests of id's stack in insertion order.
func (r *Registry) Rest(id schema.TabID) []schema.TabID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().Rest(id)
}

// Role derives the role of id without logging for free tabs.
func (r *Registry) Role(id schema.TabID) schema.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tbl.role(id)
}

// Members returns the host followed by its guests for the stack containing id.
func (r *Registry) Members(id schema.TabID) []schema.TabID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().Members(id)
}

// Create stacks members under host. It is all-or-nothing.
func (r *Registry) Create(host schema.TabID, members []schema.TabID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().Create(host, members)
}

// SetTop promotes a guest to host of its stack.
func (r *Registry) SetTop(newHost schema.TabID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().SetTop(newHost)
}

// Remove deletes the entry for id without cascading.
func (r *Registry) Remove(id schema.TabID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txn().Remove(id)
}

// Len returns the number of stacked tabs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tbl.top)
}

// Stacks returns a snapshot of every stack, ordered by first insertion.
func (r *Registry) Stacks() []schema.StackSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []schema.StackSnapshot{}
	for _, id := range r.tbl.order {
		if r.tbl.top[id] != id {
			continue
		}
		out = append(out, schema.StackSnapshot{Host: id, Guests: r.tbl.rest(id)})
	}
	return out
}

// Update runs fn with exclusive access to the registry. Several primitive
// operations performed through the Txn are observed by others as one step.
func (r *Registry) Update(fn func(tx *Txn) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.txn())
}

// Check verifies the registry invariants.
func (r *Registry) Check() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tbl.check()
}

func (r *Registry) txn() *Txn {
	return &Txn{tbl: &r.tbl, log: r.log}
}

// Txn exposes the registry operations inside Update.
type Txn struct {
	tbl *table
	log pslog.Logger
}

// IsStacked reports whether id is a member of any stack.
func (tx *Txn) IsStacked(id schema.TabID) bool {
	return tx.tbl.isStacked(id)
}

// IsTop reports whether id hosts its stack.
func (tx *Txn) IsTop(id schema.TabID) bool {
	top, ok := tx.tbl.top[id]
	if !ok {
		tx.log.Warn("registry is top called with unstacked tab", "tab", int(id))
		return false
	}
	return top == id
}

// Top returns the host of id's stack.
func (tx *Txn) Top(id schema.TabID) (schema.TabID, bool) {
	top, ok := tx.tbl.top[id]
	if !ok {
		tx.log.Warn("registry get top called with unstacked tab", "tab", int(id))
		return 0, false
	}
	return top, true
}

// Rest returns the guests of id's stack.
func (tx *Txn) Rest(id schema.TabID) []schema.TabID {
	top, ok := tx.tbl.top[id]
	if !ok {
		return nil
	}
	return tx.tbl.rest(top)
}

// Members returns the host followed by its guests.
func (tx *Txn) Members(id schema.TabID) []schema.TabID {
	top, ok := tx.tbl.top[id]
	if !ok {
		return nil
	}
	return append([]schema.TabID{top}, tx.tbl.rest(top)...)
}

// Create stacks members under host.
func (tx *Txn) Create(host schema.TabID, members []schema.TabID) error {
	hostSeen := false
	others := 0
	seen := make(map[schema.TabID]struct{}, len(members))
	for _, id := range members {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if id == host {
			hostSeen = true
		} else {
			others++
		}
	}
	if len(seen) < 2 {
		return schema.ErrSelectionTooSmall
	}
	if !hostSeen {
		return schema.ErrHostNotSelected
	}
	for id := range seen {
		if tx.tbl.isStacked(id) {
			return fmt.Errorf("tab %d: %w", id, schema.ErrDoubleStacking)
		}
	}
	tx.tbl.set(host, host)
	for _, id := range members {
		if id != host {
			tx.tbl.set(id, host)
		}
	}
	tx.log.Debug("registry stack created", "host", int(host), "guests", others)
	return nil
}

// SetTop promotes newHost to host of its stack. The previous host becomes an
// ordinary guest and every other guest is re-pointed.
func (tx *Txn) SetTop(newHost schema.TabID) error {
	oldHost, ok := tx.tbl.top[newHost]
	if !ok {
		return fmt.Errorf("set top %d: %w", newHost, schema.ErrNotStacked)
	}
	if oldHost == newHost {
		return nil
	}
	for _, id := range tx.tbl.order {
		if tx.tbl.top[id] == oldHost {
			tx.tbl.top[id] = newHost
		}
	}
	tx.tbl.top[newHost] = newHost
	tx.log.Debug("registry host promoted", "host", int(newHost), "previous", int(oldHost))
	return nil
}

// Remove deletes the entry for id.
func (tx *Txn) Remove(id schema.TabID) bool {
	return tx.tbl.remove(id)
}

type table struct {
	top   map[schema.TabID]schema.TabID
	order []schema.TabID
}

func (t *table) isStacked(id schema.TabID) bool {
	_, ok := t.top[id]
	return ok
}

func (t *table) role(id schema.TabID) schema.Role {
	top, ok := t.top[id]
	switch {
	case !ok:
		return schema.RoleFree
	case top == id:
		return schema.RoleHost
	default:
		return schema.RoleGuest
	}
}

func (t *table) rest(host schema.TabID) []schema.TabID {
	out := []schema.TabID{}
	for _, id := range t.order {
		if id != host && t.top[id] == host {
			out = append(out, id)
		}
	}
	return out
}

func (t *table) set(id, host schema.TabID) {
	if _, ok := t.top[id]; !ok {
		t.order = append(t.order, id)
	}
	t.top[id] = host
}

func (t *table) remove(id schema.TabID) bool {
	if _, ok := t.top[id]; !ok {
		return false
	}
	delete(t.top, id)
	for i, cur := range t.order {
		if cur == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func (t *table) check() error {
	size := make(map[schema.TabID]int)
	for id, top := range t.top {
		hostTop, ok := t.top[top]
		if !ok || hostTop != top {
			return fmt.Errorf("tab %d points at %d which is not a host", id, top)
		}
		size[top]++
	}
	for host, n := range size {
		if n < 2 {
			return fmt.Errorf("stack %d has %d member", host, n)
		}
	}
	if len(t.order) != len(t.top) {
		return fmt.Errorf("order tracks %d tabs, map holds %d", len(t.order), len(t.top))
	}
	return nil
}
