package core

import (
	"errors"
	"math/rand"
	"testing"

	"pkt.systems/tabstack/schema"
)

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Create(1, []schema.TabID{1, 2, 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reg.IsStacked(2) {
		t.Fatalf("expected tab 2 stacked")
	}
	if top, ok := reg.Top(2); !ok || top != 1 {
		t.Fatalf("expected top 1, got %d (%v)", top, ok)
	}
	assertIDs(t, reg.Rest(1), []schema.TabID{2, 3})
	assertIDs(t, reg.Rest(3), []schema.TabID{2, 3})
	if err := reg.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestRegistryCreateRejectsInvalidSelection(t *testing.T) {
	tests := []struct {
		name    string
		host    schema.TabID
		members []schema.TabID
		want    error
	}{
		{name: "empty", host: 1, members: nil, want: schema.ErrSelectionTooSmall},
		{name: "single", host: 1, members: []schema.TabID{1}, want: schema.ErrSelectionTooSmall},
		{name: "duplicate", host: 1, members: []schema.TabID{1, 1}, want: schema.ErrSelectionTooSmall},
		{name: "host-missing", host: 9, members: []schema.TabID{1, 2}, want: schema.ErrHostNotSelected},
	}
	for _, tc := range tests {
		reg := NewRegistry(nil)
		if err := reg.Create(tc.host, tc.members); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		if reg.Len() != 0 {
			t.Fatalf("%s: expected no mutation, got %d entries", tc.name, reg.Len())
		}
	}
}

func TestRegistryCreateRejectsDoubleStacking(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Create(1, []schema.TabID{1, 2, 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := reg.Create(4, []schema.TabID{4, 5, 3})
	if !errors.Is(err, schema.ErrDoubleStacking) {
		t.Fatalf("expected double stacking, got %v", err)
	}
	if reg.IsStacked(4) || reg.IsStacked(5) {
		t.Fatalf("expected partial stack to be rejected")
	}
	if top, _ := reg.Top(3); top != 1 {
		t.Fatalf("expected existing stack untouched, got top %d", top)
	}
}

func TestRegistrySetTop(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Create(1, []schema.TabID{1, 2, 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.SetTop(2); err != nil {
		t.Fatalf("set top: %v", err)
	}
	if top, _ := reg.Top(1); top != 2 {
		t.Fatalf("expected old host under 2, got %d", top)
	}
	if top, _ := reg.Top(3); top != 2 {
		t.Fatalf("expected guest under 2, got %d", top)
	}
	if !reg.IsTop(2) {
		t.Fatalf("expected 2 to be host")
	}
	if reg.IsTop(1) {
		t.Fatalf("expected 1 to be guest")
	}
	assertIDs(t, reg.Rest(2), []schema.TabID{1, 3})
	if err := reg.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := reg.SetTop(2); err != nil {
		t.Fatalf("set top on host: %v", err)
	}
	if err := reg.SetTop(42); !errors.Is(err, schema.ErrNotStacked) {
		t.Fatalf("expected not stacked, got %v", err)
	}
}

func TestRegistryQueriesOnFreeTab(t *testing.T) {
	reg := NewRegistry(nil)
	if reg.IsTop(5) {
		t.Fatalf("expected free tab not to be top")
	}
	if _, ok := reg.Top(5); ok {
		t.Fatalf("expected no top for free tab")
	}
	if rest := reg.Rest(5); len(rest) != 0 {
		t.Fatalf("expected no rest, got %v", rest)
	}
	if reg.Role(5) != schema.RoleFree {
		t.Fatalf("expected free role")
	}
	if reg.Remove(5) {
		t.Fatalf("expected remove of free tab to report false")
	}
}

func TestRegistryStacksSnapshot(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Create(1, []schema.TabID{1, 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := reg.Create(5, []schema.TabID{4, 5, 6}); err != nil {
		t.Fatalf("create: %v", err)
	}
	stacks := reg.Stacks()
	if len(stacks) != 2 {
		t.Fatalf("expected two stacks, got %+v", stacks)
	}
	if stacks[0].Host != 1 || stacks[1].Host != 5 {
		t.Fatalf("unexpected hosts %+v", stacks)
	}
	assertIDs(t, stacks[1].Guests, []schema.TabID{4, 6})
	assertIDs(t, reg.Members(6), []schema.TabID{5, 4, 6})
}

func TestRegistryUpdateIsAtomicView(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Create(1, []schema.TabID{1, 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	sentinel := errors.New("stop")
	err := reg.Update(func(tx *Txn) error {
		tx.Remove(2)
		tx.Remove(1)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
	if err := reg.Check(); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestRegistryCheckDetectsSingleton(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Create(1, []schema.TabID{1, 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	reg.Remove(2)
	if err := reg.Check(); err == nil {
		t.Fatalf("expected singleton stack to fail the check")
	}
}

func TestRegistryInvariantsHoldUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	reg := NewRegistry(nil)
	for step := 0; step < 2000; step++ {
		id := schema.TabID(rng.Intn(12))
		switch rng.Intn(3) {
		case 0:
			n := 2 + rng.Intn(3)
			members := make([]schema.TabID, 0, n)
			for i := 0; i < n; i++ {
				members = append(members, schema.TabID(rng.Intn(12)))
			}
			_ = reg.Create(members[0], members)
		case 1:
			if reg.Role(id) == schema.RoleGuest {
				if err := reg.SetTop(id); err != nil {
					t.Fatalf("step %d: set top: %v", step, err)
				}
			}
		case 2:
			removeWithTeardown(reg, id)
		}
		if err := reg.Check(); err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
	}
}

// removeWithTeardown mirrors the controller's removal policy.
func removeWithTeardown(reg *Registry, id schema.TabID) {
	_ = reg.Update(func(tx *Txn) error {
		if !tx.IsStacked(id) {
			return nil
		}
		if tx.IsTop(id) {
			for _, guest := range tx.Rest(id) {
				tx.Remove(guest)
			}
			tx.Remove(id)
			return nil
		}
		host, _ := tx.Top(id)
		if len(tx.Rest(host)) == 1 {
			tx.Remove(host)
		}
		tx.Remove(id)
		return nil
	})
}

func assertIDs(t *testing.T, got, want []schema.TabID) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
