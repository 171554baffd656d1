package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/user"
)

// Registry holds one Gate per principal session.
type Registry struct {
	newGate func(id user.Identity) *Gate
	nowFunc func() time.Time

	mu    sync.Mutex
	gates map[string]*registered
}

type registered struct {
	gate     *Gate
	lastUsed time.Time
}

func NewRegistry(newGate func(id user.Identity) *Gate) *Registry {
	return &Registry{newGate: newGate, nowFunc: time.Now, gates: make(map[string]*registered)}
}

// Gate returns the gate of session, creating it for id on first use.
// A session is bound to one principal: a different id gets a fresh gate.
func (r *Registry) Gate(session string, id user.Identity) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	if reg, ok := r.gates[session]; ok {
		if reg.gate.Identity().ID == id.ID {
			reg.lastUsed = now
			return reg.gate
		}
		reg.gate.Close()
	}
	g := r.newGate(id)
	r.gates[session] = &registered{gate: g, lastUsed: now}
	return g
}

// Forget closes and drops the gate of session, e.g. on logout.
func (r *Registry) Forget(session string) {
	r.mu.Lock()
	reg, ok := r.gates[session]
	delete(r.gates, session)
	r.mu.Unlock()

	if ok {
		reg.gate.Close()
	}
}

// Prune forgets the gates unused for longer than idle and returns how many were dropped.
func (r *Registry) Prune(idle time.Duration) int {
	cutoff := r.nowFunc().Add(-idle)

	r.mu.Lock()
	var stale []*Gate
	for session, reg := range r.gates {
		if reg.lastUsed.Before(cutoff) {
			stale = append(stale, reg.gate)
			delete(r.gates, session)
		}
	}
	r.mu.Unlock()

	for _, g := range stale {
		g.Close()
	}
	return len(stale)
}

// ResetMember resets every gate of the member, whoever changed their subscription,
// and returns how many gates were reset.
func (r *Registry) ResetMember(memberID string) int {
	gates := r.collect(func(g *Gate) bool { return g.Identity().ID == memberID })
	for _, g := range gates {
		g.Reset()
	}
	return len(gates)
}

// Revalidate resets the granted gates whose subscription is no longer the member's current one,
// which also catches changes made by other processes (admin CLI, direct SQL).
func (r *Registry) Revalidate(ctx context.Context, subs SubscriptionFinder) (int, error) {
	gates := r.collect(func(g *Gate) bool {
		snap := g.Snapshot()
		return snap.State == StateGranted && snap.SubscriptionID != ""
	})

	current := make(map[string]string) // member ID -> current subscription ID
	var n int
	for _, g := range gates {
		memberID := g.Identity().ID
		subID, ok := current[memberID]
		if !ok {
			sub, err := subs.Current(ctx, memberID)
			if err != nil && !errors.Is(err, core.ErrNotFound) {
				return n, errors.Wrap(err, "finding current subscription")
			}
			subID = sub.ID
			current[memberID] = subID
		}
		if g.Snapshot().SubscriptionID != subID {
			g.Reset()
			n++
		}
	}
	return n, nil
}

func (r *Registry) collect(match func(g *Gate) bool) []*Gate {
	r.mu.Lock()
	all := make([]*Gate, 0, len(r.gates))
	for _, reg := range r.gates {
		all = append(all, reg.gate)
	}
	r.mu.Unlock()

	var gates []*Gate
	for _, g := range all {
		if match(g) {
			gates = append(gates, g)
		}
	}
	return gates
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.gates)
}
