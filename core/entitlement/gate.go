// Package entitlement decides whether a principal may see paid content.
//
// A Gate is built per principal session. It starts Loading, evaluates the principal once it is asked to,
// and settles in Granted, Redirecting or Error. A settled gate keeps its state until it is explicitly
// re-evaluated (route change) or retried (after an error).
package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
)

type State string

// Gate states
const (
	StateLoading     State = "loading"
	StateGranted     State = "granted"
	StateRedirecting State = "redirecting"
	StateError       State = "error"
)

var (
	// errors
	ErrClosed       = core.NewError(core.ErrTransient, "entitlement gate closed")
	ErrNotRetryable = core.NewError(core.ErrInvalid, "entitlement can only be retried after an error")

	errMsgRetry = "could not check your subscription, please retry"
)

// Snapshot is the state of a gate at one point in time.
type Snapshot struct {
	State          State     `json:"state"`
	RedirectTo     string    `json:"redirect_to,omitempty"`
	Retries        int       `json:"retries"`
	Role           string    `json:"role,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Error          string    `json:"error,omitempty"`
	At             time.Time `json:"at"`
}

func (s Snapshot) Settled() bool { return s.State != StateLoading }

type (
	Resolver interface {
		Resolve(ctx context.Context, id user.Identity) user.Resolution
	}

	SubscriptionFinder interface {
		// Current fails with a core.ErrNotFound error when the member has no current subscription.
		Current(ctx context.Context, memberID string) (subscription.Subscription, error)
	}
)

type Options struct {
	MaxRetries     int
	Backoff        time.Duration
	AdminTarget    string
	PurchaseTarget string

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	// OnTransition is called after every state change, outside of the gate's lock.
	OnTransition func(from, to Snapshot)
	Logger       core.Logger
}

func OptionsFrom(conf core.EntitlementConfig, logger core.Logger) Options {
	return Options{
		MaxRetries:     conf.MaxRetries,
		Backoff:        conf.Backoff,
		AdminTarget:    conf.AdminTarget,
		PurchaseTarget: conf.PurchaseTarget,
		Logger:         logger,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.AdminTarget == "" {
		o.AdminTarget = "/admin"
	}
	if o.PurchaseTarget == "" {
		o.PurchaseTarget = "/plans"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

// sleep waits for d unless ctx is done first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Gate is the entitlement state machine of one principal session. At most one evaluation runs at a time.
type Gate struct {
	id       user.Identity
	resolver Resolver
	subs     SubscriptionFinder
	opts     Options

	// ctx lives as long as the principal session; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc
	flight singleflight.Group

	mu      sync.Mutex
	snap    Snapshot
	version int // bumped on every state change
	closed  bool
}

func NewGate(id user.Identity, resolver Resolver, subs SubscriptionFinder, opts Options) *Gate {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		id:       id,
		resolver: resolver,
		subs:     subs,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		snap:     Snapshot{State: StateLoading, At: opts.Now()},
	}
}

func (g *Gate) Identity() user.Identity { return g.id }

// Snapshot returns the current state without evaluating anything.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snap
}

// Evaluate settles the gate and returns its state. A settled gate is returned as is.
// While Loading it waits for the evaluation in flight, starting one if needed, retries and backoff included.
// ctx only bounds the wait: the evaluation itself runs until it settles or the gate is closed.
func (g *Gate) Evaluate(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	snap, closed := g.snap, g.closed
	g.mu.Unlock()
	if closed {
		return snap, ErrClosed
	}
	if snap.Settled() {
		return snap, nil
	}

	ch := g.flight.DoChan("evaluate", func() (interface{}, error) {
		return g.run()
	})
	select {
	case res := <-ch:
		snap, _ = res.Val.(Snapshot)
		return snap, res.Err
	case <-ctx.Done():
		return g.Snapshot(), ctx.Err()
	}
}

// Retry re-enters Loading after an error and evaluates again.
func (g *Gate) Retry(ctx context.Context) (Snapshot, error) {
	g.mu.Lock()
	if g.closed {
		snap := g.snap
		g.mu.Unlock()
		return snap, ErrClosed
	}
	if g.snap.State != StateError {
		snap := g.snap
		g.mu.Unlock()
		return snap, ErrNotRetryable
	}
	from, to := g.setLocked(Snapshot{State: StateLoading, At: g.opts.Now()})
	g.mu.Unlock()

	g.notify(from, to)
	return g.Evaluate(ctx)
}

// Reset forgets the settled state so that the next Evaluate starts over, e.g. after a purchase.
// It does nothing while an evaluation is running.
func (g *Gate) Reset() {
	g.mu.Lock()
	if g.closed || !g.snap.Settled() {
		g.mu.Unlock()
		return
	}
	from, to := g.setLocked(Snapshot{State: StateLoading, At: g.opts.Now()})
	g.mu.Unlock()

	g.notify(from, to)
}

// Reevaluate forgets the settled state, e.g. on a route change, and evaluates again.
// An evaluation already running is joined instead.
func (g *Gate) Reevaluate(ctx context.Context) (Snapshot, error) {
	g.Reset()
	return g.Evaluate(ctx)
}

// Close tears the gate down. A pending backoff is cancelled and no transition applies afterwards.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
}

func (g *Gate) run() (Snapshot, error) {
	for {
		g.mu.Lock()
		snap, version := g.snap, g.version
		g.mu.Unlock()
		if snap.Settled() {
			return snap, nil
		}

		next, again := g.evaluate(snap)
		if g.ctx.Err() != nil {
			return snap, ErrClosed
		}
		if !g.apply(version, next) {
			// changed under our feet (reevaluated or closed): start over from the new state
			if g.isClosed() {
				return g.Snapshot(), ErrClosed
			}
			continue
		}
		if !again {
			return next, nil
		}
		if err := g.opts.Sleep(g.ctx, g.opts.Backoff); err != nil {
			return g.Snapshot(), ErrClosed
		}
	}
}

// evaluate runs one evaluation from snap. again asks for another one after the backoff.
func (g *Gate) evaluate(snap Snapshot) (next Snapshot, again bool) {
	res := g.resolver.Resolve(g.ctx, g.id)
	now := g.opts.Now()
	if res.IsAdmin {
		return Snapshot{State: StateGranted, RedirectTo: g.opts.AdminTarget, Role: res.Role, At: now}, false
	}

	sub, err := g.subs.Current(g.ctx, g.id.ID)
	switch {
	case err == nil:
		return Snapshot{State: StateGranted, Role: res.Role, SubscriptionID: sub.ID, At: now}, false
	case errors.Is(err, core.ErrNotFound):
		if snap.Retries >= g.opts.MaxRetries {
			return Snapshot{State: StateRedirecting, RedirectTo: g.opts.PurchaseTarget, Role: res.Role, Retries: snap.Retries, At: now}, false
		}
		// the subscription may not be visible yet right after a purchase
		return Snapshot{State: StateLoading, Role: res.Role, Retries: snap.Retries + 1, At: now}, true
	default:
		if g.opts.Logger != nil && g.ctx.Err() == nil {
			g.opts.Logger.Warn("entitlement evaluation failed", err, map[string]interface{}{"user_id": g.id.ID})
		}
		return Snapshot{State: StateError, Role: res.Role, Retries: snap.Retries, Error: errMsgRetry, At: now}, false
	}
}

// apply moves the gate to next if nothing changed since version was read.
func (g *Gate) apply(version int, next Snapshot) bool {
	g.mu.Lock()
	if g.closed || g.version != version {
		g.mu.Unlock()
		return false
	}
	from, to := g.setLocked(next)
	g.mu.Unlock()

	g.notify(from, to)
	if to.Settled() && g.opts.Logger != nil {
		g.opts.Logger.Debug("entitlement settled", map[string]interface{}{
			"user_id": g.id.ID, "state": to.State, "retries": from.Retries,
		})
	}
	return true
}

func (g *Gate) setLocked(next Snapshot) (from, to Snapshot) {
	from = g.snap
	g.snap = next
	g.version++
	return from, next
}

func (g *Gate) notify(from, to Snapshot) {
	if g.opts.OnTransition != nil {
		g.opts.OnTransition(from, to)
	}
}

func (g *Gate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
