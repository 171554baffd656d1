package entitlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
)

var (
	member = user.Identity{ID: "member-1", Email: "member@test.cd"}
	now    = time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)

	errDown = errors.New("connection refused")
)

type fakeResolver struct {
	role string
}

func (r fakeResolver) Resolve(_ context.Context, _ user.Identity) user.Resolution {
	role := r.role
	if role == "" {
		role = user.RoleUser
	}
	return user.Resolution{Role: role, IsAdmin: role == user.RoleAdmin, IsInstructor: role == user.RoleInstructor}
}

// fakeFinder answers with the queued results in order, then repeats the last one.
type fakeFinder struct {
	mu      sync.Mutex
	results []error
	calls   int32
	block   chan struct{}
}

func (f *fakeFinder) Current(ctx context.Context, memberID string) (subscription.Subscription, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return subscription.Subscription{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.results) > 0 {
		err = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	if err != nil {
		return subscription.Subscription{}, err
	}
	return subscription.Subscription{ID: "sub-1", MemberID: memberID, Status: subscription.StatusActive}, nil
}

func (f *fakeFinder) set(results ...error) {
	f.mu.Lock()
	f.results = results
	f.mu.Unlock()
}

func (f *fakeFinder) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

type transitions struct {
	mu     sync.Mutex
	states []State
}

func (tr *transitions) record(_, to Snapshot) {
	tr.mu.Lock()
	tr.states = append(tr.states, to.State)
	tr.mu.Unlock()
}

func (tr *transitions) all() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.states...)
}

func newTestGate(role string, finder *fakeFinder, tr *transitions) *Gate {
	opts := Options{
		MaxRetries:     2,
		Backoff:        time.Second,
		AdminTarget:    "/admin",
		PurchaseTarget: "/plans",
		Now:            func() time.Time { return now },
		Sleep:          func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	}
	if tr != nil {
		opts.OnTransition = tr.record
	}
	return NewGate(member, fakeResolver{role: role}, finder, opts)
}

func TestGate_Evaluate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name            string
		role            string
		results         []error
		wantState       State
		wantRedirect    string
		wantRetries     int
		wantCalls       int
		wantSub         string
		wantTransitions []State
	}{
		{
			name: "admin bypasses the subscription check", role: user.RoleAdmin, results: []error{subscription.ErrNoCurrent},
			wantState: StateGranted, wantRedirect: "/admin", wantCalls: 0, wantTransitions: []State{StateGranted},
		},
		{
			name: "subscriber", wantState: StateGranted, wantCalls: 1, wantSub: "sub-1",
			wantTransitions: []State{StateGranted},
		},
		{
			name: "instructor needs a subscription too", role: user.RoleInstructor, results: []error{subscription.ErrNoCurrent},
			wantState: StateRedirecting, wantRedirect: "/plans", wantRetries: 2, wantCalls: 3,
			wantTransitions: []State{StateLoading, StateLoading, StateRedirecting},
		},
		{
			name: "no subscription after retries", results: []error{subscription.ErrNoCurrent},
			wantState: StateRedirecting, wantRedirect: "/plans", wantRetries: 2, wantCalls: 3,
			wantTransitions: []State{StateLoading, StateLoading, StateRedirecting},
		},
		{
			name: "subscription shows up on retry", results: []error{subscription.ErrNoCurrent, nil},
			wantState: StateGranted, wantRetries: 0, wantCalls: 2, wantSub: "sub-1",
			wantTransitions: []State{StateLoading, StateGranted},
		},
		{
			name: "store failure", results: []error{errDown},
			wantState: StateError, wantCalls: 1, wantTransitions: []State{StateError},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finder := &fakeFinder{results: tt.results}
			tr := &transitions{}
			g := newTestGate(tt.role, finder, tr)
			defer g.Close()

			assert.Equal(t, StateLoading, g.Snapshot().State)

			snap, err := g.Evaluate(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, snap.State)
			assert.Equal(t, tt.wantRedirect, snap.RedirectTo)
			assert.Equal(t, tt.wantRetries, snap.Retries)
			assert.Equal(t, tt.wantSub, snap.SubscriptionID)
			assert.Equal(t, tt.wantCalls, finder.Calls())
			assert.Equal(t, tt.wantTransitions, tr.all())
			assert.Equal(t, snap, g.Snapshot())

			// settled: evaluating again changes nothing
			again, err := g.Evaluate(ctx)
			require.NoError(t, err)
			assert.Equal(t, snap, again)
			assert.Equal(t, tt.wantCalls, finder.Calls())
		})
	}
}

func TestGate_Retry(t *testing.T) {
	ctx := context.Background()
	finder := &fakeFinder{results: []error{errDown}}
	g := newTestGate("", finder, nil)
	defer g.Close()

	_, err := g.Retry(ctx)
	assert.ErrorIs(t, err, ErrNotRetryable, "retry while loading")

	snap, err := g.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, StateError, snap.State)
	assert.NotEmpty(t, snap.Error)

	finder.set(nil)
	snap, err = g.Retry(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateGranted, snap.State)
	assert.Empty(t, snap.Error)

	_, err = g.Retry(ctx)
	assert.ErrorIs(t, err, ErrNotRetryable, "retry once granted")
}

func TestGate_Reset(t *testing.T) {
	ctx := context.Background()
	finder := &fakeFinder{results: []error{subscription.ErrNoCurrent}}
	g := newTestGate("", finder, nil)
	defer g.Close()

	snap, err := g.Evaluate(ctx)
	require.NoError(t, err)
	require.Equal(t, StateRedirecting, snap.State)

	// purchase
	finder.set(nil)
	g.Reset()
	assert.Equal(t, StateLoading, g.Snapshot().State)
	assert.Equal(t, 0, g.Snapshot().Retries)

	snap, err = g.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateGranted, snap.State)

	// cancellation
	finder.set(subscription.ErrNoCurrent)
	snap, err = g.Reevaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateRedirecting, snap.State)
}

func TestGate_singleEvaluation(t *testing.T) {
	finder := &fakeFinder{block: make(chan struct{})}
	g := newTestGate("", finder, nil)
	defer g.Close()

	var wg sync.WaitGroup
	results := make(chan Snapshot, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := g.Evaluate(context.Background())
			if err == nil {
				results <- snap
			}
		}()
	}

	require.Eventually(t, func() bool { return finder.Calls() == 1 }, time.Second, time.Millisecond)
	close(finder.block)
	wg.Wait()
	close(results)

	assert.Equal(t, 1, finder.Calls())
	n := 0
	for snap := range results {
		assert.Equal(t, StateGranted, snap.State)
		n++
	}
	assert.Equal(t, 5, n)
}

func TestGate_Close(t *testing.T) {
	t.Run("during backoff", func(t *testing.T) {
		finder := &fakeFinder{results: []error{subscription.ErrNoCurrent}}
		tr := &transitions{}
		sleeping := make(chan struct{})
		g := NewGate(member, fakeResolver{}, finder, Options{
			MaxRetries: 3,
			Backoff:    time.Hour,
			Now:        func() time.Time { return now },
			Sleep: func(ctx context.Context, d time.Duration) error {
				close(sleeping)
				<-ctx.Done()
				return ctx.Err()
			},
			OnTransition: tr.record,
		})

		done := make(chan error, 1)
		go func() {
			_, err := g.Evaluate(context.Background())
			done <- err
		}()

		<-sleeping
		g.Close()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("Evaluate() did not return after Close()")
		}
		assert.Equal(t, 1, finder.Calls())
		assert.Equal(t, []State{StateLoading}, tr.all(), "no transition after close")
	})

	t.Run("closed gate", func(t *testing.T) {
		g := newTestGate("", &fakeFinder{}, nil)
		g.Close()

		_, err := g.Evaluate(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
		_, err = g.Retry(context.Background())
		assert.ErrorIs(t, err, ErrClosed)
		g.Reset()
		assert.Equal(t, StateLoading, g.Snapshot().State)
	})
}

func TestGate_Evaluate_callerCancelled(t *testing.T) {
	finder := &fakeFinder{block: make(chan struct{})}
	g := newTestGate("", finder, nil)
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := g.Evaluate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateLoading, snap.State)

	// the evaluation keeps running for the next caller
	close(finder.block)
	snap, err = g.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateGranted, snap.State)
}

func TestGate_Backoff(t *testing.T) {
	var (
		mu      sync.Mutex
		clock   = now
		sleeps  []time.Duration
		states  []State
		offsets []time.Duration
	)
	opts := Options{
		MaxRetries: 2,
		Backoff:    1500 * time.Millisecond,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return clock
		},
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			sleeps = append(sleeps, d)
			clock = clock.Add(d)
			mu.Unlock()
			return ctx.Err()
		},
		OnTransition: func(_, to Snapshot) {
			mu.Lock()
			states = append(states, to.State)
			offsets = append(offsets, to.At.Sub(now))
			mu.Unlock()
		},
	}
	finder := &fakeFinder{results: []error{subscription.ErrNoCurrent}}
	g := NewGate(member, fakeResolver{}, finder, opts)
	assert.Equal(t, StateLoading, g.Snapshot().State)
	assert.Equal(t, now, g.Snapshot().At)

	snap, err := g.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRedirecting, snap.State)
	assert.Equal(t, 3, finder.Calls())

	// repeated evaluations of a settled gate change nothing
	_, err = g.Evaluate(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, sleeps)
	assert.Equal(t, []State{StateLoading, StateLoading, StateRedirecting}, states)
	assert.Equal(t, []time.Duration{0, 1500 * time.Millisecond, 3 * time.Second}, offsets)
	var redirects int
	for _, s := range states {
		if s == StateRedirecting {
			redirects++
		}
	}
	assert.Equal(t, 1, redirects)
}
