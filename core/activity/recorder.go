package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/dojo/core"
)

// writeTimeout bounds one background audit write.
const writeTimeout = 5 * time.Second

type (
	Repository interface {
		CreateEntry(ctx context.Context, e Entry) (Entry, error)
		// QueryEntries returns the newest entries first.
		QueryEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
	}

	// Recorder keeps the audit trail. Recording never fails the caller.
	Recorder interface {
		Record(ctx context.Context, e Entry)
		Query(ctx context.Context, filter QueryFilter) ([]Entry, error)
		// Wait blocks until pending writes are done.
		Wait()
	}

	recorder struct {
		repo    Repository
		logger  core.Logger
		nowFunc func() time.Time
		wg      sync.WaitGroup
	}
)

var _ Recorder = (*recorder)(nil)

func NewRecorder(repo Repository, logger core.Logger) Recorder {
	return &recorder{repo: repo, logger: logger, nowFunc: time.Now}
}

// Record writes e in the background, detached from the caller's cancellation.
func (r *recorder) Record(ctx context.Context, e Entry) {
	e = r.stamp(e)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		defer cancel()
		r.write(ctx, e)
	}()
}

func (r *recorder) stamp(e Entry) Entry {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.nowFunc().UTC()
	}
	return e
}

func (r *recorder) write(ctx context.Context, e Entry) {
	if _, err := r.repo.CreateEntry(ctx, e); err != nil {
		r.logger.Warn(fmt.Sprintf("recording %s activity: %v", e.Action, err), err, map[string]interface{}{
			"actor_id":    e.ActorID,
			"resource_id": e.ResourceID,
		})
	}
}

func (r *recorder) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	if filter.Limit <= 0 || filter.Limit > DefaultLimit {
		filter.Limit = DefaultLimit
	}
	return r.repo.QueryEntries(ctx, filter)
}

func (r *recorder) Wait() { r.wg.Wait() }

type recorderMock struct {
	*recorder
}

// NewRecorderMock records synchronously.
func NewRecorderMock(repo Repository, logger core.Logger) Recorder {
	return &recorderMock{recorder: &recorder{repo: repo, logger: logger, nowFunc: time.Now}}
}

func (r *recorderMock) Record(ctx context.Context, e Entry) {
	// run synchronously
	r.write(ctx, r.stamp(e))
}
