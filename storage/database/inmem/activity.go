package inmemdb

import (
	"context"

	"github.com/trezcool/dojo/core/activity"
)

type activityRepository struct {
	db *DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateEntry(_ context.Context, e activity.Entry) (activity.Entry, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	e.ID = newID()
	repo.db.activity = append(repo.db.activity, e)
	return e, nil
}

func (repo *activityRepository) QueryEntries(_ context.Context, filter activity.QueryFilter) ([]activity.Entry, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	entries := make([]activity.Entry, 0)
	// newest first
	for i := len(repo.db.activity) - 1; i >= 0; i-- {
		e := repo.db.activity[i]
		if (filter.ActorID != "" && e.ActorID != filter.ActorID) ||
			(filter.ResourceType != "" && e.ResourceType != filter.ResourceType) ||
			(filter.ResourceID != "" && e.ResourceID != filter.ResourceID) ||
			(!filter.From.IsZero() && e.CreatedAt.Before(filter.From)) {
			continue
		}
		entries = append(entries, e)
		if filter.Limit > 0 && len(entries) == filter.Limit {
			break
		}
	}
	return entries, nil
}
