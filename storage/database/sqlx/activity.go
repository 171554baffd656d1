package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/dojo/core/activity"
)

type activityRow struct {
	ID           string    `db:"id"`
	ActorID      string    `db:"actor_id"`
	Action       string    `db:"action"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	Description  string    `db:"description"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r activityRow) entry() activity.Entry {
	return activity.Entry(r)
}

const activityColumns = `id, actor_id, action, resource_type, resource_id, description, created_at`

type activityRepository struct {
	db *sqlx.DB
}

var _ activity.Repository = (*activityRepository)(nil) // interface compliance check

func NewActivityRepository(db *sqlx.DB) activity.Repository {
	return &activityRepository{db: db}
}

func (repo *activityRepository) CreateEntry(ctx context.Context, e activity.Entry) (activity.Entry, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = e.CreatedAt.UTC()
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO activity_log (`+activityColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.ActorID, e.Action, e.ResourceType, e.ResourceID, e.Description, e.CreatedAt)
	if err != nil {
		return activity.Entry{}, trapErr(err, nil, nil, "inserting activity entry")
	}
	return e, nil
}

func (repo *activityRepository) QueryEntries(ctx context.Context, filter activity.QueryFilter) ([]activity.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ActorID != "" {
		where = append(where, `actor_id = ?`)
		args = append(args, filter.ActorID)
	}
	if filter.ResourceType != "" {
		where = append(where, `resource_type = ?`)
		args = append(args, filter.ResourceType)
	}
	if filter.ResourceID != "" {
		where = append(where, `resource_id = ?`)
		args = append(args, filter.ResourceID)
	}
	if !filter.From.IsZero() {
		where = append(where, `created_at >= ?`)
		args = append(args, filter.From.UTC())
	}

	q := `SELECT ` + activityColumns + ` FROM activity_log`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []activityRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, trapErr(err, nil, nil, "querying activity")
	}
	entries := make([]activity.Entry, 0, len(rows))
	for _, r := range rows {
		e := r.entry()
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	return entries, nil
}
