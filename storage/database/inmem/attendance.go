package inmemdb

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/trezcool/dojo/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func attendanceKey(sessionID, memberID string) string {
	return sessionID + "|" + memberID
}

func (repo *attendanceRepository) GetRecord(_ context.Context, sessionID, memberID string) (attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.attendance[attendanceKey(sessionID, memberID)]; ok {
		return rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

// UpsertRecord keys records on (session_id, member_id); the first insert's ID and creation time are kept.
func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	key := attendanceKey(rec.SessionID, rec.MemberID)
	if existing, ok := repo.db.attendance[key]; ok {
		rec.ID, rec.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		rec.ID = newID()
	}
	repo.db.attendance[key] = rec
	return rec, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, sessionID string) ([]attendance.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	records := lo.Filter(lo.Values(repo.db.attendance), func(rec attendance.Record, _ int) bool {
		return rec.SessionID == sessionID
	})
	sort.Slice(records, func(i, j int) bool { return records[i].MemberID < records[j].MemberID })
	return records, nil
}
