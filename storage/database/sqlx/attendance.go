package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/user"
)

type attendanceRow struct {
	ID         string      `db:"id"`
	SessionID  string      `db:"session_id"`
	MemberID   string      `db:"member_id"`
	Status     string      `db:"status"`
	CheckInAt  null.Time   `db:"check_in_at"`
	CheckOutAt null.Time   `db:"check_out_at"`
	Notes      null.String `db:"notes"`
	UpdatedBy  string      `db:"updated_by"`
	CreatedAt  time.Time   `db:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at"`
}

func toAttendanceRow(rec attendance.Record) attendanceRow {
	return attendanceRow{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		MemberID:   rec.MemberID,
		Status:     rec.Status,
		CheckInAt:  null.TimeFromPtr(rec.CheckInAt),
		CheckOutAt: null.TimeFromPtr(rec.CheckOutAt),
		Notes:      null.NewString(rec.Notes, rec.Notes != ""),
		UpdatedBy:  rec.UpdatedBy,
		CreatedAt:  rec.CreatedAt.UTC(),
		UpdatedAt:  rec.UpdatedAt.UTC(),
	}
}

func (r attendanceRow) record() attendance.Record {
	rec := attendance.Record{
		ID:        r.ID,
		SessionID: r.SessionID,
		MemberID:  r.MemberID,
		Status:    r.Status,
		Notes:     r.Notes.String,
		UpdatedBy: r.UpdatedBy,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.CheckInAt.Valid {
		t := r.CheckInAt.Time.UTC()
		rec.CheckInAt = &t
	}
	if r.CheckOutAt.Valid {
		t := r.CheckOutAt.Time.UTC()
		rec.CheckOutAt = &t
	}
	return rec
}

const attendanceColumns = `id, session_id, member_id, status, check_in_at, check_out_at, notes, updated_by, created_at, updated_at`

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) GetRecord(ctx context.Context, sessionID, memberID string) (attendance.Record, error) {
	if !isUUID(sessionID) || !isUUID(memberID) {
		return attendance.Record{}, attendance.ErrNotFound
	}
	var row attendanceRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT `+attendanceColumns+` FROM attendance WHERE session_id = $1 AND member_id = $2`, sessionID, memberID)
	if err != nil {
		return attendance.Record{}, trapErr(err, attendance.ErrNotFound, nil, "finding attendance")
	}
	return row.record(), nil
}

// UpsertRecord keys records on (session_id, member_id); the first insert's ID and creation time are kept.
func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	row := toAttendanceRow(rec)
	row.ID = uuid.New().String()

	q, args, err := repo.db.BindNamed(`
		INSERT INTO attendance (`+attendanceColumns+`)
		VALUES (:id, :session_id, :member_id, :status, :check_in_at, :check_out_at, :notes, :updated_by, :created_at, :updated_at)
		ON CONFLICT ON CONSTRAINT attendance_session_member_key DO UPDATE SET
			status = EXCLUDED.status, check_in_at = EXCLUDED.check_in_at, check_out_at = EXCLUDED.check_out_at,
			notes = EXCLUDED.notes, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at
		RETURNING `+attendanceColumns, row)
	if err != nil {
		return attendance.Record{}, trapErr(err, nil, nil, "building attendance upsert")
	}
	var saved attendanceRow
	if err = repo.db.GetContext(ctx, &saved, q, args...); err != nil {
		return attendance.Record{}, trapErr(err, user.ErrNotFound, nil, "upserting attendance")
	}
	return saved.record(), nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, sessionID string) ([]attendance.Record, error) {
	if !isUUID(sessionID) {
		return []attendance.Record{}, nil
	}
	var rows []attendanceRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+attendanceColumns+` FROM attendance WHERE session_id = $1 ORDER BY member_id`, sessionID)
	if err != nil {
		return nil, trapErr(err, nil, nil, "querying attendance")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}
