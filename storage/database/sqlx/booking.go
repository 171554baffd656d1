package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/user"
)

type sessionRow struct {
	ID           string    `db:"id"`
	ClassID      string    `db:"class_id"`
	InstructorID string    `db:"instructor_id"`
	Date         time.Time `db:"date"`
	StartTime    string    `db:"start_time"`
	EndTime      string    `db:"end_time"`
	Capacity     int       `db:"capacity"`
	CreatedAt    time.Time `db:"created_at"`
}

func toSessionRow(s booking.Session) sessionRow {
	return sessionRow{
		ID:           s.ID,
		ClassID:      s.ClassID,
		InstructorID: s.InstructorID,
		Date:         core.Date(s.Date),
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Capacity:     s.Capacity,
		CreatedAt:    s.CreatedAt.UTC(),
	}
}

func (r sessionRow) session() booking.Session {
	return booking.Session{
		ID:           r.ID,
		ClassID:      r.ClassID,
		InstructorID: r.InstructorID,
		Date:         core.Date(r.Date),
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Capacity:     r.Capacity,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type bookingRow struct {
	ID            string      `db:"id"`
	SessionID     null.String `db:"session_id"`
	OccurrenceKey string      `db:"occurrence_key"`
	MemberID      string      `db:"member_id"`
	RuleID        null.String `db:"rule_id"`
	Status        string      `db:"status"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func toBookingRow(b booking.Booking) bookingRow {
	return bookingRow{
		ID:            b.ID,
		SessionID:     null.NewString(b.SessionID, b.SessionID != ""),
		OccurrenceKey: b.OccurrenceKey,
		MemberID:      b.MemberID,
		RuleID:        null.NewString(b.RuleID, b.RuleID != ""),
		Status:        b.Status,
		CreatedAt:     b.CreatedAt.UTC(),
		UpdatedAt:     b.UpdatedAt.UTC(),
	}
}

func (r bookingRow) booking() booking.Booking {
	return booking.Booking{
		ID:            r.ID,
		SessionID:     r.SessionID.String,
		OccurrenceKey: r.OccurrenceKey,
		MemberID:      r.MemberID,
		RuleID:        r.RuleID.String,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
}

type ruleRow struct {
	ID        string    `db:"id"`
	MemberID  string    `db:"member_id"`
	Pattern   string    `db:"pattern"`
	Weekday   int       `db:"weekday"`
	TimeSlot  string    `db:"time_slot"`
	ValidFrom time.Time `db:"valid_from"`
	ValidTo   time.Time `db:"valid_to"`
	CreatedAt time.Time `db:"created_at"`
}

const (
	sessionColumns = `id, class_id, instructor_id, date, start_time, end_time, capacity, created_at`
	bookingColumns = `id, session_id, occurrence_key, member_id, rule_id, status, created_at, updated_at`
)

type bookingRepository struct {
	db *sqlx.DB
}

var _ booking.Repository = (*bookingRepository)(nil) // interface compliance check

func NewBookingRepository(db *sqlx.DB) booking.Repository {
	return &bookingRepository{db: db}
}

func (repo *bookingRepository) CreateSession(ctx context.Context, s booking.Session) (booking.Session, error) {
	s.ID = uuid.New().String()
	row := toSessionRow(s)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO class_sessions (`+sessionColumns+`)
		VALUES (:id, :class_id, :instructor_id, :date, :start_time, :end_time, :capacity, :created_at)`, row)
	if err != nil {
		return booking.Session{}, trapErr(err, user.ErrNotFound, nil, "inserting session")
	}
	return row.session(), nil
}

func (repo *bookingRepository) GetSession(ctx context.Context, id string) (booking.Session, error) {
	if !isUUID(id) {
		return booking.Session{}, booking.ErrSessionNotFound
	}
	var row sessionRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+sessionColumns+` FROM class_sessions WHERE id = $1`, id)
	if err != nil {
		return booking.Session{}, trapErr(err, booking.ErrSessionNotFound, nil, "finding session")
	}
	return row.session(), nil
}

func (repo *bookingRepository) QuerySessions(ctx context.Context, filter booking.SessionFilter) ([]booking.Session, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.InstructorID != "" {
		if !isUUID(filter.InstructorID) {
			return []booking.Session{}, nil
		}
		where = append(where, `instructor_id = ?`)
		args = append(args, filter.InstructorID)
	}
	if filter.ClassID != "" {
		where = append(where, `class_id = ?`)
		args = append(args, filter.ClassID)
	}
	if !filter.From.IsZero() {
		where = append(where, `date >= ?`)
		args = append(args, core.Date(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, `date <= ?`)
		args = append(args, core.Date(filter.To))
	}

	q := `SELECT ` + sessionColumns + ` FROM class_sessions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY date, start_time, id`

	var rows []sessionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, trapErr(err, nil, nil, "querying sessions")
	}
	sessions := make([]booking.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions, nil
}

func (repo *bookingRepository) CreateRule(ctx context.Context, rule booking.RecurringRule) (booking.RecurringRule, error) {
	rule.ID = uuid.New().String()
	row := ruleRow{
		ID:        rule.ID,
		MemberID:  rule.MemberID,
		Pattern:   rule.Pattern,
		Weekday:   int(rule.Weekday),
		TimeSlot:  rule.TimeSlot,
		ValidFrom: core.Date(rule.ValidFrom),
		ValidTo:   core.Date(rule.ValidTo),
		CreatedAt: rule.CreatedAt.UTC(),
	}
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO recurring_rules (id, member_id, pattern, weekday, time_slot, valid_from, valid_to, created_at)
		VALUES (:id, :member_id, :pattern, :weekday, :time_slot, :valid_from, :valid_to, :created_at)`, row)
	if err != nil {
		return booking.RecurringRule{}, trapErr(err, nil, nil, "inserting recurring rule")
	}
	return rule, nil
}

func (repo *bookingRepository) CreateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	b.ID = uuid.New().String()
	row := toBookingRow(b)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (:id, :session_id, :occurrence_key, :member_id, :rule_id, :status, :created_at, :updated_at)`, row)
	if err != nil {
		return booking.Booking{}, trapErr(err, nil, booking.ErrBookingExists, "inserting booking")
	}
	return row.booking(), nil
}

func (repo *bookingRepository) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	if !isUUID(id) {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	var row bookingRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		return booking.Booking{}, trapErr(err, booking.ErrBookingNotFound, nil, "finding booking")
	}
	return row.booking(), nil
}

func (repo *bookingRepository) GetMemberBooking(ctx context.Context, memberID, occurrenceKey string) (booking.Booking, error) {
	if !isUUID(memberID) {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	var row bookingRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT `+bookingColumns+` FROM bookings WHERE member_id = $1 AND occurrence_key = $2`, memberID, occurrenceKey)
	if err != nil {
		return booking.Booking{}, trapErr(err, booking.ErrBookingNotFound, nil, "finding member booking")
	}
	return row.booking(), nil
}

func (repo *bookingRepository) QueryBookings(ctx context.Context, filter booking.BookingFilter) ([]booking.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.MemberID != "" {
		if !isUUID(filter.MemberID) {
			return []booking.Booking{}, nil
		}
		where = append(where, `member_id = ?`)
		args = append(args, filter.MemberID)
	}
	if len(filter.OccurrenceKeys) > 0 {
		where = append(where, `occurrence_key IN (?)`)
		args = append(args, filter.OccurrenceKeys)
	}
	if filter.ExcludeStatus != "" {
		where = append(where, `status <> ?`)
		args = append(args, filter.ExcludeStatus)
	}

	q := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY created_at, occurrence_key`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, trapErr(err, nil, nil, "building bookings query")
	}
	var rows []bookingRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, trapErr(err, nil, nil, "querying bookings")
	}
	bookings := make([]booking.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, r.booking())
	}
	return bookings, nil
}

func (repo *bookingRepository) UpdateBooking(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	row := toBookingRow(b)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE bookings SET session_id = :session_id, rule_id = :rule_id, status = :status, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return booking.Booking{}, trapErr(err, nil, nil, "updating booking")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	return row.booking(), nil
}
