package attendance

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/booking"
)

// Reconcile merges the session's bookings with the instructor's attendance records into one view per member.
// A booked member without a record is pending; a record always wins over the booking.
// Cancelled bookings are ignored. Members with a record but no booking (walk-ins) are listed too.
// Booked participants come first in booking order, walk-ins after them by member id.
func Reconcile(session booking.Session, bookings []booking.Booking, records []Record) []ParticipantView {
	active := lo.Filter(bookings, func(b booking.Booking, _ int) bool {
		return b.BelongsTo(session) && b.Status != booking.StatusCancelled
	})
	sort.SliceStable(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })
	active = lo.UniqBy(active, func(b booking.Booking) string { return b.MemberID })

	byMember := lo.KeyBy(
		lo.Filter(records, func(r Record, _ int) bool { return r.SessionID == session.ID }),
		func(r Record) string { return r.MemberID },
	)

	views := make([]ParticipantView, 0, len(active)+len(byMember))
	for _, b := range active {
		v := ParticipantView{MemberID: b.MemberID, BookingID: b.ID, BookingStatus: b.Status, Status: StatusPending}
		if r, ok := byMember[b.MemberID]; ok {
			v = withRecord(v, r)
			delete(byMember, b.MemberID)
		}
		views = append(views, v)
	}

	walkIns := lo.Values(byMember)
	sort.Slice(walkIns, func(i, j int) bool { return walkIns[i].MemberID < walkIns[j].MemberID })
	for _, r := range walkIns {
		views = append(views, withRecord(ParticipantView{MemberID: r.MemberID}, r))
	}
	return views
}

func withRecord(v ParticipantView, r Record) ParticipantView {
	v.Status = r.Status
	v.ConfirmedByInstructor = r.Status == StatusConfirmed || r.Status == StatusRejected
	v.CheckInAt = r.CheckInAt
	v.CheckOutAt = r.CheckOutAt
	v.Notes = r.Notes
	return v
}

// ApplyInstructorAction returns the attendance record of member after instructorID applied action.
// existing is the current record, if any. Only the session's instructor may act.
// Repeating an action leaves the record as it is; a different action overwrites the previous one.
func ApplyInstructorAction(session booking.Session, instructorID, memberID string, action InstructorAction, existing *Record, now time.Time) (Record, error) {
	if instructorID == "" || instructorID != session.InstructorID {
		return Record{}, core.ErrForbidden
	}
	if memberID == "" {
		return Record{}, core.NewValidationError(nil, core.FieldError{Field: "member_id", Error: "this field is required"})
	}
	if !IsValidAction(action.Action) {
		return Record{}, core.NewValidationError(nil, core.FieldError{Field: "action", Error: "invalid attendance action"})
	}

	rec := Record{SessionID: session.ID, MemberID: memberID, Status: StatusPending, CreatedAt: now}
	if existing != nil {
		rec = *existing
	}
	checkIn := func() {
		if rec.CheckInAt == nil {
			t := now
			rec.CheckInAt = &t
		}
	}

	switch action.Action {
	case ActionConfirm:
		if rec.Status != StatusConfirmed {
			rec.CheckInAt = nil
		}
		checkIn()
		rec.Status = StatusConfirmed
	case ActionReject:
		rec.Status = StatusRejected
		rec.CheckInAt, rec.CheckOutAt = nil, nil
	case ActionPresent:
		checkIn()
		rec.Status = StatusPresent
	case ActionLate:
		checkIn()
		rec.Status = StatusLate
	case ActionAbsent:
		rec.Status = StatusAbsent
		rec.CheckInAt, rec.CheckOutAt = nil, nil
	case ActionCheckOut:
		if rec.CheckInAt == nil {
			return Record{}, core.NewValidationError(nil, core.FieldError{Field: "action", Error: "member has not checked in"})
		}
		if rec.CheckOutAt == nil {
			t := now
			rec.CheckOutAt = &t
		}
	}

	if action.Notes != "" {
		rec.Notes = action.Notes
	}
	rec.UpdatedBy = instructorID
	rec.UpdatedAt = now
	return rec, nil
}
