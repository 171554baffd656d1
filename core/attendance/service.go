package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/user"
)

var (
	// errors
	ErrNotFound = core.NewError(core.ErrNotFound, "attendance record not found")
)

var auditActions = map[string]string{
	ActionConfirm:  activity.ActionAttendanceConfirm,
	ActionReject:   activity.ActionAttendanceReject,
	ActionPresent:  activity.ActionAttendanceMark,
	ActionAbsent:   activity.ActionAttendanceMark,
	ActionLate:     activity.ActionAttendanceMark,
	ActionCheckOut: activity.ActionAttendanceCheckOut,
}

type (
	Repository interface {
		GetRecord(ctx context.Context, sessionID, memberID string) (Record, error)
		// UpsertRecord inserts rec or overwrites the record of the same session and member.
		UpsertRecord(ctx context.Context, rec Record) (Record, error)
		QueryRecords(ctx context.Context, sessionID string) ([]Record, error)
	}

	// Sessions is the part of the booking service attendance needs.
	Sessions interface {
		GetSession(ctx context.Context, id string) (booking.Session, error)
		SessionBookings(ctx context.Context, s booking.Session) ([]booking.Booking, error)
	}

	Service interface {
		ReconcileSession(ctx context.Context, actor user.Principal, sessionID string) ([]ParticipantView, error)
		ApplyInstructorAction(ctx context.Context, actor user.Principal, sessionID, memberID string, action InstructorAction) (Record, error)
	}

	service struct {
		repo     Repository
		sessions Sessions
		profiles user.ProfileReader
		recorder activity.Recorder
		nowFunc  func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, sessions Sessions, profiles user.ProfileReader, recorder activity.Recorder) Service {
	return &service{repo: repo, sessions: sessions, profiles: profiles, recorder: recorder, nowFunc: time.Now}
}

// ReconcileSession is open to the session's instructor and to admins.
func (svc *service) ReconcileSession(ctx context.Context, actor user.Principal, sessionID string) ([]ParticipantView, error) {
	s, err := svc.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.ID != s.InstructorID && !actor.IsAdmin {
		return nil, core.ErrForbidden
	}

	bookings, err := svc.sessions.SessionBookings(ctx, s)
	if err != nil {
		return nil, errors.Wrap(err, "querying bookings")
	}
	records, err := svc.repo.QueryRecords(ctx, s.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return Reconcile(s, bookings, records), nil
}

func (svc *service) ApplyInstructorAction(ctx context.Context, actor user.Principal, sessionID, memberID string, action InstructorAction) (Record, error) {
	s, err := svc.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Record{}, err
	}
	if actor.ID != s.InstructorID {
		return Record{}, core.ErrForbidden
	}
	if _, err = svc.profiles.GetUser(ctx, user.GetFilter{ID: memberID}); err != nil {
		return Record{}, errors.Wrap(err, "finding member")
	}

	var existing *Record
	rec, err := svc.repo.GetRecord(ctx, s.ID, memberID)
	switch {
	case err == nil:
		existing = &rec
	case !errors.Is(err, ErrNotFound):
		return Record{}, errors.Wrap(err, "finding attendance")
	}

	rec, err = ApplyInstructorAction(s, actor.ID, memberID, action, existing, svc.nowFunc().UTC())
	if err != nil {
		return Record{}, err
	}
	if rec, err = svc.repo.UpsertRecord(ctx, rec); err != nil {
		return Record{}, errors.Wrap(err, "saving attendance")
	}

	svc.recorder.Record(ctx, activity.Entry{
		ActorID:      actor.ID,
		Action:       auditActions[action.Action],
		ResourceType: activity.ResourceAttendance,
		ResourceID:   rec.ID,
		Description:  fmt.Sprintf("%s: member %s of session %s is %s", action.Action, memberID, s.ID, rec.Status),
	})
	return rec, nil
}
