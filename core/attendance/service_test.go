package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/user"
	"github.com/trezcool/dojo/services/logger"
	"github.com/trezcool/dojo/storage/database/inmem"
	"github.com/trezcool/dojo/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	db := inmemdb.NewDB()
	users := inmemdb.NewUserRepository(db)
	bookingRepo := inmemdb.NewBookingRepository(db)
	bookingSvc := booking.NewService(bookingRepo)
	recorder := activity.NewRecorderMock(inmemdb.NewActivityRepository(db), logsvc.NewQuietLogger())
	svc := attendance.NewService(inmemdb.NewAttendanceRepository(db), bookingSvc, users, recorder)
	now := time.Date(2025, 3, 4, 18, 35, 0, 0, time.UTC)
	attendance.SetNowFunc(svc, func() time.Time { return now })

	ann := testutil.CreateUser(t, users, "Ann", "ann@test.cd", "", "", true)
	bob := testutil.CreateUser(t, users, "Bob", "bob@test.cd", "", "", true)
	walkIn := testutil.CreateUser(t, users, "Cat", "cat@test.cd", "", "", true)
	coach := testutil.CreateUser(t, users, "Coach", "coach@test.cd", "", user.RoleInstructor, true)
	otherCoach := testutil.CreateUser(t, users, "Other", "other@test.cd", "", user.RoleInstructor, true)
	admin := testutil.CreateUser(t, users, "Boss", "boss@test.cd", "", user.RoleAdmin, true)

	s := testutil.CreateSession(t, bookingRepo, "bjj", coach.ID, "2025-03-04", "18:30", 0)
	book := func(memberID string, at time.Time) booking.Booking {
		b, err := bookingRepo.CreateBooking(ctx, booking.Booking{
			SessionID: s.ID, OccurrenceKey: s.OccurrenceKey(), MemberID: memberID,
			Status: booking.StatusIntent, CreatedAt: at, UpdatedAt: at,
		})
		require.NoError(t, err)
		return b
	}
	book(ann.ID, now.Add(-2*time.Hour))
	bobBooking := book(bob.ID, now.Add(-time.Hour))

	t.Run("reconcile access", func(t *testing.T) {
		tests := []struct {
			name    string
			actor   user.User
			session string
			wantErr error
		}{
			{name: "member", actor: ann, session: s.ID, wantErr: core.ErrForbidden},
			{name: "other instructor", actor: otherCoach, session: s.ID, wantErr: core.ErrForbidden},
			{name: "unknown session", actor: coach, session: "lol", wantErr: booking.ErrSessionNotFound},
			{name: "instructor", actor: coach, session: s.ID},
			{name: "admin", actor: admin, session: s.ID},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				views, err := svc.ReconcileSession(ctx, testutil.Principal(tt.actor), tt.session)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				require.Len(t, views, 2)
				for _, v := range views {
					assert.Equal(t, attendance.StatusPending, v.Status)
				}
			})
		}
	})

	t.Run("instructor actions", func(t *testing.T) {
		tests := []struct {
			name       string
			actor      user.User
			member     string
			action     attendance.InstructorAction
			wantErr    error
			wantStatus string
		}{
			{name: "admin cannot act", actor: admin, member: ann.ID, action: attendance.InstructorAction{Action: attendance.ActionConfirm}, wantErr: core.ErrForbidden},
			{name: "other instructor", actor: otherCoach, member: ann.ID, action: attendance.InstructorAction{Action: attendance.ActionConfirm}, wantErr: core.ErrForbidden},
			{name: "unknown member", actor: coach, member: "no-such-member", action: attendance.InstructorAction{Action: attendance.ActionConfirm}, wantErr: user.ErrNotFound},
			{name: "checkout before check-in", actor: coach, member: ann.ID, action: attendance.InstructorAction{Action: attendance.ActionCheckOut}, wantErr: core.ErrInvalid},
			{name: "confirm", actor: coach, member: ann.ID, action: attendance.InstructorAction{Action: attendance.ActionConfirm}, wantStatus: attendance.StatusConfirmed},
			{name: "reject", actor: coach, member: bob.ID, action: attendance.InstructorAction{Action: attendance.ActionReject, Notes: "no show"}, wantStatus: attendance.StatusRejected},
			{name: "walk-in", actor: coach, member: walkIn.ID, action: attendance.InstructorAction{Action: attendance.ActionLate}, wantStatus: attendance.StatusLate},
			{name: "checkout", actor: coach, member: walkIn.ID, action: attendance.InstructorAction{Action: attendance.ActionCheckOut}, wantStatus: attendance.StatusLate},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec, err := svc.ApplyInstructorAction(ctx, testutil.Principal(tt.actor), s.ID, tt.member, tt.action)
				if tt.wantErr != nil {
					assert.ErrorIs(t, err, tt.wantErr)
					return
				}
				require.NoError(t, err)
				assert.NotEmpty(t, rec.ID)
				assert.Equal(t, tt.wantStatus, rec.Status)
				assert.Equal(t, coach.ID, rec.UpdatedBy)
			})
		}

		views, err := svc.ReconcileSession(ctx, testutil.Principal(coach), s.ID)
		require.NoError(t, err)
		require.Len(t, views, 3)

		assert.Equal(t, ann.ID, views[0].MemberID)
		assert.Equal(t, attendance.StatusConfirmed, views[0].Status)
		assert.True(t, views[0].ConfirmedByInstructor)
		assert.Equal(t, &now, views[0].CheckInAt)

		assert.Equal(t, bob.ID, views[1].MemberID)
		assert.Equal(t, bobBooking.ID, views[1].BookingID)
		assert.Equal(t, attendance.StatusRejected, views[1].Status)
		assert.Equal(t, "no show", views[1].Notes)

		assert.Equal(t, walkIn.ID, views[2].MemberID)
		assert.Empty(t, views[2].BookingID)
		assert.NotNil(t, views[2].CheckOutAt)

		entries, err := recorder.Query(ctx, activity.QueryFilter{ActorID: coach.ID, ResourceType: activity.ResourceAttendance})
		require.NoError(t, err)
		require.Len(t, entries, 4)
		assert.Equal(t, activity.ActionAttendanceCheckOut, entries[0].Action)
		assert.Equal(t, activity.ActionAttendanceConfirm, entries[3].Action)
	})
}
