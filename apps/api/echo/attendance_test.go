package echoapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/user"
	testutil "github.com/trezcool/dojo/tests"
)

func Test_attendanceApi(t *testing.T) {
	resetDB()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@dojo.test", "", user.RoleAdmin, true)
	sensei := testutil.CreateUser(t, usrRepo, "Sensei", "sensei@dojo.test", "", user.RoleInstructor, true)
	other := testutil.CreateUser(t, usrRepo, "Other", "other@dojo.test", "", user.RoleInstructor, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "jane@dojo.test", "", "", true)
	joe := testutil.CreateUser(t, usrRepo, "Joe", "joe@dojo.test", "", "", true)
	walkIn := testutil.CreateUser(t, usrRepo, "Walk In", "walkin@dojo.test", "", "", true)
	s := testutil.CreateSession(t, bookingRepo, "bjj", sensei.ID, "2030-01-07", "18:00", 0)

	now := time.Now().UTC()
	for i, member := range []user.User{jane, joe} {
		_, err := bookingRepo.CreateBooking(context.Background(), booking.Booking{
			SessionID:     s.ID,
			OccurrenceKey: s.OccurrenceKey(),
			MemberID:      member.ID,
			Status:        booking.StatusIntent,
			CreatedAt:     now.Add(time.Duration(i) * time.Minute),
			UpdatedAt:     now,
		})
		require.NoError(t, err)
	}

	senseiToken, adminToken := getToken(t, sensei), getToken(t, admin)
	path := "/v1/sessions/" + s.ID + "/attendance"
	memberPath := func(id string) string { return path + "/" + id }
	action := func(a string) []byte { return marchallObj(t, attendance.InstructorAction{Action: a, Notes: "on the mat"}) }

	t.Run("reconcile access", func(t *testing.T) {
		for _, tt := range []httpTest{
			{name: "member", path: path, token: getToken(t, jane), wantCode: http.StatusForbidden},
			{name: "other instructor", path: path, token: getToken(t, other), wantCode: http.StatusForbidden},
			{name: "unknown session", path: "/v1/sessions/nope/attendance", token: senseiToken, wantCode: http.StatusNotFound},
			{name: "admin", path: path, token: adminToken},
			{name: "instructor", path: path, token: senseiToken},
		} {
			checkCode(t, tt, do(tt))
		}
	})

	tests := []httpTest{
		{name: "admin cannot act", path: memberPath(jane.ID), token: adminToken, body: action(attendance.ActionConfirm), wantCode: http.StatusForbidden},
		{name: "unknown action", path: memberPath(jane.ID), token: senseiToken, body: action("teleport"), wantCode: http.StatusBadRequest},
		{
			name: "unknown member", path: memberPath("no-such-member"), token: senseiToken, body: action(attendance.ActionConfirm),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: user.ErrNotFound.Error()}),
		},
		{name: "checkout before check-in", path: memberPath(jane.ID), token: senseiToken, body: action(attendance.ActionCheckOut), wantCode: http.StatusBadRequest},
		{name: "confirm", path: memberPath(jane.ID), token: senseiToken, body: action(attendance.ActionConfirm), extra: attendance.StatusConfirmed},
		{name: "walk-in", path: memberPath(walkIn.ID), token: senseiToken, body: action(attendance.ActionLate), extra: attendance.StatusLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPut
			rec := do(tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)

			if want, ok := tt.extra.(string); ok {
				var r attendance.Record
				unmarshal(t, rec, &r)
				assert.Equal(t, want, r.Status)
				assert.NotNil(t, r.CheckInAt)
				assert.Equal(t, sensei.ID, r.UpdatedBy)
				assert.Equal(t, "on the mat", r.Notes)
			}
		})
	}

	t.Run("reconciled", func(t *testing.T) {
		rec := do(httpTest{path: path, token: senseiToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var views []attendance.ParticipantView
		unmarshal(t, rec, &views)
		require.Len(t, views, 3)

		assert.Equal(t, jane.ID, views[0].MemberID)
		assert.Equal(t, attendance.StatusConfirmed, views[0].Status)
		assert.True(t, views[0].ConfirmedByInstructor)

		assert.Equal(t, joe.ID, views[1].MemberID)
		assert.Equal(t, attendance.StatusPending, views[1].Status)
		assert.False(t, views[1].ConfirmedByInstructor)

		assert.Equal(t, walkIn.ID, views[2].MemberID)
		assert.Empty(t, views[2].BookingID)
		assert.Equal(t, attendance.StatusLate, views[2].Status)
	})

	t.Run("audited", func(t *testing.T) {
		rec := do(httpTest{path: "/v1/activity?resource_type=" + activity.ResourceAttendance + "&actor_id=" + sensei.ID, token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var entries []activity.Entry
		unmarshal(t, rec, &entries)
		assert.Len(t, entries, 2)
	})
}
