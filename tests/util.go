package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
)

// NewValidator returns a validator with every validation and translation of the app registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	subscription.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Principal returns usr as an authenticated principal holding its stored role.
func Principal(usr user.User) user.Principal {
	role := usr.Role
	if role == "" {
		role = user.RoleUser
	}
	return user.Principal{
		Identity: usr.Identity(),
		Resolution: user.Resolution{
			Role:         role,
			IsAdmin:      role == user.RoleAdmin,
			IsInstructor: role == user.RoleInstructor,
		},
	}
}

// CreateSubscription stores an active subscription. An empty end means an open-ended plan.
func CreateSubscription(t *testing.T, repo subscription.Repository, memberID, frequency string, price int64, start, end string) subscription.Subscription {
	t.Helper()
	now := time.Now().UTC()
	sub := subscription.Subscription{
		MemberID:  memberID,
		PlanType:  "standard",
		Price:     decimal.NewFromInt(price),
		Frequency: frequency,
		StartDate: MustDate(t, start),
		EndDate:   MustDate(t, end),
		Status:    subscription.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	sub, err := repo.CreateSubscription(context.Background(), sub)
	if err != nil {
		t.Fatalf("CreateSubscription() failed: %v", err)
	}
	return sub
}

func CreateSession(t *testing.T, repo booking.Repository, classID, instructorID, date, start string, capacity int) booking.Session {
	t.Helper()
	end, err := time.Parse(core.ClockLayout, start)
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	s := booking.Session{
		ClassID:      classID,
		InstructorID: instructorID,
		Date:         MustDate(t, date),
		StartTime:    start,
		EndTime:      end.Add(time.Hour).Format(core.ClockLayout),
		Capacity:     capacity,
		CreatedAt:    time.Now().UTC(),
	}
	s, err = repo.CreateSession(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateSession() failed: %v", err)
	}
	return s
}

// MustDate parses a YYYY-MM-DD date. An empty string gives the zero time.
func MustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("MustDate(%q) failed: %v", s, err)
	}
	return d
}
