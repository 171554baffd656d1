package booking

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/user"
)

var (
	// errors
	ErrSessionNotFound = core.NewError(core.ErrNotFound, "session not found")
	ErrBookingNotFound = core.NewError(core.ErrNotFound, "booking not found")
	ErrBookingExists   = core.NewError(core.ErrConflict, "the member already booked this occurrence")
	ErrSessionFull     = core.NewError(core.ErrInvalid, "session is full")
)

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		// QuerySessions returns sessions ordered by date then start time.
		QuerySessions(ctx context.Context, filter SessionFilter) ([]Session, error)

		CreateRule(ctx context.Context, rule RecurringRule) (RecurringRule, error)

		// CreateBooking fails with ErrBookingExists when the member already holds a booking for the occurrence.
		CreateBooking(ctx context.Context, b Booking) (Booking, error)
		GetBooking(ctx context.Context, id string) (Booking, error)
		GetMemberBooking(ctx context.Context, memberID, occurrenceKey string) (Booking, error)
		// QueryBookings returns bookings ordered by creation time.
		QueryBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
		UpdateBooking(ctx context.Context, b Booking) (Booking, error)
	}

	Service interface {
		CreateSession(ctx context.Context, actor user.Principal, ns NewSession) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		QuerySessions(ctx context.Context, filter SessionFilter) ([]Session, error)
		Book(ctx context.Context, memberID, sessionID string) (Booking, error)
		CancelBooking(ctx context.Context, actor user.Principal, id string) (Booking, error)
		PlanRecurring(ctx context.Context, memberID string, rr RecurringRequest) (RecurringRule, []Booking, error)
		Bookings(ctx context.Context, memberID string) ([]Booking, error)
		SessionBookings(ctx context.Context, s Session) ([]Booking, error)
	}

	service struct {
		repo    Repository
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo, nowFunc: time.Now}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

// CreateSession lets instructors schedule their own sessions and admins schedule anyone's.
func (svc *service) CreateSession(ctx context.Context, actor user.Principal, ns NewSession) (Session, error) {
	if !actor.IsInstructor && !actor.IsAdmin {
		return Session{}, core.ErrForbidden
	}
	instructorID := ns.InstructorID
	if instructorID == "" {
		instructorID = actor.ID
	}
	if instructorID != actor.ID && !actor.IsAdmin {
		return Session{}, core.ErrForbidden
	}

	s, err := svc.repo.CreateSession(ctx, Session{
		ClassID:      ns.ClassID,
		InstructorID: instructorID,
		Date:         ns.date,
		StartTime:    ns.StartTime,
		EndTime:      ns.EndTime,
		Capacity:     ns.Capacity,
		CreatedAt:    svc.now(),
	})
	if err != nil {
		return Session{}, errors.Wrap(err, "creating session")
	}
	return s, nil
}

func (svc *service) GetSession(ctx context.Context, id string) (Session, error) {
	return svc.repo.GetSession(ctx, id)
}

func (svc *service) QuerySessions(ctx context.Context, filter SessionFilter) ([]Session, error) {
	filter.Clean()
	return svc.repo.QuerySessions(ctx, filter)
}

// Book records the member's intent to attend the session. Booking twice returns the first booking.
func (svc *service) Book(ctx context.Context, memberID, sessionID string) (Booking, error) {
	s, err := svc.repo.GetSession(ctx, sessionID)
	if err != nil {
		return Booking{}, err
	}
	key := s.OccurrenceKey()

	b, err := svc.repo.GetMemberBooking(ctx, memberID, key)
	switch {
	case err == nil:
		if b.Status != StatusCancelled {
			return b, nil
		}
		if err = svc.checkCapacity(ctx, s); err != nil {
			return Booking{}, err
		}
		return svc.setStatus(ctx, b, StatusIntent)
	case !errors.Is(err, ErrBookingNotFound):
		return Booking{}, errors.Wrap(err, "finding booking")
	}

	if err = svc.checkCapacity(ctx, s); err != nil {
		return Booking{}, err
	}
	now := svc.now()
	b, err = svc.repo.CreateBooking(ctx, Booking{
		SessionID:     s.ID,
		OccurrenceKey: key,
		MemberID:      memberID,
		Status:        StatusIntent,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if errors.Is(err, core.ErrConflict) {
		return svc.repo.GetMemberBooking(ctx, memberID, key)
	}
	return b, err
}

// checkCapacity is advisory: two members may race for the last seat.
func (svc *service) checkCapacity(ctx context.Context, s Session) error {
	if s.Capacity <= 0 {
		return nil
	}
	booked, err := svc.repo.QueryBookings(ctx, BookingFilter{OccurrenceKeys: []string{s.OccurrenceKey()}, ExcludeStatus: StatusCancelled})
	if err != nil {
		return errors.Wrap(err, "counting bookings")
	}
	if len(booked) >= s.Capacity {
		return ErrSessionFull
	}
	return nil
}

func (svc *service) CancelBooking(ctx context.Context, actor user.Principal, id string) (Booking, error) {
	b, err := svc.repo.GetBooking(ctx, id)
	if err != nil {
		return Booking{}, err
	}
	if b.MemberID != actor.ID && !actor.IsAdmin {
		return Booking{}, core.ErrForbidden
	}
	if b.Status == StatusCancelled {
		return b, nil
	}
	return svc.setStatus(ctx, b, StatusCancelled)
}

func (svc *service) setStatus(ctx context.Context, b Booking, status string) (Booking, error) {
	b.Status = status
	b.UpdatedAt = svc.now()
	return svc.repo.UpdateBooking(ctx, b)
}

// PlanRecurring books the session's slot for rr.Weeks weeks starting with the session itself.
// It stores one rule and one intent per occurrence; occurrences the member already booked are kept as they are,
// except cancelled ones which are booked again. Re-running the same plan creates no new bookings.
// Capacity is only checked when booking single sessions.
func (svc *service) PlanRecurring(ctx context.Context, memberID string, rr RecurringRequest) (RecurringRule, []Booking, error) {
	s, err := svc.repo.GetSession(ctx, rr.SessionID)
	if err != nil {
		return RecurringRule{}, nil, err
	}
	occurrences, err := GenerateOccurrences(AnchorOf(s), rr.Weeks)
	if err != nil {
		return RecurringRule{}, nil, err
	}
	first, last := occurrences[0], occurrences[len(occurrences)-1]

	sessions, err := svc.repo.QuerySessions(ctx, SessionFilter{ClassID: s.ClassID, From: first.Date, To: last.Date})
	if err != nil {
		return RecurringRule{}, nil, errors.Wrap(err, "querying sessions")
	}
	sessionByKey := lo.KeyBy(sessions, func(sess Session) string { return sess.OccurrenceKey() })

	rule, err := svc.repo.CreateRule(ctx, RecurringRule{
		MemberID:  memberID,
		Pattern:   s.Pattern(),
		Weekday:   first.Date.Weekday(),
		TimeSlot:  s.StartTime,
		ValidFrom: first.Date,
		ValidTo:   last.Date,
		CreatedAt: svc.now(),
	})
	if err != nil {
		return RecurringRule{}, nil, errors.Wrap(err, "creating recurring rule")
	}

	bookings := make([]Booking, 0, len(occurrences))
	for _, occ := range occurrences {
		if err = ctx.Err(); err != nil {
			return rule, bookings, err
		}
		b, err := svc.upsertIntent(ctx, Booking{
			SessionID:     sessionByKey[occ.Key].ID,
			OccurrenceKey: occ.Key,
			MemberID:      memberID,
			RuleID:        rule.ID,
		})
		if err != nil {
			return rule, bookings, err
		}
		bookings = append(bookings, b)
	}
	return rule, bookings, nil
}

func (svc *service) upsertIntent(ctx context.Context, b Booking) (Booking, error) {
	now := svc.now()
	b.Status = StatusIntent
	b.CreatedAt, b.UpdatedAt = now, now

	created, err := svc.repo.CreateBooking(ctx, b)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, core.ErrConflict) {
		return Booking{}, errors.Wrap(err, "creating booking")
	}

	existing, err := svc.repo.GetMemberBooking(ctx, b.MemberID, b.OccurrenceKey)
	if err != nil {
		return Booking{}, errors.Wrap(err, "finding booking")
	}
	if existing.Status != StatusCancelled {
		return existing, nil
	}
	if existing.SessionID == "" {
		existing.SessionID = b.SessionID
	}
	existing.RuleID = b.RuleID
	return svc.setStatus(ctx, existing, StatusIntent)
}

func (svc *service) Bookings(ctx context.Context, memberID string) ([]Booking, error) {
	return svc.repo.QueryBookings(ctx, BookingFilter{MemberID: memberID})
}

func (svc *service) SessionBookings(ctx context.Context, s Session) ([]Booking, error) {
	return svc.repo.QueryBookings(ctx, BookingFilter{OccurrenceKeys: []string{s.OccurrenceKey()}})
}
