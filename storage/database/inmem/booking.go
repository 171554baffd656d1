package inmemdb

import (
	"context"
	"sort"

	"github.com/samber/lo"

	"github.com/trezcool/dojo/core/booking"
)

type bookingRepository struct {
	db *DB
}

var _ booking.Repository = (*bookingRepository)(nil) // interface compliance check

func NewBookingRepository(db *DB) booking.Repository {
	return &bookingRepository{db: db}
}

func (repo *bookingRepository) CreateSession(_ context.Context, s booking.Session) (booking.Session, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	s.ID = newID()
	repo.db.sessions[s.ID] = s
	return s, nil
}

func (repo *bookingRepository) GetSession(_ context.Context, id string) (booking.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if s, ok := repo.db.sessions[id]; ok {
		return s, nil
	}
	return booking.Session{}, booking.ErrSessionNotFound
}

func (repo *bookingRepository) QuerySessions(_ context.Context, filter booking.SessionFilter) ([]booking.Session, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	sessions := lo.Filter(lo.Values(repo.db.sessions), func(s booking.Session, _ int) bool {
		return (filter.InstructorID == "" || s.InstructorID == filter.InstructorID) &&
			(filter.ClassID == "" || s.ClassID == filter.ClassID) &&
			(filter.From.IsZero() || !s.Date.Before(filter.From)) &&
			(filter.To.IsZero() || !s.Date.After(filter.To))
	})
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
	return sessions, nil
}

func (repo *bookingRepository) CreateRule(_ context.Context, rule booking.RecurringRule) (booking.RecurringRule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	rule.ID = newID()
	repo.db.rules[rule.ID] = rule
	return rule, nil
}

func (repo *bookingRepository) CreateBooking(_ context.Context, b booking.Booking) (booking.Booking, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// UNIQUE (member_id, occurrence_key)
	for _, existing := range repo.db.bookings {
		if existing.MemberID == b.MemberID && existing.OccurrenceKey == b.OccurrenceKey {
			return booking.Booking{}, booking.ErrBookingExists
		}
	}
	b.ID = newID()
	repo.db.bookings[b.ID] = b
	return b, nil
}

func (repo *bookingRepository) GetBooking(_ context.Context, id string) (booking.Booking, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if b, ok := repo.db.bookings[id]; ok {
		return b, nil
	}
	return booking.Booking{}, booking.ErrBookingNotFound
}

func (repo *bookingRepository) GetMemberBooking(_ context.Context, memberID, occurrenceKey string) (booking.Booking, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, b := range repo.db.bookings {
		if b.MemberID == memberID && b.OccurrenceKey == occurrenceKey {
			return b, nil
		}
	}
	return booking.Booking{}, booking.ErrBookingNotFound
}

func (repo *bookingRepository) QueryBookings(_ context.Context, filter booking.BookingFilter) ([]booking.Booking, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	bookings := lo.Filter(lo.Values(repo.db.bookings), func(b booking.Booking, _ int) bool {
		return (filter.MemberID == "" || b.MemberID == filter.MemberID) &&
			(len(filter.OccurrenceKeys) == 0 || lo.Contains(filter.OccurrenceKeys, b.OccurrenceKey)) &&
			(filter.ExcludeStatus == "" || b.Status != filter.ExcludeStatus)
	})
	sort.Slice(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.OccurrenceKey < b.OccurrenceKey
	})
	return bookings, nil
}

func (repo *bookingRepository) UpdateBooking(_ context.Context, b booking.Booking) (booking.Booking, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.bookings[b.ID]; !ok {
		return booking.Booking{}, booking.ErrBookingNotFound
	}
	repo.db.bookings[b.ID] = b
	return b, nil
}
