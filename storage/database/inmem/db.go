// Package inmemdb keeps every table in memory. It enforces the same unique keys as the PostgreSQL schema.
package inmemdb

import (
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/attendance"
	"github.com/trezcool/dojo/core/booking"
	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
)

type DB struct {
	mu sync.RWMutex

	users         map[string]user.User
	subscriptions map[string]subscription.Subscription
	invoices      map[string]subscription.Invoice
	sessions      map[string]booking.Session
	rules         map[string]booking.RecurringRule
	bookings      map[string]booking.Booking
	attendance    map[string]attendance.Record
	activity      []activity.Entry
}

func NewDB() *DB {
	db := &DB{}
	db.reset()
	return db
}

func (db *DB) reset() {
	db.users = make(map[string]user.User)
	db.subscriptions = make(map[string]subscription.Subscription)
	db.invoices = make(map[string]subscription.Invoice)
	db.sessions = make(map[string]booking.Session)
	db.rules = make(map[string]booking.RecurringRule)
	db.bookings = make(map[string]booking.Booking)
	db.attendance = make(map[string]attendance.Record)
	db.activity = nil
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reset()
}

func newID() string {
	return uuid.New().String()
}
