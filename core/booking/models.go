package booking

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/dojo/core"
)

// Booking statuses
const (
	StatusIntent    = "intent"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Session is one dated occurrence of a class.
type Session struct {
	ID           string    `json:"id"`
	ClassID      string    `json:"class_id"`
	InstructorID string    `json:"instructor_id"`
	Date         time.Time `json:"date"`
	StartTime    string    `json:"start_time"` // HH:MM
	EndTime      string    `json:"end_time"`   // HH:MM
	Capacity     int       `json:"capacity"`   // 0 means unlimited
	CreatedAt    time.Time `json:"created_at"`
}

// Pattern identifies the weekly slot the session belongs to.
func (s Session) Pattern() string {
	return Pattern(s.ClassID, s.StartTime)
}

func (s Session) OccurrenceKey() string {
	return OccurrenceKey(s.Pattern(), s.Date)
}

// Booking is a member's intent to attend an occurrence. It never says whether the member did attend.
type Booking struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id,omitempty"` // empty when no session exists yet for the occurrence
	OccurrenceKey string    `json:"occurrence_key"`
	MemberID      string    `json:"member_id"`
	RuleID        string    `json:"rule_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BelongsTo reports whether the booking targets session s.
func (b Booking) BelongsTo(s Session) bool {
	return (b.SessionID != "" && b.SessionID == s.ID) || b.OccurrenceKey == s.OccurrenceKey()
}

// RecurringRule records one "attend every week" plan. It is expanded once, when created.
type RecurringRule struct {
	ID        string       `json:"id"`
	MemberID  string       `json:"member_id"`
	Pattern   string       `json:"pattern"`
	Weekday   time.Weekday `json:"weekday"`
	TimeSlot  string       `json:"time_slot"`
	ValidFrom time.Time    `json:"valid_from"`
	ValidTo   time.Time    `json:"valid_to"`
	CreatedAt time.Time    `json:"created_at"`
}

// NewSession contains information needed to schedule a class session.
type NewSession struct {
	ClassID      string `json:"class_id" validate:"required,alphanum_"`
	InstructorID string `json:"instructor_id"` // defaults to the acting instructor
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"start_time" validate:"required,clock"`
	EndTime      string `json:"end_time" validate:"required,clock"`
	Capacity     int    `json:"capacity" validate:"gte=0"`

	date time.Time
}

func (ns *NewSession) Validate(validate *validator.Validate) error {
	ns.ClassID = core.CleanString(ns.ClassID, true /* lower */)
	ns.InstructorID = core.CleanString(ns.InstructorID)
	ns.Date = core.CleanString(ns.Date)
	ns.StartTime = core.CleanString(ns.StartTime)
	ns.EndTime = core.CleanString(ns.EndTime)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	start, _ := time.Parse(core.ClockLayout, ns.StartTime)
	end, _ := time.Parse(core.ClockLayout, ns.EndTime)
	if !end.After(start) {
		return core.NewValidationError(nil, core.FieldError{Field: "end_time", Error: "end time must be after start time"})
	}
	ns.date, _ = core.ParseDate(ns.Date)
	return nil
}

// RecurringRequest asks to book an occurrence and the same slot over the following weeks.
type RecurringRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Weeks     int    `json:"weeks" validate:"required,min=1,max=52"`
}

func (rr *RecurringRequest) Validate(validate *validator.Validate) error {
	rr.SessionID = core.CleanString(rr.SessionID)
	return validate.Struct(rr)
}

type SessionFilter struct {
	InstructorID string
	ClassID      string
	From         time.Time // inclusive
	To           time.Time // inclusive
}

func (sf *SessionFilter) Clean() {
	sf.InstructorID = core.CleanString(sf.InstructorID)
	sf.ClassID = core.CleanString(sf.ClassID, true /* lower */)
}

type BookingFilter struct {
	MemberID       string
	OccurrenceKeys []string
	ExcludeStatus  string
}
