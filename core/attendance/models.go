package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/trezcool/dojo/core"
)

// Attendance statuses
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusPresent   = "present"
	StatusAbsent    = "absent"
	StatusLate      = "late"
)

// Instructor actions
const (
	ActionConfirm  = "confirm"
	ActionReject   = "reject"
	ActionPresent  = "present"
	ActionAbsent   = "absent"
	ActionLate     = "late"
	ActionCheckOut = "checkout"
)

var Actions = []string{ActionConfirm, ActionReject, ActionPresent, ActionAbsent, ActionLate, ActionCheckOut}

func IsValidAction(a string) bool {
	return lo.Contains(Actions, a)
}

// Record is the instructor's account of a member's attendance. One per session and member.
type Record struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	MemberID   string     `json:"member_id"`
	Status     string     `json:"status"`
	CheckInAt  *time.Time `json:"check_in_at"`
	CheckOutAt *time.Time `json:"check_out_at"`
	Notes      string     `json:"notes"`
	UpdatedBy  string     `json:"updated_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ParticipantView is the reconciled status of one participant of a session.
type ParticipantView struct {
	MemberID      string `json:"member_id"`
	BookingID     string `json:"booking_id,omitempty"` // empty for walk-ins recorded by the instructor
	BookingStatus string `json:"booking_status,omitempty"`
	Status        string `json:"status"`
	// ConfirmedByInstructor is true once the instructor confirmed or rejected the participant.
	ConfirmedByInstructor bool       `json:"confirmed_by_instructor"`
	CheckInAt             *time.Time `json:"check_in_at"`
	CheckOutAt            *time.Time `json:"check_out_at"`
	Notes                 string     `json:"notes,omitempty"`
}

// InstructorAction is what the session's instructor decided for one participant.
type InstructorAction struct {
	Action string `json:"action" validate:"required,attendanceaction"`
	Notes  string `json:"notes" validate:"max=500"`
}

func (ia *InstructorAction) Validate(validate *validator.Validate) error {
	ia.Action = core.CleanString(ia.Action, true /* lower */)
	ia.Notes = core.CleanString(ia.Notes)
	return validate.Struct(ia)
}
