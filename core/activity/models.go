package activity

import "time"

// Action types
const (
	ActionAttendanceConfirm  = "attendance.confirm"
	ActionAttendanceReject   = "attendance.reject"
	ActionAttendanceMark     = "attendance.mark"
	ActionAttendanceCheckOut = "attendance.checkout"
	ActionHelpRequest        = "help.request"
	ActionRoleChange         = "user.role"
	ActionSubscriptionCancel = "subscription.cancel"
	ActionInvoiceStatus      = "invoice.status"
)

// Resource types
const (
	ResourceAttendance   = "attendance"
	ResourceUser         = "user"
	ResourceSubscription = "subscription"
	ResourceInvoice      = "invoice"
)

// Entry is one line of the audit trail.
type Entry struct {
	ID           string    `json:"id"`
	ActorID      string    `json:"actor_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

type QueryFilter struct {
	ActorID      string    `query:"actor_id"`
	ResourceType string    `query:"resource_type"`
	ResourceID   string    `query:"resource_id"`
	From         time.Time `query:"from"`
	Limit        int       `query:"limit"`
}

// DefaultLimit caps the entries returned by a query without limit.
const DefaultLimit = 100
