package subscription

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/trezcool/dojo/core"
)

// Billing frequencies
const (
	FrequencyMonthly = "monthly"
	FrequencyAnnual  = "annual"
	FrequencyOneTime = "one_time"
)

// Subscription statuses
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Invoice statuses
const (
	InvoicePending   = "pending"
	InvoicePaid      = "paid"
	InvoiceCancelled = "cancelled"
	InvoiceRefunded  = "refunded"
)

var (
	Frequencies     = []string{FrequencyMonthly, FrequencyAnnual, FrequencyOneTime}
	InvoiceStatuses = []string{InvoicePending, InvoicePaid, InvoiceCancelled, InvoiceRefunded}

	// invoiceTransitions lists the statuses an invoice may move to from a given status.
	invoiceTransitions = map[string][]string{
		InvoicePending: {InvoicePaid, InvoiceCancelled},
		InvoicePaid:    {InvoiceRefunded},
	}
)

func IsValidFrequency(f string) bool {
	return lo.Contains(Frequencies, f)
}

type Subscription struct {
	ID        string          `json:"id"`
	MemberID  string          `json:"member_id"`
	PlanType  string          `json:"plan_type"`
	Price     decimal.Decimal `json:"price"`
	Frequency string          `json:"frequency"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"` // zero for open-ended annual & one-time plans
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsCurrent reports whether the subscription grants access on day now.
func (sub Subscription) IsCurrent(now time.Time) bool {
	if sub.Status != StatusActive {
		return false
	}
	return sub.EndDate.IsZero() || !core.Date(sub.EndDate).Before(core.Date(now))
}

// Period is one billing cycle.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func PeriodOf(t time.Time) Period {
	y, m, _ := t.Date()
	return Period{Month: int(m), Year: y}
}

type Invoice struct {
	ID             string          `json:"id"`
	MemberID       string          `json:"member_id"`
	SubscriptionID string          `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Period
	DueDate   time.Time `json:"due_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSubscription contains the terms of a plan purchase.
type NewSubscription struct {
	PlanType  string          `json:"plan_type" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Frequency string          `json:"frequency" validate:"required,frequency"`
	StartDate string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string          `json:"end_date" validate:"omitempty,datetime=2006-01-02"`

	start, end time.Time
}

func (ns *NewSubscription) Validate(validate *validator.Validate) error {
	ns.PlanType = core.CleanString(ns.PlanType)
	ns.Frequency = core.CleanString(ns.Frequency, true /* lower */)
	ns.StartDate = core.CleanString(ns.StartDate)
	ns.EndDate = core.CleanString(ns.EndDate)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	ns.start, _ = core.ParseDate(ns.StartDate)
	ns.end, _ = core.ParseDate(ns.EndDate)
	return nil
}

// InvoiceStatusChange is an admin or payment action on an invoice.
type InvoiceStatusChange struct {
	Status string `json:"status" validate:"required,invoicestatus"`
}

func (sc *InvoiceStatusChange) Validate(validate *validator.Validate) error {
	sc.Status = core.CleanString(sc.Status, true /* lower */)
	return validate.Struct(sc)
}

type InvoiceFilter struct {
	MemberID       string
	SubscriptionID string
}
