package subscription

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/dojo/core"
)

// DefaultDueDay is the day of the period month invoices fall due.
const DefaultDueDay = 5

var monthsPerYear = decimal.NewFromInt(12)

// MonthlyAmount is the amount billed per month for price: price / 12 rounded half-up to a whole unit.
func MonthlyAmount(price decimal.Decimal) decimal.Decimal {
	// Round rounds half away from zero, i.e. half-up for non-negative prices.
	return price.Div(monthsPerYear).Round(0)
}

// GenerateInvoices returns the invoices owed by sub that are missing from existing, oldest period first.
// existing holds the member's invoices; any invoice already covering a period, whatever its subscription,
// suppresses that period. The result carries no IDs: persisting it is up to the caller.
func GenerateInvoices(sub Subscription, existing []Invoice, dueDay int) ([]Invoice, error) {
	if sub.ID == "" {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "id", Error: "this field is required"})
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if dueDay <= 0 {
		dueDay = DefaultDueDay
	}

	invoiced := make(map[Period]bool, len(existing))
	for _, inv := range existing {
		if inv.MemberID == sub.MemberID {
			invoiced[inv.Period] = true
		}
	}

	start := core.Date(sub.StartDate)
	end := core.Date(sub.EndDate)

	var (
		periods []Period
		amount  decimal.Decimal
	)
	switch sub.Frequency {
	case FrequencyMonthly:
		amount = MonthlyAmount(sub.Price)
		for i := 0; ; i++ {
			date := addMonths(start, i)
			if !date.Before(end) {
				break
			}
			periods = append(periods, PeriodOf(date))
		}
	default: // annual & one-time plans are billed once, for the start period
		if !sub.EndDate.IsZero() && !end.After(start) {
			return nil, nil
		}
		amount = sub.Price
		periods = append(periods, PeriodOf(start))
	}

	invoices := make([]Invoice, 0, len(periods))
	for _, p := range periods {
		if invoiced[p] {
			continue
		}
		invoiced[p] = true
		invoices = append(invoices, Invoice{
			MemberID:       sub.MemberID,
			SubscriptionID: sub.ID,
			Amount:         amount,
			Period:         p,
			DueDate:        DueDate(p, dueDay),
			Status:         InvoicePending,
		})
	}
	return invoices, nil
}

// DueDate is day dueDay of period p, capped to the length of the month.
func DueDate(p Period, dueDay int) time.Time {
	m := time.Month(p.Month)
	if n := core.DaysIn(p.Year, m); dueDay > n {
		dueDay = n
	}
	return time.Date(p.Year, m, dueDay, 0, 0, 0, 0, time.UTC)
}

// addMonths moves date n months forward, keeping its day of month when the target month is long enough.
// time.AddDate would overflow Jan 31 into March.
func addMonths(date time.Time, n int) time.Time {
	y, m, d := date.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	if days := core.DaysIn(first.Year(), first.Month()); d > days {
		d = days
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)
}

// Validate checks the billing terms of sub.
func (sub Subscription) Validate() error {
	var flds []core.FieldError
	if sub.MemberID == "" {
		flds = append(flds, core.FieldError{Field: "member_id", Error: "this field is required"})
	}
	if sub.StartDate.IsZero() {
		flds = append(flds, core.FieldError{Field: "start_date", Error: "this field is required"})
	}
	if sub.Price.IsNegative() {
		flds = append(flds, core.FieldError{Field: "price", Error: "price must not be negative"})
	}
	switch sub.Frequency {
	case FrequencyMonthly:
		if sub.EndDate.IsZero() {
			flds = append(flds, core.FieldError{Field: "end_date", Error: "this field is required"})
		}
	case FrequencyAnnual, FrequencyOneTime:
	default:
		flds = append(flds, core.FieldError{Field: "frequency", Error: "invalid billing frequency"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}
