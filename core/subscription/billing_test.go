package subscription

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dojo/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthlyAmount(t *testing.T) {
	tests := []struct {
		price string
		want  string
	}{
		{price: "1200", want: "100"},
		{price: "0", want: "0"},
		{price: "1000", want: "83"}, // 83.33
		{price: "1002", want: "84"}, // 83.5 rounds half-up
		{price: "1014", want: "85"}, // 84.5
		{price: "99.99", want: "8"}, // 8.3325
	}
	for _, tt := range tests {
		t.Run(tt.price, func(t *testing.T) {
			got := MonthlyAmount(decimal.RequireFromString(tt.price))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "MonthlyAmount() = %s, want %s", got, tt.want)
		})
	}
}

func TestDueDate(t *testing.T) {
	tests := []struct {
		name   string
		period Period
		dueDay int
		want   time.Time
	}{
		{name: "5th", period: Period{Month: 3, Year: 2025}, dueDay: 5, want: date(2025, 3, 5)},
		{name: "capped to february", period: Period{Month: 2, Year: 2025}, dueDay: 31, want: date(2025, 2, 28)},
		{name: "leap february", period: Period{Month: 2, Year: 2024}, dueDay: 30, want: date(2024, 2, 29)},
		{name: "capped to april", period: Period{Month: 4, Year: 2025}, dueDay: 31, want: date(2025, 4, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DueDate(tt.period, tt.dueDay))
		})
	}
}

func TestGenerateInvoices(t *testing.T) {
	monthly := Subscription{
		ID:        "sub-1",
		MemberID:  "member-1",
		Price:     decimal.NewFromInt(1200),
		Frequency: FrequencyMonthly,
		StartDate: date(2025, 1, 10),
		EndDate:   date(2025, 4, 10),
		Status:    StatusActive,
	}
	periods := func(invoices []Invoice) []Period {
		out := make([]Period, 0, len(invoices))
		for _, inv := range invoices {
			out = append(out, inv.Period)
		}
		return out
	}

	t.Run("monthly", func(t *testing.T) {
		invoices, err := GenerateInvoices(monthly, nil, 5)
		require.NoError(t, err)
		require.Len(t, invoices, 3)
		assert.Equal(t, []Period{{1, 2025}, {2, 2025}, {3, 2025}}, periods(invoices))
		for _, inv := range invoices {
			assert.True(t, inv.Amount.Equal(decimal.NewFromInt(100)))
			assert.Equal(t, 5, inv.DueDate.Day())
			assert.Equal(t, time.Month(inv.Month), inv.DueDate.Month())
			assert.Equal(t, InvoicePending, inv.Status)
			assert.Equal(t, monthly.ID, inv.SubscriptionID)
			assert.Equal(t, monthly.MemberID, inv.MemberID)
			assert.Empty(t, inv.ID)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := GenerateInvoices(monthly, nil, 5)
		require.NoError(t, err)
		again, err := GenerateInvoices(monthly, first, 5)
		require.NoError(t, err)
		assert.Empty(t, again)
	})

	t.Run("resumes a partial run", func(t *testing.T) {
		first, err := GenerateInvoices(monthly, nil, 5)
		require.NoError(t, err)
		rest, err := GenerateInvoices(monthly, first[:1], 5)
		require.NoError(t, err)
		assert.Equal(t, []Period{{2, 2025}, {3, 2025}}, periods(rest))
	})

	t.Run("other member invoices are ignored", func(t *testing.T) {
		other := []Invoice{{MemberID: "member-2", Period: Period{Month: 1, Year: 2025}}}
		invoices, err := GenerateInvoices(monthly, other, 5)
		require.NoError(t, err)
		assert.Len(t, invoices, 3)
	})

	t.Run("period already billed by another subscription", func(t *testing.T) {
		billed := []Invoice{{MemberID: "member-1", SubscriptionID: "sub-0", Period: Period{Month: 2, Year: 2025}}}
		invoices, err := GenerateInvoices(monthly, billed, 5)
		require.NoError(t, err)
		assert.Equal(t, []Period{{1, 2025}, {3, 2025}}, periods(invoices))
	})

	t.Run("month end start", func(t *testing.T) {
		sub := monthly
		sub.StartDate, sub.EndDate = date(2025, 1, 31), date(2025, 4, 30)
		invoices, err := GenerateInvoices(sub, nil, 5)
		require.NoError(t, err)
		assert.Equal(t, []Period{{1, 2025}, {2, 2025}, {3, 2025}}, periods(invoices))
	})

	t.Run("partial month", func(t *testing.T) {
		sub := monthly
		sub.StartDate, sub.EndDate = date(2025, 1, 10), date(2025, 1, 20)
		invoices, err := GenerateInvoices(sub, nil, 5)
		require.NoError(t, err)
		assert.Equal(t, []Period{{1, 2025}}, periods(invoices))
	})

	t.Run("empty range", func(t *testing.T) {
		sub := monthly
		sub.EndDate = sub.StartDate
		invoices, err := GenerateInvoices(sub, nil, 5)
		require.NoError(t, err)
		assert.Empty(t, invoices)
	})

	t.Run("across years", func(t *testing.T) {
		sub := monthly
		sub.StartDate, sub.EndDate = date(2024, 11, 1), date(2025, 2, 1)
		invoices, err := GenerateInvoices(sub, nil, 5)
		require.NoError(t, err)
		assert.Equal(t, []Period{{11, 2024}, {12, 2024}, {1, 2025}}, periods(invoices))
	})

	t.Run("annual", func(t *testing.T) {
		sub := monthly
		sub.Frequency, sub.EndDate = FrequencyAnnual, time.Time{}
		invoices, err := GenerateInvoices(sub, nil, 5)
		require.NoError(t, err)
		require.Len(t, invoices, 1)
		assert.True(t, invoices[0].Amount.Equal(decimal.NewFromInt(1200)))
		assert.Equal(t, Period{Month: 1, Year: 2025}, invoices[0].Period)
		assert.Equal(t, date(2025, 1, 5), invoices[0].DueDate)
	})

	t.Run("one time", func(t *testing.T) {
		sub := monthly
		sub.Frequency = FrequencyOneTime
		invoices, err := GenerateInvoices(sub, nil, 0)
		require.NoError(t, err)
		require.Len(t, invoices, 1)
		assert.True(t, invoices[0].Amount.Equal(decimal.NewFromInt(1200)))
		assert.Equal(t, DefaultDueDay, invoices[0].DueDate.Day())
	})

	invalid := []struct {
		name   string
		mutate func(sub *Subscription)
	}{
		{name: "missing id", mutate: func(sub *Subscription) { sub.ID = "" }},
		{name: "missing member", mutate: func(sub *Subscription) { sub.MemberID = "" }},
		{name: "missing start", mutate: func(sub *Subscription) { sub.StartDate = time.Time{} }},
		{name: "monthly without end", mutate: func(sub *Subscription) { sub.EndDate = time.Time{} }},
		{name: "negative price", mutate: func(sub *Subscription) { sub.Price = decimal.NewFromInt(-1) }},
		{name: "unknown frequency", mutate: func(sub *Subscription) { sub.Frequency = "weekly" }},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			sub := monthly
			tt.mutate(&sub)
			_, err := GenerateInvoices(sub, nil, 5)
			assert.ErrorIs(t, err, core.ErrInvalid)
		})
	}
}
