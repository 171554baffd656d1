package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/subscription"
)

type subscriptionRow struct {
	ID        string          `db:"id"`
	MemberID  string          `db:"member_id"`
	PlanType  string          `db:"plan_type"`
	Price     decimal.Decimal `db:"price"`
	Frequency string          `db:"frequency"`
	StartDate time.Time       `db:"start_date"`
	EndDate   null.Time       `db:"end_date"`
	Status    string          `db:"status"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

func toSubscriptionRow(sub subscription.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:        sub.ID,
		MemberID:  sub.MemberID,
		PlanType:  sub.PlanType,
		Price:     sub.Price,
		Frequency: sub.Frequency,
		StartDate: core.Date(sub.StartDate),
		EndDate:   null.NewTime(core.Date(sub.EndDate), !sub.EndDate.IsZero()),
		Status:    sub.Status,
		CreatedAt: sub.CreatedAt.UTC(),
		UpdatedAt: sub.UpdatedAt.UTC(),
	}
}

func (r subscriptionRow) subscription() subscription.Subscription {
	sub := subscription.Subscription{
		ID:        r.ID,
		MemberID:  r.MemberID,
		PlanType:  r.PlanType,
		Price:     r.Price,
		Frequency: r.Frequency,
		StartDate: core.Date(r.StartDate),
		Status:    r.Status,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.EndDate.Valid {
		sub.EndDate = core.Date(r.EndDate.Time)
	}
	return sub
}

type invoiceRow struct {
	ID             string          `db:"id"`
	MemberID       string          `db:"member_id"`
	SubscriptionID string          `db:"subscription_id"`
	Amount         decimal.Decimal `db:"amount"`
	Month          int             `db:"month"`
	Year           int             `db:"year"`
	DueDate        time.Time       `db:"due_date"`
	Status         string          `db:"status"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func toInvoiceRow(inv subscription.Invoice) invoiceRow {
	return invoiceRow{
		ID:             inv.ID,
		MemberID:       inv.MemberID,
		SubscriptionID: inv.SubscriptionID,
		Amount:         inv.Amount,
		Month:          inv.Month,
		Year:           inv.Year,
		DueDate:        core.Date(inv.DueDate),
		Status:         inv.Status,
		CreatedAt:      inv.CreatedAt.UTC(),
		UpdatedAt:      inv.UpdatedAt.UTC(),
	}
}

func (r invoiceRow) invoice() subscription.Invoice {
	return subscription.Invoice{
		ID:             r.ID,
		MemberID:       r.MemberID,
		SubscriptionID: r.SubscriptionID,
		Amount:         r.Amount,
		Period:         subscription.Period{Month: r.Month, Year: r.Year},
		DueDate:        core.Date(r.DueDate),
		Status:         r.Status,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

const (
	subscriptionColumns = `id, member_id, plan_type, price, frequency, start_date, end_date, status, created_at, updated_at`
	invoiceColumns      = `id, member_id, subscription_id, amount, month, year, due_date, status, created_at, updated_at`
)

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	sub.ID = uuid.New().String()
	row := toSubscriptionRow(sub)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (:id, :member_id, :plan_type, :price, :frequency, :start_date, :end_date, :status, :created_at, :updated_at)`, row)
	if err != nil {
		return subscription.Subscription{}, trapErr(err, nil, nil, "inserting subscription")
	}
	return row.subscription(), nil
}

func (repo *subscriptionRepository) GetSubscription(ctx context.Context, id string) (subscription.Subscription, error) {
	if !isUUID(id) {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return subscription.Subscription{}, trapErr(err, subscription.ErrNotFound, nil, "finding subscription")
	}
	return row.subscription(), nil
}

func (repo *subscriptionRepository) CurrentSubscription(ctx context.Context, memberID string, today time.Time) (subscription.Subscription, error) {
	if !isUUID(memberID) {
		return subscription.Subscription{}, subscription.ErrNoCurrent
	}
	var row subscriptionRow
	err := repo.db.GetContext(ctx, &row, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE member_id = $1 AND status = $2 AND (end_date IS NULL OR end_date >= $3)
		ORDER BY created_at DESC
		LIMIT 1`, memberID, subscription.StatusActive, core.Date(today))
	if err != nil {
		return subscription.Subscription{}, trapErr(err, subscription.ErrNoCurrent, nil, "finding current subscription")
	}
	return row.subscription(), nil
}

func (repo *subscriptionRepository) UpdateSubscription(ctx context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	row := toSubscriptionRow(sub)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE subscriptions SET
			plan_type = :plan_type, price = :price, frequency = :frequency, start_date = :start_date,
			end_date = :end_date, status = :status, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return subscription.Subscription{}, trapErr(err, nil, nil, "updating subscription")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	return row.subscription(), nil
}

func (repo *subscriptionRepository) ExpireSubscriptions(ctx context.Context, today time.Time) ([]subscription.Subscription, error) {
	var rows []subscriptionRow
	err := repo.db.SelectContext(ctx, &rows, `
		UPDATE subscriptions SET status = $1, updated_at = $2
		WHERE status = $3 AND end_date IS NOT NULL AND end_date < $4
		RETURNING `+subscriptionColumns,
		subscription.StatusExpired, time.Now().UTC(), subscription.StatusActive, core.Date(today))
	if err != nil {
		return nil, trapErr(err, nil, nil, "expiring subscriptions")
	}
	subs := make([]subscription.Subscription, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.subscription())
	}
	return subs, nil
}

func (repo *subscriptionRepository) CreateInvoice(ctx context.Context, inv subscription.Invoice) (subscription.Invoice, error) {
	inv.ID = uuid.New().String()
	row := toInvoiceRow(inv)
	_, err := repo.db.NamedExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (:id, :member_id, :subscription_id, :amount, :month, :year, :due_date, :status, :created_at, :updated_at)`, row)
	if err != nil {
		return subscription.Invoice{}, trapErr(err, nil, subscription.ErrInvoiceExists, "inserting invoice")
	}
	return row.invoice(), nil
}

func (repo *subscriptionRepository) GetInvoice(ctx context.Context, id string) (subscription.Invoice, error) {
	if !isUUID(id) {
		return subscription.Invoice{}, subscription.ErrInvoiceNotFound
	}
	var row invoiceRow
	err := repo.db.GetContext(ctx, &row, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	if err != nil {
		return subscription.Invoice{}, trapErr(err, subscription.ErrInvoiceNotFound, nil, "finding invoice")
	}
	return row.invoice(), nil
}

func (repo *subscriptionRepository) QueryInvoices(ctx context.Context, filter subscription.InvoiceFilter) ([]subscription.Invoice, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.MemberID != "" {
		if !isUUID(filter.MemberID) {
			return []subscription.Invoice{}, nil
		}
		where = append(where, `member_id = ?`)
		args = append(args, filter.MemberID)
	}
	if filter.SubscriptionID != "" {
		if !isUUID(filter.SubscriptionID) {
			return []subscription.Invoice{}, nil
		}
		where = append(where, `subscription_id = ?`)
		args = append(args, filter.SubscriptionID)
	}

	q := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY year, month, member_id`

	var rows []invoiceRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, trapErr(err, nil, nil, "querying invoices")
	}
	invoices := make([]subscription.Invoice, 0, len(rows))
	for _, r := range rows {
		invoices = append(invoices, r.invoice())
	}
	return invoices, nil
}

func (repo *subscriptionRepository) UpdateInvoice(ctx context.Context, inv subscription.Invoice) (subscription.Invoice, error) {
	row := toInvoiceRow(inv)
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE invoices SET amount = :amount, due_date = :due_date, status = :status, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return subscription.Invoice{}, trapErr(err, nil, nil, "updating invoice")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return subscription.Invoice{}, subscription.ErrInvoiceNotFound
	}
	return row.invoice(), nil
}
