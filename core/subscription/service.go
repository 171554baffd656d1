package subscription

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
	ErrNotFound           = core.NewError(core.ErrNotFound, "subscription not found")
	ErrNoCurrent          = core.NewError(core.ErrNotFound, "no current subscription")
	ErrInvoiceNotFound    = core.NewError(core.ErrNotFound, "invoice not found")
	ErrInvoiceExists      = core.NewError(core.ErrConflict, "an invoice already exists for this period")
	ErrNotActive          = core.NewError(core.ErrInvalid, "subscription is not active")
	ErrInvalidTransition  = core.NewError(core.ErrInvalid, "invalid invoice status transition")
	errMissingSubscriptID = core.NewValidationError(nil, core.FieldError{Field: "subscription_id", Error: "this field is required"})
)

type (
	Repository interface {
		CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		GetSubscription(ctx context.Context, id string) (Subscription, error)
		// CurrentSubscription returns the most recently created active subscription of the member
		// whose end date is not before today, or ErrNoCurrent.
		CurrentSubscription(ctx context.Context, memberID string, today time.Time) (Subscription, error)
		UpdateSubscription(ctx context.Context, sub Subscription) (Subscription, error)
		// ExpireSubscriptions marks active subscriptions that ended before today as expired and returns them.
		ExpireSubscriptions(ctx context.Context, today time.Time) ([]Subscription, error)

		// CreateInvoice fails with ErrInvoiceExists when the member already has an invoice for the period.
		CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
		GetInvoice(ctx context.Context, id string) (Invoice, error)
		// QueryInvoices returns invoices ordered by period.
		QueryInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)
		UpdateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	}

	Service interface {
		Purchase(ctx context.Context, memberID string, ns NewSubscription) (Subscription, []Invoice, error)
		Get(ctx context.Context, id string) (Subscription, error)
		Current(ctx context.Context, memberID string) (Subscription, error)
		Cancel(ctx context.Context, actor user.Principal, id string) (Subscription, error)
		ExpireLapsed(ctx context.Context) ([]Subscription, error)
		GenerateInvoices(ctx context.Context, subscriptionID string) ([]Invoice, error)
		SetInvoiceStatus(ctx context.Context, id, status string) (Invoice, error)
		Invoices(ctx context.Context, memberID string) ([]Invoice, error)
	}

	service struct {
		repo    Repository
		dueDay  int
		nowFunc func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, conf core.BillingConfig) Service {
	return &service{repo: repo, dueDay: conf.DueDay, nowFunc: time.Now}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

// Purchase records a new active subscription and bills it. There is no payment step.
func (svc *service) Purchase(ctx context.Context, memberID string, ns NewSubscription) (Subscription, []Invoice, error) {
	now := svc.now()
	sub := Subscription{
		MemberID:  memberID,
		PlanType:  ns.PlanType,
		Price:     ns.Price,
		Frequency: ns.Frequency,
		StartDate: ns.start,
		EndDate:   ns.end,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := sub.Validate(); err != nil {
		return Subscription{}, nil, err
	}

	sub, err := svc.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return Subscription{}, nil, errors.Wrap(err, "creating subscription")
	}
	invoices, err := svc.generate(ctx, sub)
	return sub, invoices, err
}

func (svc *service) Get(ctx context.Context, id string) (Subscription, error) {
	return svc.repo.GetSubscription(ctx, id)
}

func (svc *service) Current(ctx context.Context, memberID string) (Subscription, error) {
	return svc.repo.CurrentSubscription(ctx, memberID, core.Date(svc.now()))
}

// Cancel stops the subscription. Invoices already generated are kept.
func (svc *service) Cancel(ctx context.Context, actor user.Principal, id string) (Subscription, error) {
	sub, err := svc.repo.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if sub.MemberID != actor.ID && !actor.IsAdmin {
		return Subscription{}, core.ErrForbidden
	}
	switch sub.Status {
	case StatusCancelled:
		return sub, nil
	case StatusActive:
	default:
		return Subscription{}, ErrNotActive
	}
	sub.Status = StatusCancelled
	sub.UpdatedAt = svc.now()
	return svc.repo.UpdateSubscription(ctx, sub)
}

// ExpireLapsed expires the active subscriptions whose end date has passed and returns them.
func (svc *service) ExpireLapsed(ctx context.Context) ([]Subscription, error) {
	subs, err := svc.repo.ExpireSubscriptions(ctx, core.Date(svc.now()))
	if err != nil {
		return nil, errors.Wrap(err, "expiring subscriptions")
	}
	return subs, nil
}

// GenerateInvoices creates the invoices the subscription still owes and returns them.
// Running it again creates nothing new; a run that failed midway resumes where it stopped.
func (svc *service) GenerateInvoices(ctx context.Context, subscriptionID string) ([]Invoice, error) {
	if subscriptionID == "" {
		return nil, errMissingSubscriptID
	}
	sub, err := svc.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != StatusActive {
		return []Invoice{}, nil
	}
	return svc.generate(ctx, sub)
}

func (svc *service) generate(ctx context.Context, sub Subscription) ([]Invoice, error) {
	existing, err := svc.repo.QueryInvoices(ctx, InvoiceFilter{MemberID: sub.MemberID})
	if err != nil {
		return nil, errors.Wrap(err, "querying invoices")
	}
	missing, err := GenerateInvoices(sub, existing, svc.dueDay)
	if err != nil {
		return nil, err
	}

	created := make([]Invoice, 0, len(missing))
	for _, inv := range missing {
		if err = ctx.Err(); err != nil {
			return created, err
		}
		now := svc.now()
		inv.CreatedAt, inv.UpdatedAt = now, now

		inv, err = svc.repo.CreateInvoice(ctx, inv)
		if err != nil {
			if errors.Is(err, core.ErrConflict) {
				// a concurrent run got there first
				continue
			}
			return created, errors.Wrap(err, "creating invoice")
		}
		created = append(created, inv)
	}
	return created, nil
}

func (svc *service) SetInvoiceStatus(ctx context.Context, id, status string) (Invoice, error) {
	inv, err := svc.repo.GetInvoice(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status == status {
		return inv, nil
	}
	if !lo.Contains(invoiceTransitions[inv.Status], status) {
		return Invoice{}, ErrInvalidTransition
	}
	inv.Status = status
	inv.UpdatedAt = svc.now()
	return svc.repo.UpdateInvoice(ctx, inv)
}

func (svc *service) Invoices(ctx context.Context, memberID string) ([]Invoice, error) {
	return svc.repo.QueryInvoices(ctx, InvoiceFilter{MemberID: memberID})
}
