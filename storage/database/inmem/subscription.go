package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/trezcool/dojo/core"
	"github.com/trezcool/dojo/core/subscription"
)

type subscriptionRepository struct {
	db *DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *DB) subscription.Repository {
	return &subscriptionRepository{db: db}
}

func (repo *subscriptionRepository) CreateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	sub.ID = newID()
	repo.db.subscriptions[sub.ID] = sub
	return sub, nil
}

func (repo *subscriptionRepository) GetSubscription(_ context.Context, id string) (subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sub, ok := repo.db.subscriptions[id]; ok {
		return sub, nil
	}
	return subscription.Subscription{}, subscription.ErrNotFound
}

func (repo *subscriptionRepository) CurrentSubscription(_ context.Context, memberID string, today time.Time) (subscription.Subscription, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	current := lo.Filter(lo.Values(repo.db.subscriptions), func(sub subscription.Subscription, _ int) bool {
		return sub.MemberID == memberID && sub.IsCurrent(today)
	})
	if len(current) == 0 {
		return subscription.Subscription{}, subscription.ErrNoCurrent
	}
	return lo.MaxBy(current, func(a, b subscription.Subscription) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}), nil
}

func (repo *subscriptionRepository) UpdateSubscription(_ context.Context, sub subscription.Subscription) (subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.subscriptions[sub.ID]; !ok {
		return subscription.Subscription{}, subscription.ErrNotFound
	}
	repo.db.subscriptions[sub.ID] = sub
	return sub, nil
}

func (repo *subscriptionRepository) ExpireSubscriptions(_ context.Context, today time.Time) ([]subscription.Subscription, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	expired := make([]subscription.Subscription, 0)
	for id, sub := range repo.db.subscriptions {
		if sub.Status == subscription.StatusActive && !sub.EndDate.IsZero() && core.Date(sub.EndDate).Before(core.Date(today)) {
			sub.Status = subscription.StatusExpired
			sub.UpdatedAt = time.Now().UTC()
			repo.db.subscriptions[id] = sub
			expired = append(expired, sub)
		}
	}
	return expired, nil
}

func (repo *subscriptionRepository) CreateInvoice(_ context.Context, inv subscription.Invoice) (subscription.Invoice, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// UNIQUE (member_id, month, year)
	for _, i := range repo.db.invoices {
		if i.MemberID == inv.MemberID && i.Period == inv.Period {
			return subscription.Invoice{}, subscription.ErrInvoiceExists
		}
	}
	inv.ID = newID()
	repo.db.invoices[inv.ID] = inv
	return inv, nil
}

func (repo *subscriptionRepository) GetInvoice(_ context.Context, id string) (subscription.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if inv, ok := repo.db.invoices[id]; ok {
		return inv, nil
	}
	return subscription.Invoice{}, subscription.ErrInvoiceNotFound
}

func (repo *subscriptionRepository) QueryInvoices(_ context.Context, filter subscription.InvoiceFilter) ([]subscription.Invoice, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	invoices := lo.Filter(lo.Values(repo.db.invoices), func(inv subscription.Invoice, _ int) bool {
		return (filter.MemberID == "" || inv.MemberID == filter.MemberID) &&
			(filter.SubscriptionID == "" || inv.SubscriptionID == filter.SubscriptionID)
	})
	sort.Slice(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.MemberID < b.MemberID
	})
	return invoices, nil
}

func (repo *subscriptionRepository) UpdateInvoice(_ context.Context, inv subscription.Invoice) (subscription.Invoice, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.invoices[inv.ID]; !ok {
		return subscription.Invoice{}, subscription.ErrInvoiceNotFound
	}
	repo.db.invoices[inv.ID] = inv
	return inv, nil
}
