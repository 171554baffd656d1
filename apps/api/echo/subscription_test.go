package echoapi

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/subscription"
	"github.com/trezcool/dojo/core/user"
	testutil "github.com/trezcool/dojo/tests"
)

func Test_subscriptionApi_purchase(t *testing.T) {
	resetDB()
	jane := testutil.CreateUser(t, usrRepo, "Jane", "jane@dojo.test", "", "", true)
	token := getToken(t, jane)

	body := func(frequency, price, start, end string) []byte {
		return marchallObj(t, map[string]string{
			"plan_type": "standard", "price": price, "frequency": frequency, "start_date": start, "end_date": end,
		})
	}

	tests := []httpTest{
		{name: "auth required", body: body("annual", "480", "2025-01-10", ""), wantCode: http.StatusUnauthorized},
		{name: "unknown frequency", token: token, body: body("weekly", "480", "2025-01-10", ""), wantCode: http.StatusBadRequest},
		{name: "bad start date", token: token, body: body("annual", "480", "10/01/2025", ""), wantCode: http.StatusBadRequest},
		{name: "monthly without end", token: token, body: body("monthly", "1200", "2025-01-10", ""), wantCode: http.StatusBadRequest},
		{name: "negative price", token: token, body: body("annual", "-1", "2025-01-10", ""), wantCode: http.StatusBadRequest},
		{name: "monthly", token: token, body: body("monthly", "1200", "2025-01-10", "2025-04-10"), wantCode: http.StatusCreated, extra: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method, tt.path = http.MethodPost, "/v1/subscriptions"
			rec := do(tt)
			checkCode(t, tt, rec)

			if want, ok := tt.extra.(int); ok {
				var resp PurchaseResponse
				unmarshal(t, rec, &resp)
				assert.Equal(t, jane.ID, resp.Subscription.MemberID)
				require.Len(t, resp.Invoices, want)
				for _, inv := range resp.Invoices {
					assert.True(t, decimal.NewFromInt(100).Equal(inv.Amount), inv.Amount.String())
					assert.Equal(t, subscription.InvoicePending, inv.Status)
					assert.Equal(t, resp.Subscription.ID, inv.SubscriptionID)
				}
			}
		})
	}
}

func Test_subscriptionApi_current(t *testing.T) {
	resetDB()
	jane := testutil.CreateUser(t, usrRepo, "Jane", "jane@dojo.test", "", "", true)
	joe := testutil.CreateUser(t, usrRepo, "Joe", "joe@dojo.test", "", "", true)
	sub := testutil.CreateSubscription(t, subRepo, jane.ID, subscription.FrequencyAnnual, 480, yesterday(), "")

	tests := []httpTest{
		{name: "current", token: getToken(t, jane), wantData: marchallObj(t, sub)},
		{name: "none", token: getToken(t, joe), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "no current subscription"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.path = "/v1/subscriptions/current"
			checkCodeAndData(t, tt, do(tt))
		})
	}
}

func Test_subscriptionApi_cancel(t *testing.T) {
	resetDB()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@dojo.test", "", user.RoleAdmin, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "jane@dojo.test", "", "", true)
	joe := testutil.CreateUser(t, usrRepo, "Joe", "joe@dojo.test", "", "", true)
	janeSub := testutil.CreateSubscription(t, subRepo, jane.ID, subscription.FrequencyAnnual, 480, yesterday(), "")
	joeSub := testutil.CreateSubscription(t, subRepo, joe.ID, subscription.FrequencyAnnual, 480, yesterday(), "")

	adminToken := getToken(t, admin)
	path := func(id string) string { return "/v1/subscriptions/" + id + "/cancel" }

	tests := []httpTest{
		{name: "not owner", path: path(joeSub.ID), token: getToken(t, jane), wantCode: http.StatusForbidden},
		{name: "unknown", path: path("nope"), token: adminToken, wantCode: http.StatusNotFound},
		{name: "owner", path: path(janeSub.ID), token: getToken(t, jane), extra: subscription.StatusCancelled},
		{name: "admin", path: path(joeSub.ID), token: adminToken, extra: subscription.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPost
			rec := do(tt)
			checkCode(t, tt, rec)

			if want, ok := tt.extra.(string); ok {
				var sub subscription.Subscription
				unmarshal(t, rec, &sub)
				assert.Equal(t, want, sub.Status)
			}
		})
	}

	rec := do(httpTest{path: "/v1/activity?resource_type=" + activity.ResourceSubscription, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var entries []activity.Entry
	unmarshal(t, rec, &entries)
	assert.Len(t, entries, 2)
}

func Test_subscriptionApi_invoices(t *testing.T) {
	resetDB()
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@dojo.test", "", user.RoleAdmin, true)
	jane := testutil.CreateUser(t, usrRepo, "Jane", "jane@dojo.test", "", "", true)
	sub := testutil.CreateSubscription(t, subRepo, jane.ID, subscription.FrequencyMonthly, 1200, "2025-01-10", "2025-04-10")

	adminToken, janeToken := getToken(t, admin), getToken(t, jane)
	genPath := "/v1/subscriptions/" + sub.ID + "/invoices"

	// members cannot bill
	rec := do(httpTest{method: http.MethodPost, path: genPath, token: janeToken})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(httpTest{method: http.MethodPost, path: genPath, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var generated []subscription.Invoice
	unmarshal(t, rec, &generated)
	require.Len(t, generated, 3)

	// idempotent
	rec = do(httpTest{method: http.MethodPost, path: genPath, token: adminToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	checkCodeAndData(t, httpTest{wantData: marchallList(t)}, rec)

	rec = do(httpTest{path: "/v1/invoices", token: janeToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var invoices []subscription.Invoice
	unmarshal(t, rec, &invoices)
	assert.Len(t, invoices, 3)

	inv := generated[0]
	path := "/v1/invoices/" + inv.ID + "/status"
	status := func(s string) []byte { return marchallObj(t, subscription.InvoiceStatusChange{Status: s}) }

	tests := []httpTest{
		{name: "admin required", path: path, token: janeToken, body: status(subscription.InvoicePaid), wantCode: http.StatusForbidden},
		{name: "unknown status", path: path, token: adminToken, body: status("lost"), wantCode: http.StatusBadRequest},
		{name: "unknown invoice", path: "/v1/invoices/nope/status", token: adminToken, body: status(subscription.InvoicePaid), wantCode: http.StatusNotFound},
		{name: "pay", path: path, token: adminToken, body: status(subscription.InvoicePaid), extra: subscription.InvoicePaid},
		{
			name: "paid cannot go back to pending", path: path, token: adminToken, body: status(subscription.InvoicePending),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "invalid invoice status transition"}),
		},
		{name: "refund", path: path, token: adminToken, body: status(subscription.InvoiceRefunded), extra: subscription.InvoiceRefunded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPut
			rec := do(tt)
			if tt.wantData != nil {
				checkCodeAndData(t, tt, rec)
				return
			}
			checkCode(t, tt, rec)

			if want, ok := tt.extra.(string); ok {
				var got subscription.Invoice
				unmarshal(t, rec, &got)
				assert.Equal(t, want, got.Status)
			}
		})
	}
}
