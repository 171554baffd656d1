package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core/activity"
	"github.com/trezcool/dojo/core/entitlement"
	"github.com/trezcool/dojo/core/subscription"
)

type subscriptionApi struct {
	svc      subscription.Service
	gates    *entitlement.Registry
	recorder activity.Recorder
	validate *validator.Validate
}

func registerSubscriptionAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := subscriptionApi{
		svc:      deps.SubscriptionSvc,
		gates:    deps.Gates,
		recorder: deps.Recorder,
		validate: deps.Validate,
	}

	sg := g.Group("/subscriptions", auth...)
	sg.POST("", api.purchase)
	sg.GET("/current", api.current)
	sg.POST("/:id/cancel", api.cancel)
	sg.POST("/:id/invoices", api.generateInvoices, adminMiddleware())

	ig := g.Group("/invoices", auth...)
	ig.GET("", api.invoices)
	ig.PUT("/:id/status", api.setInvoiceStatus, adminMiddleware())
}

func (api *subscriptionApi) purchase(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data subscription.NewSubscription
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubscription")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sub, invoices, err := api.svc.Purchase(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "purchasing subscription")
	}
	api.gates.ResetMember(p.ID)
	return ctx.JSON(http.StatusCreated, PurchaseResponse{Subscription: sub, Invoices: invoices})
}

func (api *subscriptionApi) current(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	sub, err := api.svc.Current(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "finding current subscription")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) cancel(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	sub, err := api.svc.Cancel(reqCtx, p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling subscription")
	}
	api.recorder.Record(reqCtx, activity.Entry{
		ActorID:      p.ID,
		Action:       activity.ActionSubscriptionCancel,
		ResourceType: activity.ResourceSubscription,
		ResourceID:   sub.ID,
		Description:  fmt.Sprintf("%s subscription of member %s cancelled", sub.PlanType, sub.MemberID),
	})
	// the member may be signed in elsewhere: every gate of theirs looks again
	api.gates.ResetMember(sub.MemberID)
	return ctx.JSON(http.StatusOK, sub)
}

func (api *subscriptionApi) generateInvoices(ctx echo.Context) error {
	invoices, err := api.svc.GenerateInvoices(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "generating invoices")
	}
	return ctx.JSON(http.StatusOK, invoices)
}

func (api *subscriptionApi) invoices(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	invoices, err := api.svc.Invoices(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "querying invoices")
	}
	return ctx.JSON(http.StatusOK, invoices)
}

func (api *subscriptionApi) setInvoiceStatus(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data subscription.InvoiceStatusChange
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InvoiceStatusChange")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	inv, err := api.svc.SetInvoiceStatus(reqCtx, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "setting invoice status")
	}
	api.recorder.Record(reqCtx, activity.Entry{
		ActorID:      p.ID,
		Action:       activity.ActionInvoiceStatus,
		ResourceType: activity.ResourceInvoice,
		ResourceID:   inv.ID,
		Description:  fmt.Sprintf("invoice %02d/%d of member %s is %s", inv.Month, inv.Year, inv.MemberID, inv.Status),
	})
	return ctx.JSON(http.StatusOK, inv)
}

type PurchaseResponse struct {
	Subscription subscription.Subscription `json:"subscription"`
	Invoices     []subscription.Invoice    `json:"invoices"`
}
