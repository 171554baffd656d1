package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core/entitlement"
)

type entitlementApi struct {
	gates *entitlement.Registry
}

func registerEntitlementAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := entitlementApi{gates: deps.Gates}

	eg := g.Group("/entitlement", auth...)
	eg.GET("", api.evaluate)
	eg.POST("/retry", api.retry)
	eg.POST("/reevaluate", api.reevaluate)
}

func (api *entitlementApi) evaluate(ctx echo.Context) error {
	return api.run(ctx, (*entitlement.Gate).Evaluate)
}

func (api *entitlementApi) retry(ctx echo.Context) error {
	return api.run(ctx, (*entitlement.Gate).Retry)
}

func (api *entitlementApi) reevaluate(ctx echo.Context) error {
	return api.run(ctx, (*entitlement.Gate).Reevaluate)
}

// run applies op to the session's gate and answers with the resulting state, whatever it is.
func (api *entitlementApi) run(ctx echo.Context, op func(*entitlement.Gate, context.Context) (entitlement.Snapshot, error)) error {
	gate, err := sessionGate(ctx, api.gates)
	if err != nil {
		return err
	}
	snap, err := op(gate, ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "evaluating entitlement")
	}
	return ctx.JSON(http.StatusOK, snap)
}
