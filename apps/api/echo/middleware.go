package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core/entitlement"
	"github.com/trezcool/dojo/core/user"
)

var contextEntitlementKey = "entitlement"

// principalMiddleware loads the token's user and resolves their role, once per request.
func principalMiddleware(svc user.Service, resolver *user.RoleResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}

			reqCtx := ctx.Request().Context()
			usr, err := svc.GetByID(reqCtx, claims.Subject)
			if err != nil {
				if errors.Is(err, user.ErrNotFound) {
					return errUnauthorized
				}
				return errors.Wrap(err, "finding user by ID")
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}

			ctx.Set(contextUserKey, usr)
			ctx.Set(contextPrincipalKey, resolver.Principal(reqCtx, claims.Identity()))
			return next(ctx)
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			p, err := getContextPrincipal(ctx)
			if err != nil {
				return err
			}
			if p.IsAdmin {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// entitlementMiddleware lets the request through once the session's gate grants access.
// Otherwise it answers 402 with the redirect target, or 503 when the gate could not decide.
func entitlementMiddleware(gates *entitlement.Registry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			gate, err := sessionGate(ctx, gates)
			if err != nil {
				return err
			}
			snap, err := gate.Evaluate(ctx.Request().Context())
			if err != nil {
				return errors.Wrap(err, "evaluating entitlement")
			}

			switch snap.State {
			case entitlement.StateGranted:
				ctx.Set(contextEntitlementKey, snap)
				return next(ctx)
			case entitlement.StateRedirecting:
				return ctx.JSON(http.StatusPaymentRequired, snap)
			default:
				return ctx.JSON(http.StatusServiceUnavailable, snap)
			}
		}
	}
}

func sessionGate(ctx echo.Context, gates *entitlement.Registry) (*entitlement.Gate, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return nil, err
	}
	return gates.Gate(claims.Session(), claims.Identity()), nil
}
