package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core/attendance"
)

type attendanceApi struct {
	svc      attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := attendanceApi{svc: deps.AttendanceSvc, validate: deps.Validate}

	ag := g.Group("/sessions/:id/attendance", auth...)
	ag.GET("", api.reconcile)
	ag.PUT("/:member", api.applyAction)
}

func (api *attendanceApi) reconcile(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	views, err := api.svc.ReconcileSession(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reconciling session")
	}
	return ctx.JSON(http.StatusOK, views)
}

func (api *attendanceApi) applyAction(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data attendance.InstructorAction
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InstructorAction")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rec, err := api.svc.ApplyInstructorAction(ctx.Request().Context(), p, ctx.Param("id"), ctx.Param("member"), data)
	if err != nil {
		return errors.Wrap(err, "applying attendance action")
	}
	return ctx.JSON(http.StatusOK, rec)
}
