package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core/activity"
)

type activityApi struct {
	recorder activity.Recorder
	notifier *activity.Notifier
	validate *validator.Validate
}

func registerActivityAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := activityApi{recorder: deps.Recorder, notifier: deps.Notifier, validate: deps.Validate}

	g.POST("/help", api.requestHelp, auth...)
	g.GET("/activity", api.query, append(auth, adminMiddleware())...)
}

func (api *activityApi) requestHelp(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}

	var data activity.HelpRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HelpRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if err = api.notifier.RequestHelp(ctx.Request().Context(), usr, data.Message); err != nil {
		return errors.Wrap(err, "requesting help")
	}
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: "Your message was sent to the administrators."})
}

func (api *activityApi) query(ctx echo.Context) error {
	qp := newQueryParams(ctx)
	filter := activity.QueryFilter{
		ActorID:      qp.String("actor_id"),
		ResourceType: qp.String("resource_type"),
		ResourceID:   qp.String("resource_id"),
		From:         qp.Time("from"),
		Limit:        qp.Int("limit"),
	}
	if err := qp.Err(); err != nil {
		return err
	}

	entries, err := api.recorder.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying activity")
	}
	return ctx.JSON(http.StatusOK, entries)
}
