package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core/booking"
)

type bookingApi struct {
	svc      booking.Service
	validate *validator.Validate
}

func registerBookingAPI(g *echo.Group, auth []echo.MiddlewareFunc, entitled echo.MiddlewareFunc, deps ServerDeps) {
	api := bookingApi{svc: deps.BookingSvc, validate: deps.Validate}

	sg := g.Group("/sessions", auth...)
	sg.POST("", api.createSession)
	sg.GET("", api.querySessions)
	sg.GET("/:id", api.retrieveSession)
	sg.POST("/:id/bookings", api.book, entitled)

	bg := g.Group("/bookings", append(auth, entitled)...)
	bg.GET("", api.bookings)
	bg.POST("/recurring", api.planRecurring)
	bg.DELETE("/:id", api.cancelBooking)
}

func (api *bookingApi) createSession(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data booking.NewSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.CreateSession(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *bookingApi) querySessions(ctx echo.Context) error {
	qp := newQueryParams(ctx)
	filter := booking.SessionFilter{
		InstructorID: qp.String("instructor_id"),
		ClassID:      qp.String("class_id"),
		From:         qp.Date("from"),
		To:           qp.Date("to"),
	}
	if err := qp.Err(); err != nil {
		return err
	}

	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *bookingApi) retrieveSession(ctx echo.Context) error {
	s, err := api.svc.GetSession(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding session")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *bookingApi) book(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	b, err := api.svc.Book(ctx.Request().Context(), p.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "booking session")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *bookingApi) planRecurring(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	var data booking.RecurringRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RecurringRequest")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	rule, bookings, err := api.svc.PlanRecurring(ctx.Request().Context(), p.ID, data)
	if err != nil {
		return errors.Wrap(err, "planning recurring bookings")
	}
	return ctx.JSON(http.StatusCreated, RecurringResponse{Rule: rule, Bookings: bookings})
}

func (api *bookingApi) bookings(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	bookings, err := api.svc.Bookings(ctx.Request().Context(), p.ID)
	if err != nil {
		return errors.Wrap(err, "querying bookings")
	}
	return ctx.JSON(http.StatusOK, bookings)
}

func (api *bookingApi) cancelBooking(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	b, err := api.svc.CancelBooking(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling booking")
	}
	return ctx.JSON(http.StatusOK, b)
}

type RecurringResponse struct {
	Rule     booking.RecurringRule `json:"rule"`
	Bookings []booking.Booking     `json:"bookings"`
}
