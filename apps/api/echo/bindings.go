package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/dojo/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// queryParams collects query parameter parsing errors as field errors.
type queryParams struct {
	ctx    echo.Context
	errors []core.FieldError
}

func newQueryParams(ctx echo.Context) *queryParams {
	return &queryParams{ctx: ctx}
}

func (qp *queryParams) String(name string) string {
	return core.CleanString(qp.ctx.QueryParam(name))
}

// Date parses a YYYY-MM-DD parameter.
func (qp *queryParams) Date(name string) time.Time {
	d, err := core.ParseDate(qp.String(name))
	if err != nil {
		qp.errors = append(qp.errors, core.FieldError{Field: name, Error: "date must be formatted as YYYY-MM-DD"})
	}
	return d
}

// Time parses an RFC 3339 parameter.
func (qp *queryParams) Time(name string) time.Time {
	val := qp.String(name)
	if val == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		qp.errors = append(qp.errors, core.FieldError{Field: name, Error: "time must be formatted as RFC 3339"})
	}
	return t
}

func (qp *queryParams) Int(name string) int {
	val := qp.String(name)
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		qp.errors = append(qp.errors, core.FieldError{Field: name, Error: "must be a whole number"})
	}
	return n
}

func (qp *queryParams) Err() error {
	if len(qp.errors) > 0 {
		return core.NewValidationError(nil, qp.errors...)
	}
	return nil
}
