package sqlxrepos

import (
	"database/sql"
	"database/sql/driver"
	"net"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/dojo/core"
)

const (
	uniqueViolation           = "23505"
	foreignKeyViolation       = "23503"
	invalidTextRepresentation = "22P02"
)

// trapErr maps store errors to domain errors:
// no rows and dangling or malformed references to notFound, unique violations to conflict,
// and lost connections to core.ErrTransient.
func trapErr(err error, notFound, conflict error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == uniqueViolation && conflict != nil:
			return conflict
		case (pqErr.Code == foreignKeyViolation || pqErr.Code == invalidTextRepresentation) && notFound != nil:
			return notFound
		// connection exception, insufficient resources, operator intervention
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			return core.Transient(err, msg)
		}
		return errors.Wrap(err, msg)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return core.Transient(err, msg)
	}
	return errors.Wrap(err, msg)
}

// isUUID tells apart ids that cannot exist from ids postgres would reject.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
