package sqlxrepos

import (
	"database/sql/driver"
	"net"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/capdesk/capdesk/core"
)

const pqUniqueViolation = "23505"

// wrapDBErr wraps a driver error; connection-level failures are marked
// retryable via core.StoreUnavailableError.
func wrapDBErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, driver.ErrBadConn) {
		return errors.Wrap(core.NewStoreUnavailableError(err), msg)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.Wrap(core.NewStoreUnavailableError(err), msg)
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pqUniqueViolation
	}
	return false
}
