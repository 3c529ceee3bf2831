package replicator

import (
	"database/sql/driver"
	stderrors "errors"
	"io"
	"net"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
)

// ErrSourceUnavailable marks a lost or unreachable source connection. During
// prepare it is answered with a pause and a fresh prepare attempt; once
// streaming has begun it terminates the run.
var ErrSourceUnavailable = errors.New("source connection unavailable")

// isSourceUnavailable classifies transport level failures of the source
// connection. Anything else, replication errors included, stays fatal.
func isSourceUnavailable(err error) bool {
	if err == nil {
		return false
	}
	cause := errors.Cause(err)
	switch cause {
	case ErrSourceUnavailable, driver.ErrBadConn, mysqldriver.ErrInvalidConn,
		io.EOF, io.ErrUnexpectedEOF:
		return true
	}
	var netErr net.Error
	if stderrors.As(cause, &netErr) {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(cause, &opErr)
}
