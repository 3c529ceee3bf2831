package source

import (
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
)

// The action name for row events.
const (
	InsertAction = "insert"
	UpdateAction = "update"
	DeleteAction = "delete"
)

// IEvent is the tagged variant delivered by a source: RowsEvent, QueryEvent,
// HeartbeatEvent or OtherEvent.
type IEvent interface {
	event()
}

// RowsEvent carries the decoded row images of one binlog row event. For
// updates, Rows alternates pre image (even index) and post image (odd
// index). Field values are canonical: uint64 for integer bit patterns,
// int64 for 24 bit integers, float64 for floats, []byte for strings and nil
// for NULL.
type RowsEvent struct {
	Action string
	Table  string
	Rows   [][]interface{}
}

// QueryEvent carries a statement from the binlog, usually DDL.
type QueryEvent struct {
	Schema string
	Query  string
}

// HeartbeatEvent is the master's idle heartbeat.
type HeartbeatEvent struct{}

// OtherEvent is any recognized but irrelevant event, kept for debug logging.
type OtherEvent struct {
	Type string
}

func (*RowsEvent) event()      {}
func (*QueryEvent) event()     {}
func (*HeartbeatEvent) event() {}
func (*OtherEvent) event()     {}

// ISource is the binlog stream of the MySQL master.
type ISource interface {
	// Connect validates connectivity. StartDump implies it; reconnects are
	// on demand.
	Connect() error

	// StartDump begins streaming the given source database from position,
	// identifying as serverID to the master.
	StartDump(serverID uint32, database string, position mysql.Position) error

	// ReadOneEvent returns the next event, or (nil, nil) when the timeout
	// elapses first. Connection loss returns an error.
	ReadOneEvent(timeout time.Duration) (IEvent, error)

	// Position is the position after the last successfully read event.
	Position() mysql.Position

	// Latency is the seconds between now and the last event's timestamp.
	Latency() uint32

	Close() error
}
