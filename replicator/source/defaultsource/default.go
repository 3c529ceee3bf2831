package defaultsource

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/go-mysql-org/go-mysql/replication"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/siddontang/go/hack"

	"github.com/tsywkGo/go-mysql-materialize/replicator/source"
)

// Source streams row events from the master's binlog through a go-mysql
// BinlogSyncer and tracks the position after every consumed event.
type Source struct {
	replicationConfig replication.BinlogSyncerConfig

	database     string
	binlogSyncer *replication.BinlogSyncer
	streamer     *replication.BinlogStreamer

	sync.RWMutex
	pos mysql.Position

	// 同步延迟
	latency uint32
}

func New(opts ...Option) (*Source, error) {
	s := new(Source)
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Source) Connect() error {
	// The syncer dials lazily in StartDump; nothing to do here.
	return nil
}

// StartDump opens a binlog stream from position. Each call builds a fresh
// syncer with the caller's server id, so reconnects present a new identity
// to the master, which MySQL allows.
func (s *Source) StartDump(serverID uint32, database string, position mysql.Position) error {
	if s.binlogSyncer != nil {
		s.binlogSyncer.Close()
	}

	cfg := s.replicationConfig
	cfg.ServerID = serverID
	s.database = database
	s.binlogSyncer = replication.NewBinlogSyncer(cfg)

	streamer, err := s.binlogSyncer.StartSync(position)
	if err != nil {
		return errors.Trace(err)
	}
	s.streamer = streamer
	s.UpdatePosition(position)
	log.Infof("binlog dump started at %s, server id %d", position.String(), serverID)
	return nil
}

func (s *Source) Position() mysql.Position {
	s.RLock()
	defer s.RUnlock()

	return s.pos
}

func (s *Source) UpdatePosition(pos mysql.Position) {
	log.Debugf("update source position %s", pos.String())

	s.Lock()
	defer s.Unlock()

	s.pos = pos
}

func (s *Source) Latency() uint32 {
	return atomic.LoadUint32(&s.latency)
}

func (s *Source) updateLatency(ts uint32) {
	if ts == 0 {
		return
	}
	now := uint32(time.Now().Unix())
	latency := uint32(0)
	if now > ts {
		latency = now - ts
	}
	atomic.StoreUint32(&s.latency, latency)
}

// ReadOneEvent pulls the next binlog event, waiting up to timeout. Timeout
// returns (nil, nil). The returned event is already translated into the
// canonical variant and the source position advanced past it.
func (s *Source) ReadOneEvent(timeout time.Duration) (source.IEvent, error) {
	if s.streamer == nil {
		return nil, errors.New("source not started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logEvent, err := s.streamer.GetEvent(ctx)
	if err != nil {
		if errors.Cause(err) == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, errors.Trace(err)
	}

	s.updateLatency(logEvent.Header.Timestamp)

	// If log pos equals zero then the received event is a fake rotate event
	// and contains only a name of the next binlog file.
	// See https://github.com/mysql/mysql-server/blob/8e797a5d6eb3a87f16498edcb7261a75897babae/sql/rpl_binlog_sender.h#L235
	if logEvent.Header.LogPos == 0 {
		if event, ok := logEvent.Event.(*replication.RotateEvent); ok {
			pos := s.Position()
			pos.Name = hack.String(event.NextLogName)
			s.UpdatePosition(pos)
			log.Infof("received fake rotate event, next log name is %s", event.NextLogName)
		}
		return &source.OtherEvent{Type: logEvent.Header.EventType.String()}, nil
	}

	switch event := logEvent.Event.(type) {
	case *replication.RotateEvent:
		s.UpdatePosition(mysql.Position{Name: hack.String(event.NextLogName), Pos: uint32(event.Position)})
		return &source.OtherEvent{Type: logEvent.Header.EventType.String()}, nil
	case *replication.RowsEvent:
		s.advance(logEvent.Header.LogPos)
		return s.translateRowsEvent(logEvent.Header.EventType, event), nil
	case *replication.QueryEvent:
		s.advance(logEvent.Header.LogPos)
		return &source.QueryEvent{Schema: hack.String(event.Schema), Query: hack.String(event.Query)}, nil
	default:
		s.advance(logEvent.Header.LogPos)
		if logEvent.Header.EventType == replication.HEARTBEAT_EVENT {
			return &source.HeartbeatEvent{}, nil
		}
		return &source.OtherEvent{Type: logEvent.Header.EventType.String()}, nil
	}
}

func (s *Source) advance(logPos uint32) {
	pos := s.Position()
	pos.Pos = logPos
	s.UpdatePosition(pos)
}

func (s *Source) translateRowsEvent(eventType replication.EventType, event *replication.RowsEvent) source.IEvent {
	schema := hack.String(event.Table.Schema)
	table := hack.String(event.Table.Table)
	if schema != s.database {
		return &source.OtherEvent{Type: "rows event for " + schema + "." + table}
	}

	var action string
	switch eventType {
	case replication.WRITE_ROWS_EVENTv0, replication.WRITE_ROWS_EVENTv1, replication.WRITE_ROWS_EVENTv2:
		action = source.InsertAction
	case replication.UPDATE_ROWS_EVENTv0, replication.UPDATE_ROWS_EVENTv1, replication.UPDATE_ROWS_EVENTv2:
		action = source.UpdateAction
	case replication.DELETE_ROWS_EVENTv0, replication.DELETE_ROWS_EVENTv1, replication.DELETE_ROWS_EVENTv2:
		action = source.DeleteAction
	default:
		return &source.OtherEvent{Type: eventType.String()}
	}

	rows := make([][]interface{}, len(event.Rows))
	for i, row := range event.Rows {
		rows[i] = canonicalRow(row, event.Table.ColumnType)
	}
	return &source.RowsEvent{Action: action, Table: table, Rows: rows}
}

func (s *Source) Close() error {
	if s.binlogSyncer != nil {
		s.binlogSyncer.Close()
	}
	return nil
}
