package replicator

import (
	"sync/atomic"
	"time"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"

	"github.com/tsywkGo/go-mysql-materialize/replicator/source"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
	"github.com/tsywkGo/go-mysql-materialize/replicator/translator"
)

func (r *Replicator) onEvent(event source.IEvent) error {
	switch e := event.(type) {
	case *source.RowsEvent:
		return r.onRowsEvent(e)
	case *source.QueryEvent:
		return r.onQueryEvent(e)
	case *source.HeartbeatEvent:
		return nil
	case *source.OtherEvent:
		log.Debugf("skip %s event", e.Type)
		return nil
	default:
		return nil
	}
}

func (r *Replicator) onRowsEvent(e *source.RowsEvent) error {
	database := r.database
	if !r.matched(database, e.Table) {
		return nil
	}

	buf, err := r.buffers.GetOrCreate(r.store, e.Table)
	if err != nil {
		return errors.Trace(err)
	}

	// One version per event; an update pair shares it across both images.
	rowsBefore := buf.Block.Rows()
	var bytesDelta int
	switch e.Action {
	case source.InsertAction:
		bytesDelta, err = buf.Block.WriteRows(e.Rows, 1, r.metadata.NextVersion())
	case source.DeleteAction:
		bytesDelta, err = buf.Block.WriteRows(e.Rows, -1, r.metadata.NextVersion())
	case source.UpdateAction:
		bytesDelta, err = buf.Block.WriteUpdateRows(e.Rows, r.metadata.NextVersion(), buf.SortingIndexes)
	default:
		return errors.Errorf("unknown row action %s", e.Action)
	}
	if err != nil {
		return errors.Trace(err)
	}

	r.buffers.Add(buf.Block.Rows(), buf.Block.Bytes(), buf.Block.Rows()-rowsBefore, bytesDelta)
	return nil
}

// onQueryEvent translates a binlog statement and applies the resulting schema
// operations. Buffered rows flush first, inside the same metadata transaction
// that applies the operations and commits the position after the statement.
// Statements that yield no operation for the replicated schema flush nothing.
func (r *Replicator) onQueryEvent(e *source.QueryEvent) error {
	ddls, err := r.translator.Translate(e.Schema, e.Query)
	if err != nil {
		if errors.Cause(err) == translator.ErrDDLSyntax {
			atomic.AddUint64(&r.skippedDDL, 1)
			log.Errorf("skip untranslatable statement %q: %s", e.Query, err)
			return nil
		}
		return errors.Trace(err)
	}

	database := r.database
	applicable := make([]*target.DDL, 0, len(ddls))
	for _, ddl := range ddls {
		if ddl.Schema != database {
			log.Debugf("skip schema operation for %s, replicating %s", ddl.Schema, database)
			continue
		}
		if ddl.Op == target.DDLCreate && !r.matched(database, ddl.Table.Name) {
			continue
		}
		applicable = append(applicable, ddl)
	}
	if len(applicable) == 0 {
		return nil
	}

	release := r.store.Guard(database)
	defer release()

	for _, ddl := range applicable {
		r.recordTableChange(ddl)
	}

	err = r.metadata.Transaction(r.source.Position(), func() error {
		if err := r.buffers.Commit(r.store); err != nil {
			return errors.Trace(err)
		}
		for _, ddl := range applicable {
			if err := r.store.ApplyDDL(database, ddl); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	})
	r.lastFlush = time.Now()
	return errors.Trace(err)
}

// recordTableChange keeps the metadata table list in step with an applied
// schema operation.
func (r *Replicator) recordTableChange(ddl *target.DDL) {
	switch ddl.Op {
	case target.DDLCreate:
		for _, name := range r.metadata.Tables {
			if name == ddl.Table.Name {
				return
			}
		}
		r.metadata.Tables = append(r.metadata.Tables, ddl.Table.Name)
	case target.DDLDrop:
		tables := r.metadata.Tables[:0]
		for _, name := range r.metadata.Tables {
			if name != ddl.Name {
				tables = append(tables, name)
			}
		}
		r.metadata.Tables = tables
	case target.DDLRename:
		for i, name := range r.metadata.Tables {
			if name == ddl.Name {
				r.metadata.Tables[i] = ddl.NewName
			}
		}
	}
}
