package replicator

import (
	"strconv"
	"time"

	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/siddontang/go/hack"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
	"github.com/tsywkGo/go-mysql-materialize/replicator/source/master"
)

// dump materializes every table captured under the snapshot and persists the
// bootstrap metadata in one transaction. Target tables left behind by an
// earlier aborted bootstrap are dropped first.
func (r *Replicator) dump(snapshot *master.Snapshot) error {
	database := r.database
	release := r.store.Guard(database)
	defer release()

	return errors.Trace(r.metadata.Transaction(r.metadata.Position(), func() error {
		leftovers, err := r.store.Tables(database)
		if err != nil {
			return errors.Trace(err)
		}
		for _, table := range leftovers {
			log.Warnf("dropping outdated table %s.%s from earlier bootstrap", database, table)
			if err := r.store.DropTable(database, table); err != nil {
				return errors.Trace(err)
			}
		}

		for _, table := range r.metadata.Tables {
			if err := r.createAndDumpTable(snapshot, database, table); err != nil {
				return errors.Annotatef(err, "dump table %s.%s", database, table)
			}
		}
		return nil
	}))
}

func (r *Replicator) createAndDumpTable(snapshot *master.Snapshot, database, table string) error {
	query, ok := r.metadata.NeedDumpingTables[table]
	if !ok {
		return errors.Errorf("no captured DDL for table %s", table)
	}

	ddls, err := r.translator.Translate(database, query)
	if err != nil {
		return errors.Trace(err)
	}
	for _, ddl := range ddls {
		if err := r.store.ApplyDDL(database, ddl); err != nil {
			return errors.Trace(err)
		}
	}

	desc, err := r.store.GetTable(database, table)
	if err != nil {
		return errors.Trace(err)
	}
	sink, err := r.store.OpenSink(database, table, false)
	if err != nil {
		return errors.Trace(err)
	}

	start := time.Now()
	total, totalBytes := 0, 0
	err = snapshot.StreamTable(database, table, r.cfg.SyncConfig.DumpBlockSize, func(rows [][]interface{}) error {
		if err := r.ctx.Err(); err != nil {
			return err
		}

		b := block.NewBlock(desc.Columns)
		canonical, err := canonicalDumpRows(rows, desc.Columns)
		if err != nil {
			return errors.Trace(err)
		}
		if err := b.AppendPlain(canonical); err != nil {
			return errors.Trace(err)
		}
		total += len(rows)
		totalBytes += b.Bytes()
		return errors.Trace(sink.WriteBlock(b))
	})
	if err != nil {
		_ = sink.Close()
		return errors.Trace(err)
	}
	if err := sink.Close(); err != nil {
		return errors.Trace(err)
	}

	elapsed := time.Since(start)
	rowRate, byteRate := float64(total), float64(totalBytes)
	if seconds := elapsed.Seconds(); seconds > 0 {
		rowRate /= seconds
		byteRate /= seconds
	}
	log.Infof("dumped %d rows (%d bytes) of %s.%s in %s, %.0f rows/s, %.0f bytes/s",
		total, totalBytes, database, table, elapsed, rowRate, byteRate)
	return nil
}

// canonicalDumpRows rewrites snapshot query results into the forms the column
// writers expect. The MySQL text protocol delivers most values as byte
// strings, so numbers are parsed against the column definition.
func canonicalDumpRows(rows [][]interface{}, defs []block.ColumnDef) ([][]interface{}, error) {
	canonical := make([][]interface{}, len(rows))
	for i, row := range rows {
		if len(row) != len(defs) {
			return nil, errors.Annotatef(block.ErrLogicalInvariant,
				"row carries %d fields, table has %d columns", len(row), len(defs))
		}
		fields := make([]interface{}, len(row))
		for j, value := range row {
			field, err := canonicalDumpField(value, defs[j])
			if err != nil {
				return nil, errors.Annotatef(err, "column %s", defs[j].Name)
			}
			fields[j] = field
		}
		canonical[i] = fields
	}
	return canonical, nil
}

func canonicalDumpField(value interface{}, def block.ColumnDef) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	switch def.Kind {
	case block.KindInt8, block.KindInt16, block.KindInt32, block.KindInt64:
		switch v := value.(type) {
		case int64:
			return uint64(v), nil
		case uint64:
			return v, nil
		case []byte:
			num, err := strconv.ParseInt(hack.String(v), 10, 64)
			if err != nil {
				return nil, errors.Annotatef(block.ErrUnsupportedType, "parse %q: %s", v, err)
			}
			return uint64(num), nil
		}
	case block.KindUInt8, block.KindUInt16, block.KindUInt32, block.KindUInt64:
		switch v := value.(type) {
		case int64:
			return uint64(v), nil
		case uint64:
			return v, nil
		case []byte:
			num, err := strconv.ParseUint(hack.String(v), 10, 64)
			if err != nil {
				return nil, errors.Annotatef(block.ErrUnsupportedType, "parse %q: %s", v, err)
			}
			return num, nil
		}
	case block.KindFloat32, block.KindFloat64:
		switch v := value.(type) {
		case float64:
			return v, nil
		case []byte:
			num, err := strconv.ParseFloat(hack.String(v), 64)
			if err != nil {
				return nil, errors.Annotatef(block.ErrUnsupportedType, "parse %q: %s", v, err)
			}
			return num, nil
		}
	case block.KindString, block.KindFixedString:
		switch v := value.(type) {
		case []byte:
			return v, nil
		case string:
			return hack.Slice(v), nil
		case time.Time:
			return hack.Slice(v.Format("2006-01-02 15:04:05")), nil
		}
	}
	return nil, errors.Annotatef(block.ErrUnsupportedType, "%T into %s", value, def.Kind)
}
