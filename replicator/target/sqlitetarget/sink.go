package sqlitetarget

import (
	"database/sql"

	"github.com/pingcap/errors"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
)

// sink inserts blocks for one table inside one transaction per block.
type sink struct {
	db        *sql.DB
	statement string
	columns   int
}

func (s *sink) WriteBlock(b *block.Block) error {
	if len(b.Columns) != s.columns {
		return errors.Errorf("block carries %d columns, sink expects %d", len(b.Columns), s.columns)
	}
	if b.Rows() == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Trace(err)
	}
	stmt, err := tx.Prepare(s.statement)
	if err != nil {
		_ = tx.Rollback()
		return errors.Trace(err)
	}

	args := make([]interface{}, s.columns)
	for i := 0; i < b.Rows(); i++ {
		for j, column := range b.Columns {
			args[j] = driverValue(column.Field(i))
		}
		if _, err := stmt.Exec(args...); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return errors.Trace(err)
		}
	}

	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return errors.Trace(err)
	}
	return errors.Trace(tx.Commit())
}

func (s *sink) Close() error {
	return nil
}

// driverValue narrows column values to the types database/sql accepts.
func driverValue(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		// Stored as the 64 bit pattern; readers reinterpret unsigned columns.
		return int64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	case []byte:
		return v
	default:
		return v
	}
}
