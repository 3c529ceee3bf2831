package target

import (
	"github.com/pingcap/errors"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
)

// Table describes a materialized table: its user columns and the sorting key
// the store uses for merge-on-read. The sign/version trailers are implicit.
type Table struct {
	Database   string
	Name       string
	Columns    []block.ColumnDef
	SortingKey []string
}

// SortingIndexes resolves the sorting key column names into positions within
// Columns.
func (t *Table) SortingIndexes() ([]int, error) {
	indexes := make([]int, 0, len(t.SortingKey))
	for _, name := range t.SortingKey {
		found := -1
		for i, def := range t.Columns {
			if def.Name == name {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, errors.Errorf("sorting key column %s not in table %s.%s", name, t.Database, t.Name)
		}
		indexes = append(indexes, found)
	}
	return indexes, nil
}

// DDLOp enumerates schema operations a translated DDL statement can request.
type DDLOp int

const (
	DDLCreate DDLOp = iota
	DDLDrop
	DDLTruncate
	DDLRename
)

// DDL is a dialect-neutral schema operation produced by a translator and
// consumed by a target store. Schema is the source schema the statement
// applies to; the sync loop drops operations scoped to other schemas.
type DDL struct {
	Schema string
	Op     DDLOp
	Table  *Table // create only
	Name   string // drop, truncate, rename (old name)
	// NewName is the destination name for renames.
	NewName string
}

// ISink receives blocks for one table. WriteBlock may be called any number
// of times before Close.
type ISink interface {
	WriteBlock(b *block.Block) error
	Close() error
}

// ITarget is the analytical store the replication core writes into. DDL and
// table drops must be serialized through Guard.
type ITarget interface {
	// ApplyDDL executes a translated schema operation against database.
	ApplyDDL(database string, ddl *DDL) error

	// GetTable returns the descriptor of an existing table.
	GetTable(database, table string) (*Table, error)

	// Tables lists the tables currently present in database.
	Tables(database string) ([]string, error)

	// DropTable removes a table. Callers hold the DDL guard.
	DropTable(database, table string) error

	// Guard takes the database scope DDL lock; the returned func releases it.
	Guard(database string) func()

	// OpenSink opens an insert sink. When withTrailers is set the incoming
	// blocks include the materialized sign/version columns; otherwise the
	// store fills their defaults.
	OpenSink(database, table string, withTrailers bool) (ISink, error)

	Close() error
}
