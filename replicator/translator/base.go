package translator

import (
	"github.com/pingcap/errors"

	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
)

// ErrDDLSyntax marks statements the translator could not parse or cannot
// express on the target. The sync loop logs and skips these instead of
// failing replication.
var ErrDDLSyntax = errors.New("untranslatable DDL statement")

// ITranslator maps MySQL statements from the binlog into target schema
// operations.
type ITranslator interface {
	// Translate parses query and returns the schema operations it implies,
	// each scoped to its source schema (defaultSchema when the statement
	// does not qualify table names). Statements with no target effect
	// return an empty slice. Unparseable statements return ErrDDLSyntax.
	Translate(defaultSchema, query string) ([]*target.DDL, error)
}
