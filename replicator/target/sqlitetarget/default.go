package sqlitetarget

import (
	"database/sql"
	"encoding/json"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	_ "modernc.org/sqlite"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
)

const _registryStatement = `CREATE TABLE IF NOT EXISTS _materialized_tables (
	database TEXT NOT NULL,
	name     TEXT NOT NULL,
	spec     TEXT NOT NULL,
	PRIMARY KEY (database, name)
)`

// Store materializes replicated tables into a SQLite database, in memory
// unless WithPath names a file. Every table keeps
// the append-only layout: user columns plus the sign and version trailers,
// with merge-on-read left to readers.
type Store struct {
	dsn   string
	db    *sql.DB
	cache *gocache.Cache

	sync.Mutex
	guards map[string]*sync.Mutex
}

func New(opts ...Option) (*Store, error) {
	s := &Store{
		dsn:    ":memory:",
		guards: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// An in-memory store exists per connection, so the pool must stay at one.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(_registryStatement); err != nil {
		_ = db.Close()
		return nil, errors.Trace(err)
	}

	s.db = db
	s.cache = gocache.New(_defaultExpiration, _cleanupInterval)
	return s, nil
}

func (s *Store) Close() error {
	s.cache.Flush()
	return s.db.Close()
}

// Guard takes the database scope schema lock. The returned func releases it.
func (s *Store) Guard(database string) func() {
	s.Lock()
	guard, ok := s.guards[database]
	if !ok {
		guard = new(sync.Mutex)
		s.guards[database] = guard
	}
	s.Unlock()

	guard.Lock()
	return guard.Unlock
}

func (s *Store) ApplyDDL(database string, ddl *target.DDL) error {
	switch ddl.Op {
	case target.DDLCreate:
		return s.createTable(database, ddl.Table)
	case target.DDLDrop:
		return s.DropTable(database, ddl.Name)
	case target.DDLTruncate:
		return s.truncateTable(database, ddl.Name)
	case target.DDLRename:
		return s.renameTable(database, ddl.Name, ddl.NewName)
	default:
		return errors.Errorf("unknown schema operation %d", ddl.Op)
	}
}

func (s *Store) createTable(database string, table *target.Table) error {
	columns := make([]string, 0, len(table.Columns)+2)
	for _, def := range table.Columns {
		columns = append(columns, quoteIdent(def.Name)+" "+sqliteType(def.Kind)+nullClause(def.Nullable))
	}
	columns = append(columns,
		quoteIdent(block.SignColumnName)+" INTEGER NOT NULL DEFAULT 1",
		quoteIdent(block.VersionColumnName)+" INTEGER NOT NULL DEFAULT 0")

	statement := "CREATE TABLE IF NOT EXISTS " + physicalName(database, table.Name) +
		" (" + strings.Join(columns, ", ") + ")"
	if _, err := s.db.Exec(statement); err != nil {
		return errors.Annotatef(err, "create table %s.%s", database, table.Name)
	}

	spec, err := json.Marshal(table)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := s.db.Exec(
		"INSERT OR REPLACE INTO _materialized_tables (database, name, spec) VALUES (?, ?, ?)",
		database, table.Name, string(spec)); err != nil {
		return errors.Trace(err)
	}

	s.cache.SetDefault(encodeTableName(database, table.Name), table)
	log.Infof("created table %s.%s, sorting key %v", database, table.Name, table.SortingKey)
	return nil
}

func (s *Store) DropTable(database, table string) error {
	if _, err := s.db.Exec("DROP TABLE IF EXISTS " + physicalName(database, table)); err != nil {
		return errors.Annotatef(err, "drop table %s.%s", database, table)
	}
	if _, err := s.db.Exec(
		"DELETE FROM _materialized_tables WHERE database = ? AND name = ?", database, table); err != nil {
		return errors.Trace(err)
	}
	s.cache.Delete(encodeTableName(database, table))
	return nil
}

func (s *Store) truncateTable(database, table string) error {
	if _, err := s.db.Exec("DELETE FROM " + physicalName(database, table)); err != nil {
		return errors.Annotatef(err, "truncate table %s.%s", database, table)
	}
	return nil
}

func (s *Store) renameTable(database, table, newName string) error {
	spec, err := s.GetTable(database, table)
	if err != nil {
		return errors.Trace(err)
	}

	statement := "ALTER TABLE " + physicalName(database, table) + " RENAME TO " + physicalName(database, newName)
	if _, err := s.db.Exec(statement); err != nil {
		return errors.Annotatef(err, "rename table %s.%s to %s", database, table, newName)
	}

	renamed := *spec
	renamed.Name = newName
	encoded, err := json.Marshal(&renamed)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := s.db.Exec(
		"UPDATE _materialized_tables SET name = ?, spec = ? WHERE database = ? AND name = ?",
		newName, string(encoded), database, table); err != nil {
		return errors.Trace(err)
	}

	s.cache.Delete(encodeTableName(database, table))
	s.cache.SetDefault(encodeTableName(database, newName), &renamed)
	return nil
}

func (s *Store) GetTable(database, table string) (*target.Table, error) {
	key := encodeTableName(database, table)
	if val, ok := s.cache.Get(key); ok {
		return val.(*target.Table), nil
	}

	var spec string
	err := s.db.QueryRow(
		"SELECT spec FROM _materialized_tables WHERE database = ? AND name = ?",
		database, table).Scan(&spec)
	if err != nil {
		return nil, errors.Annotatef(err, "table %s.%s not registered", database, table)
	}

	decoded := new(target.Table)
	if err := json.Unmarshal([]byte(spec), decoded); err != nil {
		return nil, errors.Trace(err)
	}
	s.cache.SetDefault(key, decoded)
	return decoded, nil
}

func (s *Store) Tables(database string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT name FROM _materialized_tables WHERE database = ? ORDER BY name", database)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Trace(err)
		}
		names = append(names, name)
	}
	return names, errors.Trace(rows.Err())
}

func (s *Store) OpenSink(database, table string, withTrailers bool) (target.ISink, error) {
	spec, err := s.GetTable(database, table)
	if err != nil {
		return nil, errors.Trace(err)
	}

	names := make([]string, 0, len(spec.Columns)+2)
	for _, def := range spec.Columns {
		names = append(names, quoteIdent(def.Name))
	}
	if withTrailers {
		names = append(names, quoteIdent(block.SignColumnName), quoteIdent(block.VersionColumnName))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
	statement := "INSERT INTO " + physicalName(database, table) +
		" (" + strings.Join(names, ", ") + ") VALUES (" + placeholders + ")"
	return &sink{db: s.db, statement: statement, columns: len(names)}, nil
}

func sqliteType(kind block.Kind) string {
	switch kind {
	case block.KindFloat32, block.KindFloat64:
		return "REAL"
	case block.KindString, block.KindFixedString:
		return "BLOB"
	default:
		return "INTEGER"
	}
}

func nullClause(nullable bool) string {
	if nullable {
		return ""
	}
	return " NOT NULL"
}

func physicalName(database, table string) string {
	return quoteIdent(database + "." + table)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func encodeTableName(database, table string) string {
	return database + "." + table
}
