package master

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pingcap/errors"
	"github.com/siddontang/go-log/log"
	"github.com/siddontang/go/hack"
)

// ErrIllegalSourceConfig reports MySQL server variables that make row based
// replication impossible. Fatal; the server must be reconfigured.
var ErrIllegalSourceConfig = errors.New("illegal MySQL variables for materialized replication")

// Master is the SQL side of the source server: preflight checks, consistent
// snapshots and dump reads. The binlog stream itself is handled elsewhere.
type Master struct {
	cfg *Config
	db  *sql.DB
}

func New(cfg *Config) (*Master, error) {
	if err := cfg.WithDefault().Validate(); err != nil {
		return nil, errors.Annotatef(err, "master config:%s", cfg.String())
	}
	db, err := sql.Open("mysql", cfg.encodeDSN())
	if err != nil {
		return nil, errors.Annotatef(err, "open mysql dsn:%s", cfg.encodeDSN())
	}
	// 最大连接周期，超过时间的连接就close
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	// 设置最大连接数
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	// 设置闲置连接数
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	return &Master{cfg: cfg, db: db}, nil
}

func (m *Master) Close() error {
	return m.db.Close()
}

// Database returns the source schema being replicated.
func (m *Master) Database() string {
	return m.cfg.Database
}

// ReplicationConfig exposes the connection endpoint for the binlog client.
func (m *Master) ReplicationConfig() (host string, port uint16, user, password string) {
	return m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Password
}

// CheckSourceAndVersion verifies the server variables required for row based
// replication and returns the server version string. Each missing
// requirement is listed in the error.
func (m *Master) CheckSourceAndVersion() (string, error) {
	rows, err := m.db.Query(_preflightStatement)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer rows.Close()

	required := map[string]string{
		"log_bin":                       "log_bin = 'ON'",
		"binlog_format":                 "binlog_format = 'ROW'",
		"binlog_row_image":              "binlog_row_image = 'FULL'",
		"default_authentication_plugin": "default_authentication_plugin = 'mysql_native_password'",
	}

	var name, value string
	for rows.Next() {
		if err := rows.Scan(&name, &value); err != nil {
			return "", errors.Trace(err)
		}
		delete(required, name)
	}
	if err := rows.Err(); err != nil {
		return "", errors.Trace(err)
	}

	if len(required) != 0 {
		missing := ""
		for _, requirement := range required {
			if missing != "" {
				missing += ", "
			}
			missing += requirement
		}
		return "", errors.Annotatef(ErrIllegalSourceConfig, "requires %s", missing)
	}

	var version string
	if err := m.db.QueryRow(_versionStatement).Scan(&version); err != nil {
		return "", errors.Trace(err)
	}
	return version, nil
}

// BinlogFileExists reports whether the server still holds the named binlog
// file. A purged file means the recorded position cannot be resumed.
func (m *Master) BinlogFileExists(file string) (bool, error) {
	rows, err := m.db.Query(_masterLogsStatement)
	if err != nil {
		return false, errors.Trace(err)
	}
	defer rows.Close()

	cols, _ := rows.Columns()
	for rows.Next() {
		dest := makeScanDest(len(cols))
		if err := rows.Scan(dest...); err != nil {
			return false, errors.Trace(err)
		}
		name, _ := convertString(dest[0])
		if name == file {
			return true, nil
		}
	}
	return false, errors.Trace(rows.Err())
}

// Snapshot is a connection holding an open consistent snapshot transaction.
// It must be finished with Commit or Rollback.
type Snapshot struct {
	conn *sql.Conn
	done bool
}

// OpenSnapshot pins a connection and opens a transaction with a consistent
// snapshot, so that binlog coordinates and dumped table contents observe a
// single point in time.
func (m *Master) OpenSnapshot() (*Snapshot, error) {
	conn, err := m.db.Conn(context.Background())
	if err != nil {
		return nil, errors.Trace(err)
	}
	if _, err := conn.ExecContext(context.Background(), "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ"); err != nil {
		_ = conn.Close()
		return nil, errors.Trace(err)
	}
	if _, err := conn.ExecContext(context.Background(), "START TRANSACTION WITH CONSISTENT SNAPSHOT"); err != nil {
		_ = conn.Close()
		return nil, errors.Trace(err)
	}
	return &Snapshot{conn: conn}, nil
}

func (s *Snapshot) Commit() error {
	if s.done {
		return nil
	}
	s.done = true
	_, err := s.conn.ExecContext(context.Background(), "COMMIT")
	_ = s.conn.Close()
	return errors.Trace(err)
}

func (s *Snapshot) Rollback() {
	if s.done {
		return
	}
	s.done = true
	if _, err := s.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
		log.Errorf("rollback snapshot transaction error:%s", err)
	}
	_ = s.conn.Close()
}

// MasterStatus reads the binlog coordinates of the snapshot.
func (s *Snapshot) MasterStatus() (file string, position uint32, err error) {
	rows, err := s.conn.QueryContext(context.Background(), _masterStatusStatement)
	if err != nil {
		return "", 0, errors.Trace(err)
	}
	defer rows.Close()

	cols, _ := rows.Columns()
	if !rows.Next() {
		return "", 0, errors.New("empty SHOW MASTER STATUS result, is log_bin enabled?")
	}
	dest := makeScanDest(len(cols))
	if err := rows.Scan(dest...); err != nil {
		return "", 0, errors.Trace(err)
	}
	file, _ = convertString(dest[0])
	offset, err := convertUint(dest[1])
	if err != nil {
		return "", 0, errors.Trace(err)
	}
	return file, uint32(offset), nil
}

// ServerUUID reads the source server identity.
func (s *Snapshot) ServerUUID() (string, error) {
	var uuid string
	err := s.conn.QueryRowContext(context.Background(), _serverUUIDStatement).Scan(&uuid)
	return uuid, errors.Trace(err)
}

// Tables enumerates the base tables of the given schema.
func (s *Snapshot) Tables(database string) ([]string, error) {
	rows, err := s.conn.QueryContext(context.Background(), _listTablesStatement, database)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	var tables []string
	var name string
	for rows.Next() {
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Trace(err)
		}
		tables = append(tables, name)
	}
	return tables, errors.Trace(rows.Err())
}

// ShowCreateTable captures a table's DDL under the snapshot.
func (s *Snapshot) ShowCreateTable(database, table string) (string, error) {
	query := fmt.Sprintf("SHOW CREATE TABLE `%s`.`%s`", database, table)
	rows, err := s.conn.QueryContext(context.Background(), query)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer rows.Close()

	cols, _ := rows.Columns()
	if !rows.Next() {
		return "", errors.Errorf("empty SHOW CREATE TABLE result for %s.%s", database, table)
	}
	dest := makeScanDest(len(cols))
	if err := rows.Scan(dest...); err != nil {
		return "", errors.Trace(err)
	}
	ddl, _ := convertString(dest[1])
	return ddl, nil
}

// StreamTable reads the whole table in blocks of blockSize raw rows and
// feeds them to fn. An error returned by fn aborts the stream.
func (s *Snapshot) StreamTable(database, table string, blockSize int, fn func(rows [][]interface{}) error) error {
	query := fmt.Sprintf("SELECT * FROM `%s`.`%s`", database, table)
	rows, err := s.conn.QueryContext(context.Background(), query)
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errors.Trace(err)
	}

	pending := make([][]interface{}, 0, blockSize)
	for rows.Next() {
		dest := makeScanDest(len(cols))
		if err := rows.Scan(dest...); err != nil {
			return errors.Trace(err)
		}
		row := make([]interface{}, len(cols))
		for i := range dest {
			row[i] = *(dest[i].(*interface{}))
		}
		pending = append(pending, row)
		if len(pending) >= blockSize {
			if err := fn(pending); err != nil {
				return errors.Trace(err)
			}
			pending = make([][]interface{}, 0, blockSize)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Trace(err)
	}
	if len(pending) != 0 {
		return errors.Trace(fn(pending))
	}
	return nil
}

func makeScanDest(size int) []interface{} {
	values := make([]interface{}, size)
	dest := make([]interface{}, size)
	for i := range values {
		dest[i] = &values[i]
	}
	return dest
}

func convertString(d interface{}) (string, error) {
	v := *(d.(*interface{}))
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return hack.String(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case nil:
		return "", nil
	default:
		return "", errors.Errorf("data type is %T", v)
	}
}

func convertUint(d interface{}) (uint64, error) {
	v := *(d.(*interface{}))
	switch v := v.(type) {
	case int64:
		return uint64(v), nil
	case uint64:
		return v, nil
	case string:
		return strconv.ParseUint(v, 10, 64)
	case []byte:
		return strconv.ParseUint(hack.String(v), 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, errors.Errorf("data type is %T", v)
	}
}
