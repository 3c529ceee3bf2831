package meta

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/pingcap/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/siddontang/go-log/log"

	"github.com/tsywkGo/go-mysql-materialize/replicator/source/master"
)

const (
	_metadataMagic         = "mysql-materialize-metadata"
	_metadataSchemaVersion = 1
	_metadataFileName      = ".metadata"
)

// Metadata is the durable replication state of one target database: the
// last committed binlog position, the global row version counter and the
// identity of the source schema. It is owned by a single sync loop.
type Metadata struct {
	Magic         string    `json:"magic"`
	SchemaVersion int       `json:"schema_version"`
	SourceUUID    uuid.UUID `json:"source_uuid"`
	SourceDB      string    `json:"source_database"`
	BinlogFile    string    `json:"binlog_file"`
	BinlogOffset  uint32    `json:"binlog_offset"`
	Version       uint64    `json:"version"`
	Tables        []string  `json:"tables"`

	// NeedDumpingTables maps table name to the CREATE TABLE statement
	// captured under the snapshot. Only populated on first run; never
	// persisted.
	NeedDumpingTables map[string]string `json:"-"`

	// Path is the metadata file location; set by LoadOrInit.
	Path string `json:"-"`
}

// Position returns the committed replication position.
func (m *Metadata) Position() mysql.Position {
	return mysql.Position{Name: m.BinlogFile, Pos: m.BinlogOffset}
}

// NextVersion advances and returns the global row version counter. The new
// value becomes durable at the next Transaction commit.
func (m *Metadata) NextVersion() uint64 {
	m.Version++
	return m.Version
}

// LoadOrInit returns the metadata for the database rooted at dir.
//
// On first run (no metadata file) it opens a consistent snapshot on the
// source, records the binlog coordinates, server identity and the filtered
// table set with their DDL, and returns the still open snapshot so the
// caller can dump table data against the same point in time. On later runs
// the file is loaded, the recorded binlog file is verified to still exist on
// the source, and the returned snapshot is nil.
func LoadOrInit(m *master.Master, dir string, filter func(table string) bool) (*Metadata, *master.Snapshot, error) {
	path := filepath.Join(dir, _metadataFileName)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		metadata := &Metadata{Path: path}
		if err := json.Unmarshal(data, metadata); err != nil {
			return nil, nil, errors.Annotatef(err, "decode metadata %s", path)
		}
		if metadata.Magic != _metadataMagic || metadata.SchemaVersion != _metadataSchemaVersion {
			return nil, nil, errors.Errorf("unrecognized metadata file %s", path)
		}
		ok, err := m.BinlogFileExists(metadata.BinlogFile)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		if !ok {
			return nil, nil, errors.Annotatef(master.ErrIllegalSourceConfig,
				"binlog file %s purged on source, cannot resume", metadata.BinlogFile)
		}
		return metadata, nil, nil
	case !os.IsNotExist(err):
		return nil, nil, errors.Trace(err)
	}

	snapshot, err := m.OpenSnapshot()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}

	metadata, err := initFromSnapshot(m, snapshot, path, filter)
	if err != nil {
		snapshot.Rollback()
		return nil, nil, errors.Trace(err)
	}
	return metadata, snapshot, nil
}

func initFromSnapshot(m *master.Master, snapshot *master.Snapshot, path string, filter func(string) bool) (*Metadata, error) {
	file, offset, err := snapshot.MasterStatus()
	if err != nil {
		return nil, errors.Trace(err)
	}
	rawUUID, err := snapshot.ServerUUID()
	if err != nil {
		return nil, errors.Trace(err)
	}
	serverUUID, err := uuid.FromString(rawUUID)
	if err != nil {
		return nil, errors.Annotatef(err, "parse server uuid %q", rawUUID)
	}

	tables, err := snapshot.Tables(m.Database())
	if err != nil {
		return nil, errors.Trace(err)
	}

	metadata := &Metadata{
		Magic:             _metadataMagic,
		SchemaVersion:     _metadataSchemaVersion,
		SourceUUID:        serverUUID,
		SourceDB:          m.Database(),
		BinlogFile:        file,
		BinlogOffset:      offset,
		Version:           0,
		NeedDumpingTables: map[string]string{},
		Path:              path,
	}
	for _, table := range tables {
		if filter != nil && !filter(table) {
			log.Infof("table %s.%s filtered, not materialized", m.Database(), table)
			continue
		}
		ddl, err := snapshot.ShowCreateTable(m.Database(), table)
		if err != nil {
			return nil, errors.Trace(err)
		}
		metadata.NeedDumpingTables[table] = ddl
		metadata.Tables = append(metadata.Tables, table)
	}
	return metadata, nil
}

// Transaction persists the new position atomically with whatever side
// effects body produces on the target store. The record is staged to a
// temporary file before body runs and renamed into place after it succeeds,
// so a crash leaves either the old record or the new one, never a torn
// write. A crash between body and rename causes replay, which the
// sign/version encoding tolerates.
func (m *Metadata) Transaction(position mysql.Position, body func() error) error {
	staged := *m
	staged.BinlogFile = position.Name
	staged.BinlogOffset = position.Pos

	tmp := m.Path + ".tmp"
	if err := writeFileSync(tmp, &staged); err != nil {
		return errors.Trace(err)
	}

	if err := body(); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			log.Errorf("remove staged metadata %s error:%s", tmp, removeErr)
		}
		return errors.Trace(err)
	}

	if err := os.Rename(tmp, m.Path); err != nil {
		return errors.Trace(err)
	}
	m.BinlogFile = position.Name
	m.BinlogOffset = position.Pos
	return nil
}

func writeFileSync(path string, metadata *Metadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return errors.Trace(err)
	}
	return errors.Trace(f.Close())
}
