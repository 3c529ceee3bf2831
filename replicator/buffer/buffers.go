package buffer

import (
	"github.com/pingcap/errors"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
)

// TableBuffer pairs a table's in-memory block with the positions of its
// sorting key columns.
type TableBuffer struct {
	Block          *block.Block
	SortingIndexes []int
}

// Set accumulates per-table blocks between flushes. It belongs to a single
// sync loop and is not safe for concurrent use.
type Set struct {
	database string
	data     map[string]*TableBuffer

	maxBlockRows     int
	maxBlockBytes    int
	totalBlocksRows  int
	totalBlocksBytes int
}

// Thresholds are the four flush limits; crossing any one forces a flush.
type Thresholds struct {
	MaxBlockRows  int
	MaxBlockBytes int
	MaxTotalRows  int
	MaxTotalBytes int
}

func NewSet(database string) *Set {
	return &Set{database: database, data: map[string]*TableBuffer{}}
}

// Empty reports whether no table has pending rows.
func (s *Set) Empty() bool { return len(s.data) == 0 }

// GetOrCreate returns the buffer for table, materializing it on first use
// from the target table's schema and sorting key.
func (s *Set) GetOrCreate(store target.ITarget, table string) (*TableBuffer, error) {
	if buf, ok := s.data[table]; ok {
		return buf, nil
	}

	desc, err := store.GetTable(s.database, table)
	if err != nil {
		return nil, errors.Trace(err)
	}
	indexes, err := desc.SortingIndexes()
	if err != nil {
		return nil, errors.Trace(err)
	}

	buf := &TableBuffer{Block: block.NewBufferBlock(desc.Columns), SortingIndexes: indexes}
	s.data[table] = buf
	return buf, nil
}

// Add records one applied event: the owning block's new size and the rows
// and bytes the event appended.
func (s *Set) Add(blockRows, blockBytes, writtenRows, writtenBytes int) {
	s.totalBlocksRows += writtenRows
	s.totalBlocksBytes += writtenBytes
	if blockRows > s.maxBlockRows {
		s.maxBlockRows = blockRows
	}
	if blockBytes > s.maxBlockBytes {
		s.maxBlockBytes = blockBytes
	}
}

// CheckThresholds reports whether any flush limit has been reached.
func (s *Set) CheckThresholds(t Thresholds) bool {
	return s.maxBlockRows >= t.MaxBlockRows || s.maxBlockBytes >= t.MaxBlockBytes ||
		s.totalBlocksRows >= t.MaxTotalRows || s.totalBlocksBytes >= t.MaxTotalBytes
}

func (s *Set) reset() {
	s.data = map[string]*TableBuffer{}
	s.maxBlockRows = 0
	s.maxBlockBytes = 0
	s.totalBlocksRows = 0
	s.totalBlocksBytes = 0
}

// Commit copies every pending block into its target table, trailers
// included, then clears the set. Buffers are discarded even when a sink
// fails; the enclosing metadata transaction keeps position and rows atomic.
func (s *Set) Commit(store target.ITarget) error {
	defer s.reset()

	for table, buf := range s.data {
		if err := s.commitTable(store, table, buf); err != nil {
			return errors.Annotatef(err, "flush table %s.%s", s.database, table)
		}
	}
	return nil
}

func (s *Set) commitTable(store target.ITarget, table string, buf *TableBuffer) error {
	sink, err := store.OpenSink(s.database, table, true)
	if err != nil {
		return errors.Trace(err)
	}
	if err := sink.WriteBlock(buf.Block); err != nil {
		_ = sink.Close()
		return errors.Trace(err)
	}
	return errors.Trace(sink.Close())
}
