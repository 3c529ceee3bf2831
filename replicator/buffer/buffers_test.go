package buffer

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
)

type fakeStore struct {
	tables  map[string]*target.Table
	written map[string][]*block.Block
	failing bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables: map[string]*target.Table{
			"orders": {
				Database:   "shop",
				Name:       "orders",
				Columns:    []block.ColumnDef{{Name: "id", Kind: block.KindUInt64}},
				SortingKey: []string{"id"},
			},
		},
		written: map[string][]*block.Block{},
	}
}

func (s *fakeStore) ApplyDDL(string, *target.DDL) error { return nil }

func (s *fakeStore) GetTable(_, table string) (*target.Table, error) {
	desc, ok := s.tables[table]
	if !ok {
		return nil, errors.Errorf("no table %s", table)
	}
	return desc, nil
}

func (s *fakeStore) Tables(string) ([]string, error)  { return nil, nil }
func (s *fakeStore) DropTable(_, table string) error  { return nil }
func (s *fakeStore) Guard(string) func()              { return func() {} }
func (s *fakeStore) Close() error                     { return nil }

func (s *fakeStore) OpenSink(_, table string, withTrailers bool) (target.ISink, error) {
	if s.failing {
		return nil, errors.New("sink unavailable")
	}
	return &fakeSink{store: s, table: table}, nil
}

type fakeSink struct {
	store *fakeStore
	table string
}

func (s *fakeSink) WriteBlock(b *block.Block) error {
	s.store.written[s.table] = append(s.store.written[s.table], b)
	return nil
}

func (s *fakeSink) Close() error { return nil }

func TestGetOrCreateBuildsBufferBlock(t *testing.T) {
	store := newFakeStore()
	set := NewSet("shop")

	buf, err := set.GetOrCreate(store, "orders")
	require.NoError(t, err)
	require.True(t, buf.Block.HasTrailers())
	require.Equal(t, []int{0}, buf.SortingIndexes)

	again, err := set.GetOrCreate(store, "orders")
	require.NoError(t, err)
	require.Same(t, buf, again)

	_, err = set.GetOrCreate(store, "missing")
	require.Error(t, err)
}

func TestThresholdsAccounting(t *testing.T) {
	set := NewSet("shop")
	limits := Thresholds{MaxBlockRows: 10, MaxBlockBytes: 1000, MaxTotalRows: 15, MaxTotalBytes: 1000}

	set.Add(5, 100, 5, 100)
	require.False(t, set.CheckThresholds(limits))

	// Per block maxima do not accumulate, totals do.
	set.Add(6, 120, 1, 20)
	require.False(t, set.CheckThresholds(limits))

	set.Add(6, 120, 9, 20)
	require.True(t, set.CheckThresholds(limits))
}

func TestThresholdsMaxBlockRows(t *testing.T) {
	set := NewSet("shop")
	limits := Thresholds{MaxBlockRows: 10, MaxBlockBytes: 1 << 20, MaxTotalRows: 1 << 20, MaxTotalBytes: 1 << 20}

	set.Add(10, 1, 10, 1)
	require.True(t, set.CheckThresholds(limits))
}

func TestCommitWritesAndClears(t *testing.T) {
	store := newFakeStore()
	set := NewSet("shop")

	buf, err := set.GetOrCreate(store, "orders")
	require.NoError(t, err)
	grown, err := buf.Block.WriteRows([][]interface{}{{uint64(1)}}, 1, 1)
	require.NoError(t, err)
	set.Add(buf.Block.Rows(), buf.Block.Bytes(), 1, grown)

	require.False(t, set.Empty())
	require.NoError(t, set.Commit(store))
	require.True(t, set.Empty())
	require.Len(t, store.written["orders"], 1)
	require.Equal(t, 1, store.written["orders"][0].Rows())
}

func TestCommitClearsOnFailure(t *testing.T) {
	store := newFakeStore()
	set := NewSet("shop")

	buf, err := set.GetOrCreate(store, "orders")
	require.NoError(t, err)
	_, err = buf.Block.WriteRows([][]interface{}{{uint64(1)}}, 1, 1)
	require.NoError(t, err)

	store.failing = true
	require.Error(t, set.Commit(store))
	require.True(t, set.Empty())
}
