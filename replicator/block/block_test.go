package block

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"
)

func testDefs() []ColumnDef {
	return []ColumnDef{
		{Name: "id", Kind: KindInt32},
		{Name: "name", Kind: KindString, Nullable: true},
	}
}

func TestWriteRowsSignAndVersion(t *testing.T) {
	b := NewBufferBlock(testDefs())

	grown, err := b.WriteRows([][]interface{}{
		{uint64(1), []byte("alpha")},
		{uint64(2), []byte("beta")},
	}, 1, 7)
	require.NoError(t, err)
	require.True(t, grown > 0)
	require.Equal(t, 2, b.Rows())

	signs := b.Columns[b.ColumnIndex(SignColumnName)].(*Int8Column)
	versions := b.Columns[b.ColumnIndex(VersionColumnName)].(*UInt64Column)
	require.Equal(t, []int8{1, 1}, signs.Data)
	require.Equal(t, []uint64{7, 7}, versions.Data)

	_, err = b.WriteRows([][]interface{}{{uint64(3), []byte("gamma")}}, -1, 8)
	require.NoError(t, err)
	require.Equal(t, []int8{1, 1, -1}, signs.Data)
	require.Equal(t, []uint64{7, 7, 8}, versions.Data)
}

func TestWriteRowsMediumIntSignExtension(t *testing.T) {
	b := NewBufferBlock([]ColumnDef{{Name: "v", Kind: KindInt32}})

	// A 24 bit pattern with the sign bit set must extend to a negative
	// 32 bit value, while plain 32 bit patterns pass through untouched.
	_, err := b.WriteRows([][]interface{}{
		{int64(0x800000)},
		{int64(0x7FFFFF)},
		{uint64(0x80000000)},
	}, 1, 1)
	require.NoError(t, err)

	values := b.Columns[0].(*Int32Column)
	require.Equal(t, []int32{-8388608, 8388607, -2147483648}, values.Data)
}

func TestWriteRowsNullable(t *testing.T) {
	b := NewBufferBlock(testDefs())

	_, err := b.WriteRows([][]interface{}{
		{uint64(1), nil},
		{uint64(2), []byte("x")},
	}, 1, 1)
	require.NoError(t, err)

	column := b.Columns[1].(*NullableColumn)
	require.Equal(t, []uint8{1, 0}, column.NullMap)
	require.Equal(t, 2, column.Rows())
	require.Nil(t, column.Field(0))
	require.Equal(t, []byte("x"), column.Field(1))
}

func TestWriteRowsUnsupportedType(t *testing.T) {
	b := NewBufferBlock(testDefs())

	_, err := b.WriteRows([][]interface{}{{"not canonical", []byte("x")}}, 1, 1)
	require.Error(t, err)
	require.Equal(t, ErrUnsupportedType, errors.Cause(err))
}

func TestWriteUpdateRowsKeptSortingKey(t *testing.T) {
	b := NewBufferBlock(testDefs())

	// Pre and post image share id, so only the post image materializes.
	_, err := b.WriteUpdateRows([][]interface{}{
		{uint64(1), []byte("old")},
		{uint64(1), []byte("new")},
	}, 5, []int{0})
	require.NoError(t, err)
	require.Equal(t, 1, b.Rows())

	names := b.Columns[1].(*NullableColumn).Inner.(*StringColumn)
	require.Equal(t, [][]byte{[]byte("new")}, names.Data)
	require.Equal(t, []int8{1}, b.Columns[2].(*Int8Column).Data)
	require.Equal(t, []uint64{5}, b.Columns[3].(*UInt64Column).Data)
}

func TestWriteUpdateRowsChangedSortingKey(t *testing.T) {
	b := NewBufferBlock(testDefs())

	_, err := b.WriteUpdateRows([][]interface{}{
		{uint64(1), []byte("row")},
		{uint64(2), []byte("row")},
	}, 9, []int{0})
	require.NoError(t, err)
	require.Equal(t, 2, b.Rows())

	ids := b.Columns[0].(*Int32Column)
	require.Equal(t, []int32{1, 2}, ids.Data)
	require.Equal(t, []int8{-1, 1}, b.Columns[2].(*Int8Column).Data)
	require.Equal(t, []uint64{9, 9}, b.Columns[3].(*UInt64Column).Data)
}

func TestWriteUpdateRowsOddImages(t *testing.T) {
	b := NewBufferBlock(testDefs())

	_, err := b.WriteUpdateRows([][]interface{}{{uint64(1), []byte("x")}}, 1, []int{0})
	require.Error(t, err)
	require.Equal(t, ErrLogicalInvariant, errors.Cause(err))
}

func TestAppendPlainDumpBlock(t *testing.T) {
	b := NewBlock(testDefs())
	require.False(t, b.HasTrailers())

	require.NoError(t, b.AppendPlain([][]interface{}{
		{uint64(10), []byte("a")},
		{uint64(11), nil},
	}))
	require.Equal(t, 2, b.Rows())
	require.Equal(t, []int32{10, 11}, b.Columns[0].(*Int32Column).Data)
}

func TestFixedStringPadding(t *testing.T) {
	b := NewBufferBlock([]ColumnDef{{Name: "code", Kind: KindFixedString, Size: 4}})

	_, err := b.WriteRows([][]interface{}{
		{[]byte("ab")},
		{[]byte("abcdef")},
	}, 1, 1)
	require.NoError(t, err)

	codes := b.Columns[0].(*FixedStringColumn)
	require.Equal(t, []byte{'a', 'b', 0, 0}, codes.Data[0])
	require.Equal(t, []byte("abcd"), codes.Data[1])
}
