package block

import (
	"bytes"

	"github.com/pingcap/errors"
)

// Names of the materialized trailer columns every target table carries.
const (
	SignColumnName    = "_sign"
	VersionColumnName = "_version"
)

// Block is a set of append-only columns sharing row count. Buffer blocks
// carry two trailer columns (sign, version) after the user columns; dump
// blocks carry user columns only.
type Block struct {
	Defs    []ColumnDef
	Columns []Column

	trailers bool
}

// NewBlock builds a block over exactly the given user columns.
func NewBlock(defs []ColumnDef) *Block {
	b := &Block{Defs: make([]ColumnDef, len(defs)), Columns: make([]Column, len(defs))}
	copy(b.Defs, defs)
	for i, def := range defs {
		b.Columns[i] = NewColumn(def)
	}
	return b
}

// NewBufferBlock builds a block over the user columns plus the sign and
// version trailers.
func NewBufferBlock(defs []ColumnDef) *Block {
	all := make([]ColumnDef, 0, len(defs)+2)
	all = append(all, defs...)
	all = append(all,
		ColumnDef{Name: SignColumnName, Kind: KindInt8},
		ColumnDef{Name: VersionColumnName, Kind: KindUInt64},
	)
	b := NewBlock(all)
	b.trailers = true
	return b
}

// HasTrailers reports whether the block carries the sign/version columns.
func (b *Block) HasTrailers() bool { return b.trailers }

func (b *Block) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[len(b.Columns)-1].Rows()
}

func (b *Block) Bytes() int {
	total := 0
	for _, column := range b.Columns {
		total += column.Bytes()
	}
	return total
}

// ColumnIndex returns the position of the named column, or -1.
func (b *Block) ColumnIndex(name string) int {
	for i, def := range b.Defs {
		if def.Name == name {
			return i
		}
	}
	return -1
}

func (b *Block) userColumns() int {
	if b.trailers {
		return len(b.Columns) - 2
	}
	return len(b.Columns)
}

func (b *Block) signColumn() *Int8Column {
	return b.Columns[len(b.Columns)-2].(*Int8Column)
}

func (b *Block) versionColumn() *UInt64Column {
	return b.Columns[len(b.Columns)-1].(*UInt64Column)
}

func (b *Block) fillSignAndVersion(sign int8, version uint64, size int) {
	signColumn, versionColumn := b.signColumn(), b.versionColumn()
	for i := 0; i < size; i++ {
		signColumn.Data = append(signColumn.Data, sign)
		versionColumn.Data = append(versionColumn.Data, version)
	}
}

// AppendPlain appends rows into a trailer-less block, one field per column.
// Used by the snapshot dump path.
func (b *Block) AppendPlain(rows [][]interface{}) error {
	for column := 0; column < len(b.Columns); column++ {
		if err := writeFields(b.Columns[column], rows, column, nil); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// WriteRows appends every row with the given sign and version. Returns the
// byte growth of the block.
func (b *Block) WriteRows(rows [][]interface{}, sign int8, version uint64) (int, error) {
	prevBytes := b.Bytes()
	for column := 0; column < b.userColumns(); column++ {
		if err := writeFields(b.Columns[column], rows, column, nil); err != nil {
			return 0, errors.Trace(err)
		}
	}
	b.fillSignAndVersion(sign, version, len(rows))
	return b.Bytes() - prevBytes, nil
}

// WriteUpdateRows appends update pairs: even indexes are pre images, odd
// indexes post images. The post image is always materialized with sign +1;
// the pre image is materialized with sign -1 only when a sorting key column
// changed within its pair. Both rows of a changed pair share the version.
func (b *Block) WriteUpdateRows(rows [][]interface{}, version uint64, sortingIndexes []int) (int, error) {
	if len(rows)%2 != 0 {
		return 0, errors.Annotatef(ErrLogicalInvariant, "update event with %d row images", len(rows))
	}

	prevBytes := b.Bytes()
	mask := make([]bool, len(rows))
	for index := 0; index < len(rows); index += 2 {
		mask[index+1] = true
		mask[index] = differenceSortingKeys(rows[index], rows[index+1], sortingIndexes)
	}

	for column := 0; column < b.userColumns(); column++ {
		if err := writeFields(b.Columns[column], rows, column, mask); err != nil {
			return 0, errors.Trace(err)
		}
	}

	signColumn, versionColumn := b.signColumn(), b.versionColumn()
	for index := 0; index < len(rows); index += 2 {
		if !mask[index] {
			signColumn.Data = append(signColumn.Data, 1)
			versionColumn.Data = append(versionColumn.Data, version)
		} else {
			// The old sorting key must be cancelled before the new one
			// appears; both carry the same version.
			signColumn.Data = append(signColumn.Data, -1, 1)
			versionColumn.Data = append(versionColumn.Data, version, version)
		}
	}
	return b.Bytes() - prevBytes, nil
}

func differenceSortingKeys(oldRow, newRow []interface{}, sortingIndexes []int) bool {
	for _, index := range sortingIndexes {
		if fieldsDiffer(oldRow[index], newRow[index]) {
			return true
		}
	}
	return false
}

func fieldsDiffer(a, b interface{}) bool {
	if a == nil || b == nil {
		return !(a == nil && b == nil)
	}
	if av, ok := a.([]byte); ok {
		bv, ok := b.([]byte)
		return !ok || !bytes.Equal(av, bv)
	}
	return a != b
}
