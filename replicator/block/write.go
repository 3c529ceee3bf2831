package block

import (
	"github.com/pingcap/errors"
)

var (
	ErrUnsupportedType  = errors.New("unsupported data type from MySQL")
	ErrLogicalInvariant = errors.New("logical invariant violated")
)

// writeFields appends the index-th field of every row to column. An empty
// mask means every row is writable; otherwise only rows whose mask bit is set
// are materialized. Nullable columns route null fields into the null map and
// a default placeholder in the nested column.
func writeFields(column Column, rows [][]interface{}, index int, mask []bool) error {
	nullable, _ := column.(*NullableColumn)
	target := column
	if nullable != nil {
		target = nullable.Inner
	}

	// Reports whether the value should reach the concrete column. Null
	// handling and masking happen here so the per-variant loops below stay
	// free of it.
	writable := func(value interface{}, row int) bool {
		if len(mask) != 0 && !mask[row] {
			return false
		}
		if nullable == nil {
			return true
		}
		if value == nil {
			nullable.appendDefault()
			return false
		}
		nullable.NullMap = append(nullable.NullMap, 0)
		return true
	}

	switch casted := target.(type) {
	case *Int8Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into Int8", value)
			}
			casted.Data = append(casted.Data, int8(v))
		}
	case *Int16Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into Int16", value)
			}
			casted.Data = append(casted.Data, int16(v))
		}
	case *Int32Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			switch v := value.(type) {
			case uint64:
				casted.Data = append(casted.Data, int32(v))
			case int64:
				// MEDIUMINT arrives as a signed 24 bit pattern.
				num := int32(v)
				if num&0x800000 != 0 {
					num |= -0x1000000
				}
				casted.Data = append(casted.Data, num)
			default:
				return errors.Annotatef(ErrUnsupportedType, "%T into Int32", value)
			}
		}
	case *Int64Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into Int64", value)
			}
			casted.Data = append(casted.Data, int64(v))
		}
	case *UInt8Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into UInt8", value)
			}
			casted.Data = append(casted.Data, uint8(v))
		}
	case *UInt16Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into UInt16", value)
			}
			casted.Data = append(casted.Data, uint16(v))
		}
	case *UInt32Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into UInt32", value)
			}
			casted.Data = append(casted.Data, uint32(v))
		}
	case *UInt64Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(uint64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into UInt64", value)
			}
			casted.Data = append(casted.Data, v)
		}
	case *Float32Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(float64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into Float32", value)
			}
			casted.Data = append(casted.Data, float32(v))
		}
	case *Float64Column:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.(float64)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into Float64", value)
			}
			casted.Data = append(casted.Data, v)
		}
	case *StringColumn:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.([]byte)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into String", value)
			}
			casted.append(v)
		}
	case *FixedStringColumn:
		for row := range rows {
			value := rows[row][index]
			if !writable(value, row) {
				continue
			}
			v, ok := value.([]byte)
			if !ok {
				return errors.Annotatef(ErrUnsupportedType, "%T into FixedString", value)
			}
			casted.append(v)
		}
	default:
		return errors.Annotatef(ErrUnsupportedType, "column %T", target)
	}
	return nil
}
