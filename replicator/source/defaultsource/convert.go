package defaultsource

import (
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/siddontang/go/hack"
)

// canonicalRow rewrites decoded binlog values into the forms the column
// writers expect: integer bit patterns as uint64, 24 bit integers as int64
// (they still need sign extension downstream), floats as float64, strings
// as []byte and NULL as nil.
func canonicalRow(row []interface{}, columnTypes []byte) []interface{} {
	canonical := make([]interface{}, len(row))
	for i, value := range row {
		columnType := byte(0)
		if i < len(columnTypes) {
			columnType = columnTypes[i]
		}
		canonical[i] = canonicalField(value, columnType)
	}
	return canonical
}

func canonicalField(value interface{}, columnType byte) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case int8:
		return signedField(int64(v), columnType)
	case int16:
		return signedField(int64(v), columnType)
	case int32:
		return signedField(int64(v), columnType)
	case int64:
		return signedField(v, columnType)
	case int:
		return signedField(int64(v), columnType)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case uint:
		return uint64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	case string:
		return hack.Slice(v)
	case []byte:
		return v
	case time.Time:
		return hack.Slice(v.Format("2006-01-02 15:04:05"))
	default:
		// Left as is; the column writer rejects it as unsupported.
		return value
	}
}

func signedField(v int64, columnType byte) interface{} {
	// MEDIUMINT keeps its own variant so the writer can apply 24 bit sign
	// extension; every other signed integer travels as a bit pattern.
	if columnType == mysql.MYSQL_TYPE_INT24 {
		return v
	}
	return uint64(v)
}
