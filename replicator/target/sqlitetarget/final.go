package sqlitetarget

import (
	"fmt"
	"strings"

	"github.com/pingcap/errors"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
)

// FinalRows collapses the append-only table into its visible state: for each
// sorting key the row with the highest version wins, and a winner with a
// negative sign means the key is deleted. Rows come back in sorting key order
// with the trailers stripped.
func (s *Store) FinalRows(database, table string) ([][]interface{}, error) {
	spec, err := s.GetTable(database, table)
	if err != nil {
		return nil, errors.Trace(err)
	}
	sortingIndexes, err := spec.SortingIndexes()
	if err != nil {
		return nil, errors.Trace(err)
	}

	names := make([]string, 0, len(spec.Columns)+2)
	for _, def := range spec.Columns {
		names = append(names, quoteIdent(def.Name))
	}
	names = append(names, quoteIdent(block.SignColumnName), quoteIdent(block.VersionColumnName))

	orderKey := make([]string, 0, len(spec.SortingKey)+1)
	for _, name := range spec.SortingKey {
		orderKey = append(orderKey, quoteIdent(name))
	}
	orderKey = append(orderKey, quoteIdent(block.VersionColumnName))

	statement := "SELECT " + strings.Join(names, ", ") + " FROM " + physicalName(database, table) +
		" ORDER BY " + strings.Join(orderKey, ", ")
	rows, err := s.db.Query(statement)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer rows.Close()

	width := len(spec.Columns)
	type winner struct {
		fields []interface{}
		sign   int64
	}
	winners := make(map[string]*winner)
	var order []string

	for rows.Next() {
		scanned := make([]interface{}, width+2)
		dest := make([]interface{}, width+2)
		for i := range scanned {
			dest[i] = &scanned[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Trace(err)
		}

		sign, err := asInt(scanned[width])
		if err != nil {
			return nil, errors.Trace(err)
		}

		key := encodeSortingKey(scanned[:width], sortingIndexes)
		existing, ok := winners[key]
		if !ok {
			order = append(order, key)
			existing = new(winner)
			winners[key] = existing
		}
		// Rows arrive version ascending, so the last one per key wins.
		existing.fields = scanned[:width]
		existing.sign = sign
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	final := make([][]interface{}, 0, len(order))
	for _, key := range order {
		if w := winners[key]; w.sign > 0 {
			final = append(final, w.fields)
		}
	}
	return final, nil
}

func encodeSortingKey(fields []interface{}, indexes []int) string {
	parts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		parts = append(parts, fmt.Sprintf("%v", fields[i]))
	}
	return strings.Join(parts, "\x00")
}

func asInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, errors.Errorf("sign column holds %T", value)
	}
}
