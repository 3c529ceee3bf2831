package defaultsource

import (
	"testing"
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/stretchr/testify/require"
)

func TestCanonicalRow(t *testing.T) {
	when := time.Date(2021, 7, 1, 12, 30, 0, 0, time.UTC)

	row := canonicalRow(
		[]interface{}{int32(-5), uint16(7), float32(1.5), "text", nil, when},
		[]byte{
			mysql.MYSQL_TYPE_LONG,
			mysql.MYSQL_TYPE_SHORT,
			mysql.MYSQL_TYPE_FLOAT,
			mysql.MYSQL_TYPE_VARCHAR,
			mysql.MYSQL_TYPE_VARCHAR,
			mysql.MYSQL_TYPE_DATETIME,
		},
	)

	require.Equal(t, uint64(0xFFFFFFFFFFFFFFFB), row[0])
	require.Equal(t, uint64(7), row[1])
	require.Equal(t, float64(1.5), row[2])
	require.Equal(t, []byte("text"), row[3])
	require.Nil(t, row[4])
	require.Equal(t, []byte("2021-07-01 12:30:00"), row[5])
}

func TestCanonicalFieldMediumIntStaysSigned(t *testing.T) {
	require.Equal(t, int64(-3), canonicalField(int32(-3), mysql.MYSQL_TYPE_INT24))
	require.Equal(t, uint64(3), canonicalField(uint32(3), mysql.MYSQL_TYPE_INT24))
}

func TestCanonicalRowMissingColumnTypes(t *testing.T) {
	row := canonicalRow([]interface{}{int64(1), int64(2)}, []byte{mysql.MYSQL_TYPE_LONGLONG})
	require.Equal(t, uint64(1), row[0])
	require.Equal(t, uint64(2), row[1])
}
