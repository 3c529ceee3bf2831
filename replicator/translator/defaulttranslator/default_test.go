package defaulttranslator

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
	"github.com/tsywkGo/go-mysql-materialize/replicator/translator"
)

func TestTranslateCreateTable(t *testing.T) {
	tr := New()

	ddls, err := tr.Translate("shop", `CREATE TABLE orders (
		id BIGINT UNSIGNED NOT NULL,
		qty MEDIUMINT,
		price DOUBLE NOT NULL,
		code CHAR(8),
		note VARCHAR(255),
		created DATETIME,
		PRIMARY KEY (id)
	)`)
	require.NoError(t, err)
	require.Len(t, ddls, 1)

	ddl := ddls[0]
	require.Equal(t, "shop", ddl.Schema)
	require.Equal(t, target.DDLCreate, ddl.Op)
	require.Equal(t, "orders", ddl.Table.Name)
	require.Equal(t, []string{"id"}, ddl.Table.SortingKey)

	columns := ddl.Table.Columns
	require.Len(t, columns, 6)
	require.Equal(t, block.ColumnDef{Name: "id", Kind: block.KindUInt64}, columns[0])
	require.Equal(t, block.ColumnDef{Name: "qty", Kind: block.KindInt32, Nullable: true}, columns[1])
	require.Equal(t, block.ColumnDef{Name: "price", Kind: block.KindFloat64}, columns[2])
	require.Equal(t, block.ColumnDef{Name: "code", Kind: block.KindFixedString, Nullable: true, Size: 8}, columns[3])
	require.Equal(t, block.ColumnDef{Name: "note", Kind: block.KindString, Nullable: true}, columns[4])
	require.Equal(t, block.ColumnDef{Name: "created", Kind: block.KindString, Nullable: true}, columns[5])
}

func TestTranslateCreateTableColumnPrimaryKey(t *testing.T) {
	tr := New()

	ddls, err := tr.Translate("shop", "CREATE TABLE t (id INT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	require.Len(t, ddls, 1)
	require.Equal(t, []string{"id"}, ddls[0].Table.SortingKey)
	require.False(t, ddls[0].Table.Columns[0].Nullable)
}

func TestTranslateCreateTableWithoutPrimaryKey(t *testing.T) {
	tr := New()

	_, err := tr.Translate("shop", "CREATE TABLE t (v INT)")
	require.Error(t, err)
	require.NotEqual(t, translator.ErrDDLSyntax, errors.Cause(err))
}

func TestTranslateQualifiedSchema(t *testing.T) {
	tr := New()

	ddls, err := tr.Translate("shop", "DROP TABLE other.t1, t2")
	require.NoError(t, err)
	require.Len(t, ddls, 2)
	require.Equal(t, "other", ddls[0].Schema)
	require.Equal(t, "t1", ddls[0].Name)
	require.Equal(t, "shop", ddls[1].Schema)
	require.Equal(t, "t2", ddls[1].Name)
}

func TestTranslateTruncate(t *testing.T) {
	tr := New()

	ddls, err := tr.Translate("shop", "TRUNCATE TABLE orders")
	require.NoError(t, err)
	require.Len(t, ddls, 1)
	require.Equal(t, target.DDLTruncate, ddls[0].Op)
	require.Equal(t, "orders", ddls[0].Name)
}

func TestTranslateRename(t *testing.T) {
	tr := New()

	ddls, err := tr.Translate("shop", "RENAME TABLE orders TO orders_v2")
	require.NoError(t, err)
	require.Len(t, ddls, 1)
	require.Equal(t, target.DDLRename, ddls[0].Op)
	require.Equal(t, "orders", ddls[0].Name)
	require.Equal(t, "orders_v2", ddls[0].NewName)
}

func TestTranslateCrossSchemaRename(t *testing.T) {
	tr := New()

	_, err := tr.Translate("shop", "RENAME TABLE orders TO archive.orders")
	require.Error(t, err)
	require.Equal(t, translator.ErrDDLSyntax, errors.Cause(err))
}

func TestTranslateAlterUnsupported(t *testing.T) {
	tr := New()

	_, err := tr.Translate("shop", "ALTER TABLE orders ADD COLUMN extra INT")
	require.Error(t, err)
	require.Equal(t, translator.ErrDDLSyntax, errors.Cause(err))
}

func TestTranslateNonDDL(t *testing.T) {
	tr := New()

	ddls, err := tr.Translate("shop", "BEGIN")
	require.NoError(t, err)
	require.Empty(t, ddls)
}

func TestTranslateGarbage(t *testing.T) {
	tr := New()

	_, err := tr.Translate("shop", "NOT A STATEMENT AT ALL")
	require.Error(t, err)
	require.Equal(t, translator.ErrDDLSyntax, errors.Cause(err))
}
