package defaulttranslator

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/model"
	"github.com/pingcap/parser/mysql"

	"github.com/tsywkGo/go-mysql-materialize/replicator/block"
	"github.com/tsywkGo/go-mysql-materialize/replicator/target"
	"github.com/tsywkGo/go-mysql-materialize/replicator/translator"
)

// Translator parses binlog query events with the TiDB SQL parser and maps
// the schema statements onto target operations.
type Translator struct {
	parser *parser.Parser
}

func New() *Translator {
	return &Translator{parser: parser.New()}
}

func (t *Translator) Translate(defaultSchema, query string) ([]*target.DDL, error) {
	stmts, _, err := t.parser.Parse(query, "", "")
	if err != nil {
		return nil, errors.Annotatef(translator.ErrDDLSyntax, "parse %q: %s", query, err)
	}

	var ddls []*target.DDL
	for _, stmt := range stmts {
		parsed, err := translateStmt(defaultSchema, stmt)
		if err != nil {
			return nil, errors.Trace(err)
		}
		ddls = append(ddls, parsed...)
	}
	return ddls, nil
}

func translateStmt(defaultSchema string, stmt ast.StmtNode) ([]*target.DDL, error) {
	switch s := stmt.(type) {
	case *ast.CreateTableStmt:
		ddl, err := translateCreate(defaultSchema, s)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return []*target.DDL{ddl}, nil
	case *ast.DropTableStmt:
		if s.IsView {
			return nil, nil
		}
		ddls := make([]*target.DDL, 0, len(s.Tables))
		for _, table := range s.Tables {
			ddls = append(ddls, &target.DDL{
				Schema: schemaOf(table.Schema, defaultSchema),
				Op:     target.DDLDrop,
				Name:   table.Name.String(),
			})
		}
		return ddls, nil
	case *ast.TruncateTableStmt:
		return []*target.DDL{{
			Schema: schemaOf(s.Table.Schema, defaultSchema),
			Op:     target.DDLTruncate,
			Name:   s.Table.Name.String(),
		}}, nil
	case *ast.RenameTableStmt:
		ddls := make([]*target.DDL, 0, len(s.TableToTables))
		for _, pair := range s.TableToTables {
			oldSchema := schemaOf(pair.OldTable.Schema, defaultSchema)
			newSchema := schemaOf(pair.NewTable.Schema, defaultSchema)
			if oldSchema != newSchema {
				return nil, errors.Annotatef(translator.ErrDDLSyntax,
					"cross schema rename %s.%s to %s.%s",
					oldSchema, pair.OldTable.Name, newSchema, pair.NewTable.Name)
			}
			ddls = append(ddls, &target.DDL{
				Schema:  oldSchema,
				Op:      target.DDLRename,
				Name:    pair.OldTable.Name.String(),
				NewName: pair.NewTable.Name.String(),
			})
		}
		return ddls, nil
	case *ast.AlterTableStmt:
		return nil, errors.Annotatef(translator.ErrDDLSyntax,
			"alter table %s", s.Table.Name)
	default:
		// BEGIN, DML, grants and the like carry no schema effect.
		return nil, nil
	}
}

func translateCreate(defaultSchema string, stmt *ast.CreateTableStmt) (*target.DDL, error) {
	if stmt.ReferTable != nil || stmt.Select != nil {
		return nil, errors.Annotatef(translator.ErrDDLSyntax,
			"create table %s from another table", stmt.Table.Name)
	}

	table := &target.Table{
		Database: schemaOf(stmt.Table.Schema, defaultSchema),
		Name:     stmt.Table.Name.String(),
	}

	primary := map[string]bool{}
	for _, constraint := range stmt.Constraints {
		if constraint.Tp != ast.ConstraintPrimaryKey {
			continue
		}
		for _, key := range constraint.Keys {
			name := key.Column.Name.String()
			primary[name] = true
			table.SortingKey = append(table.SortingKey, name)
		}
	}

	for _, col := range stmt.Cols {
		name := col.Name.Name.String()
		def, err := columnDef(name, col)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, option := range col.Options {
			if option.Tp == ast.ColumnOptionPrimaryKey && !primary[name] {
				primary[name] = true
				table.SortingKey = append(table.SortingKey, name)
			}
		}
		if primary[name] {
			def.Nullable = false
		}
		table.Columns = append(table.Columns, def)
	}

	if len(table.SortingKey) == 0 {
		return nil, errors.Errorf("table %s.%s has no primary key", table.Database, table.Name)
	}

	return &target.DDL{Schema: table.Database, Op: target.DDLCreate, Table: table}, nil
}

func columnDef(name string, col *ast.ColumnDef) (block.ColumnDef, error) {
	def := block.ColumnDef{Name: name, Nullable: true}
	for _, option := range col.Options {
		if option.Tp == ast.ColumnOptionNotNull {
			def.Nullable = false
		}
	}

	unsigned := mysql.HasUnsignedFlag(col.Tp.Flag)
	switch col.Tp.Tp {
	case mysql.TypeTiny:
		def.Kind = pick(unsigned, block.KindUInt8, block.KindInt8)
	case mysql.TypeShort:
		def.Kind = pick(unsigned, block.KindUInt16, block.KindInt16)
	case mysql.TypeInt24, mysql.TypeLong:
		def.Kind = pick(unsigned, block.KindUInt32, block.KindInt32)
	case mysql.TypeLonglong:
		def.Kind = pick(unsigned, block.KindUInt64, block.KindInt64)
	case mysql.TypeFloat:
		def.Kind = block.KindFloat32
	case mysql.TypeDouble:
		def.Kind = block.KindFloat64
	case mysql.TypeString:
		def.Kind = block.KindFixedString
		def.Size = col.Tp.Flen
		if def.Size <= 0 {
			def.Size = 1
		}
	case mysql.TypeVarchar, mysql.TypeVarString,
		mysql.TypeTinyBlob, mysql.TypeBlob, mysql.TypeMediumBlob, mysql.TypeLongBlob,
		mysql.TypeEnum, mysql.TypeSet, mysql.TypeJSON,
		mysql.TypeDecimal, mysql.TypeNewDecimal,
		mysql.TypeDate, mysql.TypeDatetime, mysql.TypeTimestamp, mysql.TypeDuration, mysql.TypeYear:
		def.Kind = block.KindString
	default:
		return def, errors.Annotatef(translator.ErrDDLSyntax,
			"column %s has unsupported type %s", name, col.Tp.String())
	}
	return def, nil
}

func pick(unsigned bool, u, s block.Kind) block.Kind {
	if unsigned {
		return u
	}
	return s
}

func schemaOf(schema model.CIStr, defaultSchema string) string {
	if schema.String() == "" {
		return defaultSchema
	}
	return schema.String()
}
