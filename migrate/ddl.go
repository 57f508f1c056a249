// Package migrate provides the schema layer: DDL generation from entity
// descriptors, a versioned migration runner with batch bookkeeping, and
// migration file emission for external tooling.
package migrate

import (
	"fmt"
	"strings"

	"github.com/syssam/strata"
	"github.com/syssam/strata/dialect"
	"github.com/syssam/strata/schema/field"
)

// Table is the DDL-level model of one entity table.
type Table struct {
	Name       string
	Columns    []*Column
	PrimaryKey string
}

// Column is the DDL-level model of one table column.
type Column struct {
	Name      string
	Type      field.Type
	Nullable  bool
	Unique    bool
	Size      int
	Enums     []string
	RefTable  string
	RefColumn string
}

// TableOf builds the table model of an entity descriptor. Every declared
// field maps to one column; foreign-key fields carry their reference so
// the emitted DDL declares the constraint.
func TableOf(desc *strata.EntityDescriptor) *Table {
	t := &Table{Name: desc.Table, PrimaryKey: desc.PrimaryKey}
	for _, fd := range desc.Fields {
		t.Columns = append(t.Columns, &Column{
			Name:      fd.Name,
			Type:      fd.Type,
			Nullable:  fd.Nullable,
			Unique:    fd.Unique,
			Size:      fd.Size,
			Enums:     fd.Values,
			RefTable:  fd.RefTable,
			RefColumn: fd.RefColumn,
		})
	}
	return t
}

// CreateSQL returns the CREATE TABLE statement for the given dialect.
func (t *Table) CreateSQL(d string) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quote(d, t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.ddl(d, c.Name == t.PrimaryKey))
	}
	for _, c := range t.Columns {
		if c.RefTable == "" {
			continue
		}
		fmt.Fprintf(&b, ", FOREIGN KEY (%s) REFERENCES %s (%s)",
			quote(d, c.Name), quote(d, c.RefTable), quote(d, c.RefColumn))
	}
	b.WriteString(")")
	return b.String()
}

// DropSQL returns the DROP TABLE statement for the given dialect.
func (t *Table) DropSQL(d string) string {
	return "DROP TABLE IF EXISTS " + quote(d, t.Name)
}

// ddl renders one column definition.
func (c *Column) ddl(d string, pk bool) string {
	var b strings.Builder
	b.WriteString(quote(d, c.Name))
	b.WriteByte(' ')
	if pk && c.Type == field.TypeInt {
		// Auto-increment integer primary keys are dialect-specific.
		switch d {
		case dialect.Postgres:
			b.WriteString("bigserial PRIMARY KEY")
		case dialect.MySQL:
			b.WriteString("bigint NOT NULL AUTO_INCREMENT PRIMARY KEY")
		default:
			b.WriteString("integer PRIMARY KEY AUTOINCREMENT")
		}
		return b.String()
	}
	b.WriteString(c.columnType(d))
	if pk {
		b.WriteString(" PRIMARY KEY")
	} else if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Unique && !pk {
		b.WriteString(" UNIQUE")
	}
	if len(c.Enums) > 0 && d != dialect.MySQL {
		fmt.Fprintf(&b, " CHECK (%s IN (%s))", quote(d, c.Name), enumList(c.Enums))
	}
	return b.String()
}

// columnType maps a field type onto the dialect column type.
func (c *Column) columnType(d string) string {
	switch c.Type {
	case field.TypeString:
		size := c.Size
		if size == 0 {
			size = 255
		}
		if d == dialect.SQLite {
			return "text"
		}
		return fmt.Sprintf("varchar(%d)", size)
	case field.TypeText:
		return "text"
	case field.TypeInt:
		if d == dialect.SQLite {
			return "integer"
		}
		return "bigint"
	case field.TypeFloat:
		switch d {
		case dialect.Postgres:
			return "double precision"
		case dialect.MySQL:
			return "double"
		default:
			return "real"
		}
	case field.TypeBool:
		if d == dialect.SQLite {
			return "integer"
		}
		return "boolean"
	case field.TypeTime:
		switch d {
		case dialect.Postgres:
			return "timestamptz"
		case dialect.MySQL:
			return "datetime"
		default:
			return "datetime"
		}
	case field.TypeEnum:
		if d == dialect.MySQL {
			return "enum(" + enumList(c.Enums) + ")"
		}
		return "varchar(255)"
	case field.TypeJSON:
		switch d {
		case dialect.Postgres:
			return "jsonb"
		case dialect.MySQL:
			return "json"
		default:
			return "text"
		}
	case field.TypeUUID:
		switch d {
		case dialect.Postgres:
			return "uuid"
		case dialect.MySQL:
			return "char(36)"
		default:
			return "text"
		}
	default:
		return "text"
	}
}

func enumList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return strings.Join(quoted, ", ")
}

func quote(d, ident string) string {
	if d == dialect.MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}
