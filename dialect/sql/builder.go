package sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/strata/dialect"
)

// Querier wraps the Query method. All statement builders implement it and
// return the statement text with its bound arguments. Argument values are
// always bound, never written into the statement text.
type Querier interface {
	Query() (string, []any)
}

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores,
// dots for table.column qualification).
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// Builder is the base statement writer shared by all builders. It holds the
// statement buffer, the bound arguments and the dialect used for identifier
// quoting and parameter placeholders.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
	errs    []error
}

// NewBuilder returns a Builder for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// WriteString appends s to the statement buffer.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// WriteByte appends c to the statement buffer.
func (b *Builder) WriteByte(c byte) *Builder {
	b.sb.WriteByte(c)
	return b
}

// Pad appends a single space.
func (b *Builder) Pad() *Builder { return b.WriteByte(' ') }

// Comma appends ", ".
func (b *Builder) Comma() *Builder { return b.WriteString(", ") }

// Quote quotes the given identifier for the builder dialect. Qualified
// identifiers ("table.column") are quoted part by part.
func (b *Builder) Quote(ident string) string {
	quote := `"`
	if b.dialect == dialect.MySQL {
		quote = "`"
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = quote + p + quote
	}
	return strings.Join(parts, ".")
}

// Ident appends the given identifier, quoted. Expressions (anything that is
// not a plain identifier, e.g. "COUNT(*)") are written as-is.
func (b *Builder) Ident(s string) *Builder {
	switch {
	case s == "*" || strings.ContainsAny(s, "()* "):
		b.WriteString(s)
	case isValidIdentifier(s):
		b.WriteString(b.Quote(s))
	default:
		b.AddError(fmt.Errorf("dialect/sql: invalid identifier %q", s))
	}
	return b
}

// Arg binds v as a statement argument and appends its placeholder.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.WriteByte('$').WriteString(strconv.Itoa(len(b.args)))
	} else {
		b.WriteByte('?')
	}
	return b
}

// Args binds all values as comma-separated placeholders.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.Comma()
		}
		b.Arg(v)
	}
	return b
}

// Wrap writes f's output surrounded by parentheses.
func (b *Builder) Wrap(f func(*Builder)) *Builder {
	b.WriteByte('(')
	f(b)
	return b.WriteByte(')')
}

// IdentComma appends all identifiers comma-separated.
func (b *Builder) IdentComma(ids ...string) *Builder {
	for i, id := range ids {
		if i > 0 {
			b.Comma()
		}
		b.Ident(id)
	}
	return b
}

// AddError records an error raised while building the statement.
func (b *Builder) AddError(err error) *Builder {
	b.errs = append(b.errs, err)
	return b
}

// Err returns the first error recorded during building, if any.
func (b *Builder) Err() error {
	if len(b.errs) == 0 {
		return nil
	}
	return b.errs[0]
}

// String returns the accumulated statement text.
func (b *Builder) String() string { return b.sb.String() }

// DialectBuilder is the entry point for building dialect-aware statements:
//
//	sql.Dialect(dialect.Postgres).
//		Select("id", "name").
//		From("users").
//		Where(sql.EQ("name", "a8m")).
//		Query()
type DialectBuilder struct {
	dialect string
}

// Dialect creates a new DialectBuilder for the given dialect.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a Selector for the given columns.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columns}
}

// Insert returns an InsertBuilder for the given table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update returns an UpdateBuilder for the given table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete returns a DeleteBuilder for the given table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

// Predicate is a composable WHERE fragment. Predicates are built from the
// package-level constructors (EQ, GT, In, And, Or, ...) and render
// themselves into the builder of the enclosing statement, so parameter
// placeholders stay correctly numbered across the whole statement.
type Predicate struct {
	fns []func(*Builder)
}

// P returns an empty predicate to append custom fragments to.
func P() *Predicate { return &Predicate{} }

// Append adds a rendering function to the predicate.
func (p *Predicate) Append(f func(*Builder)) *Predicate {
	p.fns = append(p.fns, f)
	return p
}

func (p *Predicate) render(b *Builder) {
	for _, f := range p.fns {
		f(b)
	}
}

// And combines the predicates with the AND operator.
func And(preds ...*Predicate) *Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return P().Append(func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.Wrap(p.render)
		}
	})
}

// Or combines the predicates with the OR operator.
func Or(preds ...*Predicate) *Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return P().Append(func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" OR ")
			}
			b.Wrap(p.render)
		}
	})
}

// Not negates the given predicate.
func Not(p *Predicate) *Predicate {
	return P().Append(func(b *Builder) {
		b.WriteString("NOT ")
		b.Wrap(p.render)
	})
}

func binary(col, op string, v any) *Predicate {
	return P().Append(func(b *Builder) {
		b.Ident(col).Pad().WriteString(op).Pad().Arg(v)
	})
}

// EQ returns a column = value predicate.
func EQ(col string, v any) *Predicate { return binary(col, "=", v) }

// NEQ returns a column <> value predicate.
func NEQ(col string, v any) *Predicate { return binary(col, "<>", v) }

// GT returns a column > value predicate.
func GT(col string, v any) *Predicate { return binary(col, ">", v) }

// GTE returns a column >= value predicate.
func GTE(col string, v any) *Predicate { return binary(col, ">=", v) }

// LT returns a column < value predicate.
func LT(col string, v any) *Predicate { return binary(col, "<", v) }

// LTE returns a column <= value predicate.
func LTE(col string, v any) *Predicate { return binary(col, "<=", v) }

// Like returns a column LIKE pattern predicate.
func Like(col, pattern string) *Predicate { return binary(col, "LIKE", pattern) }

// In returns a column IN (values...) predicate. An empty value list renders
// to FALSE, matching no rows instead of producing invalid SQL.
func In(col string, vs ...any) *Predicate {
	return P().Append(func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("FALSE")
			return
		}
		b.Ident(col).WriteString(" IN ")
		b.Wrap(func(b *Builder) { b.Args(vs...) })
	})
}

// NotIn returns a column NOT IN (values...) predicate. An empty value list
// renders to TRUE.
func NotIn(col string, vs ...any) *Predicate {
	return P().Append(func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("TRUE")
			return
		}
		b.Ident(col).WriteString(" NOT IN ")
		b.Wrap(func(b *Builder) { b.Args(vs...) })
	})
}

// IsNull returns a column IS NULL predicate.
func IsNull(col string) *Predicate {
	return P().Append(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns a column IS NOT NULL predicate.
func NotNull(col string) *Predicate {
	return P().Append(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// Count wraps the column or expression with a COUNT aggregation.
func Count(expr string) string { return "COUNT(" + expr + ")" }

type orderTerm struct {
	column string
	desc   bool
}

// Selector builds a SELECT statement.
type Selector struct {
	dialect string
	columns []string
	table   string
	pred    *Predicate
	order   []orderTerm
	limit   *int
	offset  *int
	forUpd  bool
	qerr    error
}

// Select starts a dialect-less Selector. The dialect can be attached later
// with SetDialect.
func Select(columns ...string) *Selector {
	return &Selector{columns: columns}
}

// SetDialect sets the dialect used for quoting and placeholders.
func (s *Selector) SetDialect(name string) *Selector {
	s.dialect = name
	return s
}

// From sets the table of the selector.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// Table returns the table the selector reads from.
func (s *Selector) Table() string { return s.table }

// C qualifies the given column with the selector table.
func (s *Selector) C(column string) string {
	if s.table == "" {
		return column
	}
	return s.table + "." + column
}

// Where appends the predicate to the selector, ANDed with any predicate set
// before. Composing a predicate never replaces prior ones.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.pred != nil {
		p = And(s.pred, p)
	}
	s.pred = p
	return s
}

// P returns the predicate currently attached to the selector.
func (s *Selector) P() *Predicate { return s.pred }

// OrderAsc appends an ascending order term.
func (s *Selector) OrderAsc(column string) *Selector {
	s.order = append(s.order, orderTerm{column: column})
	return s
}

// OrderDesc appends a descending order term.
func (s *Selector) OrderDesc(column string) *Selector {
	s.order = append(s.order, orderTerm{column: column, desc: true})
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// ForUpdate locks the selected rows (ignored on SQLite).
func (s *Selector) ForUpdate() *Selector {
	s.forUpd = true
	return s
}

// Query returns the SELECT statement and its bound arguments.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialect)
	b.WriteString("SELECT ")
	if len(s.columns) == 0 {
		b.WriteString("*")
	} else {
		for i, c := range s.columns {
			if i > 0 {
				b.Comma()
			}
			b.Ident(c)
		}
	}
	b.WriteString(" FROM ").Ident(s.table)
	if s.pred != nil {
		b.WriteString(" WHERE ")
		s.pred.render(b)
	}
	if len(s.order) > 0 {
		b.WriteString(" ORDER BY ")
		for i, o := range s.order {
			if i > 0 {
				b.Comma()
			}
			b.Ident(o.column)
			if o.desc {
				b.WriteString(" DESC")
			}
		}
	}
	if s.limit != nil {
		b.WriteString(" LIMIT ").WriteString(strconv.Itoa(*s.limit))
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ").WriteString(strconv.Itoa(*s.offset))
	}
	if s.forUpd && s.dialect != dialect.SQLite {
		b.WriteString(" FOR UPDATE")
	}
	s.qerr = b.Err()
	return b.String(), b.args
}

// Err returns the first error recorded while rendering the statement.
// Populated by Query.
func (s *Selector) Err() error { return s.qerr }

// InsertBuilder builds an INSERT statement.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    [][]any
	returning []string
}

// Insert starts a dialect-less InsertBuilder for the given table.
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// SetDialect sets the dialect used for quoting and placeholders.
func (i *InsertBuilder) SetDialect(name string) *InsertBuilder {
	i.dialect = name
	return i
}

// Columns sets the insert columns.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = columns
	return i
}

// Values appends one row of values. May be called multiple times for a
// multi-row insert.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Returning adds a RETURNING clause (PostgreSQL and SQLite).
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// Query returns the INSERT statement and its bound arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := NewBuilder(i.dialect)
	b.WriteString("INSERT INTO ").Ident(i.table).Pad()
	b.Wrap(func(b *Builder) { b.IdentComma(i.columns...) })
	b.WriteString(" VALUES ")
	for j, row := range i.values {
		if j > 0 {
			b.Comma()
		}
		b.Wrap(func(b *Builder) { b.Args(row...) })
	}
	if len(i.returning) > 0 && i.dialect != dialect.MySQL {
		b.WriteString(" RETURNING ")
		b.IdentComma(i.returning...)
	}
	return b.String(), b.args
}

// UpdateBuilder builds an UPDATE statement.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	pred    *Predicate
}

// Update starts a dialect-less UpdateBuilder for the given table.
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// SetDialect sets the dialect used for quoting and placeholders.
func (u *UpdateBuilder) SetDialect(name string) *UpdateBuilder {
	u.dialect = name
	return u
}

// Set assigns the value to the column. A nil value assigns NULL.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Empty reports whether the update has no assignments.
func (u *UpdateBuilder) Empty() bool { return len(u.columns) == 0 }

// Where appends the predicate, ANDed with any predicate set before.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if p == nil {
		return u
	}
	if u.pred != nil {
		p = And(u.pred, p)
	}
	u.pred = p
	return u
}

// Query returns the UPDATE statement and its bound arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := NewBuilder(u.dialect)
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for j, c := range u.columns {
		if j > 0 {
			b.Comma()
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[j])
	}
	if u.pred != nil {
		b.WriteString(" WHERE ")
		u.pred.render(b)
	}
	return b.String(), b.args
}

// DeleteBuilder builds a DELETE statement.
type DeleteBuilder struct {
	dialect string
	table   string
	pred    *Predicate
}

// Delete starts a dialect-less DeleteBuilder for the given table.
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// SetDialect sets the dialect used for quoting and placeholders.
func (d *DeleteBuilder) SetDialect(name string) *DeleteBuilder {
	d.dialect = name
	return d
}

// Where appends the predicate, ANDed with any predicate set before.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if p == nil {
		return d
	}
	if d.pred != nil {
		p = And(d.pred, p)
	}
	d.pred = p
	return d
}

// Query returns the DELETE statement and its bound arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	b := NewBuilder(d.dialect)
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.pred != nil {
		b.WriteString(" WHERE ")
		d.pred.render(b)
	}
	return b.String(), b.args
}
