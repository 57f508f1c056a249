package strata

import (
	"context"
	"fmt"
	"strings"

	sqldialect "github.com/syssam/strata/dialect/sql"
)

// Query is a lazy, chainable query over one entity type. Chaining methods
// only describe the statement; nothing reaches the store until a terminal
// method (All, First, Count, Exist) runs. Invalid chain input — an unknown
// field, operator or scope — is recorded as a ConfigError and returned by
// the terminal method before any statement executes.
//
// A Query is single-use and not safe for concurrent mutation.
type Query struct {
	client *Client
	desc   *EntityDescriptor
	err    error

	pred        *sqldialect.Predicate
	scopes      []Scope
	orders      []order
	limit       *int
	offset      *int
	withPaths   []string
	withTrashed bool
	onlyTrashed bool
	forUpdate   bool
	useCache    bool
}

type order struct {
	column string
	desc   bool
}

// fail records the first chain error. Later chain calls still run so the
// caller's fluent chain stays intact; the terminal method surfaces it.
func (q *Query) fail(err error) *Query {
	if q.err == nil {
		q.err = err
	}
	return q
}

// checkField validates the column against the entity declaration.
func (q *Query) checkField(name string) bool {
	if q.err != nil {
		return false
	}
	if !q.desc.HasField(name) {
		q.fail(NewConfigError("entity %s has no field %q", q.desc.Name, name))
		return false
	}
	return true
}

// Where adds a comparison condition, ANDed with any condition added before.
// Supported operators: =, !=, <>, >, >=, <, <=, like.
func (q *Query) Where(field, op string, value any) *Query {
	if !q.checkField(field) {
		return q
	}
	p, err := comparison(field, op, value)
	if err != nil {
		return q.fail(err)
	}
	return q.and(p)
}

// OrWhere adds a comparison condition ORed with the conditions added
// before. On an empty chain it behaves like Where.
func (q *Query) OrWhere(field, op string, value any) *Query {
	if !q.checkField(field) {
		return q
	}
	p, err := comparison(field, op, value)
	if err != nil {
		return q.fail(err)
	}
	if q.pred == nil {
		q.pred = p
	} else {
		q.pred = sqldialect.Or(q.pred, p)
	}
	return q
}

// WhereIn adds a membership condition. An empty value set matches no rows.
func (q *Query) WhereIn(field string, values ...any) *Query {
	if !q.checkField(field) {
		return q
	}
	return q.and(sqldialect.In(field, values...))
}

// WhereNotIn adds a negated membership condition. An empty value set
// matches all rows.
func (q *Query) WhereNotIn(field string, values ...any) *Query {
	if !q.checkField(field) {
		return q
	}
	return q.and(sqldialect.NotIn(field, values...))
}

// WhereNull adds an IS NULL condition.
func (q *Query) WhereNull(field string) *Query {
	if !q.checkField(field) {
		return q
	}
	return q.and(sqldialect.IsNull(field))
}

// WhereNotNull adds an IS NOT NULL condition.
func (q *Query) WhereNotNull(field string) *Query {
	if !q.checkField(field) {
		return q
	}
	return q.and(sqldialect.NotNull(field))
}

// WhereP adds a raw predicate. The escape hatch for conditions the named
// methods cannot express.
func (q *Query) WhereP(p *sqldialect.Predicate) *Query {
	if q.err != nil || p == nil {
		return q
	}
	return q.and(p)
}

// Scope applies the named scope declared on the entity. Scopes compose:
// each one is ANDed onto the statement in application order.
func (q *Query) Scope(name string) *Query {
	if q.err != nil {
		return q
	}
	sc, ok := q.desc.Scopes[name]
	if !ok {
		return q.fail(NewConfigError("entity %s has no scope %q", q.desc.Name, name))
	}
	q.scopes = append(q.scopes, sc)
	return q
}

// OrderBy appends an ascending order term.
func (q *Query) OrderBy(field string) *Query {
	if !q.checkField(field) {
		return q
	}
	q.orders = append(q.orders, order{column: field})
	return q
}

// OrderByDesc appends a descending order term.
func (q *Query) OrderByDesc(field string) *Query {
	if !q.checkField(field) {
		return q
	}
	q.orders = append(q.orders, order{column: field, desc: true})
	return q
}

// Limit bounds the number of returned rows.
func (q *Query) Limit(n int) *Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail(NewConfigError("negative limit %d", n))
	}
	q.limit = &n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	if q.err != nil {
		return q
	}
	if n < 0 {
		return q.fail(NewConfigError("negative offset %d", n))
	}
	q.offset = &n
	return q
}

// With declares relationship paths to eager-load alongside the result set.
// Nested paths use dots: "posts.comments" loads posts for every result,
// then comments for every loaded post. Each distinct relationship in the
// tree costs exactly one additional statement, independent of result size.
func (q *Query) With(paths ...string) *Query {
	if q.err != nil {
		return q
	}
	for _, path := range paths {
		if err := validatePath(q.client.registry, q.desc, path); err != nil {
			return q.fail(err)
		}
		q.withPaths = append(q.withPaths, path)
	}
	return q
}

// WithTrashed includes soft-deleted rows in the result set.
func (q *Query) WithTrashed() *Query {
	q.withTrashed = true
	return q
}

// OnlyTrashed restricts the result set to soft-deleted rows.
func (q *Query) OnlyTrashed() *Query {
	q.onlyTrashed = true
	return q
}

// ForUpdate locks the selected rows until the surrounding transaction
// ends. Meaningful only inside a transaction.
func (q *Query) ForUpdate() *Query {
	q.forUpdate = true
	return q
}

// Cached serves the result set from the client cache when present,
// otherwise stores it after execution. A no-op on clients without a cache.
func (q *Query) Cached() *Query {
	q.useCache = true
	return q
}

func (q *Query) and(p *sqldialect.Predicate) *Query {
	if q.pred == nil {
		q.pred = p
	} else {
		q.pred = sqldialect.And(q.pred, p)
	}
	return q
}

// selector assembles the SELECT statement, applying the soft-delete
// default scope and any named scopes.
func (q *Query) selector(columns ...string) (*sqldialect.Selector, error) {
	if q.err != nil {
		return nil, q.err
	}
	if q.withTrashed && q.onlyTrashed {
		return nil, NewConfigError("entity %s: WithTrashed and OnlyTrashed are mutually exclusive", q.desc.Name)
	}
	s := sqldialect.Dialect(q.client.Dialect()).
		Select(columns...).
		From(q.desc.Table)
	if q.pred != nil {
		s.Where(q.pred)
	}
	if q.desc.SoftDeletes {
		switch {
		case q.onlyTrashed:
			s.Where(sqldialect.NotNull(DeletedColumn))
		case !q.withTrashed:
			s.Where(sqldialect.IsNull(DeletedColumn))
		}
	}
	for _, sc := range q.scopes {
		sc(s)
	}
	for _, o := range q.orders {
		if o.desc {
			s.OrderDesc(o.column)
		} else {
			s.OrderAsc(o.column)
		}
	}
	if q.limit != nil {
		s.Limit(*q.limit)
	}
	if q.offset != nil {
		s.Offset(*q.offset)
	}
	if q.forUpdate {
		s.ForUpdate()
	}
	return s, nil
}

// All executes the query and returns the hydrated result set. Declared
// eager-load paths are resolved before returning, so every record in the
// result exposes its loaded relationships.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	s, err := q.selector(q.desc.Columns()...)
	if err != nil {
		return nil, err
	}
	query, args := s.Query()
	if err := s.Err(); err != nil {
		return nil, NewConfigError("entity %s: %v", q.desc.Name, err)
	}
	rows, err := q.rows(ctx, query, args)
	if err != nil {
		return nil, &QueryError{Entity: q.desc.Name, Op: "all", Err: err}
	}
	recs := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := hydrate(q.desc, row)
		if err != nil {
			return nil, &QueryError{Entity: q.desc.Name, Op: "all", Err: err}
		}
		recs = append(recs, rec)
	}
	if len(q.withPaths) > 0 {
		if err := loadPaths(ctx, q.client, q.desc, recs, q.withPaths); err != nil {
			return nil, &QueryError{Entity: q.desc.Name, Op: "all", Err: err}
		}
	}
	return recs, nil
}

// First returns the first matching record, or a NotFoundError on an empty
// result. An empty result is an error, not a nil record: callers cannot
// mistake "no row" for a row.
func (q *Query) First(ctx context.Context) (*Record, error) {
	one := 1
	q.limit = &one
	recs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(q.desc.Name)
	}
	return recs[0], nil
}

// Count returns the number of matching rows without hydrating records.
func (q *Query) Count(ctx context.Context) (int64, error) {
	// Pagination and ordering do not apply to an aggregate.
	q.orders, q.limit, q.offset = nil, nil, nil
	s, err := q.selector(sqldialect.Count("*"))
	if err != nil {
		return 0, err
	}
	query, args := s.Query()
	if err := s.Err(); err != nil {
		return 0, NewConfigError("entity %s: %v", q.desc.Name, err)
	}
	rows, err := q.rows(ctx, query, args)
	if err != nil {
		return 0, &QueryError{Entity: q.desc.Name, Op: "count", Err: err}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	for _, v := range rows[0] {
		return toInt64(v)
	}
	return 0, nil
}

// Exist reports whether any row matches.
func (q *Query) Exist(ctx context.Context) (bool, error) {
	one := 1
	q.limit = &one
	s, err := q.selector(q.desc.PrimaryKey)
	if err != nil {
		return false, err
	}
	query, args := s.Query()
	if err := s.Err(); err != nil {
		return false, NewConfigError("entity %s: %v", q.desc.Name, err)
	}
	rows, err := q.rows(ctx, query, args)
	if err != nil {
		return false, &QueryError{Entity: q.desc.Name, Op: "exist", Err: err}
	}
	return len(rows) > 0, nil
}

// rows executes the statement, consulting the client cache when enabled.
func (q *Query) rows(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	c := q.client
	if !q.useCache || c.cache == nil {
		return c.queryRows(ctx, query, args)
	}
	key := cacheKey(q.desc.Table, query, args)
	if rows, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return rows, nil
	}
	rows, err := c.queryRows(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, rows, c.cacheTTL); err != nil {
		c.log.WarnContext(ctx, "cache set failed", "entity", q.desc.Name, "err", err)
	}
	return rows, nil
}

// comparison maps a textual operator onto a predicate constructor.
func comparison(col, op string, v any) (*sqldialect.Predicate, error) {
	switch strings.ToLower(op) {
	case "=", "==":
		return sqldialect.EQ(col, v), nil
	case "!=", "<>":
		return sqldialect.NEQ(col, v), nil
	case ">":
		return sqldialect.GT(col, v), nil
	case ">=":
		return sqldialect.GTE(col, v), nil
	case "<":
		return sqldialect.LT(col, v), nil
	case "<=":
		return sqldialect.LTE(col, v), nil
	case "like":
		s, ok := v.(string)
		if !ok {
			return nil, NewConfigError("like operator requires a string pattern, got %T", v)
		}
		return sqldialect.Like(col, s), nil
	default:
		return nil, NewConfigError("unsupported operator %q", op)
	}
}

// toInt64 normalizes a driver-reported aggregate value.
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		var out int64
		if _, err := fmt.Sscanf(string(n), "%d", &out); err != nil {
			return 0, fmt.Errorf("strata: malformed count %q", n)
		}
		return out, nil
	case string:
		var out int64
		if _, err := fmt.Sscanf(n, "%d", &out); err != nil {
			return 0, fmt.Errorf("strata: malformed count %q", n)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("strata: unexpected count type %T", v)
	}
}
