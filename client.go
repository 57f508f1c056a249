package strata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/strata/dialect"
	sqldialect "github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema/field"
)

// Client is the entry point of the data layer. It binds a registry of
// entity descriptors to a dialect driver and exposes the consumer contract:
// create, find, where-chains, save, delete and relationship loading.
//
// A Client is stateless between calls and safe for concurrent use; the
// records it returns are not.
type Client struct {
	registry *Registry
	driver   dialect.Driver
	conn     dialect.ExecQuerier
	log      *slog.Logger
	timeout  time.Duration
	cache    Cache
	cacheTTL time.Duration
	inTx     bool
}

// Option configures a Client.
type Option func(*Client)

// Driver sets the dialect driver the client executes against.
func Driver(d dialect.Driver) Option {
	return func(c *Client) {
		c.driver = d
		c.conn = d
	}
}

// Log sets the structured logger. Statements are logged at Debug level.
func Log(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// StatementTimeout bounds every executor call. An expired deadline surfaces
// as a ConnectionError with Timeout set rather than hanging.
func StatementTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCache enables the opt-in query result cache. Cached entries are
// invalidated by any mutation on the same entity.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// NewClient returns a Client over the given registry.
func NewClient(registry *Registry, opts ...Option) *Client {
	c := &Client{
		registry: registry,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dialect returns the dialect name of the bound driver.
func (c *Client) Dialect() string { return c.driver.Dialect() }

// Registry returns the entity registry of the client.
func (c *Client) Registry() *Registry { return c.registry }

// Entity starts a query chain for the named entity type.
func (c *Client) Entity(name string) *Query {
	desc, err := c.registry.Lookup(name)
	return &Query{client: c, desc: desc, err: err}
}

// Create validates the given attributes against the mass-assignment
// allow-list, applies declared defaults for missing fields, inserts a row
// and returns the hydrated, persisted record.
//
// Keys that are not fillable are silently dropped, by contract: callers
// pass untrusted input maps and rely on the guard to strip them.
func (c *Client) Create(ctx context.Context, entity string, attrs map[string]any) (*Record, error) {
	desc, err := c.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	rec := newRecord(desc).Fill(attrs)
	if err := c.insert(ctx, rec); err != nil {
		return nil, &MutationError{Entity: entity, Op: "create", Err: err}
	}
	return rec, nil
}

// insert writes a new row for the record and marks it persisted. Declared
// defaults fill in for attributes the caller left unset.
func (c *Client) insert(ctx context.Context, rec *Record) error {
	desc := rec.desc
	for _, fd := range desc.Fields {
		if _, set := rec.attrs[fd.Name]; !set && fd.HasDefault() {
			rec.attrs[fd.Name] = fd.DefaultValue()
		}
	}
	var (
		columns []string
		values  []any
	)
	for _, fd := range desc.Fields {
		v, set := rec.attrs[fd.Name]
		if !set {
			continue
		}
		if fd.Name == desc.PrimaryKey && v == nil {
			continue
		}
		encoded, err := Encode(fd, v)
		if err != nil {
			return err
		}
		columns = append(columns, fd.Name)
		values = append(values, encoded)
	}
	ins := sqldialect.Dialect(c.driver.Dialect()).
		Insert(desc.Table).
		Columns(columns...).
		Values(values...)
	_, pkSet := rec.attrs[desc.PrimaryKey]
	wantID := !pkSet
	if wantID && c.driver.Dialect() == dialect.Postgres {
		ins.Returning(desc.PrimaryKey)
		query, args := ins.Query()
		rows, err := c.queryRows(ctx, query, args)
		if err != nil {
			return err
		}
		if len(rows) == 1 {
			pf, _ := desc.Field(desc.PrimaryKey)
			id, err := Decode(pf, rows[0][desc.PrimaryKey])
			if err != nil {
				return err
			}
			rec.attrs[desc.PrimaryKey] = id
		}
	} else {
		query, args := ins.Query()
		res, err := c.exec(ctx, query, args)
		if err != nil {
			return err
		}
		if wantID && res != nil {
			pf, _ := desc.Field(desc.PrimaryKey)
			if pf.Type == field.TypeInt {
				if id, err := res.LastInsertId(); err == nil {
					rec.attrs[desc.PrimaryKey] = id
				}
			}
		}
	}
	rec.exists = true
	rec.syncOriginal()
	c.invalidate(ctx, desc)
	return nil
}

// Save persists the record. A new record is inserted; an existing record
// issues an UPDATE touching only the dirty columns. An empty dirty set is
// a no-op that still returns success and sends no statement.
//
// Dirty diffing works from the snapshot taken at hydration: if the stored
// row changed between load and save, the dirty columns are blindly
// overwritten. This last-write-wins policy holds unless the caller opts
// into explicit locking via a transaction with Query.ForUpdate.
func (c *Client) Save(ctx context.Context, rec *Record) error {
	if !rec.exists {
		if err := c.insert(ctx, rec); err != nil {
			return &MutationError{Entity: rec.desc.Name, Op: "save", Err: err}
		}
		return nil
	}
	desc := rec.desc
	dirty := rec.Dirty()
	if len(dirty) == 0 {
		return nil
	}
	for _, fd := range desc.Fields {
		if fd.UpdateDefault == nil {
			continue
		}
		if _, already := dirty[fd.Name]; !already {
			v := fd.UpdateDefault()
			rec.attrs[fd.Name] = v
			dirty[fd.Name] = v
		}
	}
	upd := sqldialect.Dialect(c.driver.Dialect()).Update(desc.Table)
	for _, fd := range desc.Fields {
		v, ok := dirty[fd.Name]
		if !ok {
			continue
		}
		if fd.Name == desc.PrimaryKey {
			return &MutationError{Entity: desc.Name, Op: "save",
				Err: NewConfigError("primary key %q cannot be updated", fd.Name)}
		}
		encoded, err := Encode(fd, v)
		if err != nil {
			return &MutationError{Entity: desc.Name, Op: "save", Err: err}
		}
		upd.Set(fd.Name, encoded)
	}
	upd.Where(sqldialect.EQ(desc.PrimaryKey, rec.ID()))
	query, args := upd.Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return &MutationError{Entity: desc.Name, Op: "save", Err: err}
	}
	rec.syncOriginal()
	c.invalidate(ctx, desc)
	return nil
}

// Find returns the record with the given primary key, or a NotFoundError.
func (c *Client) Find(ctx context.Context, entity string, id any) (*Record, error) {
	desc, err := c.registry.Lookup(entity)
	if err != nil {
		return nil, err
	}
	rec, err := c.Entity(entity).Where(desc.PrimaryKey, "=", id).First(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewNotFoundErrorWithID(entity, id)
		}
		return nil, err
	}
	return rec, nil
}

// Delete removes the record. On a soft-delete-enabled entity the deletion
// timestamp is set and the row disappears from default-scoped queries; on
// other entities the row is removed.
func (c *Client) Delete(ctx context.Context, rec *Record) error {
	if rec.desc.SoftDeletes {
		return c.softDelete(ctx, rec)
	}
	return c.hardDelete(ctx, rec)
}

// ForceDelete removes the row even when the entity is soft-delete enabled.
func (c *Client) ForceDelete(ctx context.Context, rec *Record) error {
	return c.hardDelete(ctx, rec)
}

// Restore clears the deletion timestamp of a soft-deleted record.
func (c *Client) Restore(ctx context.Context, rec *Record) error {
	desc := rec.desc
	if !desc.SoftDeletes {
		return &MutationError{Entity: desc.Name, Op: "restore",
			Err: NewConfigError("entity %s is not soft-delete enabled", desc.Name)}
	}
	upd := sqldialect.Dialect(c.driver.Dialect()).
		Update(desc.Table).
		Set(DeletedColumn, nil).
		Where(sqldialect.EQ(desc.PrimaryKey, rec.ID()))
	query, args := upd.Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return &MutationError{Entity: desc.Name, Op: "restore", Err: err}
	}
	rec.attrs[DeletedColumn] = nil
	rec.syncOriginal()
	c.invalidate(ctx, desc)
	return nil
}

func (c *Client) softDelete(ctx context.Context, rec *Record) error {
	desc := rec.desc
	now := time.Now()
	upd := sqldialect.Dialect(c.driver.Dialect()).
		Update(desc.Table).
		Set(DeletedColumn, now).
		Where(sqldialect.EQ(desc.PrimaryKey, rec.ID()))
	query, args := upd.Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return &MutationError{Entity: desc.Name, Op: "delete", Err: err}
	}
	rec.attrs[DeletedColumn] = now
	rec.syncOriginal()
	c.invalidate(ctx, desc)
	return nil
}

func (c *Client) hardDelete(ctx context.Context, rec *Record) error {
	desc := rec.desc
	del := sqldialect.Dialect(c.driver.Dialect()).
		Delete(desc.Table).
		Where(sqldialect.EQ(desc.PrimaryKey, rec.ID()))
	query, args := del.Query()
	if _, err := c.exec(ctx, query, args); err != nil {
		return &MutationError{Entity: desc.Name, Op: "delete", Err: err}
	}
	rec.exists = false
	c.invalidate(ctx, desc)
	return nil
}

// Tx starts a transaction and returns a client bound to it. All statements
// issued through the returned Tx.Client share the transaction connection.
func (c *Client) Tx(ctx context.Context) (*Tx, error) {
	if c.inTx {
		return nil, ErrTxStarted
	}
	tx, err := c.driver.Tx(ctx)
	if err != nil {
		return nil, c.classify(err)
	}
	txc := *c
	txc.conn = tx
	txc.inTx = true
	return &Tx{client: &txc, tx: tx}, nil
}

// Tx is an open transaction. Commit or Rollback must be called on every
// path; WithTx wraps that discipline.
type Tx struct {
	client *Client
	tx     dialect.Tx
}

// Client returns the client bound to the transaction.
func (t *Tx) Client() *Client { return t.client }

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// WithTx runs fn inside a transaction: commit on success, rollback on any
// error or panic. Partial commits are impossible by construction.
func WithTx(ctx context.Context, c *Client, fn func(tx *Client) error) error {
	tx, err := c.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx.Client()); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: %v", err, &RollbackError{Err: rerr})
		}
		return err
	}
	return tx.Commit()
}

// exec runs a non-query statement with the client timeout and error
// classification applied.
func (c *Client) exec(ctx context.Context, query string, args []any) (sqldialect.Result, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	c.log.DebugContext(ctx, "exec", "query", query, "args", args)
	var res sqldialect.Result
	if err := c.conn.Exec(ctx, query, args, &res); err != nil {
		return nil, c.classify(err)
	}
	return res, nil
}

// queryRows runs a row-returning statement and scans all rows into raw
// column maps.
func (c *Client) queryRows(ctx context.Context, query string, args []any) ([]map[string]any, error) {
	ctx, cancel := c.opCtx(ctx)
	defer cancel()
	c.log.DebugContext(ctx, "query", "query", query, "args", args)
	var rows sqldialect.Rows
	if err := c.conn.Query(ctx, query, args, &rows); err != nil {
		return nil, c.classify(err)
	}
	maps, err := sqldialect.ScanMaps(rows)
	if err != nil {
		return nil, c.classify(err)
	}
	return maps, nil
}

// opCtx applies the client statement timeout, if configured.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

// classify maps store-level failures onto the error taxonomy. Failures are
// re-raised, never suppressed.
func (c *Client) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case sqldialect.IsConstraintError(err):
		return NewConstraintError(err.Error(), err)
	case sqldialect.IsTimeoutError(err):
		return NewConnectionError(err, true)
	case sqldialect.IsConnectionError(err):
		return NewConnectionError(err, false)
	default:
		return err
	}
}

// invalidate drops cached result sets of the entity after a mutation.
func (c *Client) invalidate(ctx context.Context, desc *EntityDescriptor) {
	if c.cache == nil {
		return
	}
	if err := c.cache.DeletePrefix(ctx, desc.Table+":"); err != nil {
		c.log.WarnContext(ctx, "cache invalidation failed", "entity", desc.Name, "err", err)
	}
}
