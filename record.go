package strata

import (
	"reflect"
	"time"

	"github.com/syssam/strata/schema/rel"
)

// Record represents one persisted or in-memory-only row of an entity type.
// Attribute values are stored post-cast; the snapshot taken at hydration
// (or after a successful save) drives dirty diffing.
//
// A Record is owned by the caller holding the reference and is not safe for
// concurrent mutation. Two loads of the same row return independent
// instances: value equality, never reference equality.
type Record struct {
	desc      *EntityDescriptor
	attrs     map[string]any
	original  map[string]any
	exists    bool
	relations map[string]any
}

// newRecord returns an empty, not-yet-persisted record.
func newRecord(desc *EntityDescriptor) *Record {
	return &Record{
		desc:      desc,
		attrs:     make(map[string]any),
		original:  make(map[string]any),
		relations: make(map[string]any),
	}
}

// hydrate builds a persisted record from a raw row, applying casts field by
// field. Columns not declared on the entity are ignored.
func hydrate(desc *EntityDescriptor, row map[string]any) (*Record, error) {
	r := newRecord(desc)
	for _, fd := range desc.Fields {
		raw, ok := row[fd.Name]
		if !ok {
			continue
		}
		v, err := Decode(fd, raw)
		if err != nil {
			return nil, err
		}
		r.attrs[fd.Name] = v
	}
	r.exists = true
	r.syncOriginal()
	return r, nil
}

// Entity returns the entity type name.
func (r *Record) Entity() string { return r.desc.Name }

// Exists reports whether the record is backed by a stored row.
func (r *Record) Exists() bool { return r.exists }

// ID returns the primary key value, or nil for a new record.
func (r *Record) ID() any { return r.attrs[r.desc.PrimaryKey] }

// Get returns the current value of the named attribute. Unknown attributes
// return nil; declared attributes that were never set also return nil.
func (r *Record) Get(name string) any { return r.attrs[name] }

// GetString returns the attribute as a string, or "" if unset.
func (r *Record) GetString(name string) string {
	s, _ := r.attrs[name].(string)
	return s
}

// GetInt returns the attribute as an int64, or 0 if unset.
func (r *Record) GetInt(name string) int64 {
	switch n := r.attrs[name].(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// GetBool returns the attribute as a bool, or false if unset.
func (r *Record) GetBool(name string) bool {
	b, _ := r.attrs[name].(bool)
	return b
}

// GetTime returns the attribute as a time.Time, or the zero time if unset.
func (r *Record) GetTime(name string) time.Time {
	t, _ := r.attrs[name].(time.Time)
	return t
}

// Set assigns the attribute directly, bypassing the mass-assignment guard.
// Unknown fields fail fast with a ConfigError; immutable fields of a
// persisted record reject the assignment. Domain validation happens when
// the record is saved.
func (r *Record) Set(name string, v any) error {
	fd, ok := r.desc.Field(name)
	if !ok {
		return NewConfigError("entity %s has no field %q", r.desc.Name, name)
	}
	if fd.Immutable && r.exists {
		return NewConfigError("entity %s: field %q is immutable", r.desc.Name, name)
	}
	r.attrs[name] = v
	return nil
}

// Fill mass-assigns the given attributes. Keys that are not in the
// fillable allow-list — including keys that are not declared fields at
// all — are silently dropped, not rejected. This mirrors the guard
// contract consumers rely on when passing untrusted input maps.
func (r *Record) Fill(attrs map[string]any) *Record {
	for name, v := range attrs {
		if !r.desc.IsFillable(name) {
			continue
		}
		r.attrs[name] = v
	}
	return r
}

// Dirty returns the set of attributes whose current value differs from the
// snapshot taken at hydration or last save.
func (r *Record) Dirty() map[string]any {
	dirty := make(map[string]any)
	for name, v := range r.attrs {
		orig, had := r.original[name]
		if !had || !equalValue(orig, v) {
			dirty[name] = v
		}
	}
	for name := range r.original {
		if _, still := r.attrs[name]; !still {
			dirty[name] = nil
		}
	}
	return dirty
}

// IsDirty reports whether any attribute changed since the last snapshot.
func (r *Record) IsDirty() bool { return len(r.Dirty()) > 0 }

// Trashed reports whether a soft-delete-enabled record carries a deletion
// timestamp.
func (r *Record) Trashed() bool {
	if !r.desc.SoftDeletes {
		return false
	}
	return r.attrs[DeletedColumn] != nil
}

// Related returns the loaded to-one relationship value. Accessing a
// relationship that was not loaded returns a NotLoadedError; an undeclared
// name returns a ConfigError.
func (r *Record) Related(name string) (*Record, error) {
	rd, ok := r.desc.Relation(name)
	if !ok {
		return nil, NewConfigError("entity %s has no relationship %q", r.desc.Name, name)
	}
	if rd.Kind != rel.BelongsToKind {
		return nil, NewConfigError("relationship %q is %s, use RelatedMany", name, rd.Kind)
	}
	v, loaded := r.relations[name]
	if !loaded {
		return nil, NewNotLoadedError(name)
	}
	if v == nil {
		return nil, nil
	}
	return v.(*Record), nil
}

// RelatedMany returns the loaded to-many relationship values.
func (r *Record) RelatedMany(name string) ([]*Record, error) {
	rd, ok := r.desc.Relation(name)
	if !ok {
		return nil, NewConfigError("entity %s has no relationship %q", r.desc.Name, name)
	}
	if rd.Kind != rel.HasManyKind {
		return nil, NewConfigError("relationship %q is %s, use Related", name, rd.Kind)
	}
	v, loaded := r.relations[name]
	if !loaded {
		return nil, NewNotLoadedError(name)
	}
	if v == nil {
		return nil, nil
	}
	return v.([]*Record), nil
}

// RelationLoaded reports whether the named relationship was loaded.
func (r *Record) RelationLoaded(name string) bool {
	_, ok := r.relations[name]
	return ok
}

func (r *Record) setRelated(name string, v any) {
	r.relations[name] = v
}

// syncOriginal snapshots the current attributes as the persisted state.
func (r *Record) syncOriginal() {
	r.original = make(map[string]any, len(r.attrs))
	for name, v := range r.attrs {
		r.original[name] = v
	}
}

// equalValue compares attribute values. Timestamps compare with
// time.Time.Equal so equal instants in different locations are not dirty.
func equalValue(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return reflect.DeepEqual(a, b)
}
