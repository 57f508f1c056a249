package strata

import (
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/rel"
)

// EntityDescriptor is the immutable, per-entity-type description built from
// a Definition at registration. It is created once at startup and never
// mutated afterwards, so concurrent readers need no synchronization.
type EntityDescriptor struct {
	// Name is the entity type name, e.g. "User".
	Name string
	// Table is the backing table, e.g. "users".
	Table string
	// Fields is the ordered field list.
	Fields []*field.Descriptor
	// PrimaryKey is the primary key column.
	PrimaryKey string
	// SoftDeletes reports whether deletes set DeletedColumn instead of
	// removing the row.
	SoftDeletes bool
	// Relations maps accessor names to relationship descriptors.
	Relations map[string]*rel.Descriptor
	// Scopes maps scope names to predicate fragments.
	Scopes map[string]Scope

	fields   map[string]*field.Descriptor
	fillable map[string]bool
}

// Field returns the descriptor of the named field.
func (d *EntityDescriptor) Field(name string) (*field.Descriptor, bool) {
	f, ok := d.fields[name]
	return f, ok
}

// HasField reports whether the entity declares the named field.
func (d *EntityDescriptor) HasField(name string) bool {
	_, ok := d.fields[name]
	return ok
}

// IsFillable reports whether the named field accepts mass assignment.
func (d *EntityDescriptor) IsFillable(name string) bool {
	return d.fillable[name]
}

// Columns returns the ordered column names.
func (d *EntityDescriptor) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Name
	}
	return cols
}

// Relation returns the descriptor of the named relationship.
func (d *EntityDescriptor) Relation(name string) (*rel.Descriptor, bool) {
	r, ok := d.Relations[name]
	return r, ok
}

// Registry holds the entity descriptors of a process. Register all entities
// at startup; lookups after that are read-only and safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityDescriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*EntityDescriptor)}
}

// Register builds the descriptor for the given entity definition and adds
// it to the registry. Declaration errors (duplicate fields, invalid enum
// defaults, missing foreign-key references) surface here, not at query
// time.
func (r *Registry) Register(name string, def Definition) error {
	if name == "" {
		return NewConfigError("entity name must not be empty")
	}
	desc := &EntityDescriptor{
		Name:      name,
		Table:     def.Table(),
		Relations: make(map[string]*rel.Descriptor),
		Scopes:    make(map[string]Scope),
		fields:    make(map[string]*field.Descriptor),
		fillable:  make(map[string]bool),
	}
	if desc.Table == "" {
		desc.Table = inflect.Pluralize(inflect.Underscore(name))
	}

	var fields []Field
	for _, m := range def.Mixins() {
		fields = append(fields, m.Fields()...)
	}
	fields = append(fields, def.Fields()...)
	for _, f := range fields {
		fd := f.Descriptor()
		if fd.Err != nil {
			return NewConfigError("entity %s: %v", name, fd.Err)
		}
		if !fd.Type.Valid() {
			return NewConfigError("entity %s: field %q has invalid type", name, fd.Name)
		}
		if _, dup := desc.fields[fd.Name]; dup {
			return NewConfigError("entity %s: duplicate field %q", name, fd.Name)
		}
		desc.Fields = append(desc.Fields, fd)
		desc.fields[fd.Name] = fd
		if fd.Fillable {
			desc.fillable[fd.Name] = true
		}
	}

	desc.PrimaryKey = def.PrimaryKey()
	if desc.PrimaryKey == "" {
		desc.PrimaryKey = "id"
	}
	if _, ok := desc.fields[desc.PrimaryKey]; !ok {
		if desc.PrimaryKey != "id" {
			return NewConfigError("entity %s: primary key %q is not a declared field", name, desc.PrimaryKey)
		}
		// Implicit auto-increment primary key, prepended like the rest of
		// the bookkeeping columns.
		id := field.Int("id").Immutable().Descriptor()
		desc.Fields = append([]*field.Descriptor{id}, desc.Fields...)
		desc.fields["id"] = id
	}

	desc.SoftDeletes = def.SoftDeletes()
	if desc.SoftDeletes {
		if _, ok := desc.fields[DeletedColumn]; !ok {
			del := field.Time(DeletedColumn).Optional().Descriptor()
			desc.Fields = append(desc.Fields, del)
			desc.fields[DeletedColumn] = del
		}
	}

	for _, rb := range def.Relations() {
		rd := rb.Descriptor()
		if rd.Target == "" {
			return NewConfigError("entity %s: relationship %q has no target", name, rd.Name)
		}
		if _, dup := desc.Relations[rd.Name]; dup {
			return NewConfigError("entity %s: duplicate relationship %q", name, rd.Name)
		}
		if desc.HasField(rd.Name) {
			return NewConfigError("entity %s: relationship %q collides with a field", name, rd.Name)
		}
		if rd.ForeignKey == "" {
			switch rd.Kind {
			case rel.BelongsToKind:
				rd.ForeignKey = inflect.Underscore(rd.Target) + "_id"
			case rel.HasManyKind:
				rd.ForeignKey = inflect.Underscore(name) + "_id"
			default:
				return NewConfigError("entity %s: relationship %q has invalid kind", name, rd.Name)
			}
		}
		if rd.Kind == rel.BelongsToKind && !desc.HasField(rd.ForeignKey) {
			return NewConfigError("entity %s: relationship %q references undeclared foreign key %q", name, rd.Name, rd.ForeignKey)
		}
		desc.Relations[rd.Name] = rd
	}

	for sn, sc := range def.Scopes() {
		if sc == nil {
			return NewConfigError("entity %s: scope %q is nil", name, sn)
		}
		desc.Scopes[sn] = sc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entities[name]; dup {
		return NewConfigError("entity %s already registered", name)
	}
	r.entities[name] = desc
	return nil
}

// MustRegister is like Register but panics on error. Intended for
// process-start wiring where a configuration error is fatal.
func (r *Registry) MustRegister(name string, def Definition) {
	if err := r.Register(name, def); err != nil {
		panic(err)
	}
}

// Lookup returns the descriptor of the named entity, or a ConfigError if
// the entity was never registered.
func (r *Registry) Lookup(name string) (*EntityDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.entities[name]
	if !ok {
		return nil, NewConfigError("unknown entity %q", name)
	}
	return desc, nil
}

// Entities returns the names of all registered entities.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}
