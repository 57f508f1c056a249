// Package strata is a descriptor-driven data-access layer: declarative
// entity schemas compile into immutable descriptors at startup, and a
// lazy query builder, relationship resolver and migration engine operate
// on those descriptors at runtime.
//
// An entity is declared as a struct embedding strata.Schema:
//
//	type User struct {
//		strata.Schema
//	}
//
//	func (User) Fields() []strata.Field {
//		return []strata.Field{
//			field.String("name").Fillable(),
//			field.String("email").Unique().Fillable(),
//			field.Enum("role").Values("admin", "user").Default("user").Fillable(),
//		}
//	}
//
//	func (User) Relations() []strata.Relation {
//		return []strata.Relation{
//			rel.HasMany("posts", "Post"),
//		}
//	}
//
// Entities are registered once at startup:
//
//	reg := strata.NewRegistry()
//	err := reg.Register("User", User{})
//
// and queried through a Client bound to a dialect driver:
//
//	drv, _ := sql.Open(dialect.Postgres, dsn)
//	client := strata.NewClient(reg, strata.Driver(drv))
//	users, err := client.Entity("User").
//		Where("role", "=", "admin").
//		OrderBy("name").
//		All(ctx)
package strata

import (
	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/rel"
)

// Field is the interface implemented by all field builders.
type Field interface {
	Descriptor() *field.Descriptor
}

// Relation is the interface implemented by relationship builders.
type Relation interface {
	Descriptor() *rel.Descriptor
}

// Mixin is a reusable set of fields shared between entity definitions.
type Mixin interface {
	Fields() []Field
}

// Scope is a named, reusable predicate fragment. Applying a scope adds its
// predicate conjunctively to the query; it never replaces other predicates.
type Scope func(*sql.Selector)

// Definition describes one entity type. Implementations usually embed
// Schema and override the methods they need.
type Definition interface {
	// Fields returns the entity fields.
	Fields() []Field
	// Relations returns the entity relationships.
	Relations() []Relation
	// Mixins returns reusable field sets prepended to Fields.
	Mixins() []Mixin
	// Scopes returns the named scopes of the entity.
	Scopes() map[string]Scope
	// Table returns the table name. Empty means: derive the snake-cased
	// plural of the entity name.
	Table() string
	// PrimaryKey returns the primary key column. Empty means "id".
	PrimaryKey() string
	// SoftDeletes reports whether deletes mark the row instead of removing
	// it. The deletion timestamp column is added automatically if the
	// definition does not declare it.
	SoftDeletes() bool
}

// Schema is the default Definition implementation to embed in entity
// declarations.
type Schema struct{}

// Fields of the schema. Override to declare fields.
func (Schema) Fields() []Field { return nil }

// Relations of the schema. Override to declare relationships.
func (Schema) Relations() []Relation { return nil }

// Mixins of the schema. Override to reuse shared field sets.
func (Schema) Mixins() []Mixin { return nil }

// Scopes of the schema. Override to register named predicates.
func (Schema) Scopes() map[string]Scope { return nil }

// Table returns the derived table name by default.
func (Schema) Table() string { return "" }

// PrimaryKey returns "id" by default.
func (Schema) PrimaryKey() string { return "" }

// SoftDeletes is disabled by default.
func (Schema) SoftDeletes() bool { return false }

var _ Definition = (*Schema)(nil)

// Well-known column names used by the timestamp mixins and the soft-delete
// machinery.
const (
	CreatedColumn = "created_at"
	UpdatedColumn = "updated_at"
	DeletedColumn = "deleted_at"
)
