// Package mixin provides reusable field sets for entity definitions.
package mixin

import (
	"time"

	"github.com/syssam/strata"
	"github.com/syssam/strata/schema/field"
)

// Time adds created_at and updated_at bookkeeping columns. created_at is
// stamped on creation and never updated; updated_at is stamped on creation
// and refreshed on every dirty save.
type Time struct{}

// Fields of the Time mixin.
func (Time) Fields() []strata.Field {
	return []strata.Field{
		field.Time(strata.CreatedColumn).Default(time.Now).Immutable(),
		field.Time(strata.UpdatedColumn).Default(time.Now).UpdateDefault(time.Now),
	}
}

// SoftDelete adds the deleted_at column. Definitions using it should also
// report SoftDeletes() as true so the default query scope applies.
type SoftDelete struct{}

// Fields of the SoftDelete mixin.
func (SoftDelete) Fields() []strata.Field {
	return []strata.Field{
		field.Time(strata.DeletedColumn).Optional(),
	}
}

// UUID replaces the implicit integer primary key with a generated UUID.
type UUID struct{}

// Fields of the UUID mixin.
func (UUID) Fields() []strata.Field {
	return []strata.Field{
		field.UUID("id").DefaultNew().Immutable(),
	}
}

var (
	_ strata.Mixin = Time{}
	_ strata.Mixin = SoftDelete{}
	_ strata.Mixin = UUID{}
)
