// Package field provides builders for declaring entity fields.
//
// Fields are declared with a builder chain and collected into immutable
// descriptors at registration time:
//
//	field.String("email").Unique().Fillable()
//	field.Enum("role").Values("admin", "user").Default("user")
//	field.Time("deleted_at").Optional()
//
// Builder errors (invalid enum default, missing enum values, bad size) are
// deferred to the Descriptor and surfaced when the entity is registered, so
// a declaration chain never needs mid-chain error handling.
package field

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the semantic type of a field. It determines both the column type
// emitted by the schema layer and the cast applied on hydration and
// persistence.
type Type int

// Field types.
const (
	TypeInvalid Type = iota
	TypeString
	TypeText
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeEnum
	TypeJSON
	TypeUUID
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeText:    "text",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeTime:    "time",
	TypeEnum:    "enum",
	TypeJSON:    "json",
	TypeUUID:    "uuid",
}

// String returns the name of the type.
func (t Type) String() string {
	if t < TypeInvalid || int(t) >= len(typeNames) {
		return typeNames[TypeInvalid]
	}
	return typeNames[t]
}

// Valid reports if the given type is a declared field type.
func (t Type) Valid() bool {
	return t > TypeInvalid && int(t) < len(typeNames)
}

// Descriptor holds the immutable description of a single field. It is
// produced by the builders in this package and consumed by the registry.
type Descriptor struct {
	Name          string       // column and attribute name
	Type          Type         // semantic type
	Nullable      bool         // column accepts NULL
	Unique        bool         // unique index on the column
	Size          int          // size limit for string columns (0 = dialect default)
	Default       any          // static default applied on creation
	DefaultFunc   func() any   // computed default applied on creation
	UpdateDefault func() any   // computed value applied on every update
	Values        []string     // enum domain
	Fillable      bool         // assignable through mass assignment
	Immutable     bool         // rejected by updates after creation
	RefTable      string       // referenced table for foreign keys
	RefColumn     string       // referenced column for foreign keys
	Err           error        // first builder error, checked at registration
}

// HasDefault reports if the field carries a creation default.
func (d *Descriptor) HasDefault() bool {
	return d.Default != nil || d.DefaultFunc != nil
}

// DefaultValue resolves the creation default.
func (d *Descriptor) DefaultValue() any {
	if d.DefaultFunc != nil {
		return d.DefaultFunc()
	}
	return d.Default
}

func (d *Descriptor) setErr(err error) {
	if d.Err == nil {
		d.Err = err
	}
}

// String returns a string field builder.
func String(name string) *StringBuilder {
	return &StringBuilder{desc: &Descriptor{Name: name, Type: TypeString}}
}

// Text returns a text field builder. Text fields are unbounded strings.
func Text(name string) *StringBuilder {
	return &StringBuilder{desc: &Descriptor{Name: name, Type: TypeText}}
}

// Int returns an integer field builder.
func Int(name string) *IntBuilder {
	return &IntBuilder{desc: &Descriptor{Name: name, Type: TypeInt}}
}

// Float returns a float field builder.
func Float(name string) *FloatBuilder {
	return &FloatBuilder{desc: &Descriptor{Name: name, Type: TypeFloat}}
}

// Bool returns a boolean field builder.
func Bool(name string) *BoolBuilder {
	return &BoolBuilder{desc: &Descriptor{Name: name, Type: TypeBool}}
}

// Time returns a timestamp field builder.
func Time(name string) *TimeBuilder {
	return &TimeBuilder{desc: &Descriptor{Name: name, Type: TypeTime}}
}

// Enum returns an enum field builder. The domain must be declared with
// Values before registration.
func Enum(name string) *EnumBuilder {
	return &EnumBuilder{desc: &Descriptor{Name: name, Type: TypeEnum}}
}

// JSON returns a JSON document field builder.
func JSON(name string) *JSONBuilder {
	return &JSONBuilder{desc: &Descriptor{Name: name, Type: TypeJSON}}
}

// UUID returns a UUID field builder.
func UUID(name string) *UUIDBuilder {
	return &UUIDBuilder{desc: &Descriptor{Name: name, Type: TypeUUID}}
}

// ForeignKey returns an integer field builder referencing another table.
// The reference feeds both relationship resolution and the DDL emitted by
// the schema layer.
func ForeignKey(name string) *FKBuilder {
	return &FKBuilder{desc: &Descriptor{Name: name, Type: TypeInt}}
}

// StringBuilder builds string and text fields.
type StringBuilder struct {
	desc *Descriptor
}

// MaxLen limits the column size.
func (b *StringBuilder) MaxLen(n int) *StringBuilder {
	if n <= 0 {
		b.desc.setErr(fmt.Errorf("field %q: non-positive size %d", b.desc.Name, n))
	}
	b.desc.Size = n
	return b
}

// Optional makes the column nullable.
func (b *StringBuilder) Optional() *StringBuilder {
	b.desc.Nullable = true
	return b
}

// Unique adds a unique index on the column.
func (b *StringBuilder) Unique() *StringBuilder {
	b.desc.Unique = true
	return b
}

// Default sets the creation default.
func (b *StringBuilder) Default(v string) *StringBuilder {
	b.desc.Default = v
	return b
}

// Fillable allows the field in mass assignment.
func (b *StringBuilder) Fillable() *StringBuilder {
	b.desc.Fillable = true
	return b
}

// Immutable rejects the field in updates after creation.
func (b *StringBuilder) Immutable() *StringBuilder {
	b.desc.Immutable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *StringBuilder) Descriptor() *Descriptor { return b.desc }

// IntBuilder builds integer and float fields.
type IntBuilder struct {
	desc *Descriptor
}

// Optional makes the column nullable.
func (b *IntBuilder) Optional() *IntBuilder {
	b.desc.Nullable = true
	return b
}

// Unique adds a unique index on the column.
func (b *IntBuilder) Unique() *IntBuilder {
	b.desc.Unique = true
	return b
}

// Default sets the creation default.
func (b *IntBuilder) Default(v int) *IntBuilder {
	b.desc.Default = v
	return b
}

// Fillable allows the field in mass assignment.
func (b *IntBuilder) Fillable() *IntBuilder {
	b.desc.Fillable = true
	return b
}

// Immutable rejects the field in updates after creation.
func (b *IntBuilder) Immutable() *IntBuilder {
	b.desc.Immutable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *IntBuilder) Descriptor() *Descriptor { return b.desc }

// FloatBuilder builds float fields.
type FloatBuilder struct {
	desc *Descriptor
}

// Optional makes the column nullable.
func (b *FloatBuilder) Optional() *FloatBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the creation default.
func (b *FloatBuilder) Default(v float64) *FloatBuilder {
	b.desc.Default = v
	return b
}

// Fillable allows the field in mass assignment.
func (b *FloatBuilder) Fillable() *FloatBuilder {
	b.desc.Fillable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *FloatBuilder) Descriptor() *Descriptor { return b.desc }

// BoolBuilder builds boolean fields.
type BoolBuilder struct {
	desc *Descriptor
}

// Optional makes the column nullable.
func (b *BoolBuilder) Optional() *BoolBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the creation default.
func (b *BoolBuilder) Default(v bool) *BoolBuilder {
	b.desc.Default = v
	return b
}

// Fillable allows the field in mass assignment.
func (b *BoolBuilder) Fillable() *BoolBuilder {
	b.desc.Fillable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *BoolBuilder) Descriptor() *Descriptor { return b.desc }

// TimeBuilder builds timestamp fields.
type TimeBuilder struct {
	desc *Descriptor
}

// Optional makes the column nullable.
func (b *TimeBuilder) Optional() *TimeBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets a computed creation default, typically time.Now.
func (b *TimeBuilder) Default(f func() time.Time) *TimeBuilder {
	b.desc.DefaultFunc = func() any { return f() }
	return b
}

// UpdateDefault sets a value computed on every update, typically time.Now.
func (b *TimeBuilder) UpdateDefault(f func() time.Time) *TimeBuilder {
	b.desc.UpdateDefault = func() any { return f() }
	return b
}

// Fillable allows the field in mass assignment.
func (b *TimeBuilder) Fillable() *TimeBuilder {
	b.desc.Fillable = true
	return b
}

// Immutable rejects the field in updates after creation.
func (b *TimeBuilder) Immutable() *TimeBuilder {
	b.desc.Immutable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *TimeBuilder) Descriptor() *Descriptor { return b.desc }

// EnumBuilder builds enum fields.
type EnumBuilder struct {
	desc *Descriptor
}

// Values declares the enum domain.
func (b *EnumBuilder) Values(values ...string) *EnumBuilder {
	if len(values) == 0 {
		b.desc.setErr(fmt.Errorf("field %q: enum requires at least one value", b.desc.Name))
	}
	b.desc.Values = values
	return b
}

// Optional makes the column nullable.
func (b *EnumBuilder) Optional() *EnumBuilder {
	b.desc.Nullable = true
	return b
}

// Default sets the creation default. The value must be in the domain.
func (b *EnumBuilder) Default(v string) *EnumBuilder {
	b.desc.Default = v
	return b
}

// Fillable allows the field in mass assignment.
func (b *EnumBuilder) Fillable() *EnumBuilder {
	b.desc.Fillable = true
	return b
}

// Descriptor returns the built descriptor, validating the default against
// the declared domain.
func (b *EnumBuilder) Descriptor() *Descriptor {
	d := b.desc
	if len(d.Values) == 0 {
		d.setErr(fmt.Errorf("field %q: enum requires at least one value", d.Name))
	}
	if s, ok := d.Default.(string); ok {
		found := false
		for _, v := range d.Values {
			if v == s {
				found = true
				break
			}
		}
		if !found {
			d.setErr(fmt.Errorf("field %q: default %q is not in the enum domain", d.Name, s))
		}
	}
	return d
}

// JSONBuilder builds JSON document fields.
type JSONBuilder struct {
	desc *Descriptor
}

// Optional makes the column nullable.
func (b *JSONBuilder) Optional() *JSONBuilder {
	b.desc.Nullable = true
	return b
}

// Fillable allows the field in mass assignment.
func (b *JSONBuilder) Fillable() *JSONBuilder {
	b.desc.Fillable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *JSONBuilder) Descriptor() *Descriptor { return b.desc }

// UUIDBuilder builds UUID fields.
type UUIDBuilder struct {
	desc *Descriptor
}

// Optional makes the column nullable.
func (b *UUIDBuilder) Optional() *UUIDBuilder {
	b.desc.Nullable = true
	return b
}

// Unique adds a unique index on the column.
func (b *UUIDBuilder) Unique() *UUIDBuilder {
	b.desc.Unique = true
	return b
}

// DefaultNew generates a random UUID on creation.
func (b *UUIDBuilder) DefaultNew() *UUIDBuilder {
	b.desc.DefaultFunc = func() any { return uuid.New() }
	return b
}

// Fillable allows the field in mass assignment.
func (b *UUIDBuilder) Fillable() *UUIDBuilder {
	b.desc.Fillable = true
	return b
}

// Immutable rejects the field in updates after creation.
func (b *UUIDBuilder) Immutable() *UUIDBuilder {
	b.desc.Immutable = true
	return b
}

// Descriptor returns the built descriptor.
func (b *UUIDBuilder) Descriptor() *Descriptor { return b.desc }

// FKBuilder builds foreign-key fields.
type FKBuilder struct {
	desc *Descriptor
}

// References declares the referenced table and column.
func (b *FKBuilder) References(table, column string) *FKBuilder {
	b.desc.RefTable = table
	b.desc.RefColumn = column
	return b
}

// Optional makes the column nullable.
func (b *FKBuilder) Optional() *FKBuilder {
	b.desc.Nullable = true
	return b
}

// Fillable allows the field in mass assignment.
func (b *FKBuilder) Fillable() *FKBuilder {
	b.desc.Fillable = true
	return b
}

// Descriptor returns the built descriptor, requiring a reference.
func (b *FKBuilder) Descriptor() *Descriptor {
	if b.desc.RefTable == "" {
		b.desc.setErr(fmt.Errorf("field %q: foreign key requires References", b.desc.Name))
	}
	if b.desc.RefColumn == "" {
		b.desc.RefColumn = "id"
	}
	return b.desc
}
