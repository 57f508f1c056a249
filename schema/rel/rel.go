// Package rel provides builders for declaring entity relationships.
//
// Two relationship kinds exist: a belongs-to holds the foreign key locally
// and resolves to at most one record; a has-many is its inverse and resolves
// to zero or more records whose foreign key points back at the owner.
//
//	rel.BelongsTo("author", "User").ForeignKey("user_id")
//	rel.HasMany("posts", "Post").ForeignKey("user_id")
package rel

// Kind is the relationship kind.
type Kind int

const (
	// BelongsToKind resolves at most one related record through a local
	// foreign key.
	BelongsToKind Kind = iota + 1
	// HasManyKind resolves zero or more related records through a foreign
	// key on the target entity.
	HasManyKind
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case BelongsToKind:
		return "belongs-to"
	case HasManyKind:
		return "has-many"
	default:
		return "invalid"
	}
}

// Descriptor holds the immutable description of one relationship. Defaults
// that depend on the entity pair (foreign key and owner key names) are
// resolved by the registry at registration time.
type Descriptor struct {
	Name       string // accessor name, e.g. "posts"
	Kind       Kind
	Target     string // target entity name, e.g. "Post"
	ForeignKey string // belongs-to: local column; has-many: column on target
	OwnerKey   string // referenced key, defaults to the target/owner primary key
}

// Builder builds a relationship descriptor.
type Builder struct {
	desc *Descriptor
}

// BelongsTo declares a to-one relationship with the foreign key on this
// entity. The foreign key defaults to the snake-cased target name + "_id".
func BelongsTo(name, target string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Kind: BelongsToKind, Target: target}}
}

// HasMany declares a to-many relationship with the foreign key on the
// target entity. The foreign key defaults to the snake-cased owner name +
// "_id".
func HasMany(name, target string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Kind: HasManyKind, Target: target}}
}

// ForeignKey overrides the default foreign key column.
func (b *Builder) ForeignKey(column string) *Builder {
	b.desc.ForeignKey = column
	return b
}

// OwnerKey overrides the referenced key column (the primary key by default).
func (b *Builder) OwnerKey(column string) *Builder {
	b.desc.OwnerKey = column
	return b
}

// Descriptor returns the built descriptor.
func (b *Builder) Descriptor() *Descriptor { return b.desc }
