package strata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/dialect/sql"
	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/rel"
)

// Test entity graph: User has many Posts, Post belongs to its author and
// has many Comments.

type userDef struct{ Schema }

func (userDef) Fields() []Field {
	return []Field{
		field.String("name").Fillable(),
		field.String("email").Unique().Fillable(),
		field.Enum("role").Values("admin", "user").Default("user").Fillable(),
		field.Int("age").Optional().Fillable(),
		field.String("api_token").Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (userDef) Relations() []Relation {
	return []Relation{
		rel.HasMany("posts", "Post"),
	}
}

func (userDef) Scopes() map[string]Scope {
	return map[string]Scope{
		"adults": func(s *sql.Selector) { s.Where(sql.GTE("age", 18)) },
		"admins": func(s *sql.Selector) { s.Where(sql.EQ("role", "admin")) },
	}
}

func (userDef) SoftDeletes() bool { return true }

type postDef struct{ Schema }

func (postDef) Fields() []Field {
	return []Field{
		field.String("title").Fillable(),
		field.Text("body").Optional().Fillable(),
		field.Bool("published").Default(false).Fillable(),
		field.ForeignKey("user_id").References("users", "id").Fillable(),
	}
}

func (postDef) Relations() []Relation {
	return []Relation{
		rel.BelongsTo("author", "User").ForeignKey("user_id"),
		rel.HasMany("comments", "Comment"),
	}
}

type commentDef struct{ Schema }

func (commentDef) Fields() []Field {
	return []Field{
		field.Text("body").Fillable(),
		field.ForeignKey("post_id").References("posts", "id").Fillable(),
	}
}

func (commentDef) Relations() []Relation {
	return []Relation{
		rel.BelongsTo("post", "Post").ForeignKey("post_id"),
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register("User", userDef{}))
	require.NoError(t, reg.Register("Post", postDef{}))
	require.NoError(t, reg.Register("Comment", commentDef{}))
	return reg
}

func TestRegisterDerivesTable(t *testing.T) {
	reg := newTestRegistry(t)
	user, err := reg.Lookup("User")
	require.NoError(t, err)
	require.Equal(t, "users", user.Table)
	post, err := reg.Lookup("Post")
	require.NoError(t, err)
	require.Equal(t, "posts", post.Table)
}

func TestRegisterImplicitPrimaryKey(t *testing.T) {
	reg := newTestRegistry(t)
	user, _ := reg.Lookup("User")
	require.Equal(t, "id", user.PrimaryKey)
	id, ok := user.Field("id")
	require.True(t, ok)
	require.Equal(t, field.TypeInt, id.Type)
	require.True(t, id.Immutable)
	// The implicit key leads the column list.
	require.Equal(t, "id", user.Columns()[0])
}

func TestRegisterSoftDeleteColumn(t *testing.T) {
	reg := newTestRegistry(t)
	user, _ := reg.Lookup("User")
	require.True(t, user.SoftDeletes)
	del, ok := user.Field(DeletedColumn)
	require.True(t, ok)
	require.True(t, del.Nullable)

	post, _ := reg.Lookup("Post")
	require.False(t, post.SoftDeletes)
	require.False(t, post.HasField(DeletedColumn))
}

func TestRegisterFillable(t *testing.T) {
	reg := newTestRegistry(t)
	user, _ := reg.Lookup("User")
	require.True(t, user.IsFillable("name"))
	require.False(t, user.IsFillable("api_token"))
	require.False(t, user.IsFillable("id"))
	require.False(t, user.IsFillable("no_such_field"))
}

func TestRegisterRelationDefaults(t *testing.T) {
	reg := newTestRegistry(t)
	user, _ := reg.Lookup("User")
	posts, ok := user.Relation("posts")
	require.True(t, ok)
	require.Equal(t, rel.HasManyKind, posts.Kind)
	require.Equal(t, "user_id", posts.ForeignKey)

	post, _ := reg.Lookup("Post")
	author, ok := post.Relation("author")
	require.True(t, ok)
	require.Equal(t, rel.BelongsToKind, author.Kind)
	require.Equal(t, "user_id", author.ForeignKey)
}

type dupFieldDef struct{ Schema }

func (dupFieldDef) Fields() []Field {
	return []Field{
		field.String("name"),
		field.Int("name"),
	}
}

func TestRegisterDuplicateField(t *testing.T) {
	err := NewRegistry().Register("Broken", dupFieldDef{})
	require.True(t, IsConfigError(err))
	require.Contains(t, err.Error(), "duplicate field")
}

type badEnumDef struct{ Schema }

func (badEnumDef) Fields() []Field {
	return []Field{
		field.Enum("role").Values("a", "b").Default("c"),
	}
}

func TestRegisterBadEnumDefault(t *testing.T) {
	err := NewRegistry().Register("Broken", badEnumDef{})
	require.True(t, IsConfigError(err))
	require.Contains(t, err.Error(), "enum domain")
}

type danglingFKDef struct{ Schema }

func (danglingFKDef) Fields() []Field {
	return []Field{field.String("title")}
}

func (danglingFKDef) Relations() []Relation {
	return []Relation{rel.BelongsTo("author", "User")}
}

func TestRegisterBelongsToRequiresForeignKey(t *testing.T) {
	err := NewRegistry().Register("Broken", danglingFKDef{})
	require.True(t, IsConfigError(err))
	require.Contains(t, err.Error(), "undeclared foreign key")
}

func TestRegisterDuplicateEntity(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("User", userDef{}))
	err := reg.Register("User", userDef{})
	require.True(t, IsConfigError(err))
}

func TestLookupUnknownEntity(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Lookup("Ghost")
	require.True(t, IsConfigError(err))
}

type mixinDef struct{ Schema }

func (mixinDef) Mixins() []Mixin { return []Mixin{stampMixin{}} }

func (mixinDef) Fields() []Field {
	return []Field{field.String("name")}
}

type stampMixin struct{}

func (stampMixin) Fields() []Field {
	return []Field{field.Time("created_at").Default(time.Now).Immutable()}
}

func TestRegisterMixinFieldsPrecede(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("Stamped", mixinDef{}))
	desc, _ := reg.Lookup("Stamped")
	cols := desc.Columns()
	// Implicit pk first, then mixin fields, then declared fields.
	require.Equal(t, []string{"id", "created_at", "name"}, cols)
}
