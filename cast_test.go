package strata

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/syssam/strata/schema/field"
)

func TestDecodeString(t *testing.T) {
	fd := field.String("name").Descriptor()
	for _, raw := range []any{"alice", []byte("alice")} {
		v, err := Decode(fd, raw)
		require.NoError(t, err)
		require.Equal(t, "alice", v)
	}
	v, err := Decode(fd, nil)
	require.NoError(t, err)
	require.Nil(t, v)
	_, err = Decode(fd, 42)
	require.True(t, IsValidationError(err))
}

func TestDecodeInt(t *testing.T) {
	fd := field.Int("age").Descriptor()
	for _, raw := range []any{int64(30), int(30), int32(30), []byte("30"), "30", float64(30)} {
		v, err := Decode(fd, raw)
		require.NoError(t, err)
		require.Equal(t, int64(30), v)
	}
	_, err := Decode(fd, "thirty")
	require.True(t, IsValidationError(err))
	_, err = Decode(fd, 30.5)
	require.True(t, IsValidationError(err))
}

func TestDecodeBool(t *testing.T) {
	fd := field.Bool("active").Descriptor()
	truthy := []any{true, int64(1), "1", "true", "t", []byte("TRUE")}
	for _, raw := range truthy {
		v, err := Decode(fd, raw)
		require.NoError(t, err)
		require.Equal(t, true, v, "raw: %v", raw)
	}
	falsy := []any{false, int64(0), "0", "false", "f"}
	for _, raw := range falsy {
		v, err := Decode(fd, raw)
		require.NoError(t, err)
		require.Equal(t, false, v, "raw: %v", raw)
	}
	_, err := Decode(fd, int64(7))
	require.True(t, IsValidationError(err))
	_, err = Decode(fd, "yes?")
	require.True(t, IsValidationError(err))
}

func TestDecodeTime(t *testing.T) {
	fd := field.Time("created_at").Descriptor()
	want := time.Date(2026, 8, 15, 12, 30, 0, 0, time.UTC)

	v, err := Decode(fd, want)
	require.NoError(t, err)
	require.Equal(t, want, v)

	v, err = Decode(fd, want.Unix())
	require.NoError(t, err)
	require.True(t, want.Equal(v.(time.Time)))

	for _, raw := range []any{"2026-08-15T12:30:00Z", "2026-08-15 12:30:00", []byte("2026-08-15T12:30:00Z")} {
		v, err = Decode(fd, raw)
		require.NoError(t, err)
		require.True(t, want.Equal(v.(time.Time)), "raw: %v", raw)
	}

	_, err = Decode(fd, "yesterday")
	require.True(t, IsValidationError(err))
}

func TestDecodeEnum(t *testing.T) {
	fd := field.Enum("role").Values("admin", "user").Descriptor()
	v, err := Decode(fd, "admin")
	require.NoError(t, err)
	require.Equal(t, "admin", v)

	_, err = Decode(fd, "superuser")
	require.True(t, IsValidationError(err))
}

func TestDecodeJSON(t *testing.T) {
	fd := field.JSON("meta").Descriptor()
	v, err := Decode(fd, []byte(`{"tags":["a","b"],"n":3}`))
	require.NoError(t, err)
	doc := v.(map[string]any)
	require.Equal(t, float64(3), doc["n"])

	_, err = Decode(fd, "{not json")
	require.True(t, IsValidationError(err))
}

func TestDecodeUUID(t *testing.T) {
	fd := field.UUID("key").Descriptor()
	id := uuid.New()

	v, err := Decode(fd, id.String())
	require.NoError(t, err)
	require.Equal(t, id, v)

	v, err = Decode(fd, id[:])
	require.NoError(t, err)
	require.Equal(t, id, v)

	_, err = Decode(fd, "not-a-uuid")
	require.True(t, IsValidationError(err))
}

func TestEncode(t *testing.T) {
	v, err := Encode(field.Int("age").Descriptor(), 30)
	require.NoError(t, err)
	require.Equal(t, int64(30), v)

	v, err = Encode(field.Bool("active").Descriptor(), true)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = Encode(field.String("name").Descriptor(), "alice")
	require.NoError(t, err)
	require.Equal(t, "alice", v)

	v, err = Encode(field.String("name").Descriptor(), nil)
	require.NoError(t, err)
	require.Nil(t, v)

	_, err = Encode(field.Int("age").Descriptor(), "30")
	require.True(t, IsValidationError(err))
}

func TestEncodeMaxLen(t *testing.T) {
	fd := field.String("code").MaxLen(3).Descriptor()
	_, err := Encode(fd, "abc")
	require.NoError(t, err)
	_, err = Encode(fd, "abcd")
	require.True(t, IsValidationError(err))
}

func TestEncodeEnumDomain(t *testing.T) {
	fd := field.Enum("role").Values("admin", "user").Descriptor()
	_, err := Encode(fd, "user")
	require.NoError(t, err)
	_, err = Encode(fd, "root")
	require.True(t, IsValidationError(err))
}

// Typed values survive an encode/decode cycle unchanged.
func TestRoundTrip(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		fd *field.Descriptor
		v  any
	}{
		{field.String("s").Descriptor(), "hello"},
		{field.Int("n").Descriptor(), int64(42)},
		{field.Float("f").Descriptor(), 3.5},
		{field.Bool("b").Descriptor(), true},
		{field.Enum("e").Values("x", "y").Descriptor(), "y"},
		{field.UUID("u").Descriptor(), id},
	}
	for _, tt := range tests {
		enc, err := Encode(tt.fd, tt.v)
		require.NoError(t, err)
		dec, err := Decode(tt.fd, enc)
		require.NoError(t, err)
		require.Equal(t, tt.v, dec, "field %s", tt.fd.Name)
	}
}
