package strata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/strata/schema/field"
)

// timeLayouts are tried in order when decoding a stored string timestamp.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Decode converts a raw stored value into its typed in-memory
// representation according to the field type. A nil raw value decodes to
// nil. Values the cast cannot represent fail with a ValidationError; they
// are never silently coerced.
func Decode(fd *field.Descriptor, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch fd.Type {
	case field.TypeString, field.TypeText:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case field.TypeInt:
		switch v := raw.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case uint64:
			return int64(v), nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		case []byte:
			return decodeInt(fd, string(v))
		case string:
			return decodeInt(fd, v)
		}
	case field.TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case []byte:
			return decodeFloat(fd, string(v))
		case string:
			return decodeFloat(fd, v)
		}
	case field.TypeBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			if v == 0 || v == 1 {
				return v == 1, nil
			}
			return nil, NewValidationError(fd.Name, fmt.Errorf("integer %d is not a boolean", v))
		case []byte:
			return decodeBool(fd, string(v))
		case string:
			return decodeBool(fd, v)
		}
	case field.TypeTime:
		switch v := raw.(type) {
		case time.Time:
			return v, nil
		case int64:
			return time.Unix(v, 0).UTC(), nil
		case []byte:
			return decodeTime(fd, string(v))
		case string:
			return decodeTime(fd, v)
		}
	case field.TypeEnum:
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		default:
			return nil, NewValidationError(fd.Name, fmt.Errorf("cannot decode %T as enum", raw))
		}
		if !inEnumDomain(fd, s) {
			return nil, NewValidationError(fd.Name, fmt.Errorf("value %q is not in the enum domain %v", s, fd.Values))
		}
		return s, nil
	case field.TypeJSON:
		var data []byte
		switch v := raw.(type) {
		case []byte:
			data = v
		case string:
			data = []byte(v)
		default:
			return nil, NewValidationError(fd.Name, fmt.Errorf("cannot decode %T as json", raw))
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, NewValidationError(fd.Name, fmt.Errorf("malformed json document: %w", err))
		}
		return out, nil
	case field.TypeUUID:
		switch v := raw.(type) {
		case uuid.UUID:
			return v, nil
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, NewValidationError(fd.Name, err)
			}
			return id, nil
		case []byte:
			if len(v) == 16 {
				id, err := uuid.FromBytes(v)
				if err != nil {
					return nil, NewValidationError(fd.Name, err)
				}
				return id, nil
			}
			id, err := uuid.ParseBytes(v)
			if err != nil {
				return nil, NewValidationError(fd.Name, err)
			}
			return id, nil
		}
	}
	return nil, NewValidationError(fd.Name, fmt.Errorf("cannot decode %T as %s", raw, fd.Type))
}

// Encode converts a typed in-memory value into its stored representation,
// the inverse of Decode. A nil value encodes to nil (stored NULL). Domain
// violations fail with a ValidationError.
func Encode(fd *field.Descriptor, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch fd.Type {
	case field.TypeString, field.TypeText:
		if s, ok := v.(string); ok {
			if fd.Size > 0 && len(s) > fd.Size {
				return nil, NewValidationError(fd.Name, fmt.Errorf("value exceeds maximum length %d", fd.Size))
			}
			return s, nil
		}
	case field.TypeInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case field.TypeFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case field.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case field.TypeTime:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
	case field.TypeEnum:
		if s, ok := v.(string); ok {
			if !inEnumDomain(fd, s) {
				return nil, NewValidationError(fd.Name, fmt.Errorf("value %q is not in the enum domain %v", s, fd.Values))
			}
			return s, nil
		}
	case field.TypeJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, NewValidationError(fd.Name, err)
		}
		return data, nil
	case field.TypeUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id.String(), nil
		case string:
			parsed, err := uuid.Parse(id)
			if err != nil {
				return nil, NewValidationError(fd.Name, err)
			}
			return parsed.String(), nil
		}
	}
	return nil, NewValidationError(fd.Name, fmt.Errorf("cannot encode %T as %s", v, fd.Type))
}

func decodeInt(fd *field.Descriptor, s string) (any, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, NewValidationError(fd.Name, fmt.Errorf("malformed integer %q", s))
	}
	return n, nil
}

func decodeFloat(fd *field.Descriptor, s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, NewValidationError(fd.Name, fmt.Errorf("malformed float %q", s))
	}
	return f, nil
}

func decodeBool(fd *field.Descriptor, s string) (any, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t":
		return true, nil
	case "0", "false", "f":
		return false, nil
	}
	return nil, NewValidationError(fd.Name, fmt.Errorf("malformed boolean %q", s))
}

func decodeTime(fd *field.Descriptor, s string) (any, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	// Integer epoch stored as text.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return nil, NewValidationError(fd.Name, fmt.Errorf("malformed timestamp %q", s))
}

func inEnumDomain(fd *field.Descriptor, s string) bool {
	for _, v := range fd.Values {
		if v == s {
			return true
		}
	}
	return false
}
