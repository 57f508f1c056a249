package strata

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syssam/strata/schema/field"
	"github.com/syssam/strata/schema/rel"
)

// Config declares entities in YAML for deployments that prefer
// configuration over code:
//
//	entities:
//	  - name: User
//	    soft_deletes: true
//	    timestamps: true
//	    fields:
//	      - {name: email, type: string, unique: true, fillable: true}
//	      - {name: role, type: enum, values: [admin, user], default: user, fillable: true}
//	    relations:
//	      - {name: posts, kind: has_many, target: Post}
//
// Scopes are code, not data, and cannot be declared here; register them by
// implementing Definition directly.
type Config struct {
	Entities []EntityConfig `yaml:"entities"`
}

// EntityConfig declares one entity.
type EntityConfig struct {
	Name        string           `yaml:"name"`
	Table       string           `yaml:"table"`
	PrimaryKey  string           `yaml:"primary_key"`
	SoftDeletes bool             `yaml:"soft_deletes"`
	Timestamps  bool             `yaml:"timestamps"`
	Fields      []FieldConfig    `yaml:"fields"`
	Relations   []RelationConfig `yaml:"relations"`
}

// FieldConfig declares one field.
type FieldConfig struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Nullable bool     `yaml:"nullable"`
	Unique   bool     `yaml:"unique"`
	Size     int      `yaml:"size"`
	Default  any      `yaml:"default"`
	Values   []string `yaml:"values"`
	Fillable bool     `yaml:"fillable"`
}

// RelationConfig declares one relationship.
type RelationConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	Target     string `yaml:"target"`
	ForeignKey string `yaml:"foreign_key"`
	OwnerKey   string `yaml:"owner_key"`
}

// ParseConfig decodes a YAML entity declaration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewConfigError("parsing entity config: %v", err)
	}
	return &cfg, nil
}

// ReadConfig decodes a YAML entity declaration document from r.
func ReadConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewConfigError("reading entity config: %v", err)
	}
	return ParseConfig(data)
}

// LoadConfig decodes the YAML entity declaration file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewConfigError("opening entity config: %v", err)
	}
	defer f.Close()
	return ReadConfig(f)
}

// Apply registers every declared entity.
func (c *Config) Apply(reg *Registry) error {
	for i := range c.Entities {
		ec := &c.Entities[i]
		if ec.Name == "" {
			return NewConfigError("entity config: entity #%d has no name", i)
		}
		if err := reg.Register(ec.Name, &configDefinition{cfg: ec}); err != nil {
			return err
		}
	}
	return nil
}

// configDefinition adapts an EntityConfig to the Definition interface.
type configDefinition struct {
	Schema
	cfg *EntityConfig
}

func (d *configDefinition) Table() string      { return d.cfg.Table }
func (d *configDefinition) PrimaryKey() string { return d.cfg.PrimaryKey }
func (d *configDefinition) SoftDeletes() bool  { return d.cfg.SoftDeletes }

func (d *configDefinition) Fields() []Field {
	var fields []Field
	if d.cfg.Timestamps {
		fields = append(fields,
			field.Time(CreatedColumn).Default(time.Now).Immutable(),
			field.Time(UpdatedColumn).Default(time.Now).UpdateDefault(time.Now),
		)
	}
	for i := range d.cfg.Fields {
		fields = append(fields, buildField(&d.cfg.Fields[i]))
	}
	return fields
}

func (d *configDefinition) Relations() []Relation {
	var relations []Relation
	for _, rc := range d.cfg.Relations {
		var rb *rel.Builder
		switch rc.Kind {
		case "belongs_to":
			rb = rel.BelongsTo(rc.Name, rc.Target)
		case "has_many":
			rb = rel.HasMany(rc.Name, rc.Target)
		default:
			rb = rel.BelongsTo(rc.Name, "")
		}
		if rc.ForeignKey != "" {
			rb = rb.ForeignKey(rc.ForeignKey)
		}
		if rc.OwnerKey != "" {
			rb = rb.OwnerKey(rc.OwnerKey)
		}
		relations = append(relations, rb)
	}
	return relations
}

// buildField maps a field declaration onto the corresponding builder. An
// unknown type yields a descriptor with a deferred error, surfaced by
// Register like any other declaration mistake.
func buildField(fc *FieldConfig) Field {
	switch fc.Type {
	case "string", "text":
		b := field.String(fc.Name)
		if fc.Type == "text" {
			b = field.Text(fc.Name)
		}
		if fc.Size > 0 {
			b = b.MaxLen(fc.Size)
		}
		if fc.Nullable {
			b = b.Optional()
		}
		if fc.Unique {
			b = b.Unique()
		}
		if s, ok := fc.Default.(string); ok {
			b = b.Default(s)
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "int":
		b := field.Int(fc.Name)
		if fc.Nullable {
			b = b.Optional()
		}
		if fc.Unique {
			b = b.Unique()
		}
		if n, ok := fc.Default.(int); ok {
			b = b.Default(n)
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "float":
		b := field.Float(fc.Name)
		if fc.Nullable {
			b = b.Optional()
		}
		switch n := fc.Default.(type) {
		case float64:
			b = b.Default(n)
		case int:
			b = b.Default(float64(n))
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "bool":
		b := field.Bool(fc.Name)
		if fc.Nullable {
			b = b.Optional()
		}
		if v, ok := fc.Default.(bool); ok {
			b = b.Default(v)
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "time":
		b := field.Time(fc.Name)
		if fc.Nullable {
			b = b.Optional()
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "enum":
		b := field.Enum(fc.Name).Values(fc.Values...)
		if fc.Nullable {
			b = b.Optional()
		}
		if s, ok := fc.Default.(string); ok {
			b = b.Default(s)
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "json":
		b := field.JSON(fc.Name)
		if fc.Nullable {
			b = b.Optional()
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	case "uuid":
		b := field.UUID(fc.Name)
		if fc.Nullable {
			b = b.Optional()
		}
		if fc.Unique {
			b = b.Unique()
		}
		if fc.Fillable {
			b = b.Fillable()
		}
		return b
	default:
		return invalidField{name: fc.Name, typ: fc.Type}
	}
}

// invalidField defers an unknown-type error to registration.
type invalidField struct {
	name string
	typ  string
}

func (f invalidField) Descriptor() *field.Descriptor {
	return &field.Descriptor{
		Name: f.name,
		Err:  fmt.Errorf("field %q: unknown type %q", f.name, f.typ),
	}
}
