/*
Package record – schema types.

A SchemaDef is the static description of one table's records. NewSchema
resolves it once into a Schema whose NameTable and encoded defaults are shared
read-only by every request.
*/
package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyRole marks an attribute as part of the primary key.
type KeyRole string

const (
	KeyNone  KeyRole = ""
	KeyHash  KeyRole = "hash"
	KeyRange KeyRole = "range"
)

// AttributeDef declares one top-level attribute.
type AttributeDef struct {
	Name     string   `json:"name" mapstructure:"name"`
	Type     AttrType `json:"type" mapstructure:"type"`
	Alias    string   `json:"alias,omitempty" mapstructure:"alias"` // wire name
	Key      KeyRole  `json:"key,omitempty" mapstructure:"key"`
	Nullable bool     `json:"nullable,omitempty" mapstructure:"nullable"`
	Required bool     `json:"required,omitempty" mapstructure:"required"`
	Default  any      `json:"default,omitempty" mapstructure:"default"`
	Version  bool     `json:"version,omitempty" mapstructure:"version"` // optimistic locking counter
}

// IndexDef describes a secondary index by logical attribute names.
type IndexDef struct {
	Name  string `json:"name" mapstructure:"name"`
	Hash  string `json:"hash" mapstructure:"hash"`
	Range string `json:"range,omitempty" mapstructure:"range"`
}

// SchemaDef is the declaration of a table's records.
type SchemaDef struct {
	Table      string         `json:"table" mapstructure:"table"`
	Attributes []AttributeDef `json:"attributes" mapstructure:"attributes"`
	Indexes    []IndexDef     `json:"indexes,omitempty" mapstructure:"indexes"`
}

// Attribute is a resolved attribute definition.
type Attribute struct {
	Name     string
	Wire     string
	Type     AttrType
	Key      KeyRole
	Nullable bool
	Required bool
	Version  bool
	Default  types.AttributeValue
}

// Index is a resolved key pair, either the primary key or a secondary index.
type Index struct {
	Name  string
	Hash  *Attribute
	Range *Attribute
}

// Schema is the immutable, resolved form of a SchemaDef.
type Schema struct {
	Table   string
	names   *NameTable
	attrs   map[string]*Attribute
	byWire  map[string]*Attribute
	order   []*Attribute
	primary *Index
	version *Attribute
	indexes map[string]*Index
}

// NewSchema validates def and resolves it.
func NewSchema(def SchemaDef) (*Schema, error) {
	if def.Table == "" {
		return nil, NewArgError(`missing "table" in schema`)
	}
	s := &Schema{
		Table:   def.Table,
		attrs:   make(map[string]*Attribute, len(def.Attributes)),
		byWire:  make(map[string]*Attribute, len(def.Attributes)),
		primary: &Index{Name: "primary"},
		indexes: map[string]*Index{},
	}
	for _, d := range def.Attributes {
		a, err := resolveAttribute(d)
		if err != nil {
			return nil, err
		}
		if _, dup := s.attrs[a.Name]; dup {
			return nil, NewError(fmt.Sprintf("duplicate attribute %q", a.Name), WithCode(CodeArgument), WithPath(a.Name))
		}
		if other, dup := s.byWire[a.Wire]; dup {
			return nil, NewError(fmt.Sprintf("wire name %q of %q collides with %q", a.Wire, a.Name, other.Name),
				WithCode(CodeArgument), WithPath(a.Name))
		}
		switch a.Key {
		case KeyHash:
			if s.primary.Hash != nil {
				return nil, NewArgError(fmt.Sprintf("schema %q declares more than one hash key", def.Table))
			}
			s.primary.Hash = a
		case KeyRange:
			if s.primary.Range != nil {
				return nil, NewArgError(fmt.Sprintf("schema %q declares more than one range key", def.Table))
			}
			s.primary.Range = a
		}
		if a.Version {
			if s.version != nil {
				return nil, NewArgError(fmt.Sprintf("schema %q declares more than one version attribute", def.Table))
			}
			s.version = a
		}
		s.attrs[a.Name] = a
		s.byWire[a.Wire] = a
		s.order = append(s.order, a)
	}
	if s.primary.Hash == nil {
		return nil, NewArgError(fmt.Sprintf("schema %q has no hash key", def.Table))
	}
	for _, d := range def.Indexes {
		idx, err := s.resolveIndex(d)
		if err != nil {
			return nil, err
		}
		s.indexes[idx.Name] = idx
	}
	s.names = newNameTable(s.order)
	return s, nil
}

func resolveAttribute(d AttributeDef) (*Attribute, error) {
	if d.Name == "" || strings.ContainsAny(d.Name, ".[]") {
		return nil, NewError(fmt.Sprintf("invalid attribute name %q", d.Name), WithCode(CodeArgument), WithPath(d.Name))
	}
	if strings.ContainsAny(d.Alias, ".[]") {
		return nil, NewError(fmt.Sprintf("invalid alias %q", d.Alias), WithCode(CodeArgument), WithPath(d.Name))
	}
	t := d.Type
	if t == "" {
		t = TypeAny
	}
	if !t.Valid() {
		return nil, NewError(fmt.Sprintf("unknown type %q", d.Type), WithCode(CodeArgument), WithPath(d.Name))
	}
	a := &Attribute{
		Name:     d.Name,
		Wire:     d.Name,
		Type:     t,
		Key:      d.Key,
		Nullable: d.Nullable,
		Required: d.Required,
		Version:  d.Version,
	}
	if d.Alias != "" {
		a.Wire = d.Alias
	}
	switch d.Key {
	case KeyNone:
	case KeyHash, KeyRange:
		if !isKeyType(t) {
			return nil, NewError(fmt.Sprintf("key attribute must be a string, number or binary, not %q", t),
				WithCode(CodeArgument), WithPath(d.Name))
		}
		if d.Nullable {
			return nil, NewError("key attribute cannot be nullable", WithCode(CodeArgument), WithPath(d.Name))
		}
	default:
		return nil, NewError(fmt.Sprintf("unknown key role %q", d.Key), WithCode(CodeArgument), WithPath(d.Name))
	}
	if d.Version {
		if t != TypeInt && t != TypeNumber {
			return nil, NewError("version attribute must be an int", WithCode(CodeArgument), WithPath(d.Name))
		}
		if d.Key != KeyNone {
			return nil, NewError("version attribute cannot be a key", WithCode(CodeArgument), WithPath(d.Name))
		}
	}
	if d.Default != nil {
		av, err := encodeValue(d.Name, d.Default, t)
		if err != nil {
			return nil, err
		}
		a.Default = av
	}
	return a, nil
}

func isKeyType(t AttrType) bool {
	switch t {
	case TypeString, TypeNumber, TypeInt, TypeDecimal, TypeBinary:
		return true
	}
	return false
}

func (s *Schema) resolveIndex(d IndexDef) (*Index, error) {
	if d.Name == "" || d.Name == "primary" {
		return nil, NewArgError(fmt.Sprintf("invalid index name %q", d.Name))
	}
	hash, ok := s.attrs[d.Hash]
	if !ok || !isKeyType(hash.Type) {
		return nil, NewArgError(fmt.Sprintf("index %q: invalid hash attribute %q", d.Name, d.Hash))
	}
	idx := &Index{Name: d.Name, Hash: hash}
	if d.Range != "" {
		rng, ok := s.attrs[d.Range]
		if !ok || !isKeyType(rng.Type) {
			return nil, NewArgError(fmt.Sprintf("index %q: invalid range attribute %q", d.Name, d.Range))
		}
		idx.Range = rng
	}
	return idx, nil
}

// Names returns the schema's strict NameTable.
func (s *Schema) Names() *NameTable { return s.names }

// Attribute looks up a declared attribute by logical name.
func (s *Schema) Attribute(name string) (*Attribute, bool) {
	a, ok := s.attrs[name]
	return a, ok
}

// Attributes returns the declared attributes in declaration order.
func (s *Schema) Attributes() []*Attribute { return append([]*Attribute(nil), s.order...) }

// PrimaryKey returns the table's key pair.
func (s *Schema) PrimaryKey() *Index { return s.primary }

// Index returns the named secondary index; "" or "primary" is the primary key.
func (s *Schema) Index(name string) (*Index, error) {
	if name == "" || name == "primary" {
		return s.primary, nil
	}
	idx, ok := s.indexes[name]
	if !ok {
		return nil, NewArgError(fmt.Sprintf("unknown index %q", name))
	}
	return idx, nil
}

// keyAttributes returns the primary key attributes, hash first.
func (s *Schema) keyAttributes() []*Attribute {
	if s.primary.Range == nil {
		return []*Attribute{s.primary.Hash}
	}
	return []*Attribute{s.primary.Hash, s.primary.Range}
}

// IndexNames returns the declared secondary index names, sorted.
func (s *Schema) IndexNames() []string {
	out := make([]string, 0, len(s.indexes))
	for name := range s.indexes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
