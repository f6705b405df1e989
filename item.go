package record

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is a record keyed by logical attribute names.
type Item map[string]any

// EncodeItem converts a record into wire attributes. Missing attributes with
// a default get the default; nil values are omitted unless the attribute is
// nullable, in which case they become NULL.
func (s *Schema) EncodeItem(item Item) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(item))
	for _, name := range sortedKeys(item) {
		a, ok := s.attrs[name]
		if !ok {
			return nil, NewError(fmt.Sprintf("unknown attribute %q", name), WithCode(CodeUnknownAttribute), WithPath(name))
		}
		av, err := encodeAttribute(a, item[name])
		if err != nil {
			return nil, err
		}
		if av != nil {
			out[a.Wire] = av
		}
	}
	for _, a := range s.order {
		if _, ok := out[a.Wire]; ok {
			continue
		}
		if a.Default != nil {
			out[a.Wire] = a.Default
			continue
		}
		if a.Required || a.Key != KeyNone {
			return nil, NewError(fmt.Sprintf("missing required attribute %q", a.Name), WithCode(CodeArgument), WithPath(a.Name))
		}
	}
	return out, nil
}

// encodeAttribute returns nil when the attribute should be omitted.
func encodeAttribute(a *Attribute, v any) (types.AttributeValue, error) {
	if indirect(v) == nil {
		if a.Nullable {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		if a.Key != KeyNone {
			return nil, NewError("key attribute cannot be null", WithCode(CodeTypeMismatch), WithPath(a.Name))
		}
		return nil, nil
	}
	if _, ok := v.(*types.AttributeValueMemberNULL); ok && a.Nullable {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	av, err := encodeValue(a.Name, v, a.Type)
	if err != nil {
		if a.Nullable && isEmpty(v) {
			return &types.AttributeValueMemberNULL{Value: true}, nil
		}
		return nil, err
	}
	return av, nil
}

// DecodeItem converts wire attributes into a record. Undeclared wire names
// are kept under their wire name with their natural Go type.
func (s *Schema) DecodeItem(m map[string]types.AttributeValue) (Item, error) {
	if m == nil {
		return nil, nil
	}
	out := make(Item, len(m))
	for wire, av := range m {
		a, ok := s.byWire[wire]
		if !ok {
			v, err := decodeAny(wire, av)
			if err != nil {
				return nil, err
			}
			out[wire] = v
			continue
		}
		v, err := decodeValue(a.Name, av, a.Type)
		if err != nil {
			return nil, err
		}
		out[a.Name] = v
	}
	return out, nil
}

// EncodeKey encodes the primary key of a record. Every key attribute must be
// present; non-key attributes are rejected.
func (s *Schema) EncodeKey(key Item) (map[string]types.AttributeValue, error) {
	return s.encodeIndexKey(s.primary, key, false)
}

// KeyOf extracts the primary key attributes from a full record.
func (s *Schema) KeyOf(item Item) (map[string]types.AttributeValue, error) {
	return s.encodeIndexKey(s.primary, item, true)
}

func (s *Schema) encodeIndexKey(idx *Index, key Item, allowExtra bool) (map[string]types.AttributeValue, error) {
	attrs := []*Attribute{idx.Hash}
	if idx.Range != nil {
		attrs = append(attrs, idx.Range)
	}
	out := make(map[string]types.AttributeValue, len(attrs))
	for _, a := range attrs {
		v, ok := key[a.Name]
		if !ok || indirect(v) == nil {
			return nil, NewError(fmt.Sprintf("missing key attribute %q", a.Name), WithCode(CodeArgument), WithPath(a.Name))
		}
		av, err := encodeValue(a.Name, v, a.Type)
		if err != nil {
			return nil, err
		}
		out[a.Wire] = av
	}
	if !allowExtra && len(key) > len(attrs) {
		for _, name := range sortedKeys(key) {
			if a, ok := s.attrs[name]; !ok || (a != idx.Hash && a != idx.Range) {
				return nil, NewError(fmt.Sprintf("%q is not a key attribute", name), WithCode(CodeArgument), WithPath(name))
			}
		}
	}
	return out, nil
}

// RecordFromStruct converts a struct whose dynamodbav tags name logical
// attributes into a record, checking each field against its declared type.
func (s *Schema) RecordFromStruct(v any) (Item, error) {
	m, err := attributevalue.MarshalMap(v)
	if err != nil {
		return nil, NewError("cannot marshal record", WithCode(CodeTypeMismatch), WithCause(err))
	}
	out := make(Item, len(m))
	for name, av := range m {
		a, ok := s.attrs[name]
		if !ok {
			return nil, NewError(fmt.Sprintf("unknown attribute %q", name), WithCode(CodeUnknownAttribute), WithPath(name))
		}
		val, err := decodeValue(name, listAsSet(av, a.Type), a.Type)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

// RecordToStruct fills out (a pointer to struct) from a record.
func (s *Schema) RecordToStruct(item Item, out any) error {
	m := make(map[string]types.AttributeValue, len(item))
	for name, v := range item {
		t := TypeAny
		if a, ok := s.attrs[name]; ok {
			t = a.Type
		}
		av, err := encodeValue(name, v, t)
		if err != nil {
			return err
		}
		m[name] = av
	}
	if err := attributevalue.UnmarshalMap(m, out); err != nil {
		return NewError("cannot unmarshal record", WithCode(CodeTypeMismatch), WithCause(err))
	}
	return nil
}

// listAsSet turns a homogeneous list into a set when a set is declared;
// struct marshalling emits slices as lists unless tagged otherwise.
func listAsSet(av types.AttributeValue, t AttrType) types.AttributeValue {
	l, ok := av.(*types.AttributeValueMemberL)
	if !ok || !t.isSet() || len(l.Value) == 0 {
		return av
	}
	switch t {
	case TypeStringSet:
		out := make([]string, 0, len(l.Value))
		for _, el := range l.Value {
			s, ok := el.(*types.AttributeValueMemberS)
			if !ok {
				return av
			}
			out = append(out, s.Value)
		}
		return &types.AttributeValueMemberSS{Value: out}
	case TypeNumberSet:
		out := make([]string, 0, len(l.Value))
		for _, el := range l.Value {
			n, ok := el.(*types.AttributeValueMemberN)
			if !ok {
				return av
			}
			out = append(out, n.Value)
		}
		return &types.AttributeValueMemberNS{Value: out}
	case TypeBinarySet:
		out := make([][]byte, 0, len(l.Value))
		for _, el := range l.Value {
			b, ok := el.(*types.AttributeValueMemberB)
			if !ok {
				return av
			}
			out = append(out, b.Value)
		}
		return &types.AttributeValueMemberBS{Value: out}
	}
	return av
}

func isEmpty(v any) bool {
	rv := reflect.ValueOf(indirect(v))
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
