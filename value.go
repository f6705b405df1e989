/*
Package record – value codec.

Encode and Decode map typed Go values onto the tagged AttributeValue union and
back. Numbers always travel as decimal text; a conversion that cannot be exact
fails with PrecisionLoss instead of rounding.
*/
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// AttrType is the declared type of an attribute.
type AttrType string

const (
	TypeString    AttrType = "string"
	TypeNumber    AttrType = "number"  // decodes to Number
	TypeInt       AttrType = "int"     // decodes to int64
	TypeFloat     AttrType = "float"   // decodes to float64
	TypeDecimal   AttrType = "decimal" // decodes to decimal.Decimal
	TypeBool      AttrType = "bool"
	TypeBinary    AttrType = "binary"
	TypeList      AttrType = "list"
	TypeMap       AttrType = "map"
	TypeStringSet AttrType = "string_set"
	TypeNumberSet AttrType = "number_set" // decodes to []Number
	TypeBinarySet AttrType = "binary_set"
	TypeTime      AttrType = "time" // epoch seconds, decodes to UTC time.Time
	TypeAny       AttrType = "any"
)

var validAttrTypes = map[AttrType]bool{
	TypeString: true, TypeNumber: true, TypeInt: true, TypeFloat: true,
	TypeDecimal: true, TypeBool: true, TypeBinary: true, TypeList: true,
	TypeMap: true, TypeStringSet: true, TypeNumberSet: true, TypeBinarySet: true,
	TypeTime: true, TypeAny: true,
}

// Valid reports whether t is a known attribute type.
func (t AttrType) Valid() bool { return validAttrTypes[t] }

func (t AttrType) isNumeric() bool {
	switch t {
	case TypeNumber, TypeInt, TypeFloat, TypeDecimal, TypeTime:
		return true
	}
	return false
}

func (t AttrType) isSet() bool {
	return t == TypeStringSet || t == TypeNumberSet || t == TypeBinarySet
}

// element returns the member type of a set type.
func (t AttrType) element() AttrType {
	switch t {
	case TypeStringSet:
		return TypeString
	case TypeNumberSet:
		return TypeNumber
	case TypeBinarySet:
		return TypeBinary
	}
	return TypeAny
}

// Number is a number kept as its exact decimal text.
type Number string

func (n Number) String() string { return string(n) }

func (n Number) Int64() (int64, error) { return strconv.ParseInt(string(n), 10, 64) }

func (n Number) Float64() (float64, error) { return strconv.ParseFloat(string(n), 64) }

func (n Number) Decimal() (decimal.Decimal, error) { return decimal.NewFromString(string(n)) }

func (n Number) MarshalJSON() ([]byte, error) {
	if _, err := decimal.NewFromString(string(n)); err != nil {
		return nil, err
	}
	return []byte(n), nil
}

var (
	bytesType   = reflect.TypeOf([]byte(nil))
	timeType    = reflect.TypeOf(time.Time{})
	avInterface = reflect.TypeOf((*types.AttributeValue)(nil)).Elem()
)

// Encode converts v into an AttributeValue of the declared type. A nil value
// encodes to the NULL marker.
func Encode(v any, t AttrType) (types.AttributeValue, error) {
	return encodeValue("", v, t)
}

// Decode converts av back into the Go type declared by t. NULL decodes to nil.
func Decode(av types.AttributeValue, t AttrType) (any, error) {
	return decodeValue("", av, t)
}

func encodeValue(path string, v any, t AttrType) (types.AttributeValue, error) {
	v = indirect(v)
	if v == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	if av, ok := v.(types.AttributeValue); ok {
		return encodeRaw(path, av, t)
	}
	switch t {
	case TypeString:
		s, ok := asString(v)
		if !ok {
			return nil, typeMismatch(path, "expected string, got %T", v)
		}
		if s == "" {
			return nil, typeMismatch(path, "empty string is not allowed")
		}
		return &types.AttributeValueMemberS{Value: s}, nil

	case TypeNumber, TypeDecimal, TypeFloat:
		n, err := numberText(path, v)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: n}, nil

	case TypeInt:
		n, err := integerText(path, v)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: n}, nil

	case TypeTime:
		if tm, ok := v.(time.Time); ok {
			if tm.Nanosecond() != 0 {
				return nil, precisionLoss(path, "%s has sub-second precision", tm.Format(time.RFC3339Nano))
			}
			return &types.AttributeValueMemberN{Value: strconv.FormatInt(tm.Unix(), 10)}, nil
		}
		n, err := integerText(path, v)
		if err != nil {
			return nil, err
		}
		return &types.AttributeValueMemberN{Value: n}, nil

	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.Bool {
				return nil, typeMismatch(path, "expected bool, got %T", v)
			}
			b = rv.Bool()
		}
		return &types.AttributeValueMemberBOOL{Value: b}, nil

	case TypeBinary:
		b, ok := asBytes(v)
		if !ok {
			return nil, typeMismatch(path, "expected []byte, got %T", v)
		}
		if len(b) == 0 {
			return nil, typeMismatch(path, "empty binary is not allowed")
		}
		return &types.AttributeValueMemberB{Value: bytes.Clone(b)}, nil

	case TypeList:
		return encodeList(path, v)

	case TypeMap:
		return encodeMap(path, v)

	case TypeStringSet:
		return encodeStringSet(path, v)

	case TypeNumberSet:
		return encodeNumberSet(path, v)

	case TypeBinarySet:
		return encodeBinarySet(path, v)

	case TypeAny, "":
		return encodeAny(path, v)
	}
	return nil, NewArgError(fmt.Sprintf("unknown attribute type %q", t))
}

// wireTag is the tag a declared type encodes to. TypeAny accepts any tag.
func wireTag(t AttrType) string {
	switch t {
	case TypeString:
		return "S"
	case TypeNumber, TypeInt, TypeFloat, TypeDecimal, TypeTime:
		return "N"
	case TypeBool:
		return "BOOL"
	case TypeBinary:
		return "B"
	case TypeList:
		return "L"
	case TypeMap:
		return "M"
	case TypeStringSet:
		return "SS"
	case TypeNumberSet:
		return "NS"
	case TypeBinarySet:
		return "BS"
	}
	return ""
}

// encodeRaw accepts a caller-built AttributeValue only when it carries the
// tag of t. Numbers are re-checked against t and canonicalized.
func encodeRaw(path string, av types.AttributeValue, t AttrType) (types.AttributeValue, error) {
	want := wireTag(t)
	if want == "" {
		return av, nil
	}
	if avTag(av) != want {
		return nil, wrongTag(path, want, av)
	}
	switch x := av.(type) {
	case *types.AttributeValueMemberN:
		return encodeValue(path, Number(x.Value), t)
	case *types.AttributeValueMemberNS:
		members := make([]Number, len(x.Value))
		for i, n := range x.Value {
			members[i] = Number(n)
		}
		return encodeNumberSet(path, members)
	case *types.AttributeValueMemberS:
		if x.Value == "" {
			return nil, typeMismatch(path, "empty string is not allowed")
		}
	case *types.AttributeValueMemberB:
		if len(x.Value) == 0 {
			return nil, typeMismatch(path, "empty binary is not allowed")
		}
	case *types.AttributeValueMemberSS:
		return encodeStringSet(path, x.Value)
	case *types.AttributeValueMemberBS:
		return encodeBinarySet(path, x.Value)
	}
	return av, nil
}

func encodeAny(path string, v any) (types.AttributeValue, error) {
	switch x := v.(type) {
	case Number, json.Number, decimal.Decimal, *big.Int:
		return encodeValue(path, v, TypeNumber)
	case bool:
		return &types.AttributeValueMemberBOOL{Value: x}, nil
	case []byte:
		return encodeValue(path, x, TypeBinary)
	case time.Time:
		return &types.AttributeValueMemberS{Value: x.Format(time.RFC3339Nano)}, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return encodeValue(path, v, TypeString)
	case reflect.Bool:
		return &types.AttributeValueMemberBOOL{Value: rv.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return encodeValue(path, v, TypeNumber)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			return encodeValue(path, rv.Bytes(), TypeBinary)
		}
		return encodeList(path, v)
	case reflect.Map:
		return encodeMap(path, v)
	case reflect.Struct:
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, NewError("cannot marshal struct", WithCode(CodeTypeMismatch), WithPath(path), WithCause(err))
		}
		return av, nil
	}
	return nil, typeMismatch(path, "unsupported value type %T", v)
}

func encodeList(path string, v any) (types.AttributeValue, error) {
	rv := reflect.ValueOf(v)
	if (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) || rv.Type() == bytesType {
		return nil, typeMismatch(path, "expected list, got %T", v)
	}
	out := make([]types.AttributeValue, rv.Len())
	for i := range out {
		av, err := encodeValue(fmt.Sprintf("%s[%d]", path, i), rv.Index(i).Interface(), TypeAny)
		if err != nil {
			return nil, err
		}
		out[i] = av
	}
	return &types.AttributeValueMemberL{Value: out}, nil
}

func encodeMap(path string, v any) (types.AttributeValue, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Struct && rv.Type() != timeType {
		return encodeAny(path, v)
	}
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, typeMismatch(path, "expected map with string keys, got %T", v)
	}
	out := make(map[string]types.AttributeValue, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		av, err := encodeValue(joinPath(path, k), iter.Value().Interface(), TypeAny)
		if err != nil {
			return nil, err
		}
		out[k] = av
	}
	return &types.AttributeValueMemberM{Value: out}, nil
}

func encodeStringSet(path string, v any) (types.AttributeValue, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() != reflect.String {
		return nil, typeMismatch(path, "expected string set, got %T", v)
	}
	if rv.Len() == 0 {
		return nil, typeMismatch(path, "empty set is not allowed")
	}
	seen := make(map[string]bool, rv.Len())
	out := make([]string, rv.Len())
	for i := range out {
		s := rv.Index(i).String()
		if s == "" {
			return nil, typeMismatch(path, "empty string in set")
		}
		if seen[s] {
			return nil, typeMismatch(path, "duplicate set member %q", s)
		}
		seen[s] = true
		out[i] = s
	}
	return &types.AttributeValueMemberSS{Value: out}, nil
}

func encodeNumberSet(path string, v any) (types.AttributeValue, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type() == bytesType {
		return nil, typeMismatch(path, "expected number set, got %T", v)
	}
	if rv.Len() == 0 {
		return nil, typeMismatch(path, "empty set is not allowed")
	}
	seen := make(map[string]bool, rv.Len())
	out := make([]string, rv.Len())
	for i := range out {
		n, err := numberText(path, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if seen[n] {
			return nil, typeMismatch(path, "duplicate set member %s", n)
		}
		seen[n] = true
		out[i] = n
	}
	return &types.AttributeValueMemberNS{Value: out}, nil
}

func encodeBinarySet(path string, v any) (types.AttributeValue, error) {
	set, ok := v.([][]byte)
	if !ok {
		return nil, typeMismatch(path, "expected binary set, got %T", v)
	}
	if len(set) == 0 {
		return nil, typeMismatch(path, "empty set is not allowed")
	}
	seen := make(map[string]bool, len(set))
	out := make([][]byte, len(set))
	for i, b := range set {
		if len(b) == 0 {
			return nil, typeMismatch(path, "empty binary in set")
		}
		if seen[string(b)] {
			return nil, typeMismatch(path, "duplicate set member")
		}
		seen[string(b)] = true
		out[i] = bytes.Clone(b)
	}
	return &types.AttributeValueMemberBS{Value: out}, nil
}

// numberText returns the exact decimal text of a numeric value.
func numberText(path string, v any) (string, error) {
	v = indirect(v)
	switch x := v.(type) {
	case Number:
		return checkedNumber(path, string(x))
	case json.Number:
		return checkedNumber(path, string(x))
	case decimal.Decimal:
		return x.String(), nil
	case *big.Int:
		if x == nil {
			return "", typeMismatch(path, "nil big.Int")
		}
		return x.String(), nil
	case float64:
		return floatText(path, x, 64)
	case float32:
		return floatText(path, float64(x), 32)
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return floatText(path, rv.Float(), 32)
	case reflect.Float64:
		return floatText(path, rv.Float(), 64)
	}
	return "", typeMismatch(path, "expected number, got %T", v)
}

// integerText is numberText restricted to integral values.
func integerText(path string, v any) (string, error) {
	n, err := numberText(path, v)
	if err != nil {
		return "", err
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return "", typeMismatch(path, "invalid number %q", n)
	}
	if !d.IsInteger() {
		return "", precisionLoss(path, "%s has a fractional part", n)
	}
	return d.String(), nil
}

// checkedNumber validates number text and returns its canonical form: no
// sign on positives, no leading or trailing zeros, no exponent.
func checkedNumber(path, s string) (string, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", typeMismatch(path, "invalid number %q", s)
	}
	return d.String(), nil
}

func floatText(path string, f float64, bits int) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", precisionLoss(path, "%v has no decimal representation", f)
	}
	return checkedNumber(path, strconv.FormatFloat(f, 'g', -1, bits))
}

func decodeValue(path string, av types.AttributeValue, t AttrType) (any, error) {
	if av == nil {
		return nil, nil
	}
	if _, ok := av.(*types.AttributeValueMemberNULL); ok {
		return nil, nil
	}
	switch t {
	case TypeString:
		s, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return nil, wrongTag(path, "S", av)
		}
		return s.Value, nil

	case TypeNumber:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, wrongTag(path, "N", av)
		}
		return Number(n.Value), nil

	case TypeInt, TypeTime:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, wrongTag(path, "N", av)
		}
		i, err := strconv.ParseInt(n.Value, 10, 64)
		if err != nil {
			if _, derr := decimal.NewFromString(n.Value); derr != nil {
				return nil, typeMismatch(path, "invalid number %q", n.Value)
			}
			return nil, precisionLoss(path, "%s does not fit int64", n.Value)
		}
		if t == TypeTime {
			return time.Unix(i, 0).UTC(), nil
		}
		return i, nil

	case TypeFloat:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, wrongTag(path, "N", av)
		}
		return exactFloat(path, n.Value)

	case TypeDecimal:
		n, ok := av.(*types.AttributeValueMemberN)
		if !ok {
			return nil, wrongTag(path, "N", av)
		}
		d, err := decimal.NewFromString(n.Value)
		if err != nil {
			return nil, typeMismatch(path, "invalid number %q", n.Value)
		}
		return d, nil

	case TypeBool:
		b, ok := av.(*types.AttributeValueMemberBOOL)
		if !ok {
			return nil, wrongTag(path, "BOOL", av)
		}
		return b.Value, nil

	case TypeBinary:
		b, ok := av.(*types.AttributeValueMemberB)
		if !ok {
			return nil, wrongTag(path, "B", av)
		}
		return bytes.Clone(b.Value), nil

	case TypeList:
		if _, ok := av.(*types.AttributeValueMemberL); !ok {
			return nil, wrongTag(path, "L", av)
		}
	case TypeMap:
		if _, ok := av.(*types.AttributeValueMemberM); !ok {
			return nil, wrongTag(path, "M", av)
		}
	case TypeStringSet:
		if _, ok := av.(*types.AttributeValueMemberSS); !ok {
			return nil, wrongTag(path, "SS", av)
		}
	case TypeNumberSet:
		if _, ok := av.(*types.AttributeValueMemberNS); !ok {
			return nil, wrongTag(path, "NS", av)
		}
	case TypeBinarySet:
		if _, ok := av.(*types.AttributeValueMemberBS); !ok {
			return nil, wrongTag(path, "BS", av)
		}
	case TypeAny, "":
	default:
		return nil, NewArgError(fmt.Sprintf("unknown attribute type %q", t))
	}
	return decodeAny(path, av)
}

func decodeAny(path string, av types.AttributeValue) (any, error) {
	switch x := av.(type) {
	case *types.AttributeValueMemberS:
		return x.Value, nil
	case *types.AttributeValueMemberN:
		return Number(x.Value), nil
	case *types.AttributeValueMemberB:
		return bytes.Clone(x.Value), nil
	case *types.AttributeValueMemberBOOL:
		return x.Value, nil
	case *types.AttributeValueMemberNULL:
		return nil, nil
	case *types.AttributeValueMemberL:
		out := make([]any, len(x.Value))
		for i, el := range x.Value {
			v, err := decodeAny(fmt.Sprintf("%s[%d]", path, i), el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *types.AttributeValueMemberM:
		out := make(map[string]any, len(x.Value))
		for k, el := range x.Value {
			v, err := decodeAny(joinPath(path, k), el)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case *types.AttributeValueMemberSS:
		return append([]string(nil), x.Value...), nil
	case *types.AttributeValueMemberNS:
		out := make([]Number, len(x.Value))
		for i, n := range x.Value {
			out[i] = Number(n)
		}
		return out, nil
	case *types.AttributeValueMemberBS:
		out := make([][]byte, len(x.Value))
		for i, b := range x.Value {
			out[i] = bytes.Clone(b)
		}
		return out, nil
	}
	return nil, typeMismatch(path, "unsupported attribute value %T", av)
}

// exactFloat parses s and fails if float64 cannot hold it exactly.
func exactFloat(path, s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, typeMismatch(path, "invalid number %q", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, precisionLoss(path, "%s is out of float64 range", s)
	}
	if !decimal.NewFromFloat(f).Equal(d) {
		return 0, precisionLoss(path, "%s is not exactly representable as float64", s)
	}
	return f, nil
}

func wrongTag(path, want string, av types.AttributeValue) *Error {
	return typeMismatch(path, "expected %s attribute, got %s", want, avTag(av))
}

// avTag returns the wire tag name of av.
func avTag(av types.AttributeValue) string {
	switch av.(type) {
	case *types.AttributeValueMemberS:
		return "S"
	case *types.AttributeValueMemberN:
		return "N"
	case *types.AttributeValueMemberB:
		return "B"
	case *types.AttributeValueMemberBOOL:
		return "BOOL"
	case *types.AttributeValueMemberNULL:
		return "NULL"
	case *types.AttributeValueMemberL:
		return "L"
	case *types.AttributeValueMemberM:
		return "M"
	case *types.AttributeValueMemberSS:
		return "SS"
	case *types.AttributeValueMemberNS:
		return "NS"
	case *types.AttributeValueMemberBS:
		return "BS"
	}
	return fmt.Sprintf("%T", av)
}

func asString(v any) (string, bool) {
	if s, ok := v.(string); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}

func asBytes(v any) ([]byte, bool) {
	if b, ok := v.([]byte); ok {
		return b, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return rv.Bytes(), true
	}
	return nil, false
}

// indirect dereferences pointers; a nil pointer becomes nil. AttributeValue
// members are pointers themselves and are returned unchanged.
func indirect(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type().Implements(avInterface) {
		return v
	}
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if _, ok := rv.Interface().(*big.Int); ok {
			return rv.Interface()
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}
