package record

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameTable_Aliases(t *testing.T) {
	names := mustSchema(t, userDef()).Names()

	wire, err := names.ToWire("pk")
	require.NoError(t, err)
	assert.Equal(t, "p", wire)

	wire, err = names.ToWire("profile.address[2].city")
	require.NoError(t, err)
	assert.Equal(t, "profile.address[2].city", wire)

	logical, err := names.ToLogical("s")
	require.NoError(t, err)
	assert.Equal(t, "sk", logical)
}

func TestNameTable_Unknown(t *testing.T) {
	names := mustSchema(t, userDef()).Names()

	_, err := names.ToWire("nope")
	e := requireCode(t, err, CodeUnknownAttribute)
	assert.Equal(t, "nope", e.Path)

	wire, err := names.Permissive().ToWire("nope.deep")
	require.NoError(t, err)
	assert.Equal(t, "nope.deep", wire)
	assert.False(t, names.IsPermissive(), "views must not change the shared table")

	strict := names.Permissive().Strict()
	assert.False(t, strict.IsPermissive())
	_, err = strict.ToWire("nope")
	requireCode(t, err, CodeUnknownAttribute)
}

func TestParsePath(t *testing.T) {
	elems, err := parsePath("a.b[3][0].c")
	require.NoError(t, err)
	assert.Equal(t, []pathElem{
		{name: "a"}, {name: "b"}, {index: 3, isIndex: true}, {index: 0, isIndex: true}, {name: "c"},
	}, elems)
	assert.Equal(t, "a.b[3][0].c", formatPath(elems))

	for _, bad := range []string{"", ".a", "a.", "a..b", "a[", "a[x]", "a[-1]", "[0]", "a]b"} {
		_, err := parsePath(bad)
		requireCode(t, err, CodeArgument)
	}
}

func TestSchema_Validation(t *testing.T) {
	cases := map[string]SchemaDef{
		"no table": {Attributes: []AttributeDef{{Name: "id", Type: TypeString, Key: KeyHash}}},
		"no hash":  {Table: "T", Attributes: []AttributeDef{{Name: "id", Type: TypeString}}},
		"two hashes": {Table: "T", Attributes: []AttributeDef{
			{Name: "a", Type: TypeString, Key: KeyHash}, {Name: "b", Type: TypeString, Key: KeyHash}}},
		"wire collision": {Table: "T", Attributes: []AttributeDef{
			{Name: "id", Type: TypeString, Key: KeyHash}, {Name: "other", Alias: "id"}}},
		"bool key": {Table: "T", Attributes: []AttributeDef{{Name: "id", Type: TypeBool, Key: KeyHash}}},
		"dotted name": {Table: "T", Attributes: []AttributeDef{
			{Name: "id", Type: TypeString, Key: KeyHash}, {Name: "a.b"}}},
		"string version": {Table: "T", Attributes: []AttributeDef{
			{Name: "id", Type: TypeString, Key: KeyHash}, {Name: "v", Type: TypeString, Version: true}}},
		"bad index": {Table: "T", Attributes: []AttributeDef{{Name: "id", Type: TypeString, Key: KeyHash}},
			Indexes: []IndexDef{{Name: "gsi", Hash: "missing"}}},
		"bad default": {Table: "T", Attributes: []AttributeDef{
			{Name: "id", Type: TypeString, Key: KeyHash}, {Name: "n", Type: TypeInt, Default: "x"}}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewSchema(def)
			require.Error(t, err)
		})
	}
}

func TestItem_AliasRoundTrip(t *testing.T) {
	s := mustSchema(t, userDef())

	wire, err := s.EncodeItem(Item{"pk": "u#1", "sk": "profile", "age": 30})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u#1"}, wire["p"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "profile"}, wire["s"])
	assert.NotContains(t, wire, "pk")

	item, err := s.DecodeItem(wire)
	require.NoError(t, err)
	assert.Equal(t, Item{"pk": "u#1", "sk": "profile", "age": int64(30)}, item)
}

func TestItem_Encode(t *testing.T) {
	s := mustSchema(t, userDef())

	_, err := s.EncodeItem(Item{"pk": "a", "sk": "b", "bogus": 1})
	requireCode(t, err, CodeUnknownAttribute)

	_, err = s.EncodeItem(Item{"pk": "a"})
	e := requireCode(t, err, CodeArgument)
	assert.Equal(t, "sk", e.Path)

	wire, err := s.EncodeItem(Item{"pk": "a", "sk": "b", "nickname": "", "status": nil})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberNULL{Value: true}, wire["nickname"])
	assert.NotContains(t, wire, "status")

	_, err = s.EncodeItem(Item{"pk": "a", "sk": "b", "status": ""})
	e = requireCode(t, err, CodeTypeMismatch)
	assert.Equal(t, "status", e.Path)
}

func TestItem_Defaults(t *testing.T) {
	s := mustSchema(t, SchemaDef{Table: "T", Attributes: []AttributeDef{
		{Name: "id", Type: TypeString, Key: KeyHash},
		{Name: "state", Type: TypeString, Default: "new"},
	}})
	wire, err := s.EncodeItem(Item{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "new"}, wire["state"])
}

func TestItem_DecodeUndeclared(t *testing.T) {
	s := mustSchema(t, userDef())
	item, err := s.DecodeItem(map[string]types.AttributeValue{
		"p":     &types.AttributeValueMemberS{Value: "a"},
		"extra": &types.AttributeValueMemberN{Value: "5"},
	})
	require.NoError(t, err)
	assert.Equal(t, Item{"pk": "a", "extra": Number("5")}, item)
}

func TestItem_Keys(t *testing.T) {
	s := mustSchema(t, userDef())

	key, err := s.EncodeKey(Item{"pk": "a", "sk": "b"})
	require.NoError(t, err)
	assert.Len(t, key, 2)

	_, err = s.EncodeKey(Item{"pk": "a", "sk": "b", "age": 3})
	requireCode(t, err, CodeArgument)

	key, err = s.KeyOf(Item{"pk": "a", "sk": "b", "age": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]types.AttributeValue{
		"p": &types.AttributeValueMemberS{Value: "a"},
		"s": &types.AttributeValueMemberS{Value: "b"},
	}, key)
}

func TestItem_RawValuesChecked(t *testing.T) {
	s := mustSchema(t, userDef())

	_, err := s.EncodeKey(Item{"pk": &types.AttributeValueMemberN{Value: "1"}, "sk": "b"})
	e := requireCode(t, err, CodeTypeMismatch)
	assert.Equal(t, "pk", e.Path)

	_, err = s.EncodeItem(Item{"pk": "a", "sk": "b", "age": &types.AttributeValueMemberS{Value: "old"}})
	e = requireCode(t, err, CodeTypeMismatch)
	assert.Equal(t, "age", e.Path)

	_, err = s.EncodeItem(Item{"pk": "a", "sk": "b", "status": &types.AttributeValueMemberNULL{Value: true}})
	requireCode(t, err, CodeTypeMismatch)

	m, err := s.EncodeItem(Item{
		"pk":       &types.AttributeValueMemberS{Value: "a"},
		"sk":       "b",
		"age":      &types.AttributeValueMemberN{Value: "+042"},
		"nickname": &types.AttributeValueMemberNULL{Value: true},
	})
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "a"}, m["p"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, m["age"])
	assert.Equal(t, &types.AttributeValueMemberNULL{Value: true}, m["nickname"])
}

type userRecord struct {
	PK    string   `dynamodbav:"pk"`
	SK    string   `dynamodbav:"sk"`
	Age   int      `dynamodbav:"age"`
	Roles []string `dynamodbav:"roles,omitempty"`
}

func TestItem_Structs(t *testing.T) {
	s := mustSchema(t, userDef())

	item, err := s.RecordFromStruct(userRecord{PK: "a", SK: "b", Age: 7, Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.Equal(t, Item{"pk": "a", "sk": "b", "age": int64(7), "roles": []string{"admin"}}, item)

	var out userRecord
	require.NoError(t, s.RecordToStruct(item, &out))
	assert.Equal(t, userRecord{PK: "a", SK: "b", Age: 7, Roles: []string{"admin"}}, out)
}
