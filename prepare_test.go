package record

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_PutWithCondition(t *testing.T) {
	s := mustSchema(t, userDef())
	req, err := s.Prepare(Operation{
		Kind:      OpPut,
		Item:      Item{"pk": "u#1", "sk": "a", "age": 5},
		Condition: Attr("pk").NotExists(),
	})
	require.NoError(t, err)
	assert.Equal(t, "Users", req.Table)
	assert.Equal(t, "attribute_not_exists(#_0)", req.Condition)
	assert.Equal(t, map[string]string{"#_0": "p"}, req.Names)
	assert.Nil(t, req.Values)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "u#1"}, req.Key["p"])
	assert.Positive(t, req.Size)
}

func TestPrepare_SharedCompiler(t *testing.T) {
	s := mustSchema(t, userDef())
	req, err := s.Prepare(Operation{
		Kind:       OpUpdate,
		Key:        Item{"pk": "u#1", "sk": "a"},
		Updates:    []UpdateOp{Set("status", "x")},
		Condition:  Attr("status").Ne("y"),
		Projection: []string{"status", "age"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SET #_0 = :_0", req.Update)
	assert.Equal(t, "#_0 <> :_1", req.Condition)
	assert.Equal(t, "#_0, #_1", req.Projection)
	assert.Len(t, req.Values, 2)
}

func TestPrepare_RejectsKeyUpdate(t *testing.T) {
	s := mustSchema(t, userDef())
	_, err := s.Prepare(Operation{Kind: OpUpdate, Key: Item{"pk": "a", "sk": "b"}, Updates: []UpdateOp{Set("sk", "c")}})
	e := requireCode(t, err, CodeArgument)
	assert.Equal(t, "sk", e.Path)
}

func TestPrepare_PayloadTooLarge(t *testing.T) {
	s := mustSchema(t, userDef())
	_, err := s.Prepare(Operation{Kind: OpPut, Item: Item{"pk": "a", "sk": "b", "status": strings.Repeat("x", MaxItemSize)}})
	requireCode(t, err, CodePayloadTooLarge)

	_, err = s.Prepare(Operation{Kind: OpUpdate, Key: Item{"pk": "a", "sk": "b"},
		Updates: []UpdateOp{Set("status", strings.Repeat("x", MaxItemSize))}})
	requireCode(t, err, CodePayloadTooLarge)
}

func TestPrepare_Version(t *testing.T) {
	s := mustSchema(t, versionedDef())

	req, err := s.Prepare(Operation{Kind: OpPut, Item: Item{"id": "d1", "body": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "attribute_not_exists(#_0)", req.Condition)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "1"}, req.Item["rev"])
	require.NotNil(t, req.NewVersion)
	assert.EqualValues(t, 1, *req.NewVersion)

	req, err = s.Prepare(Operation{Kind: OpPut, Item: Item{"id": "d1", "body": "x", "rev": 4}})
	require.NoError(t, err)
	assert.Equal(t, "#_0 = :_0", req.Condition)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "4"}, req.Values[":_0"])
	assert.Equal(t, &types.AttributeValueMemberN{Value: "5"}, req.Item["rev"])

	current := int64(7)
	req, err = s.Prepare(Operation{Kind: OpUpdate, Key: Item{"id": "d1"}, Updates: []UpdateOp{Set("body", "y")}, Version: &current})
	require.NoError(t, err)
	assert.Equal(t, "SET #_0 = :_0, #_1 = :_1", req.Update)
	assert.Equal(t, "#_1 = :_2", req.Condition)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "8"}, req.Values[":_1"])

	_, err = s.Prepare(Operation{Kind: OpUpdate, Key: Item{"id": "d1"}, Updates: []UpdateOp{Set("rev", 1)}})
	requireCode(t, err, CodeArgument)

	req, err = s.Prepare(Operation{Kind: OpDelete, Key: Item{"id": "d1"}, Version: &current})
	require.NoError(t, err)
	assert.Equal(t, "#_0 = :_0", req.Condition)

	req, err = s.Prepare(Operation{Kind: OpPut, Item: Item{"id": "d1"}, SkipVersion: true})
	require.NoError(t, err)
	assert.Empty(t, req.Condition)
	assert.NotContains(t, req.Item, "rev")
}

func TestPrepare_Query(t *testing.T) {
	s := mustSchema(t, userDef())

	req, err := s.Prepare(Operation{
		Kind:         OpQuery,
		Key:          Item{"pk": "u#1"},
		KeyCondition: Attr("sk").BeginsWith("order#"),
		Filter:       Attr("undeclared").Eq(3),
		Limit:        10,
		Descending:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "#_0 = :_0 AND begins_with(#_1, :_1)", req.KeyCondition)
	assert.Equal(t, "#_2 = :_2", req.Filter)
	assert.Equal(t, map[string]string{"#_0": "p", "#_1": "s", "#_2": "undeclared"}, req.Names)
	assert.Empty(t, req.IndexName)

	in := req.queryInput("")
	assert.Equal(t, int32(10), *in.Limit)
	assert.False(t, *in.ScanIndexForward)

	req, err = s.Prepare(Operation{Kind: OpQuery, Index: "byStatus", Key: Item{"status": "active"},
		KeyCondition: Attr("age").Between(18, 30), Count: true})
	require.NoError(t, err)
	assert.Equal(t, "byStatus", req.IndexName)
	assert.Equal(t, types.SelectCount, req.Select)

	_, err = s.Prepare(Operation{Kind: OpQuery, Key: Item{"pk": "u#1"}, KeyCondition: Attr("sk").Ne("x")})
	requireCode(t, err, CodeArgument)

	_, err = s.Prepare(Operation{Kind: OpQuery, Key: Item{"pk": "u#1"}, KeyCondition: Attr("age").Eq(1)})
	requireCode(t, err, CodeArgument)

	_, err = s.Prepare(Operation{Kind: OpQuery, Key: Item{"sk": "x"}})
	requireCode(t, err, CodeArgument)

	_, err = s.Prepare(Operation{Kind: OpQuery, Index: "nope", Key: Item{"pk": "x"}})
	requireCode(t, err, CodeArgument)
}

func TestPrepare_Scan(t *testing.T) {
	s := mustSchema(t, userDef())

	req, err := s.Prepare(Operation{Kind: OpScan, Segment: 1, TotalSegments: 4, Filter: Attr("age").Gt(1)})
	require.NoError(t, err)
	in := req.scanInput(types.ReturnConsumedCapacityTotal)
	assert.Equal(t, int32(1), *in.Segment)
	assert.Equal(t, int32(4), *in.TotalSegments)
	assert.Equal(t, "#_0 > :_0", *in.FilterExpression)

	_, err = s.Prepare(Operation{Kind: OpScan, Segment: 4, TotalSegments: 4})
	requireCode(t, err, CodeArgument)
}

func TestPrepare_ReturnValues(t *testing.T) {
	s := mustSchema(t, userDef())

	_, err := s.Prepare(Operation{Kind: OpPut, Item: Item{"pk": "a", "sk": "b"}, ReturnValues: types.ReturnValueAllNew})
	requireCode(t, err, CodeArgument)

	req, err := s.Prepare(Operation{Kind: OpDelete, Key: Item{"pk": "a", "sk": "b"},
		ReturnValues: types.ReturnValueAllOld, ReturnOldOnConditionFailure: true})
	require.NoError(t, err)
	in := req.deleteInput("")
	assert.Equal(t, types.ReturnValueAllOld, in.ReturnValues)
	assert.Equal(t, types.ReturnValuesOnConditionCheckFailureAllOld, in.ReturnValuesOnConditionCheckFailure)
}

func TestPrepare_ValidationBeforeIO(t *testing.T) {
	s := mustSchema(t, userDef())
	_, err := s.Prepare(Operation{Kind: OpCheck, Key: Item{"pk": "a", "sk": "b"}})
	requireCode(t, err, CodeEmptyExpression)

	_, err = s.Prepare(Operation{Kind: OpGet, Key: Item{"pk": "a"}})
	requireCode(t, err, CodeArgument)

	_, err = s.Prepare(Operation{Kind: "explode"})
	requireCode(t, err, CodeArgument)
}
