package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	record "github.com/cloudxsgmbh/dynamodb-record-go"
)

// memClient keeps items by hash key. Methods the tests do not call are left
// to the embedded nil interface.
type memClient struct {
	record.DynamoClient
	items map[string]map[string]types.AttributeValue
}

func (m *memClient) id(item map[string]types.AttributeValue) string {
	return item["id"].(*types.AttributeValueMemberS).Value
}

func (m *memClient) PutItem(_ context.Context, in *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	m.items[m.id(in.Item)] = in.Item
	return &ddb.PutItemOutput{}, nil
}

func (m *memClient) GetItem(_ context.Context, in *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	return &ddb.GetItemOutput{Item: m.items[m.id(in.Key)]}, nil
}

func (m *memClient) DeleteItem(_ context.Context, in *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	old := m.items[m.id(in.Key)]
	delete(m.items, m.id(in.Key))
	return &ddb.DeleteItemOutput{Attributes: old}, nil
}

func (m *memClient) Scan(_ context.Context, _ *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	out := &ddb.ScanOutput{}
	for _, item := range m.items {
		out.Items = append(out.Items, item)
	}
	out.Count = int32(len(out.Items))
	return out, nil
}

func newTestTable(t *testing.T) *record.Table {
	t.Helper()
	schema, err := record.NewSchema(record.SchemaDef{
		Table: "Things",
		Attributes: []record.AttributeDef{
			{Name: "id", Type: record.TypeString, Key: record.KeyHash},
			{Name: "count", Type: record.TypeInt},
		},
	})
	require.NoError(t, err)
	table, err := record.NewTable(record.TableParams{
		Client: &memClient{items: map[string]map[string]types.AttributeValue{}},
		Schema: schema,
		Logger: record.NopLogger{},
	})
	require.NoError(t, err)
	return table
}

func TestParseItem(t *testing.T) {
	item, err := parseItem(`{"id": "a", "count": 12345678901234567890}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("12345678901234567890"), item["count"])

	_, err = parseItem(`[1, 2]`)
	assert.Error(t, err)
	_, err = parseItem(`null`)
	assert.Error(t, err)
	_, err = parseItem(`{`)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, run(ctx, table, []string{"put", `{"id": "a", "count": 3}`}, options{}, &out))

	out.Reset()
	require.NoError(t, run(ctx, table, []string{"get", `{"id": "a"}`}, options{}, &out))
	assert.JSONEq(t, `{"id": "a", "count": 3}`, out.String())

	out.Reset()
	require.NoError(t, run(ctx, table, []string{"scan"}, options{}, &out))
	assert.JSONEq(t, `[{"id": "a", "count": 3}]`, out.String())

	out.Reset()
	require.NoError(t, run(ctx, table, []string{"delete", `{"id": "a"}`}, options{}, &out))
	assert.JSONEq(t, `{"id": "a", "count": 3}`, out.String())

	out.Reset()
	require.NoError(t, run(ctx, table, []string{"get", `{"id": "a"}`}, options{}, &out))
	assert.JSONEq(t, `null`, out.String())
}

func TestRun_Errors(t *testing.T) {
	table := newTestTable(t)
	ctx := context.Background()
	var out bytes.Buffer

	assert.Error(t, run(ctx, table, []string{"get"}, options{}, &out))
	assert.Error(t, run(ctx, table, []string{"explode"}, options{}, &out))

	err := run(ctx, table, []string{"put", `{"id": "a", "count": "many"}`}, options{}, &out)
	assert.ErrorIs(t, err, record.ErrTypeMismatch)
	assert.Empty(t, out.String())
}
