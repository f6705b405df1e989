package record

import (
	"context"
	"sort"
	"sync"
	"testing"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"
)

// ─── fakeClient ───────────────────────────────────────────────────────────────

// fakeClient is a thread-safe in-memory DynamoClient. Conditions and update
// expressions are not evaluated; tests that need a service response set the
// matching *Fn hook instead.
type fakeClient struct {
	mu    sync.Mutex
	keys  []string // wire names of the primary key
	items map[string]map[string]types.AttributeValue
	calls map[string]int

	GetItemFn            func(*ddb.GetItemInput) (*ddb.GetItemOutput, error)
	PutItemFn            func(*ddb.PutItemInput) (*ddb.PutItemOutput, error)
	DeleteItemFn         func(*ddb.DeleteItemInput) (*ddb.DeleteItemOutput, error)
	UpdateItemFn         func(*ddb.UpdateItemInput) (*ddb.UpdateItemOutput, error)
	QueryFn              func(*ddb.QueryInput) (*ddb.QueryOutput, error)
	ScanFn               func(*ddb.ScanInput) (*ddb.ScanOutput, error)
	BatchGetItemFn       func(*ddb.BatchGetItemInput) (*ddb.BatchGetItemOutput, error)
	BatchWriteItemFn     func(*ddb.BatchWriteItemInput) (*ddb.BatchWriteItemOutput, error)
	TransactGetItemsFn   func(*ddb.TransactGetItemsInput) (*ddb.TransactGetItemsOutput, error)
	TransactWriteItemsFn func(*ddb.TransactWriteItemsInput) (*ddb.TransactWriteItemsOutput, error)
	ExecuteStatementFn   func(*ddb.ExecuteStatementInput) (*ddb.ExecuteStatementOutput, error)
}

func newFakeClient(keys ...string) *fakeClient {
	return &fakeClient{keys: keys, items: map[string]map[string]types.AttributeValue{}, calls: map[string]int{}}
}

func (m *fakeClient) key(item map[string]types.AttributeValue) string {
	k := ""
	for _, name := range m.keys {
		switch v := item[name].(type) {
		case *types.AttributeValueMemberS:
			k += v.Value
		case *types.AttributeValueMemberN:
			k += v.Value
		}
		k += "||"
	}
	return k
}

func (m *fakeClient) record(op string) {
	m.mu.Lock()
	m.calls[op]++
	m.mu.Unlock()
}

func (m *fakeClient) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *fakeClient) stored() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *fakeClient) put(item map[string]types.AttributeValue) {
	m.mu.Lock()
	m.items[m.key(item)] = item
	m.mu.Unlock()
}

func (m *fakeClient) all() []map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = m.items[k]
	}
	return out
}

func (m *fakeClient) GetItem(_ context.Context, p *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	m.record("GetItem")
	if m.GetItemFn != nil {
		return m.GetItemFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &ddb.GetItemOutput{Item: m.items[m.key(p.Key)]}, nil
}

func (m *fakeClient) PutItem(_ context.Context, p *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	m.record("PutItem")
	if m.PutItemFn != nil {
		return m.PutItemFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(p.Item)
	prior := m.items[k]
	m.items[k] = p.Item
	out := &ddb.PutItemOutput{}
	if p.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = prior
	}
	return out, nil
}

func (m *fakeClient) DeleteItem(_ context.Context, p *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	m.record("DeleteItem")
	if m.DeleteItemFn != nil {
		return m.DeleteItemFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(p.Key)
	prior := m.items[k]
	delete(m.items, k)
	out := &ddb.DeleteItemOutput{}
	if p.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = prior
	}
	return out, nil
}

func (m *fakeClient) UpdateItem(_ context.Context, p *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	m.record("UpdateItem")
	if m.UpdateItemFn != nil {
		return m.UpdateItemFn(p)
	}
	return &ddb.UpdateItemOutput{Attributes: p.Key}, nil
}

func (m *fakeClient) Query(_ context.Context, p *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	m.record("Query")
	if m.QueryFn != nil {
		return m.QueryFn(p)
	}
	items := m.all()
	return &ddb.QueryOutput{Items: items, Count: int32(len(items)), ScannedCount: int32(len(items))}, nil
}

func (m *fakeClient) Scan(_ context.Context, p *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	m.record("Scan")
	if m.ScanFn != nil {
		return m.ScanFn(p)
	}
	items := m.all()
	return &ddb.ScanOutput{Items: items, Count: int32(len(items)), ScannedCount: int32(len(items))}, nil
}

func (m *fakeClient) BatchGetItem(_ context.Context, p *ddb.BatchGetItemInput, _ ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error) {
	m.record("BatchGetItem")
	if m.BatchGetItemFn != nil {
		return m.BatchGetItemFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := map[string][]map[string]types.AttributeValue{}
	for table, kaa := range p.RequestItems {
		for _, key := range kaa.Keys {
			if item := m.items[m.key(key)]; item != nil {
				resp[table] = append(resp[table], item)
			}
		}
	}
	return &ddb.BatchGetItemOutput{Responses: resp}, nil
}

func (m *fakeClient) BatchWriteItem(_ context.Context, p *ddb.BatchWriteItemInput, _ ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error) {
	m.record("BatchWriteItem")
	if m.BatchWriteItemFn != nil {
		return m.BatchWriteItemFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reqs := range p.RequestItems {
		for _, req := range reqs {
			if req.PutRequest != nil {
				m.items[m.key(req.PutRequest.Item)] = req.PutRequest.Item
			} else if req.DeleteRequest != nil {
				delete(m.items, m.key(req.DeleteRequest.Key))
			}
		}
	}
	return &ddb.BatchWriteItemOutput{}, nil
}

func (m *fakeClient) TransactGetItems(_ context.Context, p *ddb.TransactGetItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactGetItemsOutput, error) {
	m.record("TransactGetItems")
	if m.TransactGetItemsFn != nil {
		return m.TransactGetItemsFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	responses := make([]types.ItemResponse, len(p.TransactItems))
	for i, ti := range p.TransactItems {
		responses[i] = types.ItemResponse{Item: m.items[m.key(ti.Get.Key)]}
	}
	return &ddb.TransactGetItemsOutput{Responses: responses}, nil
}

func (m *fakeClient) TransactWriteItems(_ context.Context, p *ddb.TransactWriteItemsInput, _ ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	m.record("TransactWriteItems")
	if m.TransactWriteItemsFn != nil {
		return m.TransactWriteItemsFn(p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ti := range p.TransactItems {
		switch {
		case ti.Put != nil:
			m.items[m.key(ti.Put.Item)] = ti.Put.Item
		case ti.Delete != nil:
			delete(m.items, m.key(ti.Delete.Key))
		}
	}
	return &ddb.TransactWriteItemsOutput{}, nil
}

func (m *fakeClient) ExecuteStatement(_ context.Context, p *ddb.ExecuteStatementInput, _ ...func(*ddb.Options)) (*ddb.ExecuteStatementOutput, error) {
	m.record("ExecuteStatement")
	if m.ExecuteStatementFn != nil {
		return m.ExecuteStatementFn(p)
	}
	return &ddb.ExecuteStatementOutput{}, nil
}

// ─── fixtures ─────────────────────────────────────────────────────────────────

// userDef has aliased keys (pk → p, sk → s) and one of each common type.
func userDef() SchemaDef {
	return SchemaDef{
		Table: "Users",
		Attributes: []AttributeDef{
			{Name: "pk", Type: TypeString, Alias: "p", Key: KeyHash},
			{Name: "sk", Type: TypeString, Alias: "s", Key: KeyRange},
			{Name: "age", Type: TypeInt},
			{Name: "status", Type: TypeString},
			{Name: "tags", Type: TypeList},
			{Name: "roles", Type: TypeStringSet},
			{Name: "score", Type: TypeFloat},
			{Name: "balance", Type: TypeDecimal},
			{Name: "expires", Type: TypeTime},
			{Name: "profile", Type: TypeMap},
			{Name: "nickname", Type: TypeString, Nullable: true},
		},
		Indexes: []IndexDef{{Name: "byStatus", Hash: "status", Range: "age"}},
	}
}

func versionedDef() SchemaDef {
	return SchemaDef{
		Table: "Docs",
		Attributes: []AttributeDef{
			{Name: "id", Type: TypeString, Key: KeyHash},
			{Name: "body", Type: TypeString},
			{Name: "rev", Type: TypeInt, Version: true},
		},
	}
}

func mustSchema(t *testing.T, def SchemaDef) *Schema {
	t.Helper()
	s, err := NewSchema(def)
	require.NoError(t, err)
	return s
}

func makeTable(t *testing.T, def SchemaDef, keys ...string) (*Table, *fakeClient) {
	t.Helper()
	client := newFakeClient(keys...)
	tbl, err := NewTable(TableParams{
		Client: client,
		Schema: mustSchema(t, def),
		Logger: NopLogger{},
		Retry:  RetryPolicy{Base: 1},
	})
	require.NoError(t, err)
	return tbl, client
}

func requireCode(t *testing.T, err error, code ErrorCode) *Error {
	t.Helper()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, code, e.Code, "error: %v", err)
	return e
}

func bg() context.Context { return context.Background() }
