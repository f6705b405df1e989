/*
Package record – Table type.

A Table binds a Schema to a DynamoClient. Every method runs one Call through
Prepare, Execute and Convert; the plain methods block, the *Async variants
return a Future driven by the same phases.
*/
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

// Defaults for batch execution.
const (
	DefaultBatchRetries = 5
	DefaultRetryBase    = 50 * time.Millisecond
	MaxRetryDelay       = 20 * time.Second
	DefaultConcurrency  = 4
)

// RetryPolicy controls retries of unprocessed batch items. Zero values mean
// the defaults; a negative Attempts disables retries.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
}

func (r RetryPolicy) attempts() int {
	switch {
	case r.Attempts < 0:
		return 0
	case r.Attempts == 0:
		return DefaultBatchRetries
	}
	return r.Attempts
}

// delay is Base·2^attempt, capped at MaxRetryDelay.
func (r RetryPolicy) delay(attempt int) time.Duration {
	base := r.Base
	if base <= 0 {
		base = DefaultRetryBase
	}
	if attempt < 0 {
		attempt = 0
	}
	if base > MaxRetryDelay || attempt >= 62 || base > MaxRetryDelay>>attempt {
		return MaxRetryDelay
	}
	return base << attempt
}

// TableParams configures a Table.
type TableParams struct {
	Client  DynamoClient
	Schema  *Schema
	Logger  Logger // nil → default (info+error only)
	Verbose bool   // true → also log trace/data
	// Guard is released while a blocking call waits on the network.
	Guard       Guard
	Metrics     MetricsCollector
	Monitor     MonitorFunc
	Concurrency int // parallel batch chunks, default DefaultConcurrency
	Retry       RetryPolicy
}

// Table executes record operations against one DynamoDB table.
type Table struct {
	Name string

	client      DynamoClient
	schema      *Schema
	log         Logger
	guard       Guard
	metrics     MetricsCollector
	monitor     MonitorFunc
	concurrency int
	retry       RetryPolicy
}

// NewTable creates and initialises a Table instance.
func NewTable(params TableParams) (*Table, error) {
	if params.Schema == nil {
		return nil, NewArgError(`missing "Schema"`)
	}
	if params.Client == nil {
		return nil, NewArgError(`missing "Client"`)
	}
	t := &Table{
		Name:        params.Schema.Table,
		client:      params.Client,
		schema:      params.Schema,
		guard:       params.Guard,
		metrics:     params.Metrics,
		monitor:     params.Monitor,
		concurrency: params.Concurrency,
		retry:       params.Retry,
	}
	switch {
	case params.Logger != nil:
		t.log = params.Logger
	case params.Verbose:
		t.log = verboseLogger()
	default:
		t.log = defaultLogger()
	}
	if t.guard == nil {
		t.guard = nopGuard{}
	}
	if t.concurrency <= 0 {
		t.concurrency = DefaultConcurrency
	}
	t.log.Trace("Loading record table", map[string]any{"table": t.Name})
	return t, nil
}

// Schema returns the table's schema.
func (t *Table) Schema() *Schema { return t.schema }

// Params are the optional per-call settings.
type Params struct {
	Condition Condition
	// Range restricts the range key of a query.
	Range  Condition
	Filter Condition
	Fields []string
	Index  string
	Limit  int32
	// Next is the LastEvaluatedKey of a previous page.
	Next       map[string]types.AttributeValue
	NextToken  string // statement pagination
	Reverse    bool
	Consistent bool
	Segment    int32
	Segments   int32
	Count      bool
	Return     types.ReturnValue
	// ReturnOnFailure attaches the stored item to a ConditionCheckFailed error.
	ReturnOnFailure bool
	Version         *int64
	SkipVersion     bool
	// Guard overrides the table guard for this call.
	Guard Guard
}

func (p *Params) operation(kind OpKind) Operation {
	if p == nil {
		return Operation{Kind: kind}
	}
	return Operation{
		Kind:                        kind,
		Condition:                   p.Condition,
		KeyCondition:                p.Range,
		Filter:                      p.Filter,
		Projection:                  p.Fields,
		Index:                       p.Index,
		Limit:                       p.Limit,
		StartKey:                    p.Next,
		Descending:                  p.Reverse,
		Consistent:                  p.Consistent,
		Segment:                     p.Segment,
		TotalSegments:               p.Segments,
		Count:                       p.Count,
		ReturnValues:                p.Return,
		ReturnOldOnConditionFailure: p.ReturnOnFailure,
		Version:                     p.Version,
		SkipVersion:                 p.SkipVersion,
	}
}

func (t *Table) guardFor(p *Params) Guard {
	if p != nil && p.Guard != nil {
		return p.Guard
	}
	return t.guard
}

// Result is a page of records.
type Result struct {
	Items   []Item
	Count   int
	Scanned int
	// Next is set when more pages remain.
	Next      map[string]types.AttributeValue
	NextToken string
	Metrics   OperationMetrics
}

// response is the encoded outcome of Execute.
type response struct {
	item      map[string]types.AttributeValue
	items     []map[string]types.AttributeValue
	count     int
	scanned   int
	lastKey   map[string]types.AttributeValue
	nextToken string
	metrics   OperationMetrics
}

// singleCall wires one prepared request through the table's executor.
func singleCall[T any](t *Table, op Operation, convert func(req *PreparedRequest, resp *response) (T, error)) *Call[T] {
	var req *PreparedRequest
	var resp *response
	return NewCall(
		func() (err error) {
			req, err = t.schema.Prepare(op)
			return err
		},
		func(ctx context.Context) (err error) {
			resp, err = t.execute(ctx, req)
			return err
		},
		func() (T, error) { return convert(req, resp) },
	)
}

// ─── Single-item API ──────────────────────────────────────────────────────────

func (t *Table) getCall(key Item, params *Params) *Call[Item] {
	op := params.operation(OpGet)
	op.Key = key
	return singleCall(t, op, func(_ *PreparedRequest, resp *response) (Item, error) {
		return t.schema.DecodeItem(resp.item)
	})
}

// Get reads one record by key. A missing record yields nil without error.
func (t *Table) Get(ctx context.Context, key Item, params *Params) (Item, error) {
	return t.getCall(key, params).Do(ctx, t.guardFor(params))
}

func (t *Table) GetAsync(ctx context.Context, key Item, params *Params) *Future[Item] {
	return t.getCall(key, params).Start(ctx)
}

func (t *Table) putCall(item Item, params *Params) *Call[Item] {
	op := params.operation(OpPut)
	op.Item = item
	return singleCall(t, op, func(req *PreparedRequest, resp *response) (Item, error) {
		if req.NewVersion != nil && item != nil {
			item[t.schema.version.Name] = *req.NewVersion
		}
		return t.schema.DecodeItem(resp.item)
	})
}

// Put writes a full record. With a version attribute the stored version must
// match the record's and item is updated with the new version. The returned
// record is the previous one when params.Return is ALL_OLD.
func (t *Table) Put(ctx context.Context, item Item, params *Params) (Item, error) {
	return t.putCall(item, params).Do(ctx, t.guardFor(params))
}

func (t *Table) PutAsync(ctx context.Context, item Item, params *Params) *Future[Item] {
	return t.putCall(item, params).Start(ctx)
}

func (t *Table) deleteCall(key Item, params *Params) *Call[Item] {
	op := params.operation(OpDelete)
	op.Key = key
	return singleCall(t, op, func(_ *PreparedRequest, resp *response) (Item, error) {
		return t.schema.DecodeItem(resp.item)
	})
}

// Delete removes a record by key.
func (t *Table) Delete(ctx context.Context, key Item, params *Params) (Item, error) {
	return t.deleteCall(key, params).Do(ctx, t.guardFor(params))
}

func (t *Table) DeleteAsync(ctx context.Context, key Item, params *Params) *Future[Item] {
	return t.deleteCall(key, params).Start(ctx)
}

func (t *Table) updateCall(key Item, ops []UpdateOp, params *Params) *Call[Item] {
	op := params.operation(OpUpdate)
	op.Key = key
	op.Updates = ops
	if op.ReturnValues == "" {
		op.ReturnValues = types.ReturnValueAllNew
	}
	return singleCall(t, op, func(_ *PreparedRequest, resp *response) (Item, error) {
		return t.schema.DecodeItem(resp.item)
	})
}

// Update applies ops to a record and returns it as selected by params.Return
// (ALL_NEW by default).
func (t *Table) Update(ctx context.Context, key Item, ops []UpdateOp, params *Params) (Item, error) {
	return t.updateCall(key, ops, params).Do(ctx, t.guardFor(params))
}

func (t *Table) UpdateAsync(ctx context.Context, key Item, ops []UpdateOp, params *Params) *Future[Item] {
	return t.updateCall(key, ops, params).Start(ctx)
}

// ─── Query / Scan ─────────────────────────────────────────────────────────────

func (t *Table) decodeResult(resp *response) (*Result, error) {
	res := &Result{
		Count:     resp.count,
		Scanned:   resp.scanned,
		Next:      resp.lastKey,
		NextToken: resp.nextToken,
		Metrics:   resp.metrics,
		Items:     make([]Item, 0, len(resp.items)),
	}
	for _, raw := range resp.items {
		item, err := t.schema.DecodeItem(raw)
		if err != nil {
			return nil, err
		}
		res.Items = append(res.Items, item)
	}
	return res, nil
}

func (t *Table) queryCall(key Item, params *Params) *Call[*Result] {
	op := params.operation(OpQuery)
	op.Key = key
	return singleCall(t, op, func(_ *PreparedRequest, resp *response) (*Result, error) {
		return t.decodeResult(resp)
	})
}

// Query reads one page of records sharing the hash key in key. params.Index
// selects a secondary index and params.Range restricts its range key.
func (t *Table) Query(ctx context.Context, key Item, params *Params) (*Result, error) {
	return t.queryCall(key, params).Do(ctx, t.guardFor(params))
}

func (t *Table) QueryAsync(ctx context.Context, key Item, params *Params) *Future[*Result] {
	return t.queryCall(key, params).Start(ctx)
}

func (t *Table) scanCall(params *Params) *Call[*Result] {
	return singleCall(t, params.operation(OpScan), func(_ *PreparedRequest, resp *response) (*Result, error) {
		return t.decodeResult(resp)
	})
}

// Scan reads one page of the table, or of one segment when params.Segments is set.
func (t *Table) Scan(ctx context.Context, params *Params) (*Result, error) {
	return t.scanCall(params).Do(ctx, t.guardFor(params))
}

func (t *Table) ScanAsync(ctx context.Context, params *Params) *Future[*Result] {
	return t.scanCall(params).Start(ctx)
}

func (t *Table) parallelScanCall(segments int32, params *Params) *Call[*Result] {
	var reqs []*PreparedRequest
	var pages []*response
	var start time.Time
	return NewCall(
		func() error {
			if segments <= 0 {
				return NewArgError("parallel scan needs at least one segment")
			}
			reqs = make([]*PreparedRequest, segments)
			pages = make([]*response, segments)
			for i := range reqs {
				op := params.operation(OpScan)
				op.StartKey = nil
				op.Segment, op.TotalSegments = int32(i), segments
				req, err := t.schema.Prepare(op)
				if err != nil {
					return err
				}
				reqs[i] = req
			}
			return nil
		},
		func(ctx context.Context) error {
			start = time.Now()
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(t.concurrency)
			for i, req := range reqs {
				g.Go(func() error {
					all := &response{}
					seg := *req
					for {
						resp, err := t.execute(gctx, &seg)
						if err != nil {
							return err
						}
						all.items = append(all.items, resp.items...)
						all.count += resp.count
						all.scanned += resp.scanned
						mergeMetrics(&all.metrics, resp.metrics)
						if len(resp.lastKey) == 0 {
							break
						}
						seg.StartKey = resp.lastKey
					}
					pages[i] = all
					return nil
				})
			}
			return g.Wait()
		},
		func() (*Result, error) {
			merged := &response{metrics: OperationMetrics{Op: OpScan, Table: t.Name, Duration: time.Since(start)}}
			for _, p := range pages {
				merged.items = append(merged.items, p.items...)
				merged.count += p.count
				merged.scanned += p.scanned
				mergeMetrics(&merged.metrics, p.metrics)
			}
			return t.decodeResult(merged)
		},
	)
}

// ParallelScan scans the whole table with segments concurrent workers,
// following pagination to the end, and merges results in segment order.
func (t *Table) ParallelScan(ctx context.Context, segments int32, params *Params) (*Result, error) {
	return t.parallelScanCall(segments, params).Do(ctx, t.guardFor(params))
}

func (t *Table) ParallelScanAsync(ctx context.Context, segments int32, params *Params) *Future[*Result] {
	return t.parallelScanCall(segments, params).Start(ctx)
}

// ─── PartiQL ──────────────────────────────────────────────────────────────────

func (t *Table) statementCall(statement string, args []any, params *Params) *Call[*Result] {
	var input *ddb.ExecuteStatementInput
	var resp *response
	return NewCall(
		func() error {
			if statement == "" {
				return NewError("empty statement", WithCode(CodeEmptyExpression))
			}
			input = &ddb.ExecuteStatementInput{
				Statement:              aws.String(statement),
				ReturnConsumedCapacity: t.capacity(),
			}
			for i, a := range args {
				av, err := encodeValue(fmt.Sprintf("$%d", i+1), a, TypeAny)
				if err != nil {
					return atIndex(err, i)
				}
				input.Parameters = append(input.Parameters, av)
			}
			if params != nil {
				input.ConsistentRead = optBool(params.Consistent)
				input.Limit = optInt32(params.Limit)
				input.NextToken = optString(params.NextToken)
			}
			return nil
		},
		func(ctx context.Context) error {
			start := time.Now()
			out, err := t.client.ExecuteStatement(ctx, input)
			if err != nil {
				return t.fail(OpStatement, err)
			}
			resp = &response{items: out.Items, count: len(out.Items), lastKey: out.LastEvaluatedKey}
			if out.NextToken != nil {
				resp.nextToken = *out.NextToken
			}
			resp.metrics = OperationMetrics{Op: OpStatement, Items: len(out.Items)}
			if out.ConsumedCapacity != nil {
				resp.metrics.addConsumed(*out.ConsumedCapacity)
			}
			t.observe(&resp.metrics, start)
			return nil
		},
		func() (*Result, error) { return t.decodeResult(resp) },
	)
}

// ExecuteStatement runs a PartiQL statement with positional args.
func (t *Table) ExecuteStatement(ctx context.Context, statement string, args []any, params *Params) (*Result, error) {
	return t.statementCall(statement, args, params).Do(ctx, t.guardFor(params))
}

func (t *Table) ExecuteStatementAsync(ctx context.Context, statement string, args []any, params *Params) *Future[*Result] {
	return t.statementCall(statement, args, params).Start(ctx)
}

// ─── execute ──────────────────────────────────────────────────────────────────

func (t *Table) capacity() types.ReturnConsumedCapacity {
	if t.metrics != nil || t.monitor != nil {
		return types.ReturnConsumedCapacityTotal
	}
	return ""
}

// execute dispatches one prepared request. It never touches caller values.
func (t *Table) execute(ctx context.Context, req *PreparedRequest) (*response, error) {
	start := time.Now()
	capacity := t.capacity()
	t.log.Trace(fmt.Sprintf(`record "%s" "%s"`, req.Kind, t.Name), map[string]any{
		"op": string(req.Kind), "condition": req.Condition, "update": req.Update, "names": req.Names,
	})
	resp := &response{metrics: OperationMetrics{Op: req.Kind}}
	var cc *types.ConsumedCapacity
	var err error

	switch req.Kind {
	case OpGet:
		var out *ddb.GetItemOutput
		if out, err = t.client.GetItem(ctx, req.getInput(capacity)); err == nil {
			resp.item, cc = out.Item, out.ConsumedCapacity
		}
	case OpPut:
		var out *ddb.PutItemOutput
		if out, err = t.client.PutItem(ctx, req.putInput(capacity)); err == nil {
			resp.item, cc = out.Attributes, out.ConsumedCapacity
		}
	case OpDelete:
		var out *ddb.DeleteItemOutput
		if out, err = t.client.DeleteItem(ctx, req.deleteInput(capacity)); err == nil {
			resp.item, cc = out.Attributes, out.ConsumedCapacity
		}
	case OpUpdate:
		var out *ddb.UpdateItemOutput
		if out, err = t.client.UpdateItem(ctx, req.updateInput(capacity)); err == nil {
			resp.item, cc = out.Attributes, out.ConsumedCapacity
		}
	case OpQuery:
		var out *ddb.QueryOutput
		if out, err = t.client.Query(ctx, req.queryInput(capacity)); err == nil {
			resp.items, resp.lastKey, cc = out.Items, out.LastEvaluatedKey, out.ConsumedCapacity
			resp.count, resp.scanned = int(out.Count), int(out.ScannedCount)
		}
	case OpScan:
		var out *ddb.ScanOutput
		if out, err = t.client.Scan(ctx, req.scanInput(capacity)); err == nil {
			resp.items, resp.lastKey, cc = out.Items, out.LastEvaluatedKey, out.ConsumedCapacity
			resp.count, resp.scanned = int(out.Count), int(out.ScannedCount)
		}
	default:
		return nil, NewArgError(fmt.Sprintf("Unknown operation: %s", req.Kind))
	}
	if err != nil {
		return nil, t.fail(req.Kind, err)
	}

	if cc != nil {
		resp.metrics.addConsumed(*cc)
	}
	resp.metrics.Items = len(resp.items)
	if resp.item != nil {
		resp.metrics.Items = 1
	}
	resp.metrics.Scanned = resp.scanned
	t.observe(&resp.metrics, start)
	return resp, nil
}

// fail re-types and logs a client error.
func (t *Table) fail(op OpKind, err error) error {
	err = t.schema.classifyError(op, err)
	t.log.Error(fmt.Sprintf(`record "%s" failed on "%s"`, op, t.Name), map[string]any{"error": err.Error()})
	return err
}

// observe completes m and reports it to the metrics hooks.
func (t *Table) observe(m *OperationMetrics, start time.Time) {
	m.Table = t.Name
	m.Duration = time.Since(start)
	t.log.Data("record metrics", map[string]any{
		"op": string(m.Op), "duration": m.Duration.String(), "rcu": m.ReadUnits, "wcu": m.WriteUnits, "items": m.Items,
	})
	if t.metrics != nil {
		if err := t.metrics.Add(*m); err != nil {
			t.log.Error("metrics collector failed", map[string]any{"error": err.Error()})
		}
	}
	if t.monitor != nil {
		if err := t.monitor(*m); err != nil {
			t.log.Error("monitor failed", map[string]any{"error": err.Error()})
		}
	}
}

func mergeMetrics(dst *OperationMetrics, src OperationMetrics) {
	dst.ReadUnits += src.ReadUnits
	dst.WriteUnits += src.WriteUnits
	dst.Items += src.Items
	dst.Scanned += src.Scanned
	dst.Retries += src.Retries
	dst.Chunks += src.Chunks
}
