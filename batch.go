/*
Package record – batch operations.

Batch writes and gets are split into protocol-sized chunks and dispatched
concurrently. Each chunk retries only the items the service reports as
unprocessed; the chunk outcomes are merged back into caller order after every
chunk has finished.
*/
package record

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

// WriteRequest is one element of a batch write. Exactly one of Put or Delete
// is set.
type WriteRequest struct {
	Put    Item
	Delete Item
}

func PutRequest(item Item) WriteRequest   { return WriteRequest{Put: item} }
func DeleteRequest(key Item) WriteRequest { return WriteRequest{Delete: key} }

// BatchResult reports every input index exactly once, in ascending order.
type BatchResult struct {
	Succeeded   []int
	Unprocessed []int
	Failed      []int
	Metrics     OperationMetrics
}

// BatchGetResult holds the fetched records by input index. Missing records
// and indices listed in Unprocessed or Failed are nil.
type BatchGetResult struct {
	Items       []Item
	Unprocessed []int
	Failed      []int
	Metrics     OperationMetrics
}

// chunkOutcome is the result of one chunk, recorded against the input indices.
type chunkOutcome struct {
	succeeded   []int
	unprocessed []int
	failed      []int
	cause       error
	items       map[int]map[string]types.AttributeValue
	metrics     OperationMetrics
}

// keyFingerprint identifies a primary key within a batch.
func (s *Schema) keyFingerprint(m map[string]types.AttributeValue) string {
	var b strings.Builder
	for _, a := range s.keyAttributes() {
		b.WriteString(a.Wire)
		b.WriteByte('=')
		switch v := m[a.Wire].(type) {
		case *types.AttributeValueMemberS:
			b.WriteString("S:" + v.Value)
		case *types.AttributeValueMemberN:
			b.WriteString("N:" + v.Value)
		case *types.AttributeValueMemberB:
			b.WriteString("B:" + hex.EncodeToString(v.Value))
		default:
			b.WriteString("?")
		}
		b.WriteByte(';')
	}
	return b.String()
}

// uniqueFingerprints fingerprints batch keys and rejects duplicates, which the
// service refuses within one request.
func (s *Schema) uniqueFingerprints(keys []map[string]types.AttributeValue) ([]string, error) {
	fps := make([]string, len(keys))
	seen := make(map[string]int, len(keys))
	for i, k := range keys {
		fp := s.keyFingerprint(k)
		if j, dup := seen[fp]; dup {
			return nil, NewError(fmt.Sprintf("duplicate key, also at index %d", j),
				WithCode(CodeArgument), WithIndex(i))
		}
		seen[fp] = i
		fps[i] = fp
	}
	return fps, nil
}

// stillPending keeps the pending indices whose fingerprint is in left.
func stillPending(pending []int, fps []string, left []string) []int {
	if len(left) == 0 {
		return nil
	}
	set := make(map[string]bool, len(left))
	for _, fp := range left {
		set[fp] = true
	}
	var out []int
	for _, i := range pending {
		if set[fps[i]] {
			out = append(out, i)
		}
	}
	return out
}

// without returns all minus the members of drop. Both are ascending.
func without(all []int, drop ...[]int) []int {
	skip := map[int]bool{}
	for _, d := range drop {
		for _, i := range d {
			skip[i] = true
		}
	}
	out := make([]int, 0, len(all))
	for _, i := range all {
		if !skip[i] {
			out = append(out, i)
		}
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fanOut runs one task per chunk with bounded concurrency. Tasks record their
// outcome in their own slot; merging happens after every task returns.
func (t *Table) fanOut(ctx context.Context, plan ChunkPlan, task func(ctx context.Context, chunk Chunk) chunkOutcome) []chunkOutcome {
	outcomes := make([]chunkOutcome, len(plan.Chunks))
	var g errgroup.Group
	g.SetLimit(t.concurrency)
	for ci, chunk := range plan.Chunks {
		g.Go(func() error {
			outcomes[ci] = task(ctx, chunk)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// mergeOutcomes folds chunk outcomes into sorted index lists.
func mergeOutcomes(op OpKind, outcomes []chunkOutcome) (succeeded, unprocessed, failed []int, causes []error, m OperationMetrics) {
	m.Op = op
	m.Chunks = len(outcomes)
	for _, o := range outcomes {
		succeeded = append(succeeded, o.succeeded...)
		unprocessed = append(unprocessed, o.unprocessed...)
		failed = append(failed, o.failed...)
		if o.cause != nil {
			causes = append(causes, o.cause)
		}
		mergeMetrics(&m, o.metrics)
	}
	sort.Ints(succeeded)
	sort.Ints(unprocessed)
	sort.Ints(failed)
	return
}

func (t *Table) logPartial(m OperationMetrics, unprocessed, failed []int) {
	t.log.Info(fmt.Sprintf(`record "%s" partially applied on "%s"`, m.Op, t.Name), map[string]any{
		"unprocessed": unprocessed, "failed": failed, "retries": m.Retries,
	})
}

// ─── BatchWrite ───────────────────────────────────────────────────────────────

func (t *Table) batchWriteCall(writes []WriteRequest, params *Params) *Call[*BatchResult] {
	var (
		requests []types.WriteRequest
		fps      []string
		plan     ChunkPlan
		outcomes []chunkOutcome
		start    time.Time
	)
	return NewCall(
		func() error {
			if len(writes) == 0 {
				return NewError("empty batch", WithCode(CodeEmptyExpression))
			}
			if params != nil && (params.Condition != nil || params.Version != nil ||
				(params.Return != "" && params.Return != types.ReturnValueNone)) {
				return NewArgError("batch writes take no condition or return values")
			}
			requests = make([]types.WriteRequest, len(writes))
			keys := make([]map[string]types.AttributeValue, len(writes))
			for i, w := range writes {
				var op Operation
				switch {
				case w.Put != nil && w.Delete == nil:
					// Batch writes cannot carry the version condition.
					op = Operation{Kind: OpPut, Item: w.Put, SkipVersion: true}
				case w.Delete != nil && w.Put == nil:
					op = Operation{Kind: OpDelete, Key: w.Delete, SkipVersion: true}
				default:
					return NewError("write request needs exactly one of Put or Delete", WithCode(CodeArgument), WithIndex(i))
				}
				req, err := t.schema.Prepare(op)
				if err != nil {
					return atIndex(err, i)
				}
				if requests[i], err = req.writeRequest(); err != nil {
					return atIndex(err, i)
				}
				keys[i] = req.Key
			}
			var err error
			if fps, err = t.schema.uniqueFingerprints(keys); err != nil {
				return err
			}
			plan = PlanBatch(len(writes), MaxBatchWriteItems)
			return nil
		},
		func(ctx context.Context) error {
			start = time.Now()
			t.log.Trace(fmt.Sprintf(`record "batchWrite" "%s"`, t.Name), map[string]any{
				"items": len(requests), "chunks": len(plan.Chunks),
			})
			outcomes = t.fanOut(ctx, plan, func(ctx context.Context, chunk Chunk) chunkOutcome {
				return t.writeChunk(ctx, chunk, requests, fps)
			})
			return ctx.Err()
		},
		func() (*BatchResult, error) {
			res := &BatchResult{}
			var causes []error
			res.Succeeded, res.Unprocessed, res.Failed, causes, res.Metrics = mergeOutcomes(OpBatchWrite, outcomes)
			res.Metrics.Items = len(res.Succeeded)
			t.observe(&res.Metrics, start)
			if len(res.Unprocessed) > 0 || len(res.Failed) > 0 {
				t.logPartial(res.Metrics, res.Unprocessed, res.Failed)
				return res, &PartialBatchError{Unprocessed: res.Unprocessed, Failed: res.Failed, Causes: causes}
			}
			return res, nil
		},
	)
}

func (t *Table) writeChunk(ctx context.Context, chunk Chunk, requests []types.WriteRequest, fps []string) chunkOutcome {
	o := chunkOutcome{metrics: OperationMetrics{Op: OpBatchWrite}}
	pending := chunk.Indices
	for attempt := 0; ; attempt++ {
		items := make([]types.WriteRequest, len(pending))
		for k, i := range pending {
			items[k] = requests[i]
		}
		out, err := t.client.BatchWriteItem(ctx, &ddb.BatchWriteItemInput{
			RequestItems:           map[string][]types.WriteRequest{t.Name: items},
			ReturnConsumedCapacity: t.capacity(),
		})
		if err != nil {
			o.failed, o.cause = pending, t.fail(OpBatchWrite, err)
			break
		}
		o.metrics.addConsumed(out.ConsumedCapacity...)

		var left []string
		for _, w := range out.UnprocessedItems[t.Name] {
			switch {
			case w.PutRequest != nil:
				left = append(left, t.schema.keyFingerprint(w.PutRequest.Item))
			case w.DeleteRequest != nil:
				left = append(left, t.schema.keyFingerprint(w.DeleteRequest.Key))
			}
		}
		pending = stillPending(pending, fps, left)
		if len(pending) == 0 {
			break
		}
		if attempt >= t.retry.attempts() {
			o.unprocessed = pending
			break
		}
		o.metrics.Retries++
		if err := sleepCtx(ctx, t.retry.delay(attempt)); err != nil {
			o.unprocessed, o.cause = pending, err
			break
		}
	}
	o.succeeded = without(chunk.Indices, o.unprocessed, o.failed)
	return o
}

// BatchWrite applies puts and deletes in chunks of MaxBatchWriteItems.
// Versioning and conditions are not applied. When some items could not be
// written the result is returned together with a *PartialBatchError.
func (t *Table) BatchWrite(ctx context.Context, writes []WriteRequest, params *Params) (*BatchResult, error) {
	return t.batchWriteCall(writes, params).Do(ctx, t.guardFor(params))
}

func (t *Table) BatchWriteAsync(ctx context.Context, writes []WriteRequest, params *Params) *Future[*BatchResult] {
	return t.batchWriteCall(writes, params).Start(ctx)
}

// ─── BatchGet ─────────────────────────────────────────────────────────────────

func (t *Table) batchGetCall(keys []Item, params *Params) *Call[*BatchGetResult] {
	var (
		encoded    []map[string]types.AttributeValue
		fps        []string
		index      map[string]int
		projection string
		names      map[string]string
		consistent bool
		plan       ChunkPlan
		outcomes   []chunkOutcome
		start      time.Time
	)
	return NewCall(
		func() error {
			if len(keys) == 0 {
				return NewError("empty batch", WithCode(CodeEmptyExpression))
			}
			encoded = make([]map[string]types.AttributeValue, len(keys))
			for i, k := range keys {
				key, err := t.schema.EncodeKey(k)
				if err != nil {
					return atIndex(err, i)
				}
				encoded[i] = key
			}
			var err error
			if fps, err = t.schema.uniqueFingerprints(encoded); err != nil {
				return err
			}
			index = make(map[string]int, len(fps))
			for i, fp := range fps {
				index[fp] = i
			}
			if params != nil {
				consistent = params.Consistent
				if len(params.Fields) > 0 {
					// Key attributes are needed to match responses to inputs.
					fields := append([]string(nil), params.Fields...)
					for _, a := range t.schema.keyAttributes() {
						fields = append(fields, a.Name)
					}
					c := newCompiler(t.schema.names)
					if projection, err = c.projection(fields); err != nil {
						return err
					}
					names = c.ph.Names
				}
			}
			plan = PlanBatch(len(keys), MaxBatchGetItems)
			return nil
		},
		func(ctx context.Context) error {
			start = time.Now()
			t.log.Trace(fmt.Sprintf(`record "batchGet" "%s"`, t.Name), map[string]any{
				"items": len(encoded), "chunks": len(plan.Chunks),
			})
			outcomes = t.fanOut(ctx, plan, func(ctx context.Context, chunk Chunk) chunkOutcome {
				kaa := types.KeysAndAttributes{
					ProjectionExpression:     optString(projection),
					ExpressionAttributeNames: names,
					ConsistentRead:           optBool(consistent),
				}
				return t.getChunk(ctx, chunk, kaa, encoded, fps, index)
			})
			return ctx.Err()
		},
		func() (*BatchGetResult, error) {
			res := &BatchGetResult{Items: make([]Item, len(encoded))}
			var causes []error
			_, res.Unprocessed, res.Failed, causes, res.Metrics = mergeOutcomes(OpBatchGet, outcomes)
			for _, o := range outcomes {
				for i, raw := range o.items {
					item, err := t.schema.DecodeItem(raw)
					if err != nil {
						return nil, atIndex(err, i)
					}
					res.Items[i] = item
					res.Metrics.Items++
				}
			}
			t.observe(&res.Metrics, start)
			if len(res.Unprocessed) > 0 || len(res.Failed) > 0 {
				t.logPartial(res.Metrics, res.Unprocessed, res.Failed)
				return res, &PartialBatchError{Unprocessed: res.Unprocessed, Failed: res.Failed, Causes: causes}
			}
			return res, nil
		},
	)
}

func (t *Table) getChunk(ctx context.Context, chunk Chunk, kaa types.KeysAndAttributes,
	keys []map[string]types.AttributeValue, fps []string, index map[string]int) chunkOutcome {
	o := chunkOutcome{metrics: OperationMetrics{Op: OpBatchGet}, items: map[int]map[string]types.AttributeValue{}}
	pending := chunk.Indices
	for attempt := 0; ; attempt++ {
		req := kaa
		req.Keys = make([]map[string]types.AttributeValue, len(pending))
		for k, i := range pending {
			req.Keys[k] = keys[i]
		}
		out, err := t.client.BatchGetItem(ctx, &ddb.BatchGetItemInput{
			RequestItems:           map[string]types.KeysAndAttributes{t.Name: req},
			ReturnConsumedCapacity: t.capacity(),
		})
		if err != nil {
			o.failed, o.cause = pending, t.fail(OpBatchGet, err)
			break
		}
		o.metrics.addConsumed(out.ConsumedCapacity...)
		for _, raw := range out.Responses[t.Name] {
			if i, ok := index[t.schema.keyFingerprint(raw)]; ok {
				o.items[i] = raw
			}
		}

		var left []string
		if u, ok := out.UnprocessedKeys[t.Name]; ok {
			for _, k := range u.Keys {
				left = append(left, t.schema.keyFingerprint(k))
			}
		}
		pending = stillPending(pending, fps, left)
		if len(pending) == 0 {
			break
		}
		if attempt >= t.retry.attempts() {
			o.unprocessed = pending
			break
		}
		o.metrics.Retries++
		if err := sleepCtx(ctx, t.retry.delay(attempt)); err != nil {
			o.unprocessed, o.cause = pending, err
			break
		}
	}
	o.succeeded = without(chunk.Indices, o.unprocessed, o.failed)
	return o
}

// BatchGet reads records by key in chunks of MaxBatchGetItems. Items are
// returned by input index. Only params.Fields and params.Consistent apply.
func (t *Table) BatchGet(ctx context.Context, keys []Item, params *Params) (*BatchGetResult, error) {
	return t.batchGetCall(keys, params).Do(ctx, t.guardFor(params))
}

func (t *Table) BatchGetAsync(ctx context.Context, keys []Item, params *Params) *Future[*BatchGetResult] {
	return t.batchGetCall(keys, params).Start(ctx)
}
