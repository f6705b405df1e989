/*
Package record – transactions.

A transaction is all-or-nothing. Operations that do not fit one protocol
request fail with TransactionTooLarge during Prepare instead of being split.
*/
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/cloudxsgmbh/dynamodb-record-go/internal/uid"
)

// TransactResult describes a committed write transaction.
type TransactResult struct {
	// Versions holds the version written by each operation, if versioned.
	Versions []*int64
	Metrics  OperationMetrics
}

func (t *Table) transactWriteCall(ops []Operation, token string) *Call[*TransactResult] {
	var (
		input    *ddb.TransactWriteItemsInput
		versions []*int64
		out      *ddb.TransactWriteItemsOutput
		start    time.Time
	)
	return NewCall(
		func() error {
			if len(ops) == 0 {
				return NewError("empty transaction", WithCode(CodeEmptyExpression))
			}
			if len(ops) > MaxTransactionItems {
				return NewError(fmt.Sprintf("transaction of %d items exceeds %d", len(ops), MaxTransactionItems),
					WithCode(CodeTransactionTooLarge), WithContext(map[string]any{"items": len(ops)}))
			}
			if token != "" && !uid.Valid(token) {
				return NewArgError(fmt.Sprintf("client request token must be at most %d characters", uid.MaxTokenLen))
			}
			items := make([]types.TransactWriteItem, len(ops))
			keys := make([]map[string]types.AttributeValue, len(ops))
			sizes := make([]int, len(ops))
			versions = make([]*int64, len(ops))
			for i, op := range ops {
				switch op.Kind {
				case OpPut, OpDelete, OpUpdate, OpCheck:
				default:
					return NewError(fmt.Sprintf("unsupported transaction operation %q", op.Kind),
						WithCode(CodeArgument), WithIndex(i))
				}
				req, err := t.schema.Prepare(op)
				if err != nil {
					return atIndex(err, i)
				}
				if items[i], err = req.transactWriteItem(); err != nil {
					return atIndex(err, i)
				}
				keys[i], sizes[i], versions[i] = req.Key, req.Size, req.NewVersion
			}
			// The service rejects two operations on the same item.
			if _, err := t.schema.uniqueFingerprints(keys); err != nil {
				return err
			}
			if _, err := PlanTransaction(sizes); err != nil {
				return err
			}
			if token == "" {
				token = uid.NewToken()
			}
			input = &ddb.TransactWriteItemsInput{
				TransactItems:          items,
				ClientRequestToken:     aws.String(token),
				ReturnConsumedCapacity: t.capacity(),
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			start = time.Now()
			t.log.Trace(fmt.Sprintf(`record "transactWrite" "%s"`, t.Name), map[string]any{
				"items": len(input.TransactItems), "token": *input.ClientRequestToken,
			})
			if out, err = t.client.TransactWriteItems(ctx, input); err != nil {
				return t.fail(OpTransactWrite, err)
			}
			return nil
		},
		func() (*TransactResult, error) {
			res := &TransactResult{Versions: versions, Metrics: OperationMetrics{Op: OpTransactWrite, Items: len(versions), Chunks: 1}}
			res.Metrics.addConsumed(out.ConsumedCapacity...)
			t.observe(&res.Metrics, start)
			for i, op := range ops {
				if versions[i] != nil && op.Kind == OpPut && op.Item != nil {
					op.Item[t.schema.version.Name] = *versions[i]
				}
			}
			return res, nil
		},
	)
}

// TransactWrite applies ops atomically. Supported kinds are put, delete,
// update and check. A rejected condition is reported as ConditionCheckFailed
// carrying the index of the failing operation. token makes retries
// idempotent; an empty token generates one.
func (t *Table) TransactWrite(ctx context.Context, ops []Operation, token string, params *Params) (*TransactResult, error) {
	return t.transactWriteCall(ops, token).Do(ctx, t.guardFor(params))
}

func (t *Table) TransactWriteAsync(ctx context.Context, ops []Operation, token string) *Future[*TransactResult] {
	return t.transactWriteCall(ops, token).Start(ctx)
}

func (t *Table) transactGetCall(keys []Item, params *Params) *Call[[]Item] {
	var (
		input *ddb.TransactGetItemsInput
		out   *ddb.TransactGetItemsOutput
		start time.Time
	)
	return NewCall(
		func() error {
			if len(keys) == 0 {
				return NewError("empty transaction", WithCode(CodeEmptyExpression))
			}
			if len(keys) > MaxTransactionItems {
				return NewError(fmt.Sprintf("transaction of %d items exceeds %d", len(keys), MaxTransactionItems),
					WithCode(CodeTransactionTooLarge), WithContext(map[string]any{"items": len(keys)}))
			}
			input = &ddb.TransactGetItemsInput{
				TransactItems:          make([]types.TransactGetItem, len(keys)),
				ReturnConsumedCapacity: t.capacity(),
			}
			for i, k := range keys {
				op := params.operation(OpGet)
				op.Key = k
				req, err := t.schema.Prepare(op)
				if err != nil {
					return atIndex(err, i)
				}
				input.TransactItems[i] = req.transactGetItem()
			}
			return nil
		},
		func(ctx context.Context) (err error) {
			start = time.Now()
			if out, err = t.client.TransactGetItems(ctx, input); err != nil {
				return t.fail(OpTransactGet, err)
			}
			return nil
		},
		func() ([]Item, error) {
			items := make([]Item, len(keys))
			m := OperationMetrics{Op: OpTransactGet, Chunks: 1}
			m.addConsumed(out.ConsumedCapacity...)
			for i, r := range out.Responses {
				if i >= len(items) {
					break
				}
				item, err := t.schema.DecodeItem(r.Item)
				if err != nil {
					return nil, atIndex(err, i)
				}
				if item != nil {
					m.Items++
				}
				items[i] = item
			}
			t.observe(&m, start)
			return items, nil
		},
	)
}

// TransactGet reads up to MaxTransactionItems records as one consistent
// snapshot. Missing records are nil. Only params.Fields applies.
func (t *Table) TransactGet(ctx context.Context, keys []Item, params *Params) ([]Item, error) {
	return t.transactGetCall(keys, params).Do(ctx, t.guardFor(params))
}

func (t *Table) TransactGetAsync(ctx context.Context, keys []Item, params *Params) *Future[[]Item] {
	return t.transactGetCall(keys, params).Start(ctx)
}
