package record

import (
	"context"
	"errors"
	"fmt"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoClient is the interface satisfied by both the real AWS DynamoDB client
// and any test doubles / local stubs.
type DynamoClient interface {
	// Core operations
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	Scan(ctx context.Context, params *ddb.ScanInput, optFns ...func(*ddb.Options)) (*ddb.ScanOutput, error)

	// Batch
	BatchGetItem(ctx context.Context, params *ddb.BatchGetItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *ddb.BatchWriteItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchWriteItemOutput, error)

	// Transact
	TransactGetItems(ctx context.Context, params *ddb.TransactGetItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactGetItemsOutput, error)
	TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)

	// PartiQL
	ExecuteStatement(ctx context.Context, params *ddb.ExecuteStatementInput, optFns ...func(*ddb.Options)) (*ddb.ExecuteStatementOutput, error)
}

var _ DynamoClient = (*ddb.Client)(nil)

const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// classifyError re-types a client error into the package taxonomy. A
// rejected condition becomes ConditionCheckFailed (with the operation index
// for transactions); everything else is a TransportFailure.
func (s *Schema) classifyError(op OpKind, err error) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		ctx := map[string]any{"op": string(op)}
		if item, derr := s.DecodeItem(ccf.Item); derr == nil && item != nil {
			ctx["item"] = item
		}
		return NewError(fmt.Sprintf("%s: condition check failed", op),
			WithCode(CodeConditionCheckFailed), WithContext(ctx), WithCause(err))
	}

	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		codes := make([]string, len(tce.CancellationReasons))
		for i, r := range tce.CancellationReasons {
			if r.Code != nil {
				codes[i] = *r.Code
			}
		}
		for i, r := range tce.CancellationReasons {
			if r.Code != nil && *r.Code == reasonConditionalCheckFailed {
				ctx := map[string]any{"op": string(op), "reasons": codes}
				if item, derr := s.DecodeItem(r.Item); derr == nil && item != nil {
					ctx["item"] = item
				}
				return NewError(fmt.Sprintf("%s: condition check failed", op),
					WithCode(CodeConditionCheckFailed), WithIndex(i), WithContext(ctx), WithCause(err))
			}
		}
		return NewError(fmt.Sprintf("%s: transaction cancelled", op),
			WithCode(CodeTransportFailure), WithContext(map[string]any{"op": string(op), "reasons": codes}), WithCause(err))
	}

	ctx := map[string]any{"op": string(op)}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		ctx["code"] = ae.ErrorCode()
	}
	return NewError(fmt.Sprintf("%s failed", op), WithCode(CodeTransportFailure), WithContext(ctx), WithCause(err))
}
