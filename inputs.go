package record

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ─── DynamoDB command builders ────────────────────────────────────────────────

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func optInt32(n int32) *int32 {
	if n <= 0 {
		return nil
	}
	return aws.Int32(n)
}

func optBool(b bool) *bool {
	if !b {
		return nil
	}
	return aws.Bool(true)
}

func (r *PreparedRequest) getInput(capacity types.ReturnConsumedCapacity) *ddb.GetItemInput {
	return &ddb.GetItemInput{
		TableName:                aws.String(r.Table),
		Key:                      r.Key,
		ConsistentRead:           optBool(r.Consistent),
		ProjectionExpression:     optString(r.Projection),
		ExpressionAttributeNames: r.Names,
		ReturnConsumedCapacity:   capacity,
	}
}

func (r *PreparedRequest) putInput(capacity types.ReturnConsumedCapacity) *ddb.PutItemInput {
	return &ddb.PutItemInput{
		TableName:                           aws.String(r.Table),
		Item:                                r.Item,
		ConditionExpression:                 optString(r.Condition),
		ExpressionAttributeNames:            r.Names,
		ExpressionAttributeValues:           r.Values,
		ReturnValues:                        r.ReturnValues,
		ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		ReturnConsumedCapacity:              capacity,
	}
}

func (r *PreparedRequest) deleteInput(capacity types.ReturnConsumedCapacity) *ddb.DeleteItemInput {
	return &ddb.DeleteItemInput{
		TableName:                           aws.String(r.Table),
		Key:                                 r.Key,
		ConditionExpression:                 optString(r.Condition),
		ExpressionAttributeNames:            r.Names,
		ExpressionAttributeValues:           r.Values,
		ReturnValues:                        r.ReturnValues,
		ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		ReturnConsumedCapacity:              capacity,
	}
}

func (r *PreparedRequest) updateInput(capacity types.ReturnConsumedCapacity) *ddb.UpdateItemInput {
	return &ddb.UpdateItemInput{
		TableName:                           aws.String(r.Table),
		Key:                                 r.Key,
		UpdateExpression:                    aws.String(r.Update),
		ConditionExpression:                 optString(r.Condition),
		ExpressionAttributeNames:            r.Names,
		ExpressionAttributeValues:           r.Values,
		ReturnValues:                        r.ReturnValues,
		ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		ReturnConsumedCapacity:              capacity,
	}
}

func (r *PreparedRequest) queryInput(capacity types.ReturnConsumedCapacity) *ddb.QueryInput {
	in := &ddb.QueryInput{
		TableName:                 aws.String(r.Table),
		IndexName:                 optString(r.IndexName),
		KeyConditionExpression:    aws.String(r.KeyCondition),
		FilterExpression:          optString(r.Filter),
		ProjectionExpression:      optString(r.Projection),
		ExpressionAttributeNames:  r.Names,
		ExpressionAttributeValues: r.Values,
		ConsistentRead:            optBool(r.Consistent),
		Limit:                     optInt32(r.Limit),
		ExclusiveStartKey:         r.StartKey,
		Select:                    r.Select,
		ReturnConsumedCapacity:    capacity,
	}
	if r.Descending {
		in.ScanIndexForward = aws.Bool(false)
	}
	return in
}

func (r *PreparedRequest) scanInput(capacity types.ReturnConsumedCapacity) *ddb.ScanInput {
	in := &ddb.ScanInput{
		TableName:                 aws.String(r.Table),
		IndexName:                 optString(r.IndexName),
		FilterExpression:          optString(r.Filter),
		ProjectionExpression:      optString(r.Projection),
		ExpressionAttributeNames:  r.Names,
		ExpressionAttributeValues: r.Values,
		ConsistentRead:            optBool(r.Consistent),
		Limit:                     optInt32(r.Limit),
		ExclusiveStartKey:         r.StartKey,
		Select:                    r.Select,
		ReturnConsumedCapacity:    capacity,
	}
	if r.TotalSegments > 0 {
		in.Segment = aws.Int32(r.Segment)
		in.TotalSegments = aws.Int32(r.TotalSegments)
	}
	return in
}

// ─── batch / transact input builders ────────────────────────────────────────

// writeRequest converts a put or delete into a batch write element. Batch
// writes carry no expressions.
func (r *PreparedRequest) writeRequest() (types.WriteRequest, error) {
	if r.Condition != "" || r.Update != "" {
		return types.WriteRequest{}, NewArgError("batch writes do not support conditions or updates")
	}
	switch r.Kind {
	case OpPut:
		return types.WriteRequest{PutRequest: &types.PutRequest{Item: r.Item}}, nil
	case OpDelete:
		return types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: r.Key}}, nil
	}
	return types.WriteRequest{}, NewArgError(fmt.Sprintf("unsupported batch operation %q", r.Kind))
}

func (r *PreparedRequest) transactWriteItem() (types.TransactWriteItem, error) {
	table := aws.String(r.Table)
	cond := optString(r.Condition)
	switch r.Kind {
	case OpPut:
		return types.TransactWriteItem{Put: &types.Put{
			TableName:                           table,
			Item:                                r.Item,
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            r.Names,
			ExpressionAttributeValues:           r.Values,
			ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		}}, nil
	case OpDelete:
		return types.TransactWriteItem{Delete: &types.Delete{
			TableName:                           table,
			Key:                                 r.Key,
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            r.Names,
			ExpressionAttributeValues:           r.Values,
			ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		}}, nil
	case OpUpdate:
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                           table,
			Key:                                 r.Key,
			UpdateExpression:                    aws.String(r.Update),
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            r.Names,
			ExpressionAttributeValues:           r.Values,
			ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		}}, nil
	case OpCheck:
		return types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:                           table,
			Key:                                 r.Key,
			ConditionExpression:                 cond,
			ExpressionAttributeNames:            r.Names,
			ExpressionAttributeValues:           r.Values,
			ReturnValuesOnConditionCheckFailure: r.ReturnOnConditionFailure,
		}}, nil
	}
	return types.TransactWriteItem{}, NewArgError(fmt.Sprintf("unsupported transaction operation %q", r.Kind))
}

func (r *PreparedRequest) transactGetItem() types.TransactGetItem {
	return types.TransactGetItem{Get: &types.Get{
		TableName:                aws.String(r.Table),
		Key:                      r.Key,
		ProjectionExpression:     optString(r.Projection),
		ExpressionAttributeNames: r.Names,
	}}
}
