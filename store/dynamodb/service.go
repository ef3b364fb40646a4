// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// client captures the methods of interest from the dynamoDB API. This
// should help mock API calls as well.
type client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// service defines the dynamodb specific DAO interface. It helps keeping middleware
// such as logging and instrumentation orthogonal to business logic.
type service interface {
	Put(ctx context.Context, r record) (*types.ConsumedCapacity, error)
	Get(ctx context.Context, bucket, id string) (record, *types.ConsumedCapacity, error)
	Delete(ctx context.Context, bucket, id string) (*types.ConsumedCapacity, error)
	Increment(ctx context.Context, bucket, id string, delta, initial int64) (int64, *types.ConsumedCapacity, error)

	// Range calls fn for every live record of bucket whose id is in [start, end).
	// With keysOnly set only the key attributes are fetched.
	Range(ctx context.Context, bucket, start, end string, keysOnly bool, fn func(record) error) (*types.ConsumedCapacity, error)

	Ping(ctx context.Context) error
}

// record is one row of the table. Counters use the counter attribute
// and leave value empty.
type record struct {
	Bucket  string `dynamodbav:"bucket"`
	ID      string `dynamodbav:"id"`
	Value   []byte `dynamodbav:"value,omitempty"`
	Expires *int64 `dynamodbav:"expires,omitempty"`
}

// Dynamo DB attribute keys
const (
	bucketAttributeKey     = "bucket"
	idAttributeKey         = "id"
	expirationAttributeKey = "expires"
	counterAttributeKey    = "counter"
)

// maxIncrementAttempts bounds the update then create loop of Increment.
const maxIncrementAttempts = 8

var (
	errItemNotFound       = errors.New("item not found")
	errIncrementContended = errors.New("counter could neither be updated nor created")
)

// executor satisfies the service interface so dao can then adapt the outputs to match
// the abstract bucket.
type executor struct {
	// c is the dynamodb client
	c client

	// tableName is the name of the dynamodb table
	tableName string

	now func() time.Time
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func itemKey(bucket, id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		bucketAttributeKey: &types.AttributeValueMemberS{Value: bucket},
		idAttributeKey:     &types.AttributeValueMemberS{Value: id},
	}
}

func (d *executor) expired(r record) bool {
	return r.Expires != nil && *r.Expires <= d.now().Unix()
}

func (d *executor) Put(ctx context.Context, r record) (*types.ConsumedCapacity, error) {
	av, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, err
	}
	result, err := d.c.PutItem(ctx, &dynamodb.PutItemInput{
		Item:                   av,
		TableName:              aws.String(d.tableName),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return nil, err
	}
	return result.ConsumedCapacity, nil
}

func (d *executor) Get(ctx context.Context, bucket, id string) (record, *types.ConsumedCapacity, error) {
	out, err := d.c.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:              aws.String(d.tableName),
		Key:                    itemKey(bucket, id),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return record{}, nil, err
	}
	if len(out.Item) == 0 {
		return record{}, out.ConsumedCapacity, errItemNotFound
	}
	var r record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return record{}, out.ConsumedCapacity, err
	}
	if d.expired(r) {
		return record{}, out.ConsumedCapacity, errItemNotFound
	}
	return r, out.ConsumedCapacity, nil
}

func (d *executor) Delete(ctx context.Context, bucket, id string) (*types.ConsumedCapacity, error) {
	out, err := d.c.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:              aws.String(d.tableName),
		Key:                    itemKey(bucket, id),
		ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
	})
	if err != nil {
		return nil, err
	}
	return out.ConsumedCapacity, nil
}

// Increment adds delta to an existing counter and creates missing ones
// holding initial. Both writes are conditional so concurrent callers retry.
func (d *executor) Increment(ctx context.Context, bucket, id string, delta, initial int64) (int64, *types.ConsumedCapacity, error) {
	var consumed *types.ConsumedCapacity
	for attempt := 0; attempt < maxIncrementAttempts; attempt++ {
		out, err := d.c.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                aws.String(d.tableName),
			Key:                      itemKey(bucket, id),
			UpdateExpression:         aws.String("SET #c = #c + :d"),
			ConditionExpression:      aws.String("attribute_exists(#c)"),
			ExpressionAttributeNames: map[string]string{"#c": counterAttributeKey},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":d": &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
			},
			ReturnValues:           types.ReturnValueUpdatedNew,
			ReturnConsumedCapacity: types.ReturnConsumedCapacityTotal,
		})
		if err == nil {
			consumed = addCapacity(consumed, out.ConsumedCapacity)
			var value int64
			if err := attributevalue.Unmarshal(out.Attributes[counterAttributeKey], &value); err != nil {
				return 0, consumed, err
			}
			return value, consumed, nil
		}
		if !isConditionFailed(err) {
			return 0, consumed, err
		}

		created, err := d.c.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(d.tableName),
			Item: map[string]types.AttributeValue{
				bucketAttributeKey:  &types.AttributeValueMemberS{Value: bucket},
				idAttributeKey:      &types.AttributeValueMemberS{Value: id},
				counterAttributeKey: &types.AttributeValueMemberN{Value: strconv.FormatInt(initial, 10)},
			},
			ConditionExpression:      aws.String("attribute_not_exists(#i)"),
			ExpressionAttributeNames: map[string]string{"#i": idAttributeKey},
			ReturnConsumedCapacity:   types.ReturnConsumedCapacityTotal,
		})
		if err == nil {
			return initial, addCapacity(consumed, created.ConsumedCapacity), nil
		}
		if !isConditionFailed(err) {
			return 0, consumed, err
		}
	}
	return 0, consumed, errIncrementContended
}

func (d *executor) Range(ctx context.Context, bucket, start, end string, keysOnly bool, fn func(record) error) (*types.ConsumedCapacity, error) {
	names := map[string]string{
		"#b": bucketAttributeKey,
		"#x": expirationAttributeKey,
	}
	values := map[string]types.AttributeValue{
		":b":   &types.AttributeValueMemberS{Value: bucket},
		":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(d.now().Unix(), 10)},
	}
	condition := "#b = :b"
	// BETWEEN is inclusive, the end bound is excluded below.
	switch {
	case start != "" && end != "":
		condition += " AND #i BETWEEN :s AND :e"
		values[":s"] = &types.AttributeValueMemberS{Value: start}
		values[":e"] = &types.AttributeValueMemberS{Value: end}
	case start != "":
		condition += " AND #i >= :s"
		values[":s"] = &types.AttributeValueMemberS{Value: start}
	case end != "":
		condition += " AND #i < :e"
		values[":e"] = &types.AttributeValueMemberS{Value: end}
	}
	if start != "" || end != "" || keysOnly {
		names["#i"] = idAttributeKey
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(d.tableName),
		KeyConditionExpression:    aws.String(condition),
		FilterExpression:          aws.String("attribute_not_exists(#x) OR #x > :now"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnConsumedCapacity:    types.ReturnConsumedCapacityTotal,
	}
	if keysOnly {
		input.ProjectionExpression = aws.String("#b, #i")
	}

	var consumed *types.ConsumedCapacity
	for {
		out, err := d.c.Query(ctx, input)
		if err != nil {
			return consumed, err
		}
		consumed = addCapacity(consumed, out.ConsumedCapacity)
		for _, item := range out.Items {
			var r record
			if err := attributevalue.UnmarshalMap(item, &r); err != nil {
				continue
			}
			if end != "" && r.ID >= end {
				continue
			}
			if err := fn(r); err != nil {
				return consumed, err
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return consumed, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func (d *executor) Ping(ctx context.Context) error {
	_, err := d.c.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
	return err
}

func addCapacity(total, c *types.ConsumedCapacity) *types.ConsumedCapacity {
	if c == nil {
		return total
	}
	if total == nil {
		total = &types.ConsumedCapacity{TableName: c.TableName}
	}
	total.CapacityUnits = addUnits(total.CapacityUnits, c.CapacityUnits)
	total.ReadCapacityUnits = addUnits(total.ReadCapacityUnits, c.ReadCapacityUnits)
	total.WriteCapacityUnits = addUnits(total.WriteCapacityUnits, c.WriteCapacityUnits)
	return total
}

func addUnits(a, b *float64) *float64 {
	if b == nil {
		return a
	}
	if a == nil {
		return aws.Float64(*b)
	}
	return aws.Float64(*a + *b)
}
