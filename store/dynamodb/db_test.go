// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/db/metric"
	"github.com/xmidt-org/cerberus/store/storetest"
	"go.uber.org/zap"
)

var testNow = time.Date(2021, time.June, 1, 12, 0, 0, 0, time.UTC)

func newTestExecutor(c client) *executor {
	return &executor{c: c, tableName: "cerberus", now: func() time.Time { return testNow }}
}

func marshal(t *testing.T, r record) map[string]types.AttributeValue {
	av, err := attributevalue.MarshalMap(r)
	require.NoError(t, err)
	return av
}

func TestDynamo(t *testing.T) {
	storetest.StoreTest(newClient(newFakeService(), Config{}, "cerberus", zap.NewNop()), time.Second, t)
}

func TestBucketPartitions(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	f := newFakeService()
	c := newClient(f, Config{}, "sso", zap.NewNop())

	_, err := c.Increment(ctx, "LAST_ID", 1, 0)
	require.NoError(t, err)
	assert.Contains(f.counters, "sso/counters|LAST_ID")

	require.NoError(t, c.UpsertDesignDocument(ctx, storetest.StatisticsDocument))
	assert.Contains(f.records["sso/_design"], "statistics")

	require.NoError(t, c.Set(ctx, "TGT-1", []byte("a"), time.Hour))
	assert.Contains(f.records["sso"], "TGT-1")
	assert.Contains(f.records["sso/_view/statistics/all_tickets"], "TGT-1")
	assert.NotContains(f.records["sso/_view/statistics/numeric"], "TGT-1")
	assert.Equal(f.records["sso"]["TGT-1"].Expires, f.records["sso/_view/statistics/all_tickets"]["TGT-1"].Expires,
		"view rows expire with their item")
}

func TestExpiresAt(t *testing.T) {
	assert := assert.New(t)
	assert.Nil(expiresAt(0))
	before := time.Now().Unix()
	exp := expiresAt(1500 * time.Millisecond)
	require.NotNil(t, exp)
	assert.GreaterOrEqual(*exp, before+2)
}

func TestExecutorGet(t *testing.T) {
	tcs := []struct {
		Description string
		Output      func(t *testing.T) *dynamodb.GetItemOutput
		ExpectedErr error
	}{
		{
			Description: "Missing",
			Output: func(*testing.T) *dynamodb.GetItemOutput {
				return &dynamodb.GetItemOutput{}
			},
			ExpectedErr: errItemNotFound,
		},
		{
			Description: "Expired",
			Output: func(t *testing.T) *dynamodb.GetItemOutput {
				expired := testNow.Add(-time.Second).Unix()
				return &dynamodb.GetItemOutput{Item: marshal(t, record{Bucket: "cerberus", ID: "ST-1", Value: []byte("x"), Expires: &expired})}
			},
			ExpectedErr: errItemNotFound,
		},
		{
			Description: "Found",
			Output: func(t *testing.T) *dynamodb.GetItemOutput {
				live := testNow.Add(time.Minute).Unix()
				return &dynamodb.GetItemOutput{Item: marshal(t, record{Bucket: "cerberus", ID: "ST-1", Value: []byte("x"), Expires: &live})}
			},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			m := &mockClient{}
			m.On("GetItem", mock.Anything).Return(tc.Output(t), nil)
			r, _, err := newTestExecutor(m).Get(context.Background(), "cerberus", "ST-1")
			if tc.ExpectedErr != nil {
				assert.True(t, errors.Is(err, tc.ExpectedErr))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, []byte("x"), r.Value)
		})
	}
}

func TestExecutorIncrement(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	m := &mockClient{}
	m.On("UpdateItem", mock.Anything).Return(nil, &types.ConditionalCheckFailedException{}).Once()
	m.On("PutItem", mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return aws.ToString(in.ConditionExpression) == "attribute_not_exists(#i)"
	})).Return(&dynamodb.PutItemOutput{}, nil).Once()
	n, _, err := newTestExecutor(m).Increment(ctx, "cerberus/counters", "LAST_ID", 1, 4)
	assert.NoError(err)
	assert.Equal(int64(4), n, "a missing counter is created with the initial value")
	m.AssertExpectations(t)

	m = &mockClient{}
	m.On("UpdateItem", mock.Anything).Return(&dynamodb.UpdateItemOutput{
		Attributes: map[string]types.AttributeValue{counterAttributeKey: &types.AttributeValueMemberN{Value: "6"}},
	}, nil).Once()
	n, _, err = newTestExecutor(m).Increment(ctx, "cerberus/counters", "LAST_ID", 1, 4)
	assert.NoError(err)
	assert.Equal(int64(6), n)

	m = &mockClient{}
	m.On("UpdateItem", mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
	m.On("PutItem", mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})
	_, _, err = newTestExecutor(m).Increment(ctx, "cerberus/counters", "LAST_ID", 1, 4)
	assert.True(errors.Is(err, errIncrementContended))
	m.AssertNumberOfCalls(t, "UpdateItem", maxIncrementAttempts)

	m = &mockClient{}
	m.On("UpdateItem", mock.Anything).Return(nil, errors.New("throttled"))
	_, _, err = newTestExecutor(m).Increment(ctx, "cerberus/counters", "LAST_ID", 1, 4)
	assert.EqualError(err, "throttled")
	m.AssertNotCalled(t, "PutItem", mock.Anything)
}

func TestExecutorRange(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	page := map[string]types.AttributeValue{"bucket": &types.AttributeValueMemberS{Value: "b"}, "id": &types.AttributeValueMemberS{Value: "TGT-2"}}
	m := &mockClient{}
	m.On("Query", mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			marshal(t, record{Bucket: "b", ID: "TGT-1"}),
			marshal(t, record{Bucket: "b", ID: "TGT-2"}),
		},
		LastEvaluatedKey: page,
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(0.5)},
	}, nil).Once()
	m.On("Query", mock.Anything).Return(&dynamodb.QueryOutput{
		Items: []map[string]types.AttributeValue{
			marshal(t, record{Bucket: "b", ID: "TGT-3"}),
		},
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(0.5)},
	}, nil).Once()

	var ids []string
	consumed, err := newTestExecutor(m).Range(context.Background(), "b", "TGT-1", "TGT-3", true, func(r record) error {
		ids = append(ids, r.ID)
		return nil
	})
	require.NoError(err)
	assert.Equal([]string{"TGT-1", "TGT-2"}, ids, "the end bound is exclusive")
	require.NotNil(consumed)
	assert.Equal(1.0, *consumed.CapacityUnits)

	m.AssertNumberOfCalls(t, "Query", 2)
	input := m.Calls[1].Arguments.Get(0).(*dynamodb.QueryInput)
	assert.Equal("#b = :b AND #i BETWEEN :s AND :e", aws.ToString(input.KeyConditionExpression))
	assert.Equal("#b, #i", aws.ToString(input.ProjectionExpression))
	assert.Equal(page, input.ExclusiveStartKey)
	assert.Equal(&types.AttributeValueMemberN{Value: "1622548800"}, input.ExpressionAttributeValues[":now"])
}

func TestExecutorRangeConditions(t *testing.T) {
	tcs := []struct {
		Description string
		Start, End  string
		Expected    string
		ExpectID    bool
	}{
		{Description: "Whole partition", Expected: "#b = :b"},
		{Description: "Lower bound", Start: "1", Expected: "#b = :b AND #i >= :s", ExpectID: true},
		{Description: "Upper bound", End: "9", Expected: "#b = :b AND #i < :e", ExpectID: true},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			m := &mockClient{}
			m.On("Query", mock.Anything).Return(&dynamodb.QueryOutput{}, nil)
			_, err := newTestExecutor(m).Range(context.Background(), "b", tc.Start, tc.End, false, func(record) error { return nil })
			require.NoError(t, err)
			input := m.Calls[0].Arguments.Get(0).(*dynamodb.QueryInput)
			assert.Equal(t, tc.Expected, aws.ToString(input.KeyConditionExpression))
			_, hasID := input.ExpressionAttributeNames["#i"]
			assert.Equal(t, tc.ExpectID, hasID, "unused attribute names are rejected by dynamodb")
		})
	}
}

func TestInstrumentingService(t *testing.T) {
	m := &mockClient{}
	m.On("PutItem", mock.Anything).Return(&dynamodb.PutItemOutput{
		ConsumedCapacity: &types.ConsumedCapacity{CapacityUnits: aws.Float64(1.5), WriteCapacityUnits: aws.Float64(1.5)},
	}, nil)
	measures := metric.NewMeasures()
	svc := newInstrumentingService(measures, newTestExecutor(m))
	_, err := svc.Put(context.Background(), record{Bucket: "b", ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, testutil.ToFloat64(measures.CapacityUnitConsumedCount.WithLabelValues(store.InsertType)))
	assert.Equal(t, 1.5, testutil.ToFloat64(measures.WriteCapacityUnitConsumedCount.WithLabelValues(store.InsertType)))
	assert.Equal(t, 0.0, testutil.ToFloat64(measures.ReadCapacityUnitConsumedCount.WithLabelValues(store.InsertType)))
}

func TestPingFailure(t *testing.T) {
	m := &mockClient{}
	m.On("DescribeTable", mock.Anything).Return(nil, &types.ResourceNotFoundException{})
	c := newClient(newLoggingService(zap.NewNop(), newTestExecutor(m)), Config{Table: "cerberus"}, "cerberus", zap.NewNop())
	err := c.Ping(context.Background())
	var rnf *types.ResourceNotFoundException
	assert.True(t, errors.As(err, &rnf))
}
