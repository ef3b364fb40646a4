// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) GetItem(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) DeleteItem(_ context.Context, input *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockClient) Query(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockClient) DescribeTable(_ context.Context, input *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*dynamodb.DescribeTableOutput)
	return out, args.Error(1)
}

// fakeService keeps records in maps and expires them against now.
type fakeService struct {
	lock     sync.Mutex
	records  map[string]map[string]record
	counters map[string]int64
	now      func() time.Time
}

func newFakeService() *fakeService {
	return &fakeService{
		records:  map[string]map[string]record{},
		counters: map[string]int64{},
		now:      time.Now,
	}
}

func (f *fakeService) live(r record) bool {
	return r.Expires == nil || *r.Expires > f.now().Unix()
}

func (f *fakeService) Put(_ context.Context, r record) (*types.ConsumedCapacity, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.records[r.Bucket] == nil {
		f.records[r.Bucket] = map[string]record{}
	}
	f.records[r.Bucket][r.ID] = r
	return nil, nil
}

func (f *fakeService) Get(_ context.Context, bucket, id string) (record, *types.ConsumedCapacity, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	r, ok := f.records[bucket][id]
	if !ok || !f.live(r) {
		return record{}, nil, errItemNotFound
	}
	return r, nil, nil
}

func (f *fakeService) Delete(_ context.Context, bucket, id string) (*types.ConsumedCapacity, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.records[bucket], id)
	return nil, nil
}

func (f *fakeService) Increment(_ context.Context, bucket, id string, delta, initial int64) (int64, *types.ConsumedCapacity, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	key := bucket + "|" + id
	value, ok := f.counters[key]
	if !ok {
		f.counters[key] = initial
		return initial, nil, nil
	}
	f.counters[key] = value + delta
	return value + delta, nil, nil
}

func (f *fakeService) Range(_ context.Context, bucket, start, end string, keysOnly bool, fn func(record) error) (*types.ConsumedCapacity, error) {
	f.lock.Lock()
	var matched []record
	for id, r := range f.records[bucket] {
		if id < start || (end != "" && id >= end) || !f.live(r) {
			continue
		}
		if keysOnly {
			r = record{Bucket: r.Bucket, ID: r.ID}
		}
		matched = append(matched, r)
	}
	f.lock.Unlock()
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	for _, r := range matched {
		if err := fn(r); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (f *fakeService) Ping(context.Context) error {
	return nil
}
