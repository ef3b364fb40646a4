// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package storetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/xmidt-org/cerberus/store"
)

// MockBucket is a testify mock of store.Bucket.
type MockBucket struct {
	mock.Mock
}

func (m *MockBucket) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockBucket) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockBucket) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockBucket) Increment(ctx context.Context, key string, delta, initial int64) (int64, error) {
	args := m.Called(ctx, key, delta, initial)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBucket) Query(ctx context.Context, q store.ViewQuery) (store.ViewResult, error) {
	args := m.Called(ctx, q)
	return args.Get(0).(store.ViewResult), args.Error(1)
}

func (m *MockBucket) GetDesignDocument(ctx context.Context, name string) (store.DesignDocument, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(store.DesignDocument), args.Error(1)
}

func (m *MockBucket) UpsertDesignDocument(ctx context.Context, doc store.DesignDocument) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}

func (m *MockBucket) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBucket) Close() error {
	args := m.Called()
	return args.Error(0)
}
