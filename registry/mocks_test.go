// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cerberus/index"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/inmem"
)

var errMockStore = errors.New("store is down")

// mockConnection hands out a fixed bucket, or ErrNotInitialized when it has none.
type mockConnection struct {
	bucket store.Bucket
	ready  chan struct{}
}

func (m *mockConnection) Handle() (store.Bucket, error) {
	if m.bucket == nil {
		return nil, store.ErrNotInitialized
	}
	return m.bucket, nil
}

func (m *mockConnection) Ready() <-chan struct{} {
	return m.ready
}

func connected(b store.Bucket) *mockConnection {
	ready := make(chan struct{})
	close(ready)
	return &mockConnection{bucket: b, ready: ready}
}

func notConnected() *mockConnection {
	return &mockConnection{ready: make(chan struct{})}
}

// newIndexedBucket returns an in memory bucket holding both design documents.
func newIndexedBucket(t *testing.T) *inmem.InMem {
	b := inmem.NewInMem()
	for _, doc := range []store.DesignDocument{index.Utils, index.Statistics} {
		_, err := index.Ensure(context.Background(), b, doc)
		require.NoError(t, err)
	}
	return b
}

// flakyBucket fails the first failures calls to Set.
type flakyBucket struct {
	store.Bucket
	failures int32
}

func (f *flakyBucket) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return errMockStore
	}
	return f.Bucket.Set(ctx, key, value, ttl)
}
