// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cerberus/store"
)

// StatisticsDocument is the design document exercised by StoreTest.
var StatisticsDocument = store.DesignDocument{
	Name: "statistics",
	Views: []store.View{
		{Name: "all_tickets", Map: store.MapEmitKey, Reduce: store.ReduceCount},
		{Name: "numeric", Map: store.MapEmitNumericKey},
	},
}

// StoreTest validates that a given bucket implementation works. If storeTiming
// is positive the expiry checks wait for an item with that TTL to disappear.
func StoreTest(b store.Bucket, storeTiming time.Duration, t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	t.Log("Basic Test")
	require.NoError(b.Ping(ctx))
	require.NoError(b.Set(ctx, "1", []byte(`{"n":1}`), 0))
	value, err := b.Get(ctx, "1")
	assert.NoError(err)
	assert.Equal([]byte(`{"n":1}`), value)

	require.NoError(b.Set(ctx, "1", []byte(`{"n":2}`), 0))
	value, err = b.Get(ctx, "1")
	assert.NoError(err)
	assert.Equal([]byte(`{"n":2}`), value, "set must overwrite")

	_, err = b.Get(ctx, "missing")
	assert.True(errors.Is(err, store.ErrKeyNotFound), "expected ErrKeyNotFound, got %v", err)
	assert.True(errors.Is(b.Delete(ctx, "missing"), store.ErrKeyNotFound))

	require.NoError(b.Delete(ctx, "1"))
	_, err = b.Get(ctx, "1")
	assert.True(errors.Is(err, store.ErrKeyNotFound))

	t.Log("Counter Test")
	n, err := b.Increment(ctx, "LAST_ID", 1, 5)
	require.NoError(err)
	assert.Equal(int64(5), n)
	n, err = b.Increment(ctx, "LAST_ID", 1, 5)
	require.NoError(err)
	assert.Equal(int64(6), n)

	t.Log("View Test")
	_, err = b.GetDesignDocument(ctx, StatisticsDocument.Name)
	assert.True(errors.Is(err, store.ErrDesignDocumentNotFound))
	_, err = b.Query(ctx, store.ViewQuery{Document: StatisticsDocument.Name, View: "all_tickets", Reduce: true})
	assert.Error(err, "querying a missing design document must fail")

	require.NoError(b.Set(ctx, "TGT-1", []byte("a"), time.Hour))
	require.NoError(b.Set(ctx, "TGT-2", []byte("b"), time.Hour))
	require.NoError(b.Set(ctx, "ST-1", []byte("c"), time.Hour))
	require.NoError(b.Set(ctx, "42", []byte("d"), 0))

	require.NoError(b.UpsertDesignDocument(ctx, StatisticsDocument))
	doc, err := b.GetDesignDocument(ctx, StatisticsDocument.Name)
	require.NoError(err)
	assert.Equal(StatisticsDocument, doc)

	count := func(prefix string) any {
		result, err := b.Query(ctx, store.ViewQuery{
			Document: StatisticsDocument.Name,
			View:     "all_tickets",
			StartKey: prefix,
			EndKey:   prefix + "\ufffe",
			Reduce:   true,
		})
		require.NoError(err)
		if len(result.Rows) == 0 {
			return nil
		}
		return result.Rows[0].Value
	}
	assert.EqualValues(2, count("TGT-"))
	assert.EqualValues(1, count("ST-"))
	assert.Nil(count("PGT-"))

	require.NoError(b.Set(ctx, "ST-2", []byte("e"), time.Hour))
	assert.EqualValues(2, count("ST-"))
	require.NoError(b.Delete(ctx, "TGT-1"))
	assert.EqualValues(1, count("TGT-"))

	result, err := b.Query(ctx, store.ViewQuery{Document: StatisticsDocument.Name, View: "numeric", IncludeDocs: true})
	require.NoError(err)
	require.Len(result.Rows, 1)
	assert.Equal("42", result.Rows[0].Key)
	assert.Equal([]byte("d"), result.Rows[0].Doc)

	_, err = b.Query(ctx, store.ViewQuery{Document: StatisticsDocument.Name, View: "nope"})
	assert.True(errors.Is(err, store.ErrViewNotFound))

	if storeTiming > 0 {
		t.Log("starting duration tests")
		require.NoError(b.Set(ctx, "TGT-short", []byte("x"), storeTiming))
		_, err := b.Get(ctx, "TGT-short")
		assert.NoError(err)
		time.Sleep(storeTiming + time.Second)
		_, err = b.Get(ctx, "TGT-short")
		assert.True(errors.Is(err, store.ErrKeyNotFound))
		assert.EqualValues(1, count("TGT-"))
	}
}
