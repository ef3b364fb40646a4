// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"errors"
	"time"

	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/db/metric"
)

// instrumentedBucket counts successful and failed calls per operation type.
// A missing key is an answer, not a failure.
type instrumentedBucket struct {
	store.Bucket
	measures metric.Measures
}

type instrumentedReporter struct {
	*instrumentedBucket
	reporter store.StatsReporter
}

func (r instrumentedReporter) Stats(ctx context.Context) ([]store.NodeStatistics, error) {
	return r.reporter.Stats(ctx)
}

// Instrument wraps b. Buckets implementing store.StatsReporter keep doing so.
func Instrument(b store.Bucket, measures metric.Measures) store.Bucket {
	ib := &instrumentedBucket{Bucket: b, measures: measures}
	if reporter, ok := b.(store.StatsReporter); ok {
		return instrumentedReporter{instrumentedBucket: ib, reporter: reporter}
	}
	return ib
}

func (b *instrumentedBucket) observe(operation string, err error) {
	if err == nil || errors.Is(err, store.ErrKeyNotFound) {
		b.measures.QuerySuccessCount.WithLabelValues(operation).Inc()
		return
	}
	b.measures.QueryFailureCount.WithLabelValues(operation).Inc()
}

func (b *instrumentedBucket) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.Bucket.Get(ctx, key)
	b.observe(store.ReadType, err)
	return value, err
}

func (b *instrumentedBucket) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := b.Bucket.Set(ctx, key, value, ttl)
	b.observe(store.InsertType, err)
	return err
}

func (b *instrumentedBucket) Delete(ctx context.Context, key string) error {
	err := b.Bucket.Delete(ctx, key)
	b.observe(store.DeleteType, err)
	return err
}

func (b *instrumentedBucket) Increment(ctx context.Context, key string, delta, initial int64) (int64, error) {
	n, err := b.Bucket.Increment(ctx, key, delta, initial)
	b.observe(store.IncrementType, err)
	return n, err
}

func (b *instrumentedBucket) Query(ctx context.Context, q store.ViewQuery) (store.ViewResult, error) {
	result, err := b.Bucket.Query(ctx, q)
	b.observe(store.QueryType, err)
	return result, err
}

func (b *instrumentedBucket) GetDesignDocument(ctx context.Context, name string) (store.DesignDocument, error) {
	doc, err := b.Bucket.GetDesignDocument(ctx, name)
	if errors.Is(err, store.ErrDesignDocumentNotFound) {
		b.observe(store.DesignType, nil)
		return doc, err
	}
	b.observe(store.DesignType, err)
	return doc, err
}

func (b *instrumentedBucket) UpsertDesignDocument(ctx context.Context, doc store.DesignDocument) error {
	err := b.Bucket.UpsertDesignDocument(ctx, doc)
	b.observe(store.DesignType, err)
	return err
}

func (b *instrumentedBucket) Ping(ctx context.Context) error {
	err := b.Bucket.Ping(ctx)
	b.observe(store.PingType, err)
	return err
}
