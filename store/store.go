// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"
)

const (
	// TypeLabel is for labeling metrics; if there is a single metric for
	// successful queries, the typeLabel and corresponding type can be used
	// when incrementing the metric.
	TypeLabel     = "type"
	InsertType    = "insert"
	DeleteType    = "delete"
	ReadType      = "read"
	IncrementType = "increment"
	QueryType     = "query"
	DesignType    = "design"
	PingType      = "ping"
)

// S is the key/value surface of a bucket. Every call blocks until the backing
// store answers; implementations must be safe for concurrent use.
type S interface {
	// Get returns the value stored under key or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set upserts value under key. A ttl of zero means the value never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key returns ErrKeyNotFound.
	Delete(ctx context.Context, key string) error

	// Increment atomically adds delta to the counter stored under key and returns
	// the new value. A missing counter is created holding initial, which is returned as is.
	Increment(ctx context.Context, key string, delta, initial int64) (int64, error)

	// Query runs a range query against a view of a design document.
	Query(ctx context.Context, q ViewQuery) (ViewResult, error)
}

// DesignManager reads and writes the design documents holding view definitions.
type DesignManager interface {
	// GetDesignDocument returns ErrDesignDocumentNotFound if no document has that name.
	GetDesignDocument(ctx context.Context, name string) (DesignDocument, error)

	// UpsertDesignDocument replaces the whole document and (re)builds its views.
	UpsertDesignDocument(ctx context.Context, doc DesignDocument) error
}

// Bucket is an open connection to one collection of the backing store.
type Bucket interface {
	S
	DesignManager

	// Ping verifies that the connection is still good.
	Ping(ctx context.Context) error

	// Close releases the connection. The bucket must not be used afterwards.
	Close() error
}

// NodeStatistics describes one node of the backing store.
type NodeStatistics struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Items     int64  `json:"items"`
	Bytes     int64  `json:"bytes"`
}

// StatsReporter is implemented by buckets that can report per node figures.
type StatsReporter interface {
	Stats(ctx context.Context) ([]NodeStatistics, error)
}
