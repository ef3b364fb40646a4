// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/xmidt-org/cerberus/store"
)

const nodeName = "inmem"

type expireableItem struct {
	value      []byte
	expiration *time.Time
}

type InMem struct {
	data     map[string]expireableItem
	counters map[string]int64
	designs  map[string]store.DesignDocument
	closed   bool
	lock     sync.Mutex
	now      func() time.Time
}

func NewInMem() *InMem {
	return &InMem{
		data:     map[string]expireableItem{},
		counters: map[string]int64{},
		designs:  map[string]store.DesignDocument{},
		now:      time.Now,
	}
}

func (i *InMem) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return store.ErrClosed
	}
	storingItem := expireableItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		expiration := i.now().Add(ttl)
		storingItem.expiration = &expiration
	}
	i.data[key] = storingItem
	return nil
}

// hasExpired returns true if the item under key has expired and false otherwise.
// Note: expired items are automatically removed from the internal map.
func (i *InMem) hasExpired(key string, item expireableItem) bool {
	if item.expiration == nil {
		return false
	}
	if !i.now().Before(*item.expiration) {
		delete(i.data, key)
		return true
	}
	return false
}

func (i *InMem) lookup(key string) (expireableItem, bool) {
	item, ok := i.data[key]
	if !ok || i.hasExpired(key, item) {
		return expireableItem{}, false
	}
	return item, true
}

func (i *InMem) Get(_ context.Context, key string) ([]byte, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return nil, store.ErrClosed
	}
	item, ok := i.lookup(key)
	if !ok {
		return nil, store.OperationError{Operation: "get", Key: key, Err: store.ErrKeyNotFound}
	}
	return append([]byte(nil), item.value...), nil
}

func (i *InMem) Delete(_ context.Context, key string) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return store.ErrClosed
	}
	if _, ok := i.lookup(key); !ok {
		return store.OperationError{Operation: "delete", Key: key, Err: store.ErrKeyNotFound}
	}
	delete(i.data, key)
	return nil
}

func (i *InMem) Increment(_ context.Context, key string, delta, initial int64) (int64, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return 0, store.ErrClosed
	}
	value, ok := i.counters[key]
	if !ok {
		i.counters[key] = initial
		return initial, nil
	}
	value += delta
	i.counters[key] = value
	return value, nil
}

func (i *InMem) GetDesignDocument(_ context.Context, name string) (store.DesignDocument, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return store.DesignDocument{}, store.ErrClosed
	}
	doc, ok := i.designs[name]
	if !ok {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: store.ErrDesignDocumentNotFound}
	}
	return copyDocument(doc), nil
}

func (i *InMem) UpsertDesignDocument(_ context.Context, doc store.DesignDocument) error {
	if _, err := store.CompileDocument(doc); err != nil {
		return err
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return store.ErrClosed
	}
	i.designs[doc.Name] = copyDocument(doc)
	return nil
}

// Query evaluates the view against every live key. Views are not materialized
// since a scan of the map is as cheap as maintaining them.
func (i *InMem) Query(_ context.Context, q store.ViewQuery) (store.ViewResult, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return store.ViewResult{}, store.ErrClosed
	}
	doc, ok := i.designs[q.Document]
	if !ok {
		return store.ViewResult{}, store.OperationError{Operation: "query", Key: q.Document, Err: store.ErrDesignDocumentNotFound}
	}
	v, ok := doc.View(q.View)
	if !ok {
		return store.ViewResult{}, store.OperationError{Operation: "query", Key: q.Document + "/" + q.View, Err: store.ErrViewNotFound}
	}
	cv, err := store.CompileView(v)
	if err != nil {
		return store.ViewResult{}, err
	}

	var keys []string
	for key, item := range i.data {
		if i.hasExpired(key, item) {
			continue
		}
		if q.InRange(key) && cv.Emit(key) {
			keys = append(keys, key)
		}
	}
	result, err := store.Reduce(q, cv, keys)
	if err != nil || !q.IncludeDocs || q.Reduce {
		return result, err
	}
	for idx := range result.Rows {
		result.Rows[idx].Doc = append([]byte(nil), i.data[result.Rows[idx].ID].value...)
	}
	return result, nil
}

func (i *InMem) Ping(_ context.Context) error {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.closed {
		return store.ErrClosed
	}
	return nil
}

func (i *InMem) Close() error {
	i.lock.Lock()
	defer i.lock.Unlock()
	i.closed = true
	return nil
}

// Stats reports the single in process node.
func (i *InMem) Stats(_ context.Context) ([]store.NodeStatistics, error) {
	i.lock.Lock()
	defer i.lock.Unlock()
	stats := store.NodeStatistics{Name: nodeName, Available: !i.closed}
	for key, item := range i.data {
		if i.hasExpired(key, item) {
			continue
		}
		stats.Items++
		stats.Bytes += int64(len(item.value))
	}
	return []store.NodeStatistics{stats}, nil
}

func copyDocument(doc store.DesignDocument) store.DesignDocument {
	return store.DesignDocument{
		Name:  doc.Name,
		Views: append([]store.View(nil), doc.Views...),
	}
}
