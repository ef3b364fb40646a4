// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockDB struct {
	mock.Mock
}

func (s *mockDB) GetItem(ctx context.Context, key string) ([]byte, error) {
	args := s.Called(key)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (s *mockDB) PutItem(ctx context.Context, key string, value []byte, ttl int) error {
	return s.Called(key, value, ttl).Error(0)
}

func (s *mockDB) DeleteItem(ctx context.Context, key string) error {
	return s.Called(key).Error(0)
}

func (s *mockDB) ScanItems(ctx context.Context, fn func(key string, ttl int) error) error {
	return s.Called().Error(0)
}

func (s *mockDB) GetCounter(ctx context.Context, key string) (int64, error) {
	args := s.Called(key)
	return args.Get(0).(int64), args.Error(1)
}

func (s *mockDB) InsertCounter(ctx context.Context, key string, value int64) (bool, error) {
	args := s.Called(key, value)
	return args.Bool(0), args.Error(1)
}

func (s *mockDB) SwapCounter(ctx context.Context, key string, old, value int64) (bool, error) {
	args := s.Called(key, old, value)
	return args.Bool(0), args.Error(1)
}

func (s *mockDB) GetDesign(ctx context.Context, name string) ([]byte, error) {
	args := s.Called(name)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (s *mockDB) AllDesigns(ctx context.Context) (map[string][]byte, error) {
	args := s.Called()
	value, _ := args.Get(0).(map[string][]byte)
	return value, args.Error(1)
}

func (s *mockDB) PutDesign(ctx context.Context, name string, body []byte) error {
	return s.Called(name, body).Error(0)
}

func (s *mockDB) PutViewRow(ctx context.Context, document, view, key string, ttl int) error {
	return s.Called(document, view, key, ttl).Error(0)
}

func (s *mockDB) DeleteViewRow(ctx context.Context, document, view, key string) error {
	return s.Called(document, view, key).Error(0)
}

func (s *mockDB) ClearView(ctx context.Context, document, view string) error {
	return s.Called(document, view).Error(0)
}

func (s *mockDB) CountViewRows(ctx context.Context, document, view, start, end string) (int64, error) {
	args := s.Called(document, view, start, end)
	return args.Get(0).(int64), args.Error(1)
}

func (s *mockDB) ViewKeys(ctx context.Context, document, view, start, end string) ([]string, error) {
	args := s.Called(document, view, start, end)
	value, _ := args.Get(0).([]string)
	return value, args.Error(1)
}

func (s *mockDB) Close() {
	s.Called()
}

func (s *mockDB) Ping(ctx context.Context) error {
	return s.Called().Error(0)
}

// fakeDB behaves like the tables do, without TTL handling.
type fakeDB struct {
	lock     sync.Mutex
	items    map[string][]byte
	counters map[string]int64
	designs  map[string][]byte
	rows     map[string]map[string]bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		items:    map[string][]byte{},
		counters: map[string]int64{},
		designs:  map[string][]byte{},
		rows:     map[string]map[string]bool{},
	}
}

func (f *fakeDB) GetItem(_ context.Context, key string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	v, ok := f.items[key]
	if !ok {
		return nil, noDataResponse
	}
	return v, nil
}

func (f *fakeDB) PutItem(_ context.Context, key string, value []byte, _ int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.items[key] = value
	return nil
}

func (f *fakeDB) DeleteItem(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.items, key)
	return nil
}

func (f *fakeDB) ScanItems(_ context.Context, fn func(key string, ttl int) error) error {
	f.lock.Lock()
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	f.lock.Unlock()
	for _, k := range keys {
		if err := fn(k, 0); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDB) GetCounter(_ context.Context, key string) (int64, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	v, ok := f.counters[key]
	if !ok {
		return 0, noDataResponse
	}
	return v, nil
}

func (f *fakeDB) InsertCounter(_ context.Context, key string, value int64) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if _, ok := f.counters[key]; ok {
		return false, nil
	}
	f.counters[key] = value
	return true, nil
}

func (f *fakeDB) SwapCounter(_ context.Context, key string, old, value int64) (bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.counters[key] != old {
		return false, nil
	}
	f.counters[key] = value
	return true, nil
}

func (f *fakeDB) GetDesign(_ context.Context, name string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	v, ok := f.designs[name]
	if !ok {
		return nil, noDataResponse
	}
	return v, nil
}

func (f *fakeDB) AllDesigns(_ context.Context) (map[string][]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	result := map[string][]byte{}
	for k, v := range f.designs {
		result[k] = v
	}
	return result, nil
}

func (f *fakeDB) PutDesign(_ context.Context, name string, body []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.designs[name] = body
	return nil
}

func (f *fakeDB) PutViewRow(_ context.Context, document, view, key string, _ int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	partition := document + "/" + view
	if f.rows[partition] == nil {
		f.rows[partition] = map[string]bool{}
	}
	f.rows[partition][key] = true
	return nil
}

func (f *fakeDB) DeleteViewRow(_ context.Context, document, view, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.rows[document+"/"+view], key)
	return nil
}

func (f *fakeDB) ClearView(_ context.Context, document, view string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	delete(f.rows, document+"/"+view)
	return nil
}

func (f *fakeDB) CountViewRows(ctx context.Context, document, view, start, end string) (int64, error) {
	keys, err := f.ViewKeys(ctx, document, view, start, end)
	return int64(len(keys)), err
}

func (f *fakeDB) ViewKeys(_ context.Context, document, view, start, end string) ([]string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	var keys []string
	for k := range f.rows[document+"/"+view] {
		if strings.Compare(k, start) >= 0 && (end == "" || k < end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeDB) Close() {}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}
