// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"

	"github.com/gocql/gocql"
	"github.com/hailocab/go-hostpool"
	"go.uber.org/zap"
)

// dbStore is the set of statements the client issues. Every method maps to one
// or two CQL statements so the client logic can be tested without a cluster.
type dbStore interface {
	GetItem(ctx context.Context, key string) ([]byte, error)
	PutItem(ctx context.Context, key string, value []byte, ttl int) error
	DeleteItem(ctx context.Context, key string) error
	ScanItems(ctx context.Context, fn func(key string, ttl int) error) error

	GetCounter(ctx context.Context, key string) (int64, error)
	InsertCounter(ctx context.Context, key string, value int64) (bool, error)
	SwapCounter(ctx context.Context, key string, old, value int64) (bool, error)

	GetDesign(ctx context.Context, name string) ([]byte, error)
	AllDesigns(ctx context.Context) (map[string][]byte, error)
	PutDesign(ctx context.Context, name string, body []byte) error

	PutViewRow(ctx context.Context, document, view, key string, ttl int) error
	DeleteViewRow(ctx context.Context, document, view, key string) error
	ClearView(ctx context.Context, document, view string) error
	CountViewRows(ctx context.Context, document, view, start, end string) (int64, error)
	ViewKeys(ctx context.Context, document, view, start, end string) ([]string, error)

	Close()
	Ping(ctx context.Context) error
}

var (
	noDataResponse = errors.New("no data from query")
	serverClosed   = errors.New("server is closed")
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS items (key text PRIMARY KEY, value blob)`,
	`CREATE TABLE IF NOT EXISTS counters (key text PRIMARY KEY, value bigint)`,
	`CREATE TABLE IF NOT EXISTS design_documents (name text PRIMARY KEY, body blob)`,
	`CREATE TABLE IF NOT EXISTS view_rows (document text, view text, key text, PRIMARY KEY ((document, view), key))`,
}

type cassandraExecutor struct {
	session *gocql.Session
	logger  *zap.Logger
}

func connect(clusterConfig *gocql.ClusterConfig, createSchema bool, logger *zap.Logger) (dbStore, error) {
	clusterConfig.PoolConfig.HostSelectionPolicy = gocql.HostPoolHostPolicy(hostpool.New(nil))
	session, err := clusterConfig.CreateSession()
	if err != nil {
		return nil, err
	}
	if createSchema {
		for _, stmt := range schema {
			if err := session.Query(stmt).Exec(); err != nil {
				session.Close()
				return nil, err
			}
		}
	}

	return &cassandraExecutor{session: session, logger: logger}, nil
}

func (s *cassandraExecutor) query(ctx context.Context, stmt string, values ...interface{}) *gocql.Query {
	return s.session.Query(stmt, values...).WithContext(ctx)
}

func (s *cassandraExecutor) scanOne(q *gocql.Query, dest ...interface{}) error {
	err := q.Scan(dest...)
	if errors.Is(err, gocql.ErrNotFound) {
		return noDataResponse
	}
	return err
}

func (s *cassandraExecutor) GetItem(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.scanOne(s.query(ctx, "SELECT value FROM items WHERE key = ?", key), &data)
	return data, err
}

func (s *cassandraExecutor) PutItem(ctx context.Context, key string, value []byte, ttl int) error {
	return s.query(ctx, "INSERT INTO items (key, value) VALUES (?, ?) USING TTL ?", key, value, ttl).Exec()
}

func (s *cassandraExecutor) DeleteItem(ctx context.Context, key string) error {
	return s.query(ctx, "DELETE FROM items WHERE key = ?", key).Exec()
}

func (s *cassandraExecutor) ScanItems(ctx context.Context, fn func(key string, ttl int) error) error {
	var (
		key string
		ttl int
	)
	iter := s.query(ctx, "SELECT key, ttl(value) FROM items").Iter()
	for iter.Scan(&key, &ttl) {
		if err := fn(key, ttl); err != nil {
			if closeErr := iter.Close(); closeErr != nil {
				s.logger.Error("failed to close iter", zap.Error(closeErr))
			}
			return err
		}
	}
	return iter.Close()
}

func (s *cassandraExecutor) GetCounter(ctx context.Context, key string) (int64, error) {
	var value int64
	err := s.scanOne(s.query(ctx, "SELECT value FROM counters WHERE key = ?", key), &value)
	return value, err
}

func (s *cassandraExecutor) InsertCounter(ctx context.Context, key string, value int64) (bool, error) {
	return s.query(ctx, "INSERT INTO counters (key, value) VALUES (?, ?) IF NOT EXISTS", key, value).
		MapScanCAS(map[string]interface{}{})
}

func (s *cassandraExecutor) SwapCounter(ctx context.Context, key string, old, value int64) (bool, error) {
	return s.query(ctx, "UPDATE counters SET value = ? WHERE key = ? IF value = ?", value, key, old).
		MapScanCAS(map[string]interface{}{})
}

func (s *cassandraExecutor) GetDesign(ctx context.Context, name string) ([]byte, error) {
	var body []byte
	err := s.scanOne(s.query(ctx, "SELECT body FROM design_documents WHERE name = ?", name), &body)
	return body, err
}

func (s *cassandraExecutor) AllDesigns(ctx context.Context) (map[string][]byte, error) {
	result := map[string][]byte{}
	var (
		name string
		body []byte
	)
	iter := s.query(ctx, "SELECT name, body FROM design_documents").Iter()
	for iter.Scan(&name, &body) {
		result[name] = append([]byte(nil), body...)
	}
	return result, iter.Close()
}

func (s *cassandraExecutor) PutDesign(ctx context.Context, name string, body []byte) error {
	return s.query(ctx, "INSERT INTO design_documents (name, body) VALUES (?, ?)", name, body).Exec()
}

func (s *cassandraExecutor) PutViewRow(ctx context.Context, document, view, key string, ttl int) error {
	return s.query(ctx, "INSERT INTO view_rows (document, view, key) VALUES (?, ?, ?) USING TTL ?",
		document, view, key, ttl).Exec()
}

func (s *cassandraExecutor) DeleteViewRow(ctx context.Context, document, view, key string) error {
	return s.query(ctx, "DELETE FROM view_rows WHERE document = ? AND view = ? AND key = ?",
		document, view, key).Exec()
}

func (s *cassandraExecutor) ClearView(ctx context.Context, document, view string) error {
	return s.query(ctx, "DELETE FROM view_rows WHERE document = ? AND view = ?", document, view).Exec()
}

func (s *cassandraExecutor) rangeQuery(ctx context.Context, columns, document, view, start, end string) *gocql.Query {
	if end == "" {
		return s.query(ctx, "SELECT "+columns+" FROM view_rows WHERE document = ? AND view = ? AND key >= ?",
			document, view, start)
	}
	return s.query(ctx, "SELECT "+columns+" FROM view_rows WHERE document = ? AND view = ? AND key >= ? AND key < ?",
		document, view, start, end)
}

func (s *cassandraExecutor) CountViewRows(ctx context.Context, document, view, start, end string) (int64, error) {
	var count int64
	err := s.rangeQuery(ctx, "COUNT(*)", document, view, start, end).Scan(&count)
	return count, err
}

func (s *cassandraExecutor) ViewKeys(ctx context.Context, document, view, start, end string) ([]string, error) {
	var (
		keys []string
		key  string
	)
	iter := s.rangeQuery(ctx, "key", document, view, start, end).Iter()
	for iter.Scan(&key) {
		keys = append(keys, key)
	}
	return keys, iter.Close()
}

func (s *cassandraExecutor) Close() {
	s.session.Close()
}

func (s *cassandraExecutor) Ping(ctx context.Context) error {
	if s.session.Closed() {
		return serverClosed
	}
	var version string
	return s.query(ctx, "SELECT release_version FROM system.local").Scan(&version)
}
