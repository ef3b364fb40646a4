// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/db/metric"
	"go.uber.org/zap"
)

const (
	defaultTable      = "cerberus"
	defaultMaxRetries = 3
)

type Config struct {
	Table      string
	Endpoint   string
	Region     string `validate:"required"`
	MaxRetries int
	AccessKey  string
	SecretKey  string
}

// Client is a store.Bucket on a single DynamoDB table. The partition key
// separates items, counters, design documents and the rows of every view.
type Client struct {
	svc    service
	config Config
	bucket string
	logger *zap.Logger

	designs store.DesignCache
}

// Dial builds the aws client. No request is made, Ping verifies the table.
func Dial(ctx context.Context, cfg Config, bucket string, measures metric.Measures, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = validateConfig(cfg)

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(cfg.MaxRetries),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	c := dynamodb.NewFromConfig(awsConfig, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	var svc service = &executor{c: c, tableName: cfg.Table, now: time.Now}
	svc = newInstrumentingService(measures, svc)
	svc = newLoggingService(logger, svc)
	return newClient(svc, cfg, bucket, logger), nil
}

func newClient(svc service, cfg Config, bucket string, logger *zap.Logger) *Client {
	return &Client{
		svc:    svc,
		config: cfg,
		bucket: bucket,
		logger: logger,
	}
}

func (s *Client) countersPartition() string {
	return s.bucket + "/counters"
}

func (s *Client) designPartition() string {
	return s.bucket + "/_design"
}

func (s *Client) viewPartition(document, view string) string {
	return s.bucket + "/_view/" + document + "/" + view
}

func expiresAt(ttl time.Duration) *int64 {
	if ttl <= 0 {
		return nil
	}
	unixExpSeconds := time.Now().Add(ttl).Unix()
	if ttl%time.Second != 0 {
		unixExpSeconds++
	}
	return &unixExpSeconds
}

func (s *Client) Get(ctx context.Context, key string) ([]byte, error) {
	r, _, err := s.svc.Get(ctx, s.bucket, key)
	if errors.Is(err, errItemNotFound) {
		return nil, store.OperationError{Operation: "get", Key: key, Err: store.ErrKeyNotFound}
	}
	if err != nil {
		return nil, store.OperationError{Operation: "get", Key: key, Err: err}
	}
	return r.Value, nil
}

func (s *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expires := expiresAt(ttl)
	if _, err := s.svc.Put(ctx, record{Bucket: s.bucket, ID: key, Value: value, Expires: expires}); err != nil {
		return store.OperationError{Operation: "set", Key: key, Err: err}
	}
	if err := s.loadDesigns(ctx); err != nil {
		return err
	}
	for _, ref := range s.designs.Emitting(key) {
		row := record{Bucket: s.viewPartition(ref.Document, ref.View), ID: key, Expires: expires}
		if _, err := s.svc.Put(ctx, row); err != nil {
			return store.OperationError{Operation: "update view", Key: ref.Document + "/" + ref.View, Err: err}
		}
	}
	return nil
}

func (s *Client) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return store.OperationError{Operation: "delete", Key: key, Err: errors.Unwrap(err)}
	}
	if _, err := s.svc.Delete(ctx, s.bucket, key); err != nil {
		return store.OperationError{Operation: "delete", Key: key, Err: err}
	}
	if err := s.loadDesigns(ctx); err != nil {
		return err
	}
	for _, ref := range s.designs.Emitting(key) {
		if _, err := s.svc.Delete(ctx, s.viewPartition(ref.Document, ref.View), key); err != nil {
			return store.OperationError{Operation: "update view", Key: ref.Document + "/" + ref.View, Err: err}
		}
	}
	return nil
}

func (s *Client) Increment(ctx context.Context, key string, delta, initial int64) (int64, error) {
	n, _, err := s.svc.Increment(ctx, s.countersPartition(), key, delta, initial)
	if err != nil {
		return 0, store.OperationError{Operation: "increment", Key: key, Err: err}
	}
	return n, nil
}

func (s *Client) GetDesignDocument(ctx context.Context, name string) (store.DesignDocument, error) {
	r, _, err := s.svc.Get(ctx, s.designPartition(), name)
	if errors.Is(err, errItemNotFound) {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: store.ErrDesignDocumentNotFound}
	}
	if err != nil {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: err}
	}
	var doc store.DesignDocument
	if err := json.Unmarshal(r.Value, &doc); err != nil {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: err}
	}
	return doc, nil
}

// UpsertDesignDocument stores doc, drops the rows of its previous views and
// indexes every live item again.
func (s *Client) UpsertDesignDocument(ctx context.Context, doc store.DesignDocument) error {
	compiled, err := store.CompileDocument(doc)
	if err != nil {
		return err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := s.loadDesigns(ctx); err != nil {
		return err
	}
	if _, err := s.svc.Put(ctx, record{Bucket: s.designPartition(), ID: doc.Name, Value: body}); err != nil {
		return store.OperationError{Operation: "upsert design document", Key: doc.Name, Err: err}
	}

	stale := map[string]bool{}
	if previous, ok := s.designs.Document(doc.Name); ok {
		for _, v := range previous.Views {
			stale[v.Name] = true
		}
	}
	for name := range compiled {
		stale[name] = true
	}
	for name := range stale {
		if err := s.clearView(ctx, doc.Name, name); err != nil {
			return store.OperationError{Operation: "rebuild view", Key: doc.Name + "/" + name, Err: err}
		}
	}
	_, err = s.svc.Range(ctx, s.bucket, "", "", false, func(r record) error {
		for name, cv := range compiled {
			if !cv.Emit(r.ID) {
				continue
			}
			row := record{Bucket: s.viewPartition(doc.Name, name), ID: r.ID, Expires: r.Expires}
			if _, err := s.svc.Put(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.OperationError{Operation: "rebuild views", Key: doc.Name, Err: err}
	}
	s.designs.Put(doc, compiled)
	s.logger.Info("design document rebuilt", zap.String("document", doc.Name), zap.Int("views", len(compiled)))
	return nil
}

func (s *Client) clearView(ctx context.Context, document, view string) error {
	partition := s.viewPartition(document, view)
	var keys []string
	_, err := s.svc.Range(ctx, partition, "", "", true, func(r record) error {
		keys = append(keys, r.ID)
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := s.svc.Delete(ctx, partition, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Client) Query(ctx context.Context, q store.ViewQuery) (store.ViewResult, error) {
	if err := s.loadDesigns(ctx); err != nil {
		return store.ViewResult{}, err
	}
	cv, err := s.designs.View(q.Document, q.View)
	if err != nil {
		return store.ViewResult{}, err
	}
	var keys []string
	_, err = s.svc.Range(ctx, s.viewPartition(q.Document, q.View), q.StartKey, q.EndKey, true, func(r record) error {
		keys = append(keys, r.ID)
		return nil
	})
	if err != nil {
		return store.ViewResult{}, store.OperationError{Operation: "query", Key: q.Document + "/" + q.View, Err: err}
	}
	result, err := store.Reduce(q, cv, keys)
	if err != nil || !q.IncludeDocs || q.Reduce {
		return result, err
	}
	rows := result.Rows[:0]
	for _, row := range result.Rows {
		r, _, err := s.svc.Get(ctx, s.bucket, row.ID)
		if errors.Is(err, errItemNotFound) {
			continue
		}
		if err != nil {
			return store.ViewResult{}, store.OperationError{Operation: "query", Key: row.ID, Err: err}
		}
		row.Doc = r.Value
		rows = append(rows, row)
	}
	result.Rows = rows
	return result, nil
}

func (s *Client) Ping(ctx context.Context) error {
	if err := s.svc.Ping(ctx); err != nil {
		return store.OperationError{Operation: "ping", Key: s.config.Table, Err: err}
	}
	return nil
}

// Close is a no-op, the aws client holds no connection state worth releasing.
func (s *Client) Close() error {
	return nil
}

func (s *Client) loadDesigns(ctx context.Context) error {
	if s.designs.Loaded() {
		return nil
	}
	var docs []store.DesignDocument
	_, err := s.svc.Range(ctx, s.designPartition(), "", "", false, func(r record) error {
		var doc store.DesignDocument
		if err := json.Unmarshal(r.Value, &doc); err != nil {
			s.logger.Error("failed to unmarshal design document", zap.String("document", r.ID), zap.Error(err))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return store.OperationError{Operation: "load design documents", Err: err}
	}
	for name, err := range s.designs.Fill(docs) {
		s.logger.Warn("ignoring design document", zap.String("document", name), zap.Error(err))
	}
	return nil
}

func validateConfig(cfg Config) Config {
	if cfg.Table == "" {
		cfg.Table = defaultTable
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return cfg
}
