// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"emperror.dev/emperror"
	"github.com/gocql/gocql"
	"github.com/xmidt-org/cerberus/store"
	"go.uber.org/zap"
)

const (
	defaultOpTimeout             = time.Duration(10) * time.Second
	defaultDatabase              = "cerberus"
	defaultMaxNumberConnsPerHost = 2

	// maxSwapAttempts bounds the compare and set loop of Increment.
	maxSwapAttempts = 16
)

var errCounterContention = errors.New("counter kept changing during increment")

type Config struct {
	// Hosts to connect to. When empty the store nodes are used, one of the
	// two must be set.
	Hosts []string `validate:"dive,required"`

	// Database aka Keyspace for cassandra
	Database string

	// OpTimeout
	OpTimeout time.Duration

	// SSLRootCert used for enabling tls to the cluster. SSLKey, and SSLCert must also be set.
	SSLRootCert string
	// SSLKey used for enabling tls to the cluster. SSLRootCert, and SSLCert must also be set.
	SSLKey string
	// SSLCert used for enabling tls to the cluster. SSLRootCert, and SSLRootCert must also be set.
	SSLCert string
	// If you want to verify the hostname and server cert (like a wildcard for cass cluster) then you should turn this on
	// This option is basically the inverse of InSecureSkipVerify
	// See InSecureSkipVerify in http://golang.org/pkg/crypto/tls/ for more info
	EnableHostVerification bool

	// Username to authenticate into the cluster. Password must also be provided.
	Username string
	// Password to authenticate into the cluster. Username must also be provided.
	Password string

	// MaxConnsPerHost max number of connections per host
	MaxConnsPerHost int

	// CreateSchema creates the tables on connect when they do not exist yet.
	CreateSchema bool
}

// Client is a store.Bucket backed by a cassandra compatible cluster. View rows
// are kept in their own table and updated by every Set and Delete.
type Client struct {
	client dbStore
	config Config
	logger *zap.Logger

	designs store.DesignCache
}

// Dial opens a session to the cluster. It does not retry; the connection
// manager owns the retry policy.
func Dial(_ context.Context, config Config, logger *zap.Logger) (*Client, error) {
	if len(config.Hosts) == 0 {
		return nil, errors.New("number of hosts must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	validateConfig(&config)

	clusterConfig := gocql.NewCluster(config.Hosts...)
	clusterConfig.Consistency = gocql.LocalQuorum
	clusterConfig.Keyspace = config.Database
	clusterConfig.Timeout = config.OpTimeout
	clusterConfig.NumConns = config.MaxConnsPerHost
	clusterConfig.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 1}
	// setup ssl
	if config.SSLRootCert != "" && config.SSLCert != "" && config.SSLKey != "" {
		clusterConfig.SslOpts = &gocql.SslOptions{
			CertPath:               config.SSLCert,
			KeyPath:                config.SSLKey,
			CaPath:                 config.SSLRootCert,
			EnableHostVerification: config.EnableHostVerification,
		}
	}
	// setup authentication
	if config.Username != "" && config.Password != "" {
		clusterConfig.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	session, err := connect(clusterConfig, config.CreateSchema, logger)
	if err != nil {
		return nil, emperror.WrapWith(err, "Connecting to database failed", "hosts", config.Hosts)
	}
	return newClient(session, config, logger), nil
}

func newClient(db dbStore, config Config, logger *zap.Logger) *Client {
	return &Client{
		client: db,
		config: config,
		logger: logger,
	}
}

// ttlSeconds rounds up so that sub second TTLs do not become "never expires".
func ttlSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	return int(math.Ceil(ttl.Seconds()))
}

func (s *Client) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.GetItem(ctx, key)
	if errors.Is(err, noDataResponse) {
		return nil, store.OperationError{Operation: "get", Key: key, Err: store.ErrKeyNotFound}
	}
	if err != nil {
		return nil, store.OperationError{Operation: "get", Key: key, Err: err}
	}
	return value, nil
}

func (s *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	seconds := ttlSeconds(ttl)
	if err := s.client.PutItem(ctx, key, value, seconds); err != nil {
		return store.OperationError{Operation: "set", Key: key, Err: err}
	}
	if err := s.loadDesigns(ctx); err != nil {
		return err
	}
	for _, ref := range s.designs.Emitting(key) {
		if err := s.client.PutViewRow(ctx, ref.Document, ref.View, key, seconds); err != nil {
			return store.OperationError{Operation: "update view", Key: ref.Document + "/" + ref.View, Err: err}
		}
	}
	return nil
}

func (s *Client) Delete(ctx context.Context, key string) error {
	if _, err := s.Get(ctx, key); err != nil {
		return store.OperationError{Operation: "delete", Key: key, Err: errors.Unwrap(err)}
	}
	if err := s.client.DeleteItem(ctx, key); err != nil {
		return store.OperationError{Operation: "delete", Key: key, Err: err}
	}
	if err := s.loadDesigns(ctx); err != nil {
		return err
	}
	for _, ref := range s.designs.Emitting(key) {
		if err := s.client.DeleteViewRow(ctx, ref.Document, ref.View, key); err != nil {
			return store.OperationError{Operation: "update view", Key: ref.Document + "/" + ref.View, Err: err}
		}
	}
	return nil
}

// Increment uses lightweight transactions so concurrent callers never observe
// the same value.
func (s *Client) Increment(ctx context.Context, key string, delta, initial int64) (int64, error) {
	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		current, err := s.client.GetCounter(ctx, key)
		switch {
		case errors.Is(err, noDataResponse):
			applied, err := s.client.InsertCounter(ctx, key, initial)
			if err != nil {
				return 0, store.OperationError{Operation: "increment", Key: key, Err: err}
			}
			if applied {
				return initial, nil
			}
		case err != nil:
			return 0, store.OperationError{Operation: "increment", Key: key, Err: err}
		default:
			applied, err := s.client.SwapCounter(ctx, key, current, current+delta)
			if err != nil {
				return 0, store.OperationError{Operation: "increment", Key: key, Err: err}
			}
			if applied {
				return current + delta, nil
			}
		}
		s.logger.Debug("counter changed concurrently, retrying", zap.String("key", key), zap.Int("attempt", attempt))
	}
	return 0, store.OperationError{Operation: "increment", Key: key, Err: errCounterContention}
}

func (s *Client) GetDesignDocument(ctx context.Context, name string) (store.DesignDocument, error) {
	body, err := s.client.GetDesign(ctx, name)
	if errors.Is(err, noDataResponse) {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: store.ErrDesignDocumentNotFound}
	}
	if err != nil {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: err}
	}
	var doc store.DesignDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return store.DesignDocument{}, store.OperationError{Operation: "get design document", Key: name, Err: err}
	}
	return doc, nil
}

// UpsertDesignDocument stores doc and rebuilds the rows of its views from a
// scan of the items table.
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
	if err := s.client.PutDesign(ctx, doc.Name, body); err != nil {
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
		if err := s.client.ClearView(ctx, doc.Name, name); err != nil {
			return store.OperationError{Operation: "rebuild view", Key: doc.Name + "/" + name, Err: err}
		}
	}
	err = s.client.ScanItems(ctx, func(key string, ttl int) error {
		for name, cv := range compiled {
			if !cv.Emit(key) {
				continue
			}
			if err := s.client.PutViewRow(ctx, doc.Name, name, key, ttl); err != nil {
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

func (s *Client) Query(ctx context.Context, q store.ViewQuery) (store.ViewResult, error) {
	if err := s.loadDesigns(ctx); err != nil {
		return store.ViewResult{}, err
	}
	cv, err := s.designs.View(q.Document, q.View)
	if err != nil {
		return store.ViewResult{}, err
	}
	if q.Reduce {
		if cv.Reduce == "" {
			return store.ViewResult{}, fmt.Errorf("%w: view %q has no reduce function", store.ErrUnsupportedView, cv.Name)
		}
		count, err := s.client.CountViewRows(ctx, q.Document, q.View, q.StartKey, q.EndKey)
		if err != nil {
			return store.ViewResult{}, store.OperationError{Operation: "query", Key: q.Document + "/" + q.View, Err: err}
		}
		if count == 0 {
			return store.ViewResult{}, nil
		}
		return store.ViewResult{Rows: []store.ViewRow{{Value: count}}}, nil
	}

	keys, err := s.client.ViewKeys(ctx, q.Document, q.View, q.StartKey, q.EndKey)
	if err != nil {
		return store.ViewResult{}, store.OperationError{Operation: "query", Key: q.Document + "/" + q.View, Err: err}
	}
	result, err := store.Reduce(q, cv, keys)
	if err != nil || !q.IncludeDocs {
		return result, err
	}
	rows := result.Rows[:0]
	for _, row := range result.Rows {
		doc, err := s.client.GetItem(ctx, row.ID)
		if errors.Is(err, noDataResponse) {
			// expired between the index read and the item read
			continue
		}
		if err != nil {
			return store.ViewResult{}, store.OperationError{Operation: "query", Key: row.ID, Err: err}
		}
		row.Doc = doc
		rows = append(rows, row)
	}
	result.Rows = rows
	return result, nil
}

// Ping is for pinging the database to verify that the connection is still good.
func (s *Client) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return emperror.WrapWith(err, "Pinging connection failed")
	}
	return nil
}

func (s *Client) Close() error {
	s.client.Close()
	return nil
}

// loadDesigns reads every design document once per client.
func (s *Client) loadDesigns(ctx context.Context) error {
	if s.designs.Loaded() {
		return nil
	}
	bodies, err := s.client.AllDesigns(ctx)
	if err != nil {
		return store.OperationError{Operation: "load design documents", Err: err}
	}
	docs := make([]store.DesignDocument, 0, len(bodies))
	for name, body := range bodies {
		var doc store.DesignDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			s.logger.Error("failed to unmarshal design document", zap.String("document", name), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	for name, err := range s.designs.Fill(docs) {
		s.logger.Warn("ignoring design document", zap.String("document", name), zap.Error(err))
	}
	return nil
}

func validateConfig(config *Config) {
	zeroDuration := time.Duration(0) * time.Second

	if config.OpTimeout == zeroDuration {
		config.OpTimeout = defaultOpTimeout
	}

	if config.Database == "" {
		config.Database = defaultDatabase
	}
	if config.MaxConnsPerHost <= 0 {
		config.MaxConnsPerHost = defaultMaxNumberConnsPerHost
	}
}
