// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xmidt-org/cerberus/connection"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/cassandra"
	"github.com/xmidt-org/cerberus/store/db/metric"
	"github.com/xmidt-org/cerberus/store/dynamodb"
	"github.com/xmidt-org/cerberus/store/inmem"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Backend types
const (
	InMem     = "inmem"
	Cassandra = "cassandra"
	DynamoDB  = "dynamo"
)

const defaultBucket = "cerberus"

// Config is the store section of the configuration.
type Config struct {
	Type          string        `validate:"omitempty,oneof=inmem cassandra dynamo"`
	RetryInterval time.Duration `validate:"gte=0"`
	Bucket        string
	Password      string

	// Nodes are used as cassandra hosts when the cassandra section lists none.
	Nodes []string

	Cassandra *cassandra.Config
	Dynamo    *dynamodb.Config
}

type SetupIn struct {
	fx.In
	Config   Config
	Measures metric.Measures
	Logger   *zap.Logger
}

func Provide() fx.Option {
	return fx.Options(
		metric.ProvideMetrics(),
		fx.Provide(
			SetupDialer,
		),
	)
}

// SetupDialer returns the dialer of the configured backend. Every bucket it
// opens is instrumented.
func SetupDialer(in SetupIn) (connection.Dialer, error) {
	logger := in.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := in.Config
	if cfg.Bucket == "" {
		cfg.Bucket = defaultBucket
	}

	var dial connection.Dialer
	switch cfg.Type {
	case DynamoDB:
		if cfg.Dynamo == nil {
			return nil, fmt.Errorf("store type %q requires the store.dynamo section", cfg.Type)
		}
		logger.Info("using dynamodb store implementation", zap.String("table", cfg.Dynamo.Table), zap.String("bucket", cfg.Bucket))
		dynamoConfig := *cfg.Dynamo
		dial = func(ctx context.Context) (store.Bucket, error) {
			return dynamodb.Dial(ctx, dynamoConfig, cfg.Bucket, in.Measures, logger)
		}
	case Cassandra:
		var cassandraConfig cassandra.Config
		if cfg.Cassandra != nil {
			cassandraConfig = *cfg.Cassandra
		}
		if len(cassandraConfig.Hosts) == 0 {
			cassandraConfig.Hosts = cfg.Nodes
		}
		if cassandraConfig.Database == "" {
			cassandraConfig.Database = cfg.Bucket
		}
		if cassandraConfig.Password == "" {
			cassandraConfig.Password = cfg.Password
		}
		if len(cassandraConfig.Hosts) == 0 {
			return nil, fmt.Errorf("store type %q requires at least one node", cfg.Type)
		}
		logger.Info("using cassandra store implementation", zap.Strings("hosts", cassandraConfig.Hosts))
		dial = func(ctx context.Context) (store.Bucket, error) {
			return cassandra.Dial(ctx, cassandraConfig, logger)
		}
	case InMem, "":
		logger.Info("using in memory store implementation")
		var (
			once   sync.Once
			bucket *inmem.InMem
		)
		dial = func(context.Context) (store.Bucket, error) {
			once.Do(func() { bucket = inmem.NewInMem() })
			return bucket, nil
		}
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}

	return func(ctx context.Context) (store.Bucket, error) {
		b, err := dial(ctx)
		if err != nil {
			return nil, err
		}
		return Instrument(b, in.Measures), nil
	}, nil
}
