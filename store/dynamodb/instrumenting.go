// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/db/metric"
)

// instrumentingService counts the capacity units every call consumed.
type instrumentingService struct {
	service
	measures metric.Measures
}

func newInstrumentingService(measures metric.Measures, s service) service {
	return &instrumentingService{measures: measures, service: s}
}

func (s *instrumentingService) record(action string, c *types.ConsumedCapacity) {
	if c == nil {
		return
	}
	if c.CapacityUnits != nil {
		s.measures.CapacityUnitConsumedCount.WithLabelValues(action).Add(*c.CapacityUnits)
	}
	if c.ReadCapacityUnits != nil {
		s.measures.ReadCapacityUnitConsumedCount.WithLabelValues(action).Add(*c.ReadCapacityUnits)
	}
	if c.WriteCapacityUnits != nil {
		s.measures.WriteCapacityUnitConsumedCount.WithLabelValues(action).Add(*c.WriteCapacityUnits)
	}
}

func (s *instrumentingService) Put(ctx context.Context, r record) (*types.ConsumedCapacity, error) {
	c, err := s.service.Put(ctx, r)
	s.record(store.InsertType, c)
	return c, err
}

func (s *instrumentingService) Get(ctx context.Context, bucket, id string) (record, *types.ConsumedCapacity, error) {
	r, c, err := s.service.Get(ctx, bucket, id)
	s.record(store.ReadType, c)
	return r, c, err
}

func (s *instrumentingService) Delete(ctx context.Context, bucket, id string) (*types.ConsumedCapacity, error) {
	c, err := s.service.Delete(ctx, bucket, id)
	s.record(store.DeleteType, c)
	return c, err
}

func (s *instrumentingService) Increment(ctx context.Context, bucket, id string, delta, initial int64) (int64, *types.ConsumedCapacity, error) {
	n, c, err := s.service.Increment(ctx, bucket, id, delta, initial)
	s.record(store.IncrementType, c)
	return n, c, err
}

func (s *instrumentingService) Range(ctx context.Context, bucket, start, end string, keysOnly bool, fn func(record) error) (*types.ConsumedCapacity, error) {
	c, err := s.service.Range(ctx, bucket, start, end, keysOnly, fn)
	s.record(store.QueryType, c)
	return c, err
}
