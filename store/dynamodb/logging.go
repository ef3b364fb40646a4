// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package dynamodb

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

type loggingService struct {
	service
	debugLogger *zap.Logger
}

func newLoggingService(logger *zap.Logger, s service) service {
	return &loggingService{service: s, debugLogger: logger}
}

func (s *loggingService) Range(ctx context.Context, bucket, start, end string, keysOnly bool, fn func(record) error) (consumedCapacity *types.ConsumedCapacity, err error) {
	var items int
	defer func() {
		s.debugLogger.Debug("range query", zap.String("bucket", bucket), zap.String("start", start),
			zap.String("end", end), zap.Int("itemsSize", items), zap.Error(err))
	}()
	consumedCapacity, err = s.service.Range(ctx, bucket, start, end, keysOnly, func(r record) error {
		items++
		return fn(r)
	})
	return
}

func (s *loggingService) Increment(ctx context.Context, bucket, id string, delta, initial int64) (value int64, consumedCapacity *types.ConsumedCapacity, err error) {
	defer func() {
		s.debugLogger.Debug("increment", zap.String("bucket", bucket), zap.String("id", id),
			zap.Int64("value", value), zap.Error(err))
	}()
	value, consumedCapacity, err = s.service.Increment(ctx, bucket, id, delta, initial)
	return
}
