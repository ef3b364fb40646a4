// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Generic Metrics
const (
	QuerySuccessCounter = "store_query_success_count"
	QueryFailureCounter = "store_query_failure_count"
)

// DynamoDB metrics
const (
	CapacityUnitConsumedCounter  = "capacity_unit_consumed"
	ReadCapacityConsumedCounter  = "read_capacity_unit_consumed"
	WriteCapacityConsumedCounter = "write_capacity_unit_consumed"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: QuerySuccessCounter,
				Help: "The total number of successful store operations",
			},
			store.TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: QueryFailureCounter,
				Help: "The total number of failed store operations",
			},
			store.TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: CapacityUnitConsumedCounter,
				Help: "The number of capacity units consumed by the operation.",
			},
			store.TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: ReadCapacityConsumedCounter,
				Help: "The number of read capacity units consumed by the operation.",
			},
			store.TypeLabel,
		),
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: WriteCapacityConsumedCounter,
				Help: "The number of write capacity units consumed by the operation.",
			},
			store.TypeLabel,
		),
	)
}

type Measures struct {
	fx.In
	QuerySuccessCount *prometheus.CounterVec `name:"store_query_success_count"`
	QueryFailureCount *prometheus.CounterVec `name:"store_query_failure_count"`

	// DynamoDB Metrics
	CapacityUnitConsumedCount      *prometheus.CounterVec `name:"capacity_unit_consumed"`
	ReadCapacityUnitConsumedCount  *prometheus.CounterVec `name:"read_capacity_unit_consumed"`
	WriteCapacityUnitConsumedCount *prometheus.CounterVec `name:"write_capacity_unit_consumed"`
}

// NewMeasures builds unregistered counters, for tests and for components
// running outside of an fx application.
func NewMeasures() Measures {
	vec := func(name string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name}, []string{store.TypeLabel})
	}
	return Measures{
		QuerySuccessCount:              vec(QuerySuccessCounter),
		QueryFailureCount:              vec(QueryFailureCounter),
		CapacityUnitConsumedCount:      vec(CapacityUnitConsumedCounter),
		ReadCapacityUnitConsumedCount:  vec(ReadCapacityConsumedCounter),
		WriteCapacityUnitConsumedCount: vec(WriteCapacityConsumedCounter),
	}
}
