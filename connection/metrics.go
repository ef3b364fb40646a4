// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
)

// Names
const (
	AttemptCounter = "connection_attempts_total"
)

// Labels
const (
	OutcomeLabel = "outcome"
)

// Label Values
const (
	SuccessOutcome = "success"
	FailureOutcome = "failure"
)

// ProvideMetrics returns the Metrics relevant to this package
func ProvideMetrics() fx.Option {
	return fx.Options(
		touchstone.CounterVec(
			prometheus.CounterOpts{
				Name: AttemptCounter,
				Help: "Counter for the number of store connection attempts (and their success/failure outcomes).",
			},
			OutcomeLabel,
		),
	)
}

type Measures struct {
	fx.In
	Attempts *prometheus.CounterVec `name:"connection_attempts_total"`
}

// NewMeasures builds an unregistered counter set.
func NewMeasures() *Measures {
	return &Measures{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{Name: AttemptCounter}, []string{OutcomeLabel}),
	}
}
