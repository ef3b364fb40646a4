// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.uber.org/fx"
)

// Instrumenter names
const (
	PrimaryMetrics = "servers.primary.metrics"
	HealthMetrics  = "servers.health.metrics"
)

// provideMetrics builds the per server request instrumenters and the
// prometheus handler and makes them available to the container.
func provideMetrics() fx.Option {
	return fx.Options(
		touchhttp.Provide(),
		fx.Provide(
			fx.Annotated{
				Name: PrimaryMetrics,
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "primary",
				),
			},
			fx.Annotated{
				Name: HealthMetrics,
				Target: touchhttp.ServerBundle{}.NewInstrumenter(
					touchhttp.ServerLabel, "health",
				),
			},
		),
	)
}

type Measures struct {
	fx.In
	Primary touchhttp.ServerInstrumenter `name:"servers.primary.metrics"`
	Health  touchhttp.ServerInstrumenter `name:"servers.health.metrics"`
}
