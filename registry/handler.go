// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"net/http"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/go-playground/validator/v10"
	"go.uber.org/fx"
)

// HTTPHandler is an admin endpoint of one of the registries.
type HTTPHandler http.Handler

type handlerIn struct {
	fx.In

	Services *ServiceRegistry
	Tickets  *TicketRegistry
}

// ProvideHandlers builds the admin handlers of both registries.
func ProvideHandlers() fx.Option {
	return fx.Provide(
		fx.Annotated{
			Name:   "list_services_handler",
			Target: func(in handlerIn) HTTPHandler { return newListServicesHandler(in.Services) },
		},
		fx.Annotated{
			Name:   "get_service_handler",
			Target: func(in handlerIn) HTTPHandler { return newGetServiceHandler(in.Services) },
		},
		fx.Annotated{
			Name:   "save_service_handler",
			Target: func(in handlerIn) HTTPHandler { return newSaveServiceHandler(in.Services) },
		},
		fx.Annotated{
			Name:   "delete_service_handler",
			Target: func(in handlerIn) HTTPHandler { return newDeleteServiceHandler(in.Services) },
		},
		fx.Annotated{
			Name:   "ticket_stats_handler",
			Target: func(in handlerIn) HTTPHandler { return newTicketStatsHandler(in.Tickets) },
		},
	)
}

func newListServicesHandler(r *ServiceRegistry) HTTPHandler {
	return kithttp.NewServer(
		newListServicesEndpoint(r),
		decodeNoRequest,
		servicesResponseEncoder(r.codec),
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newGetServiceHandler(r *ServiceRegistry) HTTPHandler {
	return kithttp.NewServer(
		newGetServiceEndpoint(r),
		decodeServiceIDRequest,
		serviceResponseEncoder(r.codec),
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newSaveServiceHandler(r *ServiceRegistry) HTTPHandler {
	return kithttp.NewServer(
		newSaveServiceEndpoint(r),
		saveServiceRequestDecoder(r.codec, validator.New()),
		serviceResponseEncoder(r.codec),
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newDeleteServiceHandler(r *ServiceRegistry) HTTPHandler {
	return kithttp.NewServer(
		newDeleteServiceEndpoint(r),
		decodeServiceIDRequest,
		encodeDeleteServiceResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

func newTicketStatsHandler(r *TicketRegistry) HTTPHandler {
	return kithttp.NewServer(
		newTicketStatsEndpoint(r),
		decodeNoRequest,
		encodeTicketStatsResponse,
		kithttp.ServerErrorEncoder(encodeError),
	)
}
