// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

var errDeleteFailed = errors.New("failed to delete service")

func newListServicesEndpoint(r *ServiceRegistry) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		if _, err := r.conn.Handle(); err != nil {
			return nil, err
		}
		return r.Load(ctx), nil
	}
}

func newGetServiceEndpoint(r *ServiceRegistry) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*serviceIDRequest)
		return r.FindByID(ctx, req.id)
	}
}

func newSaveServiceEndpoint(r *ServiceRegistry) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*saveServiceRequest)
		return r.Save(ctx, req.service)
	}
}

func newDeleteServiceEndpoint(r *ServiceRegistry) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (interface{}, error) {
		req := request.(*serviceIDRequest)
		svc, err := r.FindByID(ctx, req.id)
		if err != nil {
			return nil, err
		}
		if !r.Delete(ctx, svc) {
			return nil, errDeleteFailed
		}
		return svc, nil
	}
}

func newTicketStatsEndpoint(r *TicketRegistry) endpoint.Endpoint {
	return func(ctx context.Context, _ interface{}) (interface{}, error) {
		sessions, err := r.SessionCount(ctx)
		if err != nil {
			return nil, err
		}
		serviceTickets, err := r.ServiceTicketCount(ctx)
		if err != nil {
			return nil, err
		}
		return &ticketStatsResponse{Sessions: sessions, ServiceTickets: serviceTickets}, nil
	}
}
