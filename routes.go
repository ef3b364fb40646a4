// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/xmidt-org/cerberus/monitor"
	"github.com/xmidt-org/cerberus/registry"
	"github.com/xmidt-org/httpaux/recovery"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	apiBase     = "/api/v1"
	healthPath  = "/health"
	metricsPath = "/metrics"

	readHeaderTimeout = 10 * time.Second
)

type PrimaryHandlersIn struct {
	fx.In
	ListServices  registry.HTTPHandler `name:"list_services_handler"`
	GetService    registry.HTTPHandler `name:"get_service_handler"`
	SaveService   registry.HTTPHandler `name:"save_service_handler"`
	DeleteService registry.HTTPHandler `name:"delete_service_handler"`
	TicketStats   registry.HTTPHandler `name:"ticket_stats_handler"`
}

type RoutesIn struct {
	fx.In
	Lifecycle fx.Lifecycle
	Servers   ServersConfig
	Auth      AuthConfig
	Measures  Measures
	Handlers  PrimaryHandlersIn
	Monitor   *monitor.Monitor
	Metrics   touchhttp.Handler
	Logger    *zap.Logger
}

func newPrimaryRouter(in RoutesIn) http.Handler {
	router := mux.NewRouter()
	router.Use(otelmux.Middleware(applicationName))

	api := router.PathPrefix(apiBase).Subrouter()
	api.Handle("/services", in.Handlers.ListServices).Methods(http.MethodGet)
	api.Handle("/services", in.Handlers.SaveService).Methods(http.MethodPut)
	api.Handle("/services/{id}", in.Handlers.GetService).Methods(http.MethodGet)
	api.Handle("/services/{id}", in.Handlers.DeleteService).Methods(http.MethodDelete)
	api.Handle("/tickets/stats", in.Handlers.TicketStats).Methods(http.MethodGet)

	return alice.New(
		recovery.Middleware(recovery.WithStatusCode(555)),
		in.Measures.Primary.Then,
	).Extend(authChain(in.Auth, in.Logger)).Then(router)
}

// healthHandler renders the monitor status. Only ERROR is reported unhealthy.
func healthHandler(m *monitor.Monitor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.Observe(r.Context())
		data, err := json.Marshal(status)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if status.Code == monitor.ERROR {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write(data)
	})
}

func newHealthRouter(in RoutesIn) http.Handler {
	router := mux.NewRouter()
	router.Handle(healthPath, healthHandler(in.Monitor)).Methods(http.MethodGet)
	return in.Measures.Health.Then(router)
}

func newMetricsRouter(in RoutesIn) http.Handler {
	router := mux.NewRouter()
	router.Handle(metricsPath, in.Metrics).Methods(http.MethodGet)
	return router
}

// BuildRoutes binds the primary, health and metrics servers to the lifecycle.
func BuildRoutes(in RoutesIn) {
	bindServer(in.Lifecycle, in.Logger, "primary", in.Servers.Primary.Address, newPrimaryRouter(in))
	bindServer(in.Lifecycle, in.Logger, "health", in.Servers.Health.Address, newHealthRouter(in))
	bindServer(in.Lifecycle, in.Logger, "metrics", in.Servers.Metrics.Address, newMetricsRouter(in))
}

func bindServer(lc fx.Lifecycle, logger *zap.Logger, name, address string, handler http.Handler) {
	server := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	logger = logger.With(zap.String("server", name), zap.String("address", address))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			l, err := net.Listen("tcp", address)
			if err != nil {
				return err
			}
			go func() {
				if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server stopped", zap.Error(err))
				}
			}()
			logger.Info("server started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
