// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/xmidt-org/cerberus/connection"
	"github.com/xmidt-org/cerberus/index"
	"github.com/xmidt-org/cerberus/model"
	"github.com/xmidt-org/cerberus/monitor"
	"github.com/xmidt-org/cerberus/registry"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/db"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const (
	applicationName = "cerberus"
)

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

func main() {
	v, logger, err := setup(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		fx.Supply(logger, v),
		touchstone.Provide(),
		provideMetrics(),
		connection.ProvideMetrics(),
		db.Provide(),
		registry.ProvideHandlers(),
		fx.Provide(
			provideConfig,
			provideTouchstoneConfig,
			provideConnection,
			provideServiceRegistry,
			provideTicketRegistry,
			func(m *connection.Manager) *monitor.Monitor {
				return monitor.New(m, logger.Named("monitor"))
			},
		),
		fx.Invoke(
			bindStore,
			BuildRoutes,
		),
	)

	switch err := app.Err(); {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err == nil:
		app.Run()
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func provideTouchstoneConfig(v *viper.Viper) (touchstone.Config, error) {
	var c touchstone.Config
	err := v.UnmarshalKey("prometheus", &c)
	return c, err
}

type ConnectionIn struct {
	fx.In
	Dialer   connection.Dialer
	Store    db.Config
	Measures connection.Measures
	Logger   *zap.Logger
}

func provideConnection(in ConnectionIn) (*connection.Manager, error) {
	return connection.New(connection.Config{
		Dialer:        in.Dialer,
		RetryInterval: in.Store.RetryInterval,
		Logger:        in.Logger.Named("connection"),
		Measures:      &in.Measures,
	})
}

type ServiceRegistryIn struct {
	fx.In
	Manager *connection.Manager
	Store   db.Config
	Statics []model.RegisteredService
	Logger  *zap.Logger
}

func provideServiceRegistry(in ServiceRegistryIn) (*registry.ServiceRegistry, error) {
	return registry.NewServiceRegistry(registry.ServiceConfig{
		Connection:      in.Manager,
		Statics:         in.Statics,
		PreloadInterval: in.Store.RetryInterval,
		Logger:          in.Logger.Named("services"),
	})
}

func provideTicketRegistry(m *connection.Manager, tickets TicketsConfig, logger *zap.Logger) (*registry.TicketRegistry, error) {
	return registry.NewTicketRegistry(registry.TicketConfig{
		Handler:    m,
		TGTTimeout: time.Duration(tickets.TGTTimeout) * time.Second,
		STTimeout:  time.Duration(tickets.STTimeout) * time.Second,
		Logger:     logger.Named("tickets"),
	})
}

// bindStore registers the indexes and ties connecting and preloading to the
// application lifecycle.
func bindStore(lc fx.Lifecycle, m *connection.Manager, services *registry.ServiceRegistry, logger *zap.Logger) {
	m.EnsureIndexes(index.Utils.Name, index.Utils.Views...)
	m.EnsureIndexes(index.Statistics.Name, index.Statistics.Views...)
	m.OnConnect(func(ctx context.Context, b store.Bucket) {
		logInventory(ctx, b, logger)
	})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := m.Initialize(); err != nil {
				return err
			}
			return services.StartPreload()
		},
		OnStop: func(ctx context.Context) error {
			return errors.Join(services.StopPreload(ctx), m.Shutdown(ctx))
		},
	})
}

// logInventory reports what the store already holds when a connection is made.
func logInventory(ctx context.Context, b store.Bucket, logger *zap.Logger) {
	ids, err := index.Keys(ctx, b, index.UtilsDocument, index.AllServicesView, "", "")
	if err != nil {
		logger.Warn("failed to list stored services", zap.Error(err))
		return
	}
	sessions, err := index.CountPrefix(ctx, b, index.StatisticsDocument, index.AllTicketsView, model.TicketGrantingTicketPrefix)
	if err != nil {
		logger.Warn("failed to count stored sessions", zap.Error(err))
		return
	}
	logger.Info("store connected", zap.Int("services", len(ids)), zap.Int("sessions", sessions))
}
