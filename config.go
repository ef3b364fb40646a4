// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/xmidt-org/cerberus/codec"
	"github.com/xmidt-org/cerberus/model"
	"github.com/xmidt-org/cerberus/store/db"
	"go.uber.org/fx"
)

const (
	defaultRetryInterval = 10 * time.Second

	// Seconds.
	defaultTGTTimeout = 28800
	defaultSTTimeout  = 10
)

// Config is the whole configuration file except logging, which setup reads.
type Config struct {
	Store    db.Config
	Tickets  TicketsConfig
	Services []StaticServiceConfig `validate:"dive"`
	Servers  ServersConfig
	Auth     AuthConfig
}

// TicketsConfig holds the ticket timeouts in seconds. Zero keeps tickets
// until they are deleted.
type TicketsConfig struct {
	TGTTimeout int `validate:"gte=0"`
	STTimeout  int `validate:"gte=0"`
}

// StaticServiceConfig is a service descriptor listed in the configuration.
type StaticServiceConfig struct {
	Type string `validate:"required"`

	// ID is optional and must be unique among the statics. Descriptors without
	// one get the lowest id no other static claims.
	ID *int64 `validate:"omitempty,gte=0"`

	Name              string `validate:"required"`
	Description       string
	ServiceID         string `validate:"required"`
	Enabled           bool
	SSOEnabled        bool
	AllowedToProxy    bool
	EvaluationOrder   int `validate:"gte=0"`
	Theme             string
	UsernameAttribute string
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type ServersConfig struct {
	Primary ServerConfig
	Health  ServerConfig
	Metrics ServerConfig
}

type AuthConfig struct {
	JWT JWTConfig

	// Basic maps user names to passwords accepted with basic auth.
	Basic map[string]string
}

// JWTConfig enables HMAC bearer token checks on the primary server when Secret is set.
type JWTConfig struct {
	Secret string
}

type ConfigOut struct {
	fx.Out
	Store   db.Config
	Tickets TicketsConfig
	Statics []model.RegisteredService
	Servers ServersConfig
	Auth    AuthConfig
}

func loadConfig(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := validator.New().Struct(c); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

func provideConfig(v *viper.Viper) (ConfigOut, error) {
	c, err := loadConfig(v)
	if err != nil {
		return ConfigOut{}, err
	}
	statics, err := buildStatics(codec.NewServiceCodec(), c.Services)
	if err != nil {
		return ConfigOut{}, err
	}
	return ConfigOut{
		Store:   c.Store,
		Tickets: c.Tickets,
		Statics: statics,
		Servers: c.Servers,
		Auth:    c.Auth,
	}, nil
}

// buildStatics turns configured descriptors into variants through the codec,
// so configuration accepts exactly the tags that can be stored.
func buildStatics(c *codec.Codec[model.RegisteredService], services []StaticServiceConfig) ([]model.RegisteredService, error) {
	statics := make([]model.RegisteredService, 0, len(services))
	for i, s := range services {
		props := model.ServiceProperties{
			ID:                model.UnassignedID,
			Name:              s.Name,
			Description:       s.Description,
			ServiceID:         s.ServiceID,
			Enabled:           s.Enabled,
			SSOEnabled:        s.SSOEnabled,
			AllowedToProxy:    s.AllowedToProxy,
			EvaluationOrder:   s.EvaluationOrder,
			Theme:             s.Theme,
			UsernameAttribute: s.UsernameAttribute,
		}
		if s.ID != nil {
			props.ID = *s.ID
		}
		properties, err := json.Marshal(props)
		if err != nil {
			return nil, err
		}
		tag, err := json.Marshal(s.Type)
		if err != nil {
			return nil, err
		}
		envelope, err := json.Marshal(map[string]json.RawMessage{
			"type":       tag,
			"properties": properties,
		})
		if err != nil {
			return nil, err
		}
		svc, err := c.Decode(envelope)
		if err != nil {
			return nil, fmt.Errorf("services[%d] %q: %w", i, s.Name, err)
		}
		statics = append(statics, svc)
	}
	return statics, nil
}
