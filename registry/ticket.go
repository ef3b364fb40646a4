// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xmidt-org/cerberus/codec"
	"github.com/xmidt-org/cerberus/index"
	"github.com/xmidt-org/cerberus/model"
	"github.com/xmidt-org/cerberus/store"
	"go.uber.org/zap"
)

// TicketConfig configures a TicketRegistry.
type TicketConfig struct {
	// Handler gives access to the store. Required.
	Handler Handler

	// TGTTimeout is how long a ticket granting ticket is kept.
	// Zero keeps it until deleted.
	TGTTimeout time.Duration

	// STTimeout is how long a service ticket is kept.
	// Zero keeps it until deleted.
	STTimeout time.Duration

	// Codec encodes tickets.
	// (Optional). Defaults to codec.NewTicketCodec().
	Codec *codec.Codec[model.Ticket]

	// Logger to be used by the registry.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger
}

// TicketRegistry persists tickets with a store enforced expiry. Persistence is
// best effort: store failures are logged and never returned.
type TicketRegistry struct {
	handler    Handler
	codec      *codec.Codec[model.Ticket]
	logger     *zap.Logger
	tgtTimeout time.Duration
	stTimeout  time.Duration
}

func NewTicketRegistry(config TicketConfig) (*TicketRegistry, error) {
	if config.Handler == nil {
		return nil, errors.New("ticket registry requires a handler")
	}
	if config.TGTTimeout < 0 || config.STTimeout < 0 {
		return nil, errors.New("ticket timeouts must not be negative")
	}
	if config.Codec == nil {
		config.Codec = codec.NewTicketCodec()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &TicketRegistry{
		handler:    config.Handler,
		codec:      config.Codec,
		logger:     config.Logger,
		tgtTimeout: config.TGTTimeout,
		stTimeout:  config.STTimeout,
	}, nil
}

func (r *TicketRegistry) timeout(t model.Ticket) (time.Duration, error) {
	switch t.(type) {
	case *model.TicketGrantingTicket:
		return r.tgtTimeout, nil
	case *model.ServiceTicket:
		return r.stTimeout, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrInvalidTicketType, t)
	}
}

// AddTicket stores t. Adding an id that already exists overwrites it.
func (r *TicketRegistry) AddTicket(ctx context.Context, t model.Ticket) error {
	return r.put(ctx, "add", t)
}

// UpdateTicket stores t, last write wins.
func (r *TicketRegistry) UpdateTicket(ctx context.Context, t model.Ticket) error {
	return r.put(ctx, "update", t)
}

func (r *TicketRegistry) put(ctx context.Context, operation string, t model.Ticket) error {
	ttl, err := r.timeout(t)
	if err != nil {
		return err
	}
	b, err := r.handler.Handle()
	if err != nil {
		return err
	}

	id := t.GetID()
	r.logger.Debug("storing ticket", zap.String("operation", operation), zap.String("id", id), zap.Duration("ttl", ttl))
	data, err := r.codec.Encode(t)
	if err != nil {
		r.logger.Error("failed to encode ticket", zap.String("operation", operation), zap.String("id", id), zap.Error(err))
		return nil
	}
	if err := b.Set(ctx, id, data, ttl); err != nil {
		r.logger.Error("failed to store ticket", zap.String("operation", operation), zap.String("id", id),
			zap.Error(store.SanitizeError("set", id, err)))
	}
	return nil
}

// DeleteTicket reports whether the ticket was removed.
func (r *TicketRegistry) DeleteTicket(ctx context.Context, id string) bool {
	b, err := r.handler.Handle()
	if err != nil {
		r.logger.Warn("cannot delete ticket before the store is connected", zap.String("id", id))
		return false
	}
	if err := b.Delete(ctx, id); err != nil {
		r.logger.Error("failed to delete ticket", zap.String("id", id), zap.Error(store.SanitizeError("delete", id, err)))
		return false
	}
	return true
}

// GetTicket returns ErrTicketNotFound when nothing usable is stored under id.
func (r *TicketRegistry) GetTicket(ctx context.Context, id string) (model.Ticket, error) {
	b, err := r.handler.Handle()
	if err != nil {
		return nil, err
	}
	data, err := b.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		return nil, ErrTicketNotFound
	case err != nil:
		r.logger.Error("failed to fetch ticket", zap.String("id", id), zap.Error(store.SanitizeError("get", id, err)))
		return nil, ErrTicketNotFound
	}
	t, err := r.codec.Decode(data)
	if err != nil {
		r.logger.Warn("failed to decode stored ticket", zap.String("id", id), zap.Error(err))
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// CountByPrefix counts the live tickets whose id starts with prefix. Store
// failures count zero.
func (r *TicketRegistry) CountByPrefix(ctx context.Context, prefix string) (int, error) {
	b, err := r.handler.Handle()
	if err != nil {
		return 0, err
	}
	n, err := index.CountPrefix(ctx, b, index.StatisticsDocument, index.AllTicketsView, prefix)
	if err != nil {
		r.logger.Error("failed to count tickets", zap.String("prefix", prefix),
			zap.Error(store.SanitizeError("count", prefix, err)))
		return 0, nil
	}
	return n, nil
}

// SessionCount counts ticket granting tickets.
func (r *TicketRegistry) SessionCount(ctx context.Context) (int, error) {
	return r.CountByPrefix(ctx, model.TicketGrantingTicketPrefix)
}

// ServiceTicketCount counts service tickets.
func (r *TicketRegistry) ServiceTicketCount(ctx context.Context) (int, error) {
	return r.CountByPrefix(ctx, model.ServiceTicketPrefix)
}

// Tickets always fails: the store offers no efficient way to enumerate tickets.
func (r *TicketRegistry) Tickets(context.Context) ([]model.Ticket, error) {
	return nil, ErrUnsupported
}
