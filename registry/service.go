// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/cerberus/codec"
	"github.com/xmidt-org/cerberus/index"
	"github.com/xmidt-org/cerberus/model"
	"github.com/xmidt-org/cerberus/store"
	"go.uber.org/zap"
)

// LastIDKey holds the service id allocation counter.
const LastIDKey = "LAST_ID"

const defaultPreloadInterval = 10 * time.Second

// Handler hands out the open bucket, or store.ErrNotInitialized until the
// store has been reached. *connection.Manager implements it.
type Handler interface {
	Handle() (store.Bucket, error)
}

// Connection is a Handler that also announces the first successful connection.
type Connection interface {
	Handler
	Ready() <-chan struct{}
}

// ServiceConfig configures a ServiceRegistry.
type ServiceConfig struct {
	// Connection to the store. Required.
	Connection Connection

	// Statics are the descriptors from configuration. The registry works on
	// copies. Those without an id are given the lowest id no other static
	// claims, and dynamically saved descriptors are numbered after the highest
	// static id.
	Statics []model.RegisteredService

	// PreloadInterval is the wait between preload attempts.
	// (Optional). Defaults to 10 seconds.
	PreloadInterval time.Duration

	// Codec encodes descriptors.
	// (Optional). Defaults to codec.NewServiceCodec().
	Codec *codec.Codec[model.RegisteredService]

	// Logger to be used by the registry.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger
}

// ServiceRegistry persists registered service descriptors.
type ServiceRegistry struct {
	conn      Connection
	codec     *codec.Codec[model.RegisteredService]
	logger    *zap.Logger
	interval  time.Duration
	statics   []model.RegisteredService
	initialID int64

	preloaded int32
	started   int32
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewServiceRegistry(config ServiceConfig) (*ServiceRegistry, error) {
	if config.Connection == nil {
		return nil, errors.New("service registry requires a connection")
	}
	if config.PreloadInterval <= 0 {
		config.PreloadInterval = defaultPreloadInterval
	}
	if config.Codec == nil {
		config.Codec = codec.NewServiceCodec()
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	statics, initialID, err := assignStaticIDs(config.Codec, config.Statics)
	if err != nil {
		return nil, err
	}
	return &ServiceRegistry{
		conn:      config.Connection,
		codec:     config.Codec,
		logger:    config.Logger,
		interval:  config.PreloadInterval,
		statics:   statics,
		initialID: initialID,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// assignStaticIDs copies the statics and gives every one without an id the
// lowest id no other static claims. Explicit ids must be unique and not
// negative. The returned initial id is the first one the counter may hand out.
func assignStaticIDs(c *codec.Codec[model.RegisteredService], services []model.RegisteredService) ([]model.RegisteredService, int64, error) {
	statics := make([]model.RegisteredService, 0, len(services))
	taken := make(map[int64]bool, len(services))
	for i, svc := range services {
		data, err := c.Encode(svc)
		if err != nil {
			return nil, 0, fmt.Errorf("static service %d: %w", i, err)
		}
		clone, err := c.Decode(data)
		if err != nil {
			return nil, 0, fmt.Errorf("static service %d: %w", i, err)
		}
		id := clone.Properties().ID
		switch {
		case id == model.UnassignedID:
		case id < 0:
			return nil, 0, fmt.Errorf("%w: %d", ErrInvalidStaticID, id)
		case taken[id]:
			return nil, 0, fmt.Errorf("%w: %d is used more than once", ErrInvalidStaticID, id)
		default:
			taken[id] = true
		}
		statics = append(statics, clone)
	}

	next := int64(0)
	for _, svc := range statics {
		props := svc.Properties()
		if props.ID != model.UnassignedID {
			continue
		}
		for taken[next] {
			next++
		}
		props.ID = next
		taken[next] = true
	}

	initialID := int64(len(statics))
	for id := range taken {
		if id >= initialID {
			initialID = id + 1
		}
	}
	return statics, initialID, nil
}

func serviceKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Save writes svc. A descriptor with the unassigned id is first given the next
// id from the shared counter. The returned descriptor is svc with its id set.
func (r *ServiceRegistry) Save(ctx context.Context, svc model.RegisteredService) (model.RegisteredService, error) {
	b, err := r.conn.Handle()
	if err != nil {
		return nil, err
	}

	props := svc.Properties()
	assigned := false
	if props.ID == model.UnassignedID {
		id, err := b.Increment(ctx, LastIDKey, 1, r.initialID)
		if err != nil {
			err = store.SanitizeError("increment", LastIDKey, err)
			r.logger.Error("failed to allocate service id", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}
		props.ID = id
		assigned = true
	}

	key := serviceKey(props.ID)
	data, err := r.codec.Encode(svc)
	if err == nil {
		err = b.Set(ctx, key, data, 0)
		if err != nil {
			err = store.SanitizeError("set", key, err)
		}
	}
	if err != nil {
		if assigned {
			props.ID = model.UnassignedID
		}
		r.logger.Error("failed to save service", zap.String("key", key), zap.String("name", props.Name), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	r.logger.Debug("saved service", zap.String("key", key), zap.String("name", props.Name))
	return svc, nil
}

// Delete removes svc and reports whether the store removed it.
func (r *ServiceRegistry) Delete(ctx context.Context, svc model.RegisteredService) bool {
	key := serviceKey(svc.Properties().ID)
	b, err := r.conn.Handle()
	if err != nil {
		r.logger.Warn("cannot delete service before the store is connected", zap.String("key", key))
		return false
	}
	if err := b.Delete(ctx, key); err != nil {
		r.logger.Error("failed to delete service", zap.String("key", key), zap.Error(store.SanitizeError("delete", key, err)))
		return false
	}
	return true
}

// FindByID returns ErrServiceNotFound when nothing usable is stored under id.
func (r *ServiceRegistry) FindByID(ctx context.Context, id int64) (model.RegisteredService, error) {
	b, err := r.conn.Handle()
	if err != nil {
		return nil, err
	}
	key := serviceKey(id)
	data, err := b.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrKeyNotFound):
		r.logger.Debug("service not found", zap.String("key", key))
		return nil, ErrServiceNotFound
	case err != nil:
		r.logger.Error("failed to fetch service", zap.String("key", key), zap.Error(store.SanitizeError("get", key, err)))
		return nil, ErrServiceNotFound
	}

	svc, err := r.codec.Decode(data)
	if err != nil {
		r.logger.Warn("failed to decode stored service", zap.String("key", key), zap.Error(err))
		return nil, ErrServiceNotFound
	}
	return svc, nil
}

// Load returns every stored descriptor ordered by id. Any store failure yields
// an empty result rather than a partial one. Undecodable records are skipped.
func (r *ServiceRegistry) Load(ctx context.Context) []model.RegisteredService {
	b, err := r.conn.Handle()
	if err != nil {
		r.logger.Warn("cannot load services before the store is connected")
		return []model.RegisteredService{}
	}
	result, err := b.Query(ctx, store.ViewQuery{
		Document:    index.UtilsDocument,
		View:        index.AllServicesView,
		IncludeDocs: true,
	})
	if err != nil {
		r.logger.Warn("failed to load services, returning none",
			zap.Error(store.SanitizeError("query", index.UtilsDocument+"/"+index.AllServicesView, err)))
		return []model.RegisteredService{}
	}

	services := make([]model.RegisteredService, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row.Doc) == 0 {
			continue
		}
		svc, err := r.codec.Decode(row.Doc)
		if err != nil {
			r.logger.Warn("skipping undecodable service", zap.String("key", row.ID), zap.Error(err))
			continue
		}
		services = append(services, svc)
	}
	sort.SliceStable(services, func(i, j int) bool {
		return services[i].Properties().ID < services[j].Properties().ID
	})
	return services
}

// Matching returns the enabled descriptors matching service, lowest
// evaluation order first.
func (r *ServiceRegistry) Matching(ctx context.Context, service string) []model.RegisteredService {
	var matches []model.RegisteredService
	for _, svc := range r.Load(ctx) {
		if svc.Properties().Enabled && svc.Matches(service) {
			matches = append(matches, svc)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Properties().EvaluationOrder < matches[j].Properties().EvaluationOrder
	})
	return matches
}

// StartPreload saves the static descriptors in the background once the store
// is connected, retrying the ones that failed every PreloadInterval.
func (r *ServiceRegistry) StartPreload() error {
	if !atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		return errors.New("preload already started or stopped")
	}
	go r.preload()
	return nil
}

// StopPreload cancels a running preload and waits for it to return. It can
// be called more than once and before StartPreload, after which StartPreload
// fails.
func (r *ServiceRegistry) StopPreload(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	if atomic.CompareAndSwapInt32(&r.started, 0, 1) {
		close(r.done)
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Preloaded reports whether every static descriptor has been saved.
func (r *ServiceRegistry) Preloaded() bool {
	return atomic.LoadInt32(&r.preloaded) == 1
}

func (r *ServiceRegistry) preload() {
	defer close(r.done)
	select {
	case <-r.stop:
		return
	case <-r.conn.Ready():
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	pending := r.statics
	for {
		var failed []model.RegisteredService
		for _, svc := range pending {
			if _, err := r.Save(ctx, svc); err != nil {
				failed = append(failed, svc)
			}
		}
		if len(failed) == 0 {
			atomic.StoreInt32(&r.preloaded, 1)
			r.logger.Info("static services preloaded", zap.Int("count", len(r.statics)))
			return
		}
		r.logger.Warn("failed to preload some static services, they will be retried",
			zap.Int("failed", len(failed)), zap.Duration("retryInterval", r.interval))
		pending = failed

		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
	}
}
