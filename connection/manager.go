// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"emperror.dev/emperror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xmidt-org/cerberus/index"
	"github.com/xmidt-org/cerberus/store"
	"go.uber.org/zap"
)

// Errors that can be returned by this package.
var (
	ErrAlreadyInitialized = errors.New("connection manager already initialized")
	ErrShutdown           = errors.New("connection manager is shut down")
	ErrNoDialer           = errors.New("no dialer provided")
)

const defaultRetryInterval = 10 * time.Second

// Dialer opens a bucket. It is called until it succeeds.
type Dialer func(ctx context.Context) (store.Bucket, error)

// ConnectHook runs once the store has been reached and its indexes ensured.
type ConnectHook func(context.Context, store.Bucket)

// State is the lifecycle position of a Manager.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Shutdown
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Config configures a Manager.
type Config struct {
	// Dialer opens the bucket. Required.
	Dialer Dialer

	// RetryInterval is the wait between failed attempts.
	// (Optional). Defaults to 10 seconds.
	RetryInterval time.Duration

	// Logger to be used by the manager.
	// (Optional). By default a no op logger will be used.
	Logger *zap.Logger

	// Measures records connection attempts.
	// (Optional). Unregistered counters are used when nil.
	Measures *Measures
}

// Manager owns the connection to the store. Until a connection succeeds it
// keeps retrying in the background; everything else in the process asks it
// for the handle and treats store.ErrNotInitialized as a retryable outcome.
type Manager struct {
	dial          Dialer
	retryInterval time.Duration
	logger        *zap.Logger
	measures      *Measures

	state       int32
	initialized int32

	lock      sync.Mutex
	bucket    store.Bucket
	documents []store.DesignDocument
	hooks     []ConnectHook

	ctx          context.Context
	cancel       context.CancelFunc
	ready        chan struct{}
	shutdown     chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

func New(config Config) (*Manager, error) {
	if config.Dialer == nil {
		return nil, ErrNoDialer
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Measures == nil {
		config.Measures = NewMeasures()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		dial:          config.Dialer,
		retryInterval: config.RetryInterval,
		logger:        config.Logger,
		measures:      config.Measures,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Initialize starts connecting in the background and returns immediately.
// The first attempt is made right away, later ones every RetryInterval.
func (m *Manager) Initialize() error {
	if !atomic.CompareAndSwapInt32(&m.initialized, 0, 1) {
		if m.State() == Shutdown {
			return ErrShutdown
		}
		return ErrAlreadyInitialized
	}
	go m.run()
	return nil
}

func (m *Manager) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.retryInterval)
	defer ticker.Stop()
	for {
		if m.attempt() {
			return
		}
		select {
		case <-m.shutdown:
			return
		case <-ticker.C:
		}
	}
}

// attempt returns true once no further attempts should be made.
func (m *Manager) attempt() bool {
	if !atomic.CompareAndSwapInt32(&m.state, int32(Disconnected), int32(Connecting)) {
		return true
	}

	b, err := m.dial(m.ctx)
	if err == nil {
		if err = b.Ping(m.ctx); err != nil {
			if closeErr := b.Close(); closeErr != nil {
				m.logger.Warn("failed to close bucket after failed ping", zap.Error(closeErr))
			}
		}
	}
	if err != nil {
		m.measures.Attempts.With(prometheus.Labels{OutcomeLabel: FailureOutcome}).Add(1)
		m.logger.Error("failed to connect to store, it will be retried",
			zap.Duration("retryInterval", m.retryInterval),
			zap.Error(emperror.WrapWith(err, "store connection attempt failed")))
		atomic.CompareAndSwapInt32(&m.state, int32(Connecting), int32(Disconnected))
		return false
	}

	m.lock.Lock()
	if !atomic.CompareAndSwapInt32(&m.state, int32(Connecting), int32(Connected)) {
		m.lock.Unlock()
		if err := b.Close(); err != nil {
			m.logger.Warn("failed to close bucket opened during shutdown", zap.Error(err))
		}
		return true
	}
	m.bucket = b
	documents := append([]store.DesignDocument(nil), m.documents...)
	hooks := append([]ConnectHook{}, m.hooks...)
	m.lock.Unlock()

	m.measures.Attempts.With(prometheus.Labels{OutcomeLabel: SuccessOutcome}).Add(1)
	m.logger.Info("connected to store")

	for _, doc := range documents {
		m.ensure(b, doc)
	}
	for _, hook := range hooks {
		hook(m.ctx, b)
	}
	close(m.ready)
	return true
}

func (m *Manager) ensure(b store.Bucket, doc store.DesignDocument) {
	upserted, err := index.Ensure(m.ctx, b, doc)
	if err != nil {
		m.logger.Error("failed to ensure design document", zap.String("document", doc.Name), zap.Error(err))
		return
	}
	if upserted {
		m.logger.Info("design document updated", zap.String("document", doc.Name))
	}
}

// Handle returns the open bucket or store.ErrNotInitialized.
func (m *Manager) Handle() (store.Bucket, error) {
	if m.State() != Connected {
		return nil, store.ErrNotInitialized
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.bucket == nil {
		return nil, store.ErrNotInitialized
	}
	return m.bucket, nil
}

// EnsureIndexes registers views to be kept in the design document. Once
// connected the document is ensured right away, otherwise on connect.
func (m *Manager) EnsureIndexes(document string, views ...store.View) {
	doc := store.DesignDocument{Name: document, Views: views}
	m.lock.Lock()
	m.documents = append(m.documents, doc)
	b := m.bucket
	connected := m.State() == Connected
	m.lock.Unlock()
	if connected && b != nil {
		m.ensure(b, doc)
	}
}

// OnConnect registers fn to run once connected, or right away if already connected.
func (m *Manager) OnConnect(fn ConnectHook) {
	m.lock.Lock()
	m.hooks = append(m.hooks, fn)
	b := m.bucket
	connected := m.State() == Connected
	m.lock.Unlock()
	if connected && b != nil {
		fn(m.ctx, b)
	}
}

// Ready is closed after the first successful connection.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

func (m *Manager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

// Shutdown stops retrying, waits for the background goroutine and closes the
// bucket. It can be called more than once and before Initialize.
func (m *Manager) Shutdown(ctx context.Context) error {
	var err error
	m.shutdownOnce.Do(func() {
		m.lock.Lock()
		atomic.StoreInt32(&m.state, int32(Shutdown))
		m.lock.Unlock()
		close(m.shutdown)
		m.cancel()

		if !atomic.CompareAndSwapInt32(&m.initialized, 0, 1) {
			select {
			case <-m.done:
			case <-ctx.Done():
				err = ctx.Err()
				return
			}
		}

		m.lock.Lock()
		b := m.bucket
		m.bucket = nil
		m.lock.Unlock()
		if b != nil {
			err = b.Close()
		}
		m.logger.Info("store connection shut down")
	})
	return err
}
