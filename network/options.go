package network

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraChain-Replica/api"
)

// Defaults for fabric tuning
const (
	DefaultIngressBuffer   = 1024
	DefaultQueueSize       = 256
	DefaultDialTimeout     = 5 * time.Second
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 5 * time.Second
)

// Option configures a fabric.
type Option func(*options)

type options struct {
	logger          *zap.Logger
	metrics         *api.Metrics
	listener        net.Listener
	ingressBuffer   int
	queueSize       int
	dialTimeout     time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
}

func defaultOptions() options {
	return options{
		logger:          zap.NewNop(),
		ingressBuffer:   DefaultIngressBuffer,
		queueSize:       DefaultQueueSize,
		dialTimeout:     DefaultDialTimeout,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records transport metrics into m.
func WithMetrics(m *api.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithListener serves on an already bound listener instead of binding the
// configured address. The fabric takes ownership of lis.
func WithListener(lis net.Listener) Option {
	return func(o *options) { o.listener = lis }
}

// WithIngressBuffer sets the capacity of the shared ingress channel.
func WithIngressBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.ingressBuffer = n
		}
	}
}

// WithQueueSize sets the capacity of each per-connection (client) or
// per-peer (mesh) outbound queue.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithDialTimeout bounds each mesh dial attempt and handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithBackoff sets the initial and maximum mesh redial interval.
func WithBackoff(initial, max time.Duration) Option {
	return func(o *options) {
		if initial > 0 {
			o.initialInterval = initial
		}
		if max > 0 {
			o.maxInterval = max
		}
		if o.maxInterval < o.initialInterval {
			o.maxInterval = o.initialInterval
		}
	}
}

func listen(o *options, addr string) (net.Listener, error) {
	if o.listener != nil {
		return o.listener, nil
	}
	return net.Listen("tcp", addr)
}
