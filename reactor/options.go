package reactor

import (
	"time"

	"github.com/cyberinferno/go-chatcore/codec"
	"github.com/cyberinferno/go-chatcore/logger"
	"github.com/cyberinferno/go-chatcore/metrics"
)

const (
	DefaultMaxEvents      = 10
	DefaultReadBufferSize = 4096
	DefaultAcceptTimeout  = 100 * time.Millisecond
)

type options struct {
	maxEvents      int
	readBufferSize int
	maxFrameSize   uint32
	acceptTimeout  time.Duration
	logger         logger.Logger
	eventLog       logger.EventLog
	metrics        *metrics.Metrics
}

func defaultOptions() options {
	return options{
		maxEvents:      DefaultMaxEvents,
		readBufferSize: DefaultReadBufferSize,
		maxFrameSize:   codec.DefaultMaxFrameSize,
		acceptTimeout:  DefaultAcceptTimeout,
		logger:         logger.NewNopLogger(),
		eventLog:       logger.NopEventLog{},
		metrics:        metrics.NewUnregistered(),
	}
}

// Option configures a Reactor.
type Option func(*options)

// WithMaxEvents sets how many ready descriptors one wake can report.
func WithMaxEvents(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEvents = n
		}
	}
}

// WithReadBufferSize sets the size of the single receive per readiness event.
func WithReadBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBufferSize = n
		}
	}
}

// WithMaxFrameSize sets the largest frame body a peer may send.
func WithMaxFrameSize(n uint32) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithAcceptTimeout bounds an accept after the listener reported readiness.
func WithAcceptTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.acceptTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithEventLog sets the append log receiving connect and disconnect lines.
func WithEventLog(l logger.EventLog) Option {
	return func(o *options) {
		o.eventLog = l
	}
}

// WithMetrics sets the collectors updated by the loop.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
