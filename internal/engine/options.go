package engine

import (
	"time"

	"hitqueue/internal/config"
	"hitqueue/internal/constants"
)

// Options configures one engine. Zero fields fall back to the registry
// defaults and then to the package constants.
type Options struct {
	QueueLifeSpan    time.Duration
	RetryInterval    time.Duration
	Timeout          time.Duration
	Secure           bool
	SecureEndpoint   string
	InsecureEndpoint string
	Workers          int
	RateLimit        config.RateLimitConfig
	CircuitBreaker   config.CircuitBreakerConfig
	Protocol         Protocol
}

// DefaultOptions mirrors the documented defaults.
func DefaultOptions() Options {
	return Options{
		QueueLifeSpan: constants.DefaultQueueLifeSpan,
		RetryInterval: constants.DefaultRetryInterval,
		Timeout:       constants.DefaultHTTPTimeout,
		Secure:        true,
		Workers:       constants.DefaultWorkers,
		Protocol:      Universal{},
	}
}

// OptionsFromConfig builds engine defaults from the tracking section.
func OptionsFromConfig(t config.TrackingConfig, cb config.CircuitBreakerConfig) Options {
	o := DefaultOptions()
	if t.QueueLifeSpan > 0 {
		o.QueueLifeSpan = t.QueueLifeSpan
	}
	if t.RetryInterval > 0 {
		o.RetryInterval = t.RetryInterval
	}
	if t.HTTPTimeout > 0 {
		o.Timeout = t.HTTPTimeout
	}
	if t.Workers > 0 {
		o.Workers = t.Workers
	}
	o.Secure = t.Secure
	o.RateLimit = t.RateLimit
	o.CircuitBreaker = cb
	return o
}

type Option func(*Options)

func WithQueueLifeSpan(d time.Duration) Option {
	return func(o *Options) { o.QueueLifeSpan = d }
}

func WithRetryInterval(d time.Duration) Option {
	return func(o *Options) { o.RetryInterval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

func WithSecure(secure bool) Option {
	return func(o *Options) { o.Secure = secure }
}

// WithEndpoints overrides the protocol endpoints. Empty values keep the
// protocol's.
func WithEndpoints(secure, insecure string) Option {
	return func(o *Options) {
		o.SecureEndpoint = secure
		o.InsecureEndpoint = insecure
	}
}

func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

func WithRateLimit(rl config.RateLimitConfig) Option {
	return func(o *Options) { o.RateLimit = rl }
}

func WithProtocol(p Protocol) Option {
	return func(o *Options) { o.Protocol = p }
}

func (o *Options) normalize() {
	d := DefaultOptions()
	if o.QueueLifeSpan <= 0 {
		o.QueueLifeSpan = d.QueueLifeSpan
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = d.RetryInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.Protocol == nil {
		o.Protocol = d.Protocol
	}
}
