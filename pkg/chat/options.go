package chat

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 120 * time.Second

// Option configures a provider.
type Option func(*options)

type options struct {
	logger     chatLogger
	recorder   Recorder
	httpClient *http.Client
	timeout    time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   nopLogger{},
		recorder: nopRecorder{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout}
	}
	return o
}

// WithLogger sets the provider logger.
func WithLogger(l chatLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithHTTPClient replaces the HTTP client. The timeout option is then ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}
