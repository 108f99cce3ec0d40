// Package memory implements agent memory: per-agent short-term entries, a
// shared working context and a capped long-term fact store ranked by
// keyword relevance, importance and recency.
package memory

import (
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/RuFFyGTLP/TC/pkg/storage"
	"github.com/RuFFyGTLP/TC/pkg/storage/noop"
)

// Sentinel errors for the memory system.
var (
	ErrEmptyKey = errors.New("memory: empty key")
)

const tracerName = "tc.memory"

// Config holds long-term memory limits.
type Config struct {
	MaxFacts      int
	PruneTo       int
	RecallLimit   int
	ContextLimit  int
	RecencyWindow time.Duration
}

// DefaultConfig returns the default memory limits.
func DefaultConfig() Config {
	return Config{
		MaxFacts:      100,
		PruneTo:       80,
		RecallLimit:   5,
		ContextLimit:  3,
		RecencyWindow: 30 * 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFacts <= 0 {
		c.MaxFacts = d.MaxFacts
	}
	if c.PruneTo <= 0 || c.PruneTo > c.MaxFacts {
		c.PruneTo = c.MaxFacts * d.PruneTo / d.MaxFacts
	}
	if c.RecallLimit <= 0 {
		c.RecallLimit = d.RecallLimit
	}
	if c.ContextLimit <= 0 {
		c.ContextLimit = d.ContextLimit
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = d.RecencyWindow
	}
	return c
}

// Recorder receives memory metrics. *metrics.Manager implements it.
type Recorder interface {
	RecordFactRemembered()
	RecordRecall(hit bool)
	RecordPrune()
	SetFactCount(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordFactRemembered() {}
func (nopRecorder) RecordRecall(bool)     {}
func (nopRecorder) RecordPrune()          {}
func (nopRecorder) SetFactCount(int)      {}

// storeLogger is the minimal logger interface used by Store.
type storeLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopStoreLogger is a no-op logger.
type nopStoreLogger struct{}

func (n *nopStoreLogger) Debug(msg string, args ...any) {}
func (n *nopStoreLogger) Info(msg string, args ...any)  {}
func (n *nopStoreLogger) Warn(msg string, args ...any)  {}
func (n *nopStoreLogger) Error(msg string, args ...any) {}

// ChangeKind identifies a memory mutation.
type ChangeKind string

const (
	ChangeRemembered ChangeKind = "remembered"
	ChangePruned     ChangeKind = "pruned"
	ChangeLoaded     ChangeKind = "loaded"
	ChangeShortTerm  ChangeKind = "short_term"
	ChangeWorking    ChangeKind = "working"
)

// Change describes a memory mutation delivered to listeners.
type Change struct {
	Kind  ChangeKind `json:"kind"`
	Facts int        `json:"facts"`
	Agent string     `json:"agent,omitempty"`
	Key   string     `json:"key,omitempty"`
}

// ChangeListener is called synchronously after a mutation.
type ChangeListener func(Change)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l storeLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithChangeListener registers a mutation callback.
func WithChangeListener(fn ChangeListener) Option {
	return func(s *Store) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the random id suffix source.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newSuffix = fn
		}
	}
}

// Store holds all agent memory.
type Store struct {
	mu        sync.RWMutex
	shortTerm map[string]map[string]ShortTermEntry
	longTerm  []*Fact
	working   map[string]any

	// saving maps ids whose backend Save is in flight to whether they were
	// pruned before it returned.
	saving map[string]bool

	cfg       Config
	backend   storage.Backend
	logger    storeLogger
	recorder  Recorder
	listeners []ChangeListener
	now       func() time.Time
	newSuffix func() string
}

// NewStore creates an empty memory store. A nil backend disables persistence.
func NewStore(backend storage.Backend, cfg Config, opts ...Option) *Store {
	if backend == nil {
		backend = noop.New()
	}
	s := &Store{
		shortTerm: make(map[string]map[string]ShortTermEntry),
		working:   make(map[string]any),
		saving:    make(map[string]bool),
		cfg:       cfg.withDefaults(),
		backend:   backend,
		logger:    &nopStoreLogger{},
		recorder:  nopRecorder{},
		now:       time.Now,
		newSuffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective limits.
func (s *Store) Config() Config {
	return s.cfg
}

func (s *Store) notify(c Change) {
	for _, fn := range s.listeners {
		fn(c)
	}
}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
