package chat

import (
	"context"
	"sync"
	"time"
)

// Detector defaults.
const (
	DefaultDetectInterval = 5 * time.Minute
	DefaultDetectTimeout  = 5 * time.Second
)

// ModelLister is the part of Provider the detector probes.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Target is one local server to probe.
type Target struct {
	Endpoint string
	Lister   ModelLister
}

// Status is the probe result for one server.
type Status struct {
	Provider  string      `json:"provider"`
	Connected bool        `json:"connected"`
	Models    []ModelInfo `json:"models"`
	Error     string      `json:"error,omitempty"`
	Endpoint  string      `json:"endpoint"`
}

// Detection is the result of one probe round.
type Detection struct {
	Ollama      Status    `json:"ollama"`
	LMStudio    Status    `json:"lmstudio"`
	TotalModels int       `json:"totalModels"`
	Timestamp   time.Time `json:"timestamp"`
}

// DetectorConfig configures a Detector.
type DetectorConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Detector probes the local model servers and caches the latest result.
type Detector struct {
	ollama   Target
	lmstudio Target
	interval time.Duration
	timeout  time.Duration
	logger   chatLogger
	now      func() time.Time

	mu        sync.RWMutex
	latest    Detection
	detected  bool
	listeners []func(Detection)

	cancel context.CancelFunc
	done   chan struct{}
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDetectorLogger sets the detector logger.
func WithDetectorLogger(l chatLogger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithDetectorClock sets the clock used for timestamps.
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDetector creates a detector for an Ollama and an LM Studio server.
func NewDetector(ollama, lmstudio Target, cfg DetectorConfig, opts ...DetectorOption) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultDetectInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDetectTimeout
	}
	d := &Detector{
		ollama:   ollama,
		lmstudio: lmstudio,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   nopLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// OnDetected registers a callback invoked after every probe round.
func (d *Detector) OnDetected(fn func(Detection)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Detect probes both servers concurrently, each bounded by the timeout.
func (d *Detector) Detect(ctx context.Context) Detection {
	var wg sync.WaitGroup
	var result Detection

	wg.Add(2)
	go func() {
		defer wg.Done()
		result.Ollama = d.probe(ctx, ProviderOllama, d.ollama)
	}()
	go func() {
		defer wg.Done()
		result.LMStudio = d.probe(ctx, ProviderLMStudio, d.lmstudio)
	}()
	wg.Wait()

	result.TotalModels = len(result.Ollama.Models) + len(result.LMStudio.Models)
	result.Timestamp = d.now().UTC()

	d.mu.Lock()
	d.latest = result
	d.detected = true
	listeners := append([]func(Detection){}, d.listeners...)
	d.mu.Unlock()

	d.logger.Debug("local models detected",
		"ollama", result.Ollama.Connected,
		"lmstudio", result.LMStudio.Connected,
		"total", result.TotalModels)

	for _, fn := range listeners {
		fn(result)
	}
	return result
}

// Latest returns the last detection, if any.
func (d *Detector) Latest() (Detection, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest, d.detected
}

// Start runs a detection immediately and then on every interval until
// Stop is called or ctx is cancelled.
func (d *Detector) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	if d.cancel != nil {
		d.mu.Unlock()
		cancel()
		return
	}
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		d.Detect(ctx)

		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Detect(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the refresh loop and waits for it to exit.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Detector) probe(ctx context.Context, name string, t Target) Status {
	st := Status{Provider: name, Endpoint: t.Endpoint, Models: []ModelInfo{}}
	if t.Lister == nil {
		st.Error = "not configured"
		return st
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	models, err := t.Lister.ListModels(ctx)
	if err != nil {
		st.Error = err.Error()
		d.logger.Debug("model server not reachable", "provider", name, "endpoint", t.Endpoint, "error", err)
		return st
	}
	st.Connected = true
	st.Models = models
	return st
}
