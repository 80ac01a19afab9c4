package logging

import (
	"sync"
	"time"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/diag"
	"github.com/arenalab/tracekit/internal/metrics"
)

type pairKey struct {
	category  string
	component string
}

// Registry caches one Logger per (category, component) pair so a pair
// never holds more than one file handle. Loggers are created on first
// request and live until Close.
type Registry struct {
	cfg   *config.Config
	log   *diag.Logger
	stats *metrics.Pipeline

	mu      sync.Mutex
	loggers map[pairKey]*Logger
}

// NewRegistry creates an emitter registry over cfg. A nil diagnostics
// logger falls back to the process default.
func NewRegistry(cfg *config.Config, log *diag.Logger) *Registry {
	if log == nil {
		log = diag.Default()
	}
	return &Registry{
		cfg:     cfg,
		log:     log,
		stats:   metrics.New(),
		loggers: make(map[pairKey]*Logger),
	}
}

// Get returns the cached emitter for the pair, constructing it (and
// opening its backing file) on first use. Construction failures yield a
// level-gated logger whose records go nowhere but never an error: the
// pipeline does not raise into business logic.
func (r *Registry) Get(category, component string) *Logger {
	key := pairKey{category, component}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.loggers[key]; ok {
		return l
	}

	logger := &Logger{
		category:  category,
		component: component,
		level:     r.cfg.LevelFor(category),
	}
	out, err := newWriter(r.cfg, category, component, r.log, r.stats)
	if err != nil {
		r.log.Warn("trace emitter unavailable, records will be discarded",
			diag.String("category", category),
			diag.String("component", component),
			diag.Error(err))
		out = discardWriter(r.cfg, category, component, r.log, r.stats)
	}
	logger.out = out
	r.loggers[key] = logger
	return logger
}

// Metrics exposes the pipeline's own instrumentation.
func (r *Registry) Metrics() *metrics.Pipeline {
	return r.stats
}

// Close flushes every writer best-effort within the grace period and
// releases file handles. The first flush failure is reported; teardown
// continues regardless.
func (r *Registry) Close(grace time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	deadline := time.Now().Add(grace)
	var first error
	for _, l := range r.loggers {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if err := l.out.close(remaining); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// discardWriter builds a closed writer so emits degrade to counted drops.
func discardWriter(cfg *config.Config, category, component string, log *diag.Logger, stats *metrics.Pipeline) *writer {
	w := &writer{
		category:  category,
		component: component,
		cfg:       cfg,
		log:       log,
		stats:     stats,
	}
	w.closed.Store(true)
	return w
}

var (
	defaultMu       sync.Mutex
	defaultRegistry *Registry
)

// Default returns the process-wide registry over the process-wide
// configuration, creating it on first use.
func Default() *Registry {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegistry == nil {
		defaultRegistry = NewRegistry(config.Current(), diag.Default())
	}
	return defaultRegistry
}

// Get returns an emitter from the process-wide registry.
func Get(category, component string) *Logger {
	return Default().Get(category, component)
}

// Shutdown flushes the process-wide registry best-effort.
func Shutdown(grace time.Duration) error {
	defaultMu.Lock()
	r := defaultRegistry
	defaultMu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close(grace)
}
