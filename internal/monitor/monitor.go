package monitor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/streampulse/internal/observability"
	"github.com/jmylchreest/streampulse/internal/repository"
)

// DefaultPollInterval is the fixed delay between the end of one sweep and
// the start of the next.
const DefaultPollInterval = 7 * time.Second

// Monitor runs the polling loop: load all stream records, evaluate them
// sequentially, then wait the poll interval before the next sweep. Sweeps
// never overlap.
type Monitor struct {
	evaluator    *Evaluator
	streams      repository.StreamRepository
	pollInterval time.Duration
	logger       *slog.Logger

	sweeping  atomic.Bool
	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewMonitor creates a monitor with the given poll interval.
func NewMonitor(
	evaluator *Evaluator,
	streams repository.StreamRepository,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Monitor {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		evaluator:    evaluator,
		streams:      streams,
		pollInterval: pollInterval,
		logger:       logger.With("component", "monitor"),
		done:         make(chan struct{}),
	}
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or the parent context is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, m.cancel = context.WithCancel(ctx)
		go m.loop(ctx)
	})
}

// Stop cancels the loop and waits for the in-flight sweep to finish.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		if m.cancel != nil {
			m.cancel()
		}
		<-m.done
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.logger.Info("monitor started", slog.Duration("poll_interval", m.pollInterval))

	for {
		m.Sweep(ctx)

		// Fixed delay after completion, not fixed rate. Slow sweeps push the
		// next one out instead of stacking up.
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return
		case <-time.After(m.pollInterval):
		}
	}
}

// Sweep polls every stream once, sequentially. A concurrent call is a no-op
// while a sweep is in flight. Panics from a sweep are logged, not fatal.
func (m *Monitor) Sweep(ctx context.Context) {
	if !m.sweeping.CompareAndSwap(false, true) {
		m.logger.Debug("sweep already in flight, skipping")
		return
	}
	defer m.sweeping.Store(false)
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("sweep panicked", slog.Any("panic", r))
		}
	}()
	defer observability.TimedOperation(ctx, m.logger, "sweep")()

	streams, err := m.streams.GetAll(ctx)
	if err != nil {
		m.logger.Error("loading streams failed", slog.String("error", err.Error()))
		return
	}

	for _, stream := range streams {
		if ctx.Err() != nil {
			return
		}
		m.evaluator.EvaluateStream(ctx, stream)
	}

	m.logger.Debug("sweep complete", slog.Int("streams", len(streams)))
}
