// Package analysis runs media analysis jobs against polled segments through
// a bounded-concurrency pipeline.
package analysis

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultMaxConcurrent bounds external tool processes across the whole
// process.
const DefaultMaxConcurrent = 4

// job is one unit of work submitted to the pipeline.
type job struct {
	name string
	fn   func(ctx context.Context) error
	done chan error
}

// Pipeline executes at most maxConcurrent jobs at a time. Excess submissions
// are queued FIFO and started as running jobs finish. Job errors are logged
// and swallowed; they never propagate beyond the job's own future.
type Pipeline struct {
	mu      sync.Mutex
	running int
	queue   []*job

	maxConcurrent int
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// NewPipeline creates a pipeline with the given concurrency bound.
func NewPipeline(maxConcurrent int, logger *slog.Logger) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		maxConcurrent: maxConcurrent,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger.With("component", "analysis_pipeline"),
	}
}

// Submit schedules a job. It never blocks: the job runs immediately if a
// slot is free and is queued otherwise. The returned channel receives the
// job's error (or nil) exactly once when it completes, and is closed without
// a value if the job is discarded at shutdown.
func (p *Pipeline) Submit(name string, fn func(ctx context.Context) error) <-chan error {
	j := &job{name: name, fn: fn, done: make(chan error, 1)}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		close(j.done)
		return j.done
	}

	if p.running < p.maxConcurrent {
		p.running++
		p.wg.Add(1)
		go p.run(j)
	} else {
		p.queue = append(p.queue, j)
	}
	return j.done
}

// run executes a job and then drains the queue.
func (p *Pipeline) run(j *job) {
	defer p.wg.Done()

	for j != nil {
		err := j.fn(p.ctx)
		if err != nil {
			p.logger.Warn("analysis job failed",
				slog.String("job", j.name),
				slog.String("error", err.Error()),
			)
		}
		j.done <- err
		close(j.done)

		p.mu.Lock()
		if len(p.queue) > 0 && p.ctx.Err() == nil {
			j = p.queue[0]
			p.queue = p.queue[1:]
		} else {
			j = nil
			p.running--
		}
		p.mu.Unlock()
	}
}

// Running returns the number of jobs currently executing.
func (p *Pipeline) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// QueueLen returns the number of jobs waiting for a slot.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Shutdown cancels running jobs and discards the pending queue. It returns
// once all running jobs have finished.
func (p *Pipeline) Shutdown() {
	p.cancel()

	p.mu.Lock()
	discarded := p.queue
	p.queue = nil
	p.mu.Unlock()

	for _, j := range discarded {
		close(j.done)
	}
	if len(discarded) > 0 {
		p.logger.Debug("discarded queued jobs at shutdown", slog.Int("count", len(discarded)))
	}

	p.wg.Wait()
}
