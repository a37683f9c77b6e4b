// Package workers runs long-poll updates on a bounded set of goroutines.
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/chartbot/core/logger"
)

var (
	// ErrQueueClosed is returned when a job is submitted after Close.
	ErrQueueClosed = errors.New("workers: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("workers: queue full")
)

// Options controls pool size. Zero values get defaults.
type Options struct {
	QueueSize int
	Workers   int
	// MaxDuration bounds a single job through its context.
	MaxDuration time.Duration
}

type job struct {
	ctx  context.Context
	name string
	run  func(ctx context.Context)
}

// Pool executes submitted jobs exactly once; there are no retries.
type Pool struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	done atomic.Uint64
}

// New starts a pool.
func New(opts Options) *Pool {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 60 * time.Second
	}

	p := &Pool{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}
	p.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit queues run. It never blocks: a saturated queue returns ErrQueueFull.
func (p *Pool) Submit(ctx context.Context, name string, run func(ctx context.Context)) error {
	if run == nil {
		return errors.New("workers: nil run function")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.jobs <- job{ctx: ctx, name: name, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Completed returns the number of finished jobs.
func (p *Pool) Completed() uint64 {
	return p.done.Load()
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.handle(j)
	}
}

func (p *Pool) handle(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.MaxDuration)
	defer cancel()
	defer p.done.Add(1)

	start := time.Now()
	j.run(ctx)
	logger.Debug(ctx, "tg.workers", "job.done",
		slog.String("handler", j.name),
		slog.Duration("duration", time.Since(start)),
	)
}
