package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/dictado/internal/dispatch"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
)

// defaultBackoffSchedule is the fixed delay before the second and third
// attempts. Not exponential; the last entry repeats if attempts exceed
// the schedule.
var defaultBackoffSchedule = []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}

var ErrDispatcherClosed = errors.New("dispatcher is closed")
var ErrQueueFull = errors.New("dispatch queue is full")

type PoolConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	// Backoff overrides the retry delay schedule; tests shrink it.
	Backoff []time.Duration
}

// WorkerPool runs tasks on a fixed set of goroutines with the retry
// policy attached to each task as plain data.
type WorkerPool struct {
	queue       chan dispatch.Task
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool
	maxAttempts int
	backoff     []time.Duration
}

func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if len(cfg.Backoff) == 0 {
		cfg.Backoff = defaultBackoffSchedule
	}
	p := &WorkerPool{
		queue:       make(chan dispatch.Task, cfg.QueueSize),
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) Enqueue(task dispatch.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrDispatcherClosed
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for in-flight work to finish.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.runWithRetry(task)
	}
}

func (p *WorkerPool) runWithRetry(task dispatch.Task) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := p.retryDelay(attempt)
			slog.Warn("retrying task", "task", task.Name, "attempt", attempt, "delay", delay, "error", lastErr)
			time.Sleep(delay)
		}
		err := task.Run(context.Background())
		if err == nil {
			if attempt > 1 {
				slog.Info("task succeeded after retry", "task", task.Name, "attempt", attempt)
			}
			return
		}
		lastErr = err
	}
	slog.Error("task failed permanently", "task", task.Name, "attempts", p.maxAttempts, "error", lastErr)
	if task.OnPermanentFailure != nil {
		task.OnPermanentFailure(lastErr)
	}
}

// retryDelay returns the delay before the given attempt (attempt >= 2).
func (p *WorkerPool) retryDelay(attempt int) time.Duration {
	idx := attempt - 2
	if idx >= len(p.backoff) {
		idx = len(p.backoff) - 1
	}
	return p.backoff[idx]
}

var _ dispatch.Dispatcher = (*WorkerPool)(nil)
