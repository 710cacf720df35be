// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// A very small worker pool for fire-and-forget side effects (owner
// notifications). Tasks never block the request that submitted them.

type Task func(ctx context.Context) error

var ErrQueueFull = errors.New("worker queue full")

type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger
	once sync.Once
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: logger}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					p.drain(ctx, id)
					return
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

// drain runs whatever is still queued so accepted notifications are not lost on shutdown.
func (p *Pool) drain(ctx context.Context, id int) {
	for {
		select {
		case task := <-p.jobs:
			p.run(ctx, id, task)
		default:
			return
		}
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Err(err).Int("worker", id).Msg("worker task error")
	}
}

// Stop finishes queued tasks and waits for workers to exit. Safe to call twice.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.quit) })
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated to avoid back-pressure on the request path
		return ErrQueueFull
	}
}
