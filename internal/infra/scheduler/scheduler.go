package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one periodic unit of work. Run returns how many items it handled.
type Job interface {
	Run(ctx context.Context) (int, error)
}

// Scheduler periodically runs a Job with a bounded per-run timeout.
type Scheduler struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	job      Job
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler runs job every interval. If interval <= 0 it defaults to 1 minute.
func NewScheduler(name string, interval time.Duration, job Job, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := 30 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Scheduler{name: name, interval: interval, timeout: timeout, job: job, log: logger}
}

// Start begins the loop in a background goroutine. Calling Start twice has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	s.log.Info().Str("job", s.name).Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.job.Run(runCtx)
	if err != nil {
		s.log.Error().Err(err).Str("job", s.name).Msg("scheduled job failed")
		return
	}
	if n > 0 {
		s.log.Info().Str("job", s.name).Int("items", n).Msg("scheduled job done")
	}
}

// Stop cancels the loop and waits for it to finish. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Str("job", s.name).Msg("scheduler stopped")
}
