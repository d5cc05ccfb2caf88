// Package scheduler runs delayed and periodic background tasks that can be
// cancelled when the state that justified them goes away.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type task struct {
	ctx    context.Context
	cancel context.CancelFunc
}

type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*task
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New() *Scheduler {
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:  make(map[string]*task),
		base:   base,
		cancel: cancel,
	}
}

// After runs fn once after the delay. Scheduling the same id again replaces
// the pending task.
func (s *Scheduler) After(id string, delay time.Duration, fn func(ctx context.Context)) {
	ctx := s.register(id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(id, ctx)

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fn(ctx)
		}
	}()
}

// Every runs fn at the given interval until cancelled.
func (s *Scheduler) Every(id string, interval time.Duration, fn func(ctx context.Context)) {
	ctx := s.register(id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.unregister(id, ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Cancel stops a pending or periodic task. Returns false when no task with
// that id is scheduled.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.tasks, id)
	logrus.WithField("task", id).Debug("scheduled task cancelled")
	return true
}

// Stop cancels everything and waits for running callbacks to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.mu.Lock()
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) register(id string) context.Context {
	ctx, cancel := context.WithCancel(s.base)

	s.mu.Lock()
	if prev, ok := s.tasks[id]; ok {
		prev.cancel()
	}
	s.tasks[id] = &task{ctx: ctx, cancel: cancel}
	s.mu.Unlock()

	return ctx
}

func (s *Scheduler) unregister(id string, ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A replacement may have re-registered the id; only clear our own entry.
	if t, ok := s.tasks[id]; ok && t.ctx == ctx {
		t.cancel()
		delete(s.tasks, id)
	}
}
