package sched

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/eas-attest/attest/internal/testunit"
)

// State is what a worker is doing.
type State int

const (
	StateStarting State = iota
	StateIdle
	StateBusy
	StateUnavailable
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateUnavailable:
		return "unavailable"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

const (
	DefaultUnavailableRetry = 30 * time.Second
	DefaultIdleBackoff      = 500 * time.Millisecond
)

// Worker runs tasks from a scheduler on one test unit.
type Worker struct {
	unit  *testunit.Unit
	sched *Scheduler
	log   *slog.Logger

	UnavailableRetry time.Duration
	IdleBackoff      time.Duration

	mu      sync.Mutex
	state   State
	current *Task
	done    int

	stop     chan struct{}
	finished chan struct{}
	once     sync.Once
}

// NewWorker creates a worker for u.
func NewWorker(u *testunit.Unit, s *Scheduler, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		unit:             u,
		sched:            s,
		log:              log.With("component", "worker", "worker", u.Name()),
		UnavailableRetry: DefaultUnavailableRetry,
		IdleBackoff:      DefaultIdleBackoff,
		stop:             make(chan struct{}),
		finished:         make(chan struct{}),
	}
}

// Unit returns the worker's test unit.
func (w *Worker) Unit() *testunit.Unit { return w.unit }

// State returns the worker's state, the task it runs and how many tasks it
// has completed.
func (w *Worker) State() (State, *Task, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.current, w.done
}

func (w *Worker) setState(s State, t *Task) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if s == StateIdle && w.state == StateBusy {
		w.done++
	}
	w.state = s
	w.current = t
}

// Start runs the worker loop in a new goroutine.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop asks the loop to exit once the current task is finished and waits
// for it. Stop must only be called after Start.
func (w *Worker) Stop() {
	w.once.Do(func() { close(w.stop) })
	<-w.finished
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.finished)
	defer w.setState(StateStopped, nil)
	w.log.Debug("Worker started")

	for {
		select {
		case <-w.stop:
			w.log.Debug("Worker stopped")
			return
		case <-ctx.Done():
			return
		default:
		}

		w.step(ctx)
	}
}

// step runs one iteration of the loop. A panic outside the task body is
// logged and the loop carries on after a backoff.
func (w *Worker) step(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Worker iteration panicked", "panic", r, "stack", string(debug.Stack()))
			w.setState(StateIdle, nil)
			w.sleep(ctx, w.IdleBackoff)
		}
	}()

	if !w.unit.Available(ctx) {
		w.setState(StateUnavailable, nil)
		w.log.Debug("Unit not available, waiting", "retry", w.UnavailableRetry)
		w.sleep(ctx, w.UnavailableRetry)
		return
	}

	t := w.sched.Next(w.unit)
	if t == nil {
		w.setState(StateIdle, nil)
		w.sleep(ctx, w.IdleBackoff)
		return
	}

	w.setState(StateBusy, t)
	w.log.Info("Running task", "task", t.Name, "priority", t.Priority)
	if err := t.RunSafe(ctx, w.unit); err != nil {
		w.log.Error("Task failed", "task", t.Name, "error", err)
	}
	w.setState(StateIdle, nil)
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.stop:
	case <-ctx.Done():
	}
}

// Pool is the set of workers of one discovery run.
type Pool struct {
	Workers []*Worker
}

// NewPool creates one worker per unit. Non-zero durations override the
// worker defaults.
func NewPool(units []*testunit.Unit, s *Scheduler, unavailableRetry, idleBackoff time.Duration, log *slog.Logger) *Pool {
	p := &Pool{}
	for _, u := range units {
		w := NewWorker(u, s, log)
		if unavailableRetry > 0 {
			w.UnavailableRetry = unavailableRetry
		}
		if idleBackoff > 0 {
			w.IdleBackoff = idleBackoff
		}
		p.Workers = append(p.Workers, w)
	}
	return p
}

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.Workers {
		w.Start(ctx)
	}
}

// Stop stops all workers and waits for them.
func (p *Pool) Stop() {
	var wg sync.WaitGroup
	for _, w := range p.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Stop()
		}()
	}
	wg.Wait()
}
