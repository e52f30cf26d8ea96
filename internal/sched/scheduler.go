package sched

import (
	"sync"
	"time"

	"github.com/eas-attest/attest/internal/testunit"
)

// Scheduler is a priority queue of tasks, FIFO among equal priorities.
type Scheduler struct {
	mu    sync.Mutex
	queue []*Task
}

// New creates an empty scheduler.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule enqueues t behind every task of equal or lower priority value and
// returns the new queue length.
func (s *Scheduler) Schedule(t *Task) int {
	t.mu.Lock()
	t.scheduled = time.Now()
	t.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	i := len(s.queue)
	for j, q := range s.queue {
		if q.Priority > t.Priority {
			i = j
			break
		}
	}
	s.queue = append(s.queue, nil)
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = t
	return len(s.queue)
}

// Next removes and returns the first task u can run, or nil.
func (s *Scheduler) Next(u *testunit.Unit) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.queue {
		if t.Accepts(u) {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return t
		}
	}
	return nil
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// QueuedTask is a copy of a queued task's state, taken under the queue lock.
type QueuedTask struct {
	Name     string
	Priority int
	Affinity string
}

// Snapshot returns the queued tasks in dequeue order.
func (s *Scheduler) Snapshot() []QueuedTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]QueuedTask, len(s.queue))
	for i, t := range s.queue {
		out[i] = QueuedTask{Name: t.Name, Priority: t.Priority, Affinity: t.Affinity()}
	}
	return out
}

// ResetPriorities sets every queued task to priority p, keeping their order.
func (s *Scheduler) ResetPriorities(p int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.queue {
		t.Priority = p
	}
}
