// Package sched queues test tasks and runs them on one worker per test unit.
package sched

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/eas-attest/attest/internal/testunit"
)

// DefaultPriority is the priority of tasks that do not set one.
const DefaultPriority = 100

// RunFunc is the body of a task, executed on the unit that dequeued it.
type RunFunc func(ctx context.Context, u *testunit.Unit) error

// Task is a unit of schedulable work. Lower priorities run first. A task
// bound to Unit only runs there; otherwise a task with Tag only runs on units
// carrying it.
type Task struct {
	Name     string
	Priority int
	Unit     *testunit.Unit
	Tag      testunit.Tag
	Run      RunFunc

	OnDone  func(t *Task, u *testunit.Unit)
	OnError func(t *Task, u *testunit.Unit, err error)

	mu        sync.Mutex
	scheduled time.Time
	started   time.Time
	finished  time.Time
}

// NewTask creates a task with the default priority.
func NewTask(name string, run RunFunc) *Task {
	return &Task{Name: name, Priority: DefaultPriority, Run: run}
}

// Accepts reports whether u satisfies the task's affinity.
func (t *Task) Accepts(u *testunit.Unit) bool {
	switch {
	case t.Unit != nil:
		return t.Unit == u
	case t.Tag != "":
		return u.HasTag(t.Tag)
	default:
		return true
	}
}

// RunSafe executes the task on u. Errors and panics of the body are passed
// to OnError. A panicking callback is recovered and its panic returned as an
// error. Nothing escapes.
func (t *Task) RunSafe(ctx context.Context, u *testunit.Unit) (err error) {
	t.mu.Lock()
	t.started = time.Now()
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v\n%s", t.Name, r, debug.Stack())
		}
		t.mu.Lock()
		t.finished = time.Now()
		t.mu.Unlock()

		if err != nil {
			if t.OnError != nil {
				runErr := err
				if cbErr := t.callback("OnError", func() { t.OnError(t, u, runErr) }); cbErr != nil {
					err = errors.Join(err, cbErr)
				}
			}
			return
		}
		if t.OnDone != nil {
			err = t.callback("OnDone", func() { t.OnDone(t, u) })
		}
	}()

	if t.Run == nil {
		return fmt.Errorf("task %s has nothing to run", t.Name)
	}
	return t.Run(ctx, u)
}

func (t *Task) callback(name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s: %s panicked: %v\n%s", t.Name, name, r, debug.Stack())
		}
	}()
	fn()
	return nil
}

// Affinity describes where the task may run.
func (t *Task) Affinity() string {
	switch {
	case t.Unit != nil:
		return "unit " + t.Unit.Name()
	case t.Tag != "":
		return "tag " + string(t.Tag)
	}
	return "any unit"
}

// Times returns when the task was scheduled, started and finished. Zero
// values mark steps not reached yet.
func (t *Task) Times() (scheduled, started, finished time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scheduled, t.started, t.finished
}

func (t *Task) String() string {
	switch {
	case t.Unit != nil:
		return fmt.Sprintf("%s (prio %d, unit %s)", t.Name, t.Priority, t.Unit.Name())
	case t.Tag != "":
		return fmt.Sprintf("%s (prio %d, tag %s)", t.Name, t.Priority, t.Tag)
	}
	return fmt.Sprintf("%s (prio %d)", t.Name, t.Priority)
}
