package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/emitter"
	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/sched"
	"github.com/eas-attest/attest/internal/store"
	"github.com/eas-attest/attest/internal/testunit"
)

// Toolchain builds, flashes and powers boards.
type Toolchain interface {
	Build(ctx context.Context, dir string, args ...string) (string, error)
	Flash(ctx context.Context, b *device.Board, file string) (string, error)
	PowerDown(ctx context.Context, b *device.Board) error
	PowerUp(ctx context.Context, b *device.Board) error
}

// Monitor records a board's UART output.
type Monitor interface {
	Connect(port string, baudRate int) error
	Disconnect()
	Output() string
}

// BoardSaver persists board state.
type BoardSaver interface {
	SaveBoard(ctx context.Context, b *device.Board) error
}

// Deps are the collaborators of a Runner. Store, Emitter and Registry may
// be nil.
type Deps struct {
	Toolchain  Toolchain
	NewMonitor func() Monitor
	Driver     instrument.Driver
	Locks      *instrument.LockSet
	Scheduler  *sched.Scheduler
	Registry   BoardSaver
	Store      *store.Store
	Emitter    emitter.Emitter
}

// Options tunes job execution.
type Options struct {
	UARTBaudRate  int
	TimingChannel int
	// TimingRuns measurements are averaged; a spread above MaxStdDevUs
	// repeats them, at most TimingRetries times.
	TimingRuns    int
	TimingRetries int
	MaxStdDevUs   float64
	// Retries bounds the executions of a job that keeps failing.
	Retries       int
	RetryPriority int

	// Zero values keep the measurer defaults.
	LogicLevel       int16
	MeasureBufferLen int
	MeasurePoll      time.Duration
}

// DefaultOptions returns the standard execution parameters.
func DefaultOptions() Options {
	return Options{
		UARTBaudRate:  9600,
		TimingRuns:    1,
		TimingRetries: 2,
		MaxStdDevUs:   2,
		Retries:       3,
		RetryPriority: 9,
	}
}

// Result is the final outcome of a job.
type Result struct {
	Job        string
	Kind       Kind
	Unit       string
	Board      string
	Instrument string
	Passed     bool
	Value      float64
	Output     string
	Error      string
	Attempts   int
	Duration   time.Duration
	QueueTime  time.Duration
}

// jobState follows one job across reschedules.
type jobState struct {
	job      Job
	attempts int
	last     Result
}

// Runner schedules jobs and collects their results.
type Runner struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	results []Result
	pending int
	idle    chan struct{}
}

// NewRunner creates a runner.
func NewRunner(deps Deps, opts Options, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if deps.Emitter == nil {
		deps.Emitter = emitter.Noop{}
	}
	idle := make(chan struct{})
	close(idle)
	return &Runner{
		deps: deps,
		opts: opts,
		log:  log.With("component", "jobs"),
		idle: idle,
	}
}

func findUnit(units []*testunit.Unit, ref string) *testunit.Unit {
	for _, u := range units {
		if u.Board.SerialNumber == ref || u.Board.Name == ref {
			return u
		}
	}
	return nil
}

func anyTagged(units []*testunit.Unit, tag testunit.Tag) bool {
	if tag == "" {
		return len(units) > 0
	}
	for _, u := range units {
		if u.HasTag(tag) {
			return true
		}
	}
	return false
}

// Schedule enqueues one task per job. Every job must have a unit among
// units that can run it: the unit it names by board serial number or name,
// or any unit carrying its tag. Nothing is enqueued on error.
func (r *Runner) Schedule(jobs []Job, units []*testunit.Unit) error {
	tasks := make([]*sched.Task, 0, len(jobs))
	for _, job := range jobs {
		st := &jobState{job: job}
		t := sched.NewTask(job.Name, func(ctx context.Context, u *testunit.Unit) error {
			return r.execute(ctx, st, u)
		})
		t.Priority = job.Priority
		t.Tag = testunit.Tag(job.Tag)
		if job.Kind == KindTiming && t.Tag == "" {
			t.Tag = testunit.TagScope
		}
		if job.Unit != "" {
			if t.Unit = findUnit(units, job.Unit); t.Unit == nil {
				return fmt.Errorf("job %s: no unit %s", job.Name, job.Unit)
			}
			if job.Kind == KindTiming && !t.Unit.HasScope() {
				return fmt.Errorf("job %s: unit %s has no instrument", job.Name, job.Unit)
			}
		} else if !anyTagged(units, t.Tag) {
			return fmt.Errorf("job %s: no unit with tag %s", job.Name, t.Tag)
		}
		t.OnDone = func(t *sched.Task, u *testunit.Unit) { r.done(st, t) }
		t.OnError = func(t *sched.Task, u *testunit.Unit, err error) { r.failed(st, t, u, err) }
		tasks = append(tasks, t)
	}

	r.mu.Lock()
	if r.pending == 0 {
		r.idle = make(chan struct{})
	}
	r.pending += len(tasks)
	r.mu.Unlock()

	for _, t := range tasks {
		n := r.deps.Scheduler.Schedule(t)
		r.log.Debug("Task scheduled", "task", t.String(), "queue", n)
	}
	return nil
}

// Wait blocks until every scheduled job has a final result and returns all
// results so far.
func (r *Runner) Wait(ctx context.Context) ([]Result, error) {
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()

	select {
	case <-idle:
	case <-ctx.Done():
		return r.Results(), ctx.Err()
	}
	return r.Results(), nil
}

// Results returns the final results recorded so far.
func (r *Runner) Results() []Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...)
}

// Pending returns the number of jobs without a final result.
func (r *Runner) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

func (r *Runner) finish(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	r.pending--
	if r.pending == 0 {
		close(r.idle)
	}
}

func (r *Runner) execute(ctx context.Context, st *jobState, u *testunit.Unit) error {
	res := Result{
		Job:   st.job.Name,
		Kind:  st.job.Kind,
		Unit:  u.Name(),
		Board: u.Board.SerialNumber,
	}
	if u.Instrument != nil {
		res.Instrument = u.Instrument.SerialNumber
	}
	st.last = res
	r.emit(emitter.Event{Type: emitter.TypeTaskStarted, Job: res.Job, Unit: res.Unit, Board: res.Board, Instrument: res.Instrument})

	var err error
	switch st.job.Kind {
	case KindTiming:
		err = r.runTiming(ctx, &st.job, u, &res)
	default:
		err = r.runCompare(ctx, &st.job, u, &res)
	}
	st.last = res
	return err
}

func (r *Runner) timed(st *jobState, t *sched.Task) Result {
	res := st.last
	res.Attempts = st.attempts + 1
	scheduled, started, finished := t.Times()
	res.Duration = finished.Sub(started)
	res.QueueTime = started.Sub(scheduled)
	return res
}

func (r *Runner) done(st *jobState, t *sched.Task) {
	res := r.timed(st, t)
	r.log.Info("Job finished", "job", res.Job, "unit", res.Unit, "passed", res.Passed, "value", res.Value, "took", res.Duration.Round(time.Millisecond))
	r.record(res)
	r.emit(emitter.Event{
		Type: emitter.TypeTaskDone, Job: res.Job, Unit: res.Unit, Board: res.Board, Instrument: res.Instrument,
		Success: res.Passed, Result: res.Value, Error: res.Error, Queue: r.deps.Scheduler.Len(),
	})
	r.finish(res)
}

// failed handles a job that could not be executed. The board is marked
// defective and the job is rescheduled until it runs out of retries.
func (r *Runner) failed(st *jobState, t *sched.Task, u *testunit.Unit, err error) {
	res := r.timed(st, t)
	res.Error = err.Error()
	st.attempts++
	if errors.Is(err, context.Canceled) {
		r.log.Info("Job cancelled", "job", res.Job, "unit", res.Unit)
		r.finish(res)
		return
	}

	u.Board.SetDefective(true)
	if r.deps.Registry != nil {
		if err := r.deps.Registry.SaveBoard(context.Background(), u.Board); err != nil {
			r.log.Warn("Failed to save board", "board", u.Board.SerialNumber, "error", err)
		}
	}
	r.record(res)
	r.emit(emitter.Event{Type: emitter.TypeTaskFailed, Job: res.Job, Unit: res.Unit, Board: res.Board, Error: res.Error})

	if st.attempts < r.opts.Retries {
		t.Priority = r.opts.RetryPriority
		r.log.Error("Job failed, rescheduling", "job", res.Job, "unit", res.Unit, "attempt", st.attempts, "error", err)
		r.deps.Scheduler.Schedule(t)
		return
	}
	r.log.Error("Job failed, giving up", "job", res.Job, "unit", res.Unit, "attempts", st.attempts, "error", err)
	r.finish(res)
}

func (r *Runner) record(res Result) {
	if r.deps.Store == nil {
		return
	}
	err := r.deps.Store.AddTask(store.TaskRecord{
		Job:        res.Job,
		Kind:       string(res.Kind),
		Unit:       res.Unit,
		Board:      res.Board,
		Instrument: res.Instrument,
		Timestamp:  time.Now(),
		Attempt:    res.Attempts,
		Success:    res.Passed,
		Duration:   res.Duration.Round(time.Millisecond).String(),
		QueueTime:  res.QueueTime.Round(time.Millisecond).String(),
		Result:     res.Value,
		Output:     res.Output,
		Error:      res.Error,
	})
	if err != nil {
		r.log.Warn("Failed to record task", "job", res.Job, "error", err)
	}
}

func (r *Runner) emit(ev emitter.Event) {
	if err := r.deps.Emitter.Emit(ev); err != nil {
		r.log.Debug("Failed to emit event", "type", ev.Type, "error", err)
	}
}
