package jobs

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/store"
	"github.com/eas-attest/attest/internal/testunit"
	"github.com/eas-attest/attest/internal/toolchain"
)

// Compare reports whether output satisfies a compare job. With Begin set,
// everything before the first Begin is ignored and a missing Begin fails.
func Compare(job *Job, output string) bool {
	if job.Begin != "" {
		i := strings.Index(output, job.Begin)
		if i < 0 {
			return false
		}
		output = output[i:]
	}
	if job.Reject != "" && strings.Contains(output, job.Reject) {
		return false
	}
	return strings.Contains(output, job.Expect)
}

// meanStd returns the mean and population standard deviation of values.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		std += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

// build compiles the job firmware. A failed build is a test failure, so it
// is reported through res and never returned.
func (r *Runner) build(ctx context.Context, job *Job, res *Result) bool {
	if _, err := r.deps.Toolchain.Build(ctx, job.Dir, job.BuildArgs...); err != nil {
		res.Error = err.Error()
		var be *toolchain.BuildError
		if errors.As(err, &be) {
			res.Output = be.Stderr
		}
		r.log.Warn("Build failed", "job", job.Name, "error", err)
		return false
	}
	return true
}

// flash programs the job firmware. FlashError is a test failure; any other
// error points at the board and is returned.
func (r *Runner) flash(ctx context.Context, job *Job, u *testunit.Unit, res *Result) (bool, error) {
	start := time.Now()
	file := job.FirmwarePath()
	out, err := r.deps.Toolchain.Flash(ctx, u.Board, file)
	r.recordFlash(u, file, start, err == nil)

	var fe *toolchain.FlashError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &fe):
		res.Error = err.Error()
		res.Output = out
		r.log.Warn("Flashing failed", "job", job.Name, "board", u.Board.SerialNumber, "error", err)
		return false, nil
	default:
		return false, err
	}
}

func (r *Runner) recordFlash(u *testunit.Unit, file string, start time.Time, ok bool) {
	if r.deps.Store == nil {
		return
	}
	err := r.deps.Store.AddFlash(store.FlashRecord{
		Board:     u.Board.SerialNumber,
		File:      file,
		Timestamp: start,
		Success:   ok,
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	})
	if err != nil {
		r.log.Warn("Failed to record flash", "board", u.Board.SerialNumber, "error", err)
	}
}

func (r *Runner) runCompare(ctx context.Context, job *Job, u *testunit.Unit, res *Result) error {
	if !r.build(ctx, job, res) {
		return nil
	}

	mon := r.deps.NewMonitor()
	if err := mon.Connect(u.Board.UARTPort(), r.opts.UARTBaudRate); err != nil {
		return fmt.Errorf("failed to open UART of %s: %w", u.Board.SerialNumber, err)
	}
	defer mon.Disconnect()

	ok, err := r.flash(ctx, job, u, res)
	if err != nil || !ok {
		return err
	}

	timer := time.NewTimer(job.Runtime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	res.Output = mon.Output()
	if !utf8.ValidString(res.Output) {
		res.Error = "output is not valid UTF-8"
		return nil
	}
	res.Passed = Compare(job, res.Output)
	return nil
}

func (r *Runner) runTiming(ctx context.Context, job *Job, u *testunit.Unit, res *Result) error {
	if u.Instrument == nil {
		return fmt.Errorf("timing job %s on unit %s without instrument", job.Name, u.Name())
	}
	if !r.build(ctx, job, res) {
		return nil
	}
	if ok, err := r.flash(ctx, job, u, res); err != nil || !ok {
		return err
	}

	m := instrument.NewMeasurer(r.deps.Driver, r.deps.Locks, u.Instrument, r.opts.TimingChannel, r.log)
	if r.opts.LogicLevel != 0 {
		m.LogicLevel = r.opts.LogicLevel
	}
	if r.opts.MeasureBufferLen > 0 {
		m.BufferLen = r.opts.MeasureBufferLen
	}
	if r.opts.MeasurePoll > 0 {
		m.PollInterval = r.opts.MeasurePoll
	}
	arm := func(ctx context.Context) error { return r.deps.Toolchain.PowerUp(ctx, u.Board) }

	runs := max(r.opts.TimingRuns, 1)
	for attempt := 0; attempt <= r.opts.TimingRetries; attempt++ {
		values := make([]float64, 0, runs)
		for i := 0; i < runs; i++ {
			if err := r.deps.Toolchain.PowerDown(ctx, u.Board); err != nil {
				return err
			}
			us, err := m.Measure(ctx, arm)
			var ie *instrument.Error
			switch {
			case err == nil:
				values = append(values, us)
			case errors.Is(err, instrument.ErrTimeout), errors.As(err, &ie):
				r.log.Warn("Timing measurement failed", "job", job.Name, "unit", u.Name(), "error", err)
			default:
				return err
			}
		}
		if len(values) == 0 {
			continue
		}

		mean, std := meanStd(values)
		if std > r.opts.MaxStdDevUs {
			r.log.Warn("Timing measurements vary too much", "job", job.Name, "std_us", std, "retry", attempt+1)
			continue
		}
		res.Value = mean
		res.Passed = job.MaxUs == 0 || mean <= job.MaxUs
		return nil
	}

	res.Error = "no stable timing measurement"
	return nil
}
