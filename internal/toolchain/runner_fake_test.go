package toolchain

import (
	"context"
	"sync"
	"time"

	"github.com/eas-attest/attest/internal/device"
)

type runCall struct {
	name    string
	args    []string
	input   string
	timeout time.Duration
}

type runReply struct {
	res Result
	err error
}

// fakeRunner records calls and answers them from a queue of replies. When
// the queue is empty it succeeds with an empty result.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []runCall
	replies []runReply
	hook    func(name string, args []string)
}

func (f *fakeRunner) Run(_ context.Context, timeout time.Duration, input string, name string, args ...string) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := append([]string(nil), args...)
	f.calls = append(f.calls, runCall{name: name, args: copied, input: input, timeout: timeout})
	if f.hook != nil {
		f.hook(name, copied)
	}
	if len(f.replies) == 0 {
		return Result{}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.res, r.err
}

type countingRegistry struct {
	flashes int
}

func (c *countingRegistry) IncrementFlashCounter(_ context.Context, b *device.Board) (int, error) {
	c.flashes++
	return b.IncrementFlashCounter(), nil
}
