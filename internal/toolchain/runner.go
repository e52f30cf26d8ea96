package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned by a Runner when the command did not finish in time.
var ErrTimeout = errors.New("command timed out")

// Result is the outcome of an external command.
type Result struct {
	ExitCode int
	Output   string
	Stderr   string
	Duration time.Duration
}

// Runner executes external commands. A non-zero exit code is not an error;
// errors mean the command could not run or hit its timeout.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, input string, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Env replaces the process environment when non-nil.
	Env []string
	Dir string
}

// Run executes name with args, feeding input on stdin when non-empty.
func (r ExecRunner) Run(ctx context.Context, timeout time.Duration, input string, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	if r.Env != nil {
		cmd.Env = r.Env
	}
	if r.Dir != "" {
		cmd.Dir = r.Dir
	}
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Output:   strings.TrimRight(stdout.String(), "\n"),
		Stderr:   strings.TrimRight(stderr.String(), "\n"),
		Duration: time.Since(start),
	}
	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("%s: %w", name, ErrTimeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// EnvWithToolDir returns a copy of the current environment with dir
// prepended to PATH and LD_LIBRARY_PATH, so a vendor tool finds its
// binaries and shared libraries.
func EnvWithToolDir(dir string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env)+2)
	pathSet, libSet := false, false

	for _, e := range env {
		switch {
		case strings.HasPrefix(e, "PATH="):
			result = append(result, "PATH="+dir+string(os.PathListSeparator)+e[5:])
			pathSet = true
		case strings.HasPrefix(e, "LD_LIBRARY_PATH="):
			result = append(result, "LD_LIBRARY_PATH="+dir+string(os.PathListSeparator)+e[16:])
			libSet = true
		default:
			result = append(result, e)
		}
	}

	if !pathSet {
		result = append(result, "PATH="+dir)
	}
	if !libSet {
		result = append(result, "LD_LIBRARY_PATH="+dir)
	}
	return result
}
