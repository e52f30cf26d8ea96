// Package toolchain builds firmware with make and programs boards with the
// vendor flasher.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/eas-attest/attest/internal/device"
)

// fwMismatch is printed by the flasher when the debug probe wants a
// firmware update and waits for confirmation.
const fwMismatch = "Warning: FW mismatch!"

// Config configures the external tools.
type Config struct {
	Make           string
	Flasher        string
	Target         string
	BuildTimeout   time.Duration
	FlasherTimeout time.Duration
}

// DefaultConfig returns the settings for MSP430 launchpads.
func DefaultConfig() Config {
	return Config{
		Make:           "make",
		Flasher:        "MSP430Flasher",
		Target:         "msp430f5529",
		BuildTimeout:   10 * time.Second,
		FlasherTimeout: 30 * time.Second,
	}
}

// FlashCounter records successful flashes of a board.
type FlashCounter interface {
	IncrementFlashCounter(ctx context.Context, b *device.Board) (int, error)
}

// Toolchain runs builds and flashes.
type Toolchain struct {
	run     Runner
	cfg     Config
	counter FlashCounter
	log     *slog.Logger
}

// New creates a toolchain. counter may be nil.
func New(run Runner, cfg Config, counter FlashCounter, log *slog.Logger) *Toolchain {
	if log == nil {
		log = slog.Default()
	}
	return &Toolchain{run: run, cfg: cfg, counter: counter, log: log.With("component", "toolchain")}
}

// Config returns the tool settings.
func (t *Toolchain) Config() Config { return t.cfg }

// Build runs make in dir with the given arguments and returns its output.
func (t *Toolchain) Build(ctx context.Context, dir string, args ...string) (string, error) {
	argv := append([]string{"-C", dir}, args...)
	t.log.Debug("Build", "dir", dir, "args", args)
	res, err := t.run.Run(ctx, t.cfg.BuildTimeout, "", t.cfg.Make, argv...)
	if err != nil {
		return res.Output, &BuildError{Dir: dir, ExitCode: -1, Output: res.Output, Stderr: err.Error()}
	}
	if res.ExitCode != 0 {
		return res.Output, &BuildError{Dir: dir, ExitCode: res.ExitCode, Output: res.Output, Stderr: res.Stderr}
	}
	return res.Output, nil
}

func debugPortName(b *device.Board) (string, error) {
	port := b.DebugPort()
	if port == "" {
		return "", &ConnectionError{Board: b.String(), Msg: "no debug port set"}
	}
	return filepath.Base(port), nil
}

// Flash programs file onto b and increments its flash counter. When the
// flasher hangs it is run once more answering "N" to detect an outdated
// probe firmware.
func (t *Toolchain) Flash(ctx context.Context, b *device.Board, file string) (string, error) {
	port, err := debugPortName(b)
	if err != nil {
		return "", err
	}

	args := []string{"-g", "-w", file, "-n", t.cfg.Target, "-i", port, "-z", "[VCC]"}
	t.log.Debug("Flash", "board", b.SerialNumber, "file", file)
	res, err := t.run.Run(ctx, t.cfg.FlasherTimeout, "", t.cfg.Flasher, args...)
	if err == nil {
		if res.ExitCode != 0 {
			return res.Output, &FlashError{Board: b.String(), ExitCode: res.ExitCode, Output: res.Output, Stderr: res.Stderr}
		}
		t.countFlash(ctx, b)
		return res.Output, nil
	}
	if !errors.Is(err, ErrTimeout) {
		return res.Output, &ConnectionError{Board: b.String(), Msg: "flasher failed to run", Err: err}
	}

	msg := fmt.Sprintf("flashing timed out, %s is stuck and does not respond", t.cfg.Flasher)
	res, err = t.run.Run(ctx, 10*time.Second, "N", t.cfg.Flasher, args...)
	if err == nil && res.ExitCode == 0 && strings.Contains(res.Output, fwMismatch) {
		return res.Output, &FirmwareError{Board: b.String(), Port: port}
	}
	return res.Output, &ConnectionError{Board: b.String(), Msg: msg, Err: ErrTimeout}
}

func (t *Toolchain) countFlash(ctx context.Context, b *device.Board) {
	if t.counter == nil {
		b.IncrementFlashCounter()
		return
	}
	if _, err := t.counter.IncrementFlashCounter(ctx, b); err != nil {
		t.log.Warn("Failed to record flash", "board", b.SerialNumber, "error", err)
	}
}

// Identify checks that the flasher can reach b over its debug port.
func (t *Toolchain) Identify(ctx context.Context, b *device.Board) error {
	port, err := debugPortName(b)
	if err != nil {
		return err
	}
	res, err := t.run.Run(ctx, 10*time.Second, "", t.cfg.Flasher, "-i", port)
	if err != nil {
		return &ConnectionError{Board: b.String(), Msg: "identify failed", Err: err}
	}
	if res.ExitCode != 0 {
		return &ConnectionError{Board: b.String(), Msg: fmt.Sprintf("identify exited with code %d", res.ExitCode)}
	}
	return nil
}

// PowerDown switches off the supply of b without erasing it.
func (t *Toolchain) PowerDown(ctx context.Context, b *device.Board) error {
	return t.power(ctx, b, "[VCC=0]")
}

// PowerUp switches the supply of b back on.
func (t *Toolchain) PowerUp(ctx context.Context, b *device.Board) error {
	return t.power(ctx, b, "[VCC=3000]")
}

func (t *Toolchain) power(ctx context.Context, b *device.Board, vcc string) error {
	port, err := debugPortName(b)
	if err != nil {
		return err
	}
	res, err := t.run.Run(ctx, 30*time.Second, "", t.cfg.Flasher, "-e", "NO_ERASE", "-i", port, "-z", vcc)
	if err != nil {
		return &ConnectionError{Board: b.String(), Msg: "power " + vcc + " failed", Err: err}
	}
	if res.ExitCode != 0 {
		return &ConnectionError{Board: b.String(), Msg: fmt.Sprintf("power %s failed: %s", vcc, res.Stderr)}
	}
	return nil
}
