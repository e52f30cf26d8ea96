package toolchain

import "fmt"

// BuildError reports a failed make invocation.
type BuildError struct {
	Dir      string
	ExitCode int
	Output   string
	Stderr   string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build %s with return code %d", e.Dir, e.ExitCode)
}

// FlashError reports a flasher run that exited with an error.
type FlashError struct {
	Board    string
	ExitCode int
	Output   string
	Stderr   string
}

func (e *FlashError) Error() string {
	return fmt.Sprintf("failed to flash %s with return code %d", e.Board, e.ExitCode)
}

// ConnectionError reports a board that could not be reached over its debug
// port.
type ConnectionError struct {
	Board string
	Msg   string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Board, e.Msg)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FirmwareError reports a debug probe whose firmware needs an update.
type FirmwareError struct {
	Board string
	Port  string
}

func (e *FirmwareError) Error() string {
	return fmt.Sprintf("the debug probe firmware of %s is outdated (port: %s)", e.Board, e.Port)
}
